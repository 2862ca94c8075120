package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sprite-ai/margin/internal/lifecycle"
	"github.com/sprite-ai/margin/internal/model"
)

func TestRootCommandHasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	for _, want := range []string{
		"analyze", "detect", "check", "list", "apply", "dismiss",
		"archive", "reconcile", "watch", "review", "serve", "version",
	} {
		if !names[want] {
			t.Errorf("root command missing subcommand %q", want)
		}
	}
}

func TestVersionOutput(t *testing.T) {
	// version vars are set via ldflags; in tests they have their defaults
	if version != "dev" {
		t.Errorf("expected default version %q, got %q", "dev", version)
	}
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "margin dev (commit none, built unknown)\n", out)
}

func TestResolveID(t *testing.T) {
	anns := []model.Annotation{{ID: "abc123"}, {ID: "abd456"}, {ID: "abc"}}

	id, err := resolveID(anns, "abd")
	require.NoError(t, err)
	assert.Equal(t, "abd456", id)

	id, err = resolveID(anns, "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", id, "an exact match beats a longer prefix match")

	_, err = resolveID(anns, "ab")
	assert.ErrorContains(t, err, "ambiguous")

	_, err = resolveID(anns, "zz")
	assert.ErrorIs(t, err, lifecycle.ErrNotFound)
}

func TestExcerpt(t *testing.T) {
	doc := "one\ntwo\nthree\nfour"
	assert.Equal(t, 3, lineOf(doc, strings.Index(doc, "three")))
	assert.Equal(t, 1, lineOf(doc, -4))
	assert.Equal(t, []string{"two", "three", "four"}, excerpt(doc, strings.Index(doc, "three"), 1))
	assert.Equal(t, []string{"one"}, excerpt(doc, 0, 0))
}

// --- command runs ---

// resetFlags restores every flag to its default; cobra keeps parsed values
// between Execute calls.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			sv.Replace(nil)
		} else {
			f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

type workspace struct {
	dir   string
	state string
}

func newWorkspace(t *testing.T) workspace {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	for _, k := range []string{"MARGIN_STATE", "MARGIN_REDIS_URL", "MARGIN_PROVIDER", "MARGIN_TRANSCRIPT", "MARGIN_API_KEY", "OPENAI_API_KEY"} {
		t.Setenv(k, "")
	}
	return workspace{dir: dir, state: filepath.Join(dir, "state.json")}
}

func (w workspace) file(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(w.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (w workspace) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return run(t, append([]string{"--state", w.state}, args...)...)
}

func (w workspace) list(t *testing.T, path string, archived bool) []model.Annotation {
	t.Helper()
	args := []string{"list", path, "--format", "json"}
	if archived {
		args = append(args, "--archive")
	}
	out, err := w.run(t, args...)
	require.NoError(t, err)

	var anns []model.Annotation
	require.NoError(t, json.Unmarshal([]byte(out), &anns))
	return anns
}

func TestDetectAddAndApply(t *testing.T) {
	w := newWorkspace(t)
	doc := w.file(t, "story.md", "He walked to the the store.\n")

	out, err := w.run(t, "detect", doc, "--add")
	require.NoError(t, err)
	assert.Contains(t, out, "[repetition]")

	anns := w.list(t, doc, false)
	require.Len(t, anns, 1)
	assert.Equal(t, "the the", anns[0].MatchedText)

	// Running again does not duplicate the stored finding.
	_, err = w.run(t, "detect", doc, "--add")
	require.NoError(t, err)
	assert.Len(t, w.list(t, doc, false), 1)

	out, err = w.run(t, "apply", doc, anns[0].ID[:8])
	require.NoError(t, err)
	assert.Contains(t, out, "Applied")

	data, err := os.ReadFile(doc)
	require.NoError(t, err)
	assert.Equal(t, "He walked to the store.\n", string(data))

	assert.Empty(t, w.list(t, doc, false))
	archived := w.list(t, doc, true)
	require.Len(t, archived, 1)
	assert.True(t, archived[0].Applied)
}

func TestAnalyzeWithTranscript(t *testing.T) {
	w := newWorkspace(t)
	doc := w.file(t, "story.md", "She was seen by him walking down the path. The rain fell.\n")
	transcript := w.file(t, "run.jsonl", strings.Join([]string{
		`{"type":"chunk","content":"ISSUE: The actor is hidden.\n"}`,
		`{"type":"chunk","content":"\"She was seen by him walking down the path.\"\n"}`,
		`{"type":"chunk","content":"SUGGESTION: \"He saw her walking down the path.\"\n"}`,
	}, "\n"))
	t.Setenv("MARGIN_PROVIDER", "scripted")
	t.Setenv("MARGIN_TRANSCRIPT", transcript)

	out, err := w.run(t, "analyze", doc, "--mode", "passive")
	require.NoError(t, err)
	assert.Contains(t, out, "ISSUE: The actor is hidden.")
	assert.Contains(t, out, "1 annotation(s) added")

	anns := w.list(t, doc, false)
	require.Len(t, anns, 1)
	assert.Equal(t, model.TypePassive, anns[0].Type)
	assert.Equal(t, "He saw her walking down the path.", anns[0].Suggestion)

	_, err = w.run(t, "analyze", doc, "--mode", "grammar")
	assert.ErrorContains(t, err, "unknown mode")
}

func TestAnalyzeWithoutProvider(t *testing.T) {
	w := newWorkspace(t)
	doc := w.file(t, "story.md", "Text.")

	_, err := w.run(t, "analyze", doc)
	assert.Error(t, err)
}

func TestDismissAndClearArchive(t *testing.T) {
	w := newWorkspace(t)
	doc := w.file(t, "story.md", "It was very very cold and really quite late.")

	_, err := w.run(t, "detect", doc, "--add")
	require.NoError(t, err)
	anns := w.list(t, doc, false)
	require.NotEmpty(t, anns)

	out, err := w.run(t, "dismiss", doc, anns[0].ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Dismissed")
	assert.Len(t, w.list(t, doc, false), len(anns)-1)

	_, err = w.run(t, "dismiss", doc, "nope")
	assert.ErrorIs(t, err, lifecycle.ErrNotFound)

	out, err = w.run(t, "archive", "clear", doc)
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 1")
	assert.Empty(t, w.list(t, doc, true))
}

func TestReconcileFromPreviousVersion(t *testing.T) {
	w := newWorkspace(t)
	original := "It was very cold. He walked to the the store.\n"
	doc := w.file(t, "story.md", original)

	_, err := w.run(t, "detect", doc, "--add")
	require.NoError(t, err)
	before := w.list(t, doc, false)
	require.Len(t, before, 2)

	old := w.file(t, "story.old.md", original)
	w.file(t, "story.md", "Snow fell. It was bitter cold. He walked to the the store.\n")

	out, err := w.run(t, "reconcile", doc, "--from", old)
	require.NoError(t, err)
	assert.Contains(t, out, "1 annotation(s) moved, 1 expired")

	data, _ := os.ReadFile(doc)
	kept := w.list(t, doc, false)
	require.Len(t, kept, 1)
	assert.Equal(t, "the the", string(data)[kept[0].From:kept[0].To])

	expired := w.list(t, doc, true)
	require.Len(t, expired, 1)
	assert.True(t, expired[0].Auto)
}

func TestReconcileWithPatch(t *testing.T) {
	w := newWorkspace(t)
	doc := w.file(t, "story.md", "line one\nHe walked to the the store.\n")

	_, err := w.run(t, "detect", doc, "--add")
	require.NoError(t, err)

	patch := w.file(t, "edit.patch", `diff --git a/story.md b/story.md
--- a/story.md
+++ b/story.md
@@ -1,2 +1,3 @@
+a new first line
 line one
 He walked to the the store.
`)
	out, err := w.run(t, "reconcile", doc, "--patch", patch)
	require.NoError(t, err)
	assert.Contains(t, out, "1 annotation(s) moved, 0 expired")

	data, _ := os.ReadFile(doc)
	assert.Equal(t, "a new first line\nline one\nHe walked to the the store.\n", string(data))
	kept := w.list(t, doc, false)
	require.Len(t, kept, 1)
	assert.Equal(t, "the the", string(data)[kept[0].From:kept[0].To])

	_, err = w.run(t, "reconcile", doc)
	assert.Error(t, err, "a change source is required")
}

func TestCheck(t *testing.T) {
	w := newWorkspace(t)
	dirty := w.file(t, "dirty.md", "The door was slowly opened.\n")
	clean := w.file(t, "clean.md", "He saw her walking down the path.\n")

	out, err := run(t, "check", clean)
	require.NoError(t, err)
	assert.Contains(t, out, "No issues found")

	out, err = run(t, "check", clean, dirty)
	assert.True(t, errors.Is(err, ErrFindings))
	assert.Contains(t, out, "dirty.md:1 [passive]")

	out, err = run(t, "check", dirty, "--format", "json", "--skip", "passive")
	require.NoError(t, err)
	var files []struct {
		Path  string `json:"path"`
		Total int    `json:"total"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &files))
	require.Len(t, files, 1)
	assert.Zero(t, files[0].Total)

	_, err = run(t, "check", filepath.Join(w.dir, "missing.md"))
	assert.ErrorContains(t, err, "missing.md")
}

func TestReviewNeedsTerminal(t *testing.T) {
	w := newWorkspace(t)
	doc := w.file(t, "story.md", "Text.")

	_, err := w.run(t, "review", doc)
	assert.ErrorContains(t, err, "interactive terminal")
}
