package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sprite-ai/margin/internal/model"
)

var listCmd = &cobra.Command{
	Use:   "list <file>",
	Short: "List the annotations stored for a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runList,
}

var applyCmd = &cobra.Command{
	Use:   "apply <file> <id>",
	Short: "Replace an annotated passage with its suggestion",
	Long: `Apply an annotation's suggestion to the document and archive it.
The id may be any unique prefix, as shown by "margin list".`,
	Args: cobra.ExactArgs(2),
	RunE: runApply,
}

var dismissCmd = &cobra.Command{
	Use:   "dismiss <file> <id>...",
	Short: "Dismiss annotations without changing the document",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runDismiss,
}

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Manage applied and dismissed annotations",
}

var archiveClearCmd = &cobra.Command{
	Use:   "clear <file>",
	Short: "Delete the archived annotations of a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runArchiveClear,
}

func init() {
	listCmd.Flags().BoolP("archive", "a", false, "list archived annotations instead")
	listCmd.Flags().StringP("format", "f", "text", "output format: text, json")
	listCmd.Flags().IntP("context", "C", -1, "lines of context around each passage (default from config)")

	archiveCmd.AddCommand(archiveClearCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	path, err := docPath(args[0])
	if err != nil {
		return err
	}

	archived, _ := cmd.Flags().GetBool("archive")
	anns := e.store.Active(path)
	if archived {
		anns = e.store.Archive(path)
	}

	out := cmd.OutOrStdout()
	format, _ := cmd.Flags().GetString("format")
	if format == "json" {
		if anns == nil {
			anns = []model.Annotation{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(anns)
	}

	if len(anns) == 0 {
		fmt.Fprintln(out, "No annotations.")
		return nil
	}

	// A missing file still lists; the excerpts are just left out.
	doc := ""
	if data, err := os.ReadFile(path); err == nil {
		doc = string(data)
	}
	lines, _ := cmd.Flags().GetInt("context")
	if lines < 0 {
		lines = e.cfg.Context
	}
	for _, a := range anns {
		printAnnotation(out, doc, a, lines)
	}
	return nil
}

func printAnnotation(w io.Writer, doc string, a model.Annotation, context int) {
	state := ""
	if !a.Active() {
		state = " (" + a.State().String() + ")"
	}
	fmt.Fprintf(w, "%s  %-11s line %-4d %s%s\n", shortID(a.ID), a.Type, lineOf(doc, a.From), a.Message, state)
	fmt.Fprintf(w, "    %q\n", a.MatchedText)
	if a.Suggestion != "" {
		fmt.Fprintf(w, "    -> %q\n", a.Suggestion)
	}
	if context > 0 && doc != "" {
		for _, l := range excerpt(doc, a.From, context) {
			fmt.Fprintf(w, "    | %s\n", l)
		}
	}
	fmt.Fprintln(w)
}

// lineOf returns the 1-based line containing offset.
func lineOf(doc string, offset int) int {
	offset = max(0, min(offset, len(doc)))
	return strings.Count(doc[:offset], "\n") + 1
}

// excerpt returns the line holding offset with up to n lines either side.
func excerpt(doc string, offset, n int) []string {
	lines := strings.Split(doc, "\n")
	at := lineOf(doc, offset) - 1
	return lines[max(0, at-n):min(len(lines), at+n+1)]
}

func runApply(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	path, err := docPath(args[0])
	if err != nil {
		return err
	}
	id, err := resolveID(e.store.Active(path), args[1])
	if err != nil {
		return err
	}

	eng, err := e.engine(path)
	if err != nil {
		return err
	}
	defer eng.Close()

	a, _ := eng.Get(id)
	if err := eng.Apply(id); err != nil {
		return fmt.Errorf("applying %s: %w", shortID(id), err)
	}
	if err := writeDocument(path, eng.Content()); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Applied %s: %q -> %q\n", shortID(id), a.MatchedText, a.Suggestion)
	if n := len(eng.Active()); n > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%d annotation(s) remaining\n", n)
	}
	return e.close()
}

func runDismiss(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	path, err := docPath(args[0])
	if err != nil {
		return err
	}
	eng, err := e.engine(path)
	if err != nil {
		return err
	}
	defer eng.Close()

	for _, prefix := range args[1:] {
		id, err := resolveID(eng.Active(), prefix)
		if err != nil {
			return err
		}
		if err := eng.Dismiss(id); err != nil {
			return fmt.Errorf("dismissing %s: %w", shortID(id), err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Dismissed %s\n", shortID(id))
	}
	return e.close()
}

func runArchiveClear(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	path, err := docPath(args[0])
	if err != nil {
		return err
	}
	n := e.store.ClearArchive(path)
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d archived annotation(s)\n", n)
	return e.close()
}
