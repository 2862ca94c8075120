package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sprite-ai/margin/internal/editor"
	"github.com/sprite-ai/margin/internal/reconcile"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile <file>",
	Short: "Move stored annotations through an edit made outside margin",
	Long: `Remap a document's annotations after it changed outside margin.
Exactly one source for the change is required:

  --patch FILE   apply a unified diff to the document and remap through it
                 ("-" reads the patch from stdin)
  --from FILE    the document as it was when the annotations were made
  --git REV      the document as committed at REV

Annotations whose passage was touched by the change are archived as
expired; the rest move with the text.`,
	Args: cobra.ExactArgs(1),
	RunE: runReconcile,
}

func init() {
	reconcileCmd.Flags().String("patch", "", "unified diff to apply")
	reconcileCmd.Flags().String("from", "", "previous version of the document")
	reconcileCmd.Flags().String("git", "", "git revision holding the previous version")
	reconcileCmd.MarkFlagsMutuallyExclusive("patch", "from", "git")
	reconcileCmd.MarkFlagsOneRequired("patch", "from", "git")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	path, err := docPath(args[0])
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading document: %w", err)
	}
	current := string(data)

	patchPath, _ := cmd.Flags().GetString("patch")
	fromPath, _ := cmd.Flags().GetString("from")
	rev, _ := cmd.Flags().GetString("git")

	var (
		cs      editor.ChangeSet
		updated string
	)
	switch {
	case patchPath != "":
		patch, err := readInput(cmd, patchPath)
		if err != nil {
			return err
		}
		if cs, err = reconcile.FromPatch(current, patch); err != nil {
			return err
		}
		if updated, err = cs.Apply(current); err != nil {
			return err
		}
	case fromPath != "":
		old, err := os.ReadFile(fromPath)
		if err != nil {
			return fmt.Errorf("reading previous version: %w", err)
		}
		cs, updated = reconcile.FromContents(string(old), current), current
	default:
		old, err := reconcile.GitShow(cmd.Context(), rev, path)
		if err != nil {
			return err
		}
		cs, updated = reconcile.FromContents(old, current), current
	}

	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	kept, stale := reconcile.Remap(e.store.Active(path), cs)
	for i := range stale {
		stale[i].Dismissed, stale[i].Auto = true, true
	}
	e.store.ArchiveRecords(path, stale)
	e.store.ReplaceActive(path, kept)

	if updated != current {
		if err := writeDocument(path, updated); err != nil {
			return err
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%d annotation(s) moved, %d expired\n", len(kept), len(stale))
	for _, a := range stale {
		fmt.Fprintf(cmd.OutOrStdout(), "  expired %s %q\n", shortID(a.ID), a.MatchedText)
	}
	return e.close()
}

// readInput reads name, or stdin when name is "-".
func readInput(cmd *cobra.Command, name string) (string, error) {
	var (
		data []byte
		err  error
	)
	if name == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(name)
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", name, err)
	}
	if len(data) == 0 {
		return "", errors.New("empty patch")
	}
	return string(data), nil
}
