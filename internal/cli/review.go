package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/sprite-ai/margin/internal/ai"
	"github.com/sprite-ai/margin/internal/critique"
	"github.com/sprite-ai/margin/internal/tui"
)

var reviewCmd = &cobra.Command{
	Use:   "review <file>",
	Short: "Open an interactive review session",
	Long: `Open the document in a terminal UI with its annotations highlighted.
Step through them, apply or dismiss each one, type into the document, and
request a fresh critique with r when an AI provider is configured.

Edits are written back to the file when the session ends.`,
	Args: cobra.ExactArgs(1),
	RunE: runReview,
}

func init() {
	reviewCmd.Flags().StringP("mode", "m", ai.ModeCritique, "analysis mode for new critiques")
}

func runReview(cmd *cobra.Command, args []string) error {
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return errors.New("review needs an interactive terminal; try \"margin list\"")
	}
	mode, _ := cmd.Flags().GetString("mode")
	if !ai.ValidMode(mode) {
		return fmt.Errorf("unknown mode %q", mode)
	}

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
	original := eng.Content()

	opts := tui.Options{Sessions: e.store, Mode: mode}
	p, err := e.provider(cmd.Context())
	switch {
	case err == nil:
		opts.Critic = critique.New(p, critique.Options{Logger: e.log, Current: eng.Content})
	case errors.Is(err, ai.ErrNoProvider):
		e.log.Debug("critique disabled", "reason", err)
	default:
		return err
	}
	if opts.Critic != nil {
		defer opts.Critic.Cancel()
	}

	summary, err := tui.Run(eng, opts)
	if err != nil {
		return err
	}

	if content := eng.Content(); content != original {
		if err := writeDocument(path, content); err != nil {
			return err
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), summary)
	return e.close()
}
