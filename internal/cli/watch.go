package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/sprite-ai/margin/internal/lifecycle"
	"github.com/sprite-ai/margin/internal/reconcile"
)

var watchCmd = &cobra.Command{
	Use:   "watch <file>",
	Short: "Track annotations while the document is edited in another program",
	Long: `Watch a document and treat every save as an edit. Annotations move with
the surrounding text; a passage that is rewritten expires once it has been
left alone for the dismiss delay. Stop with Ctrl-C.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
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

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	// Editors often save by renaming a temp file over the original, which
	// drops a watch on the file itself. Watch the directory instead.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(path), err)
	}

	out := cmd.OutOrStdout()
	unsubscribe := eng.Subscribe(func(ev lifecycle.Event) {
		switch ev.Kind {
		case lifecycle.EventAutoDismissed:
			for _, id := range ev.IDs {
				fmt.Fprintf(out, "expired %s\n", shortID(id))
			}
		case lifecycle.EventEdited:
			if len(ev.IDs) > 0 {
				fmt.Fprintf(out, "%d annotation(s) touched, expiring in %s\n", len(ev.IDs), e.cfg.DismissDelay)
			}
		}
	})
	defer unsubscribe()

	fmt.Fprintf(out, "Watching %s (%d annotations)\n", args[0], len(eng.Active()))

	ctx := cmd.Context()
	for {
		select {
		case <-ctx.Done():
			return e.close()

		case ev, ok := <-watcher.Events:
			if !ok {
				return e.close()
			}
			if filepath.Clean(ev.Name) != path || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			if err := syncFile(eng, path); err != nil {
				e.log.Warn("syncing document", "path", path, "error", err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return e.close()
			}
			e.log.Warn("watch error", "error", err)
		}
	}
}

// syncFile turns the difference between the engine's text and the file on
// disk into one edit.
func syncFile(eng *lifecycle.Engine, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		// Mid-rename; the create event follows.
		return nil
	}
	if err != nil {
		return err
	}
	cs := reconcile.FromContents(eng.Content(), string(data))
	if cs.Empty() {
		return nil
	}
	return eng.Edit(cs)
}
