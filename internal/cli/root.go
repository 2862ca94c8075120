// Package cli implements the margin command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sprite-ai/margin/internal/ai"
	"github.com/sprite-ai/margin/internal/clock"
	"github.com/sprite-ai/margin/internal/config"
	"github.com/sprite-ai/margin/internal/lifecycle"
	"github.com/sprite-ai/margin/internal/logging"
	"github.com/sprite-ai/margin/internal/model"
	"github.com/sprite-ai/margin/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "margin",
	Short: "AI annotations for prose that survive editing",
	Long: `margin asks an AI model to critique a document, pins every quoted
passage to the text as an annotation, and keeps those annotations in place
while the document is edited, applied, dismissed and undone.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default ~/.config/margin/config.yaml)")
	rootCmd.PersistentFlags().String("state", "", "annotation state file")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(
		analyzeCmd,
		detectCmd,
		checkCmd,
		listCmd,
		applyCmd,
		dismissCmd,
		archiveCmd,
		reconcileCmd,
		watchCmd,
		reviewCmd,
		serveCmd,
		versionCmd,
	)
}

// Execute runs the root command. Interrupts cancel the command's context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// env is what a command needs to touch stored annotations.
type env struct {
	cfg    config.Config
	log    *slog.Logger
	store  *store.Store
	saver  *store.Saver
	closer io.Closer
	closed bool
}

// loadConfig reads the config file and applies the global flags.
func loadConfig(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, nil, err
	}
	if s, _ := cmd.Flags().GetString("state"); s != "" {
		cfg.StatePath = s
		cfg.Redis.URL = ""
	}
	if l, _ := cmd.Flags().GetString("log-level"); l != "" {
		cfg.Log.Level = l
	}

	log, err := logging.New(cmd.ErrOrStderr(), cfg.Log)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, log, nil
}

// openEnv loads config and the persisted store. Callers must close it.
func openEnv(cmd *cobra.Command) (*env, error) {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	ctx := cmd.Context()
	var (
		p      store.Persister
		closer io.Closer
	)
	if cfg.Redis.URL != "" {
		rp, err := store.NewRedisPersister(ctx, cfg.Redis.URL, cfg.Redis.Key)
		if err != nil {
			return nil, err
		}
		p, closer = rp, rp
	} else {
		if err := os.MkdirAll(filepath.Dir(cfg.StatePath), 0o755); err != nil {
			return nil, fmt.Errorf("creating state directory: %w", err)
		}
		p = store.NewFilePersister(cfg.StatePath)
	}

	st, err := store.Open(ctx, p)
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, fmt.Errorf("loading state: %w", err)
	}
	log.Debug("state loaded", "backend", p.Name(), "files", len(st.Paths()))

	return &env{
		cfg:    cfg,
		log:    log,
		store:  st,
		saver:  store.NewSaver(st, p, clock.Real{}, cfg.SaveDelay, log),
		closer: closer,
	}, nil
}

// close writes any unsaved changes and releases the backend.
func (e *env) close() error {
	if e.closed {
		return nil
	}
	e.closed = true

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := e.saver.Flush(ctx)
	if e.closer != nil {
		err = errors.Join(err, e.closer.Close())
	}
	return err
}

// engine opens the document at path in a new engine.
func (e *env) engine(path string) (*lifecycle.Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}
	eng, err := lifecycle.New(e.store, lifecycle.Options{
		DismissDelay: e.cfg.DismissDelay,
		Logger:       e.log,
	})
	if err != nil {
		return nil, err
	}
	eng.Open(path, string(data))
	return eng, nil
}

// provider builds the configured AI provider.
func (e *env) provider(ctx context.Context) (ai.Provider, error) {
	return ai.NewProvider(ctx, e.cfg.AI, e.log)
}

// docPath is the key a document is stored under: its absolute path.
func docPath(arg string) (string, error) {
	abs, err := filepath.Abs(arg)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", arg, err)
	}
	return abs, nil
}

// writeDocument replaces the file at path, keeping its permissions.
func writeDocument(path, content string) error {
	mode := os.FileMode(0o644)
	if fi, err := os.Stat(path); err == nil {
		mode = fi.Mode().Perm()
	}
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		return fmt.Errorf("writing document: %w", err)
	}
	return nil
}

// resolveID finds the annotation whose id starts with prefix.
func resolveID(anns []model.Annotation, prefix string) (string, error) {
	var match string
	for _, a := range anns {
		if a.ID == prefix {
			return a.ID, nil
		}
		if strings.HasPrefix(a.ID, prefix) {
			if match != "" {
				return "", fmt.Errorf("annotation id %q is ambiguous", prefix)
			}
			match = a.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("%w: %s", lifecycle.ErrNotFound, prefix)
	}
	return match, nil
}

// shortID trims a UUID for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
