package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/distill-labs/distillprep/internal/cli/config"
	"github.com/distill-labs/distillprep/internal/state"
)

// getConfig returns the current configuration, falling back to
// defaults if none was loaded (help paths, tests).
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	cfg, err := config.LoadConfig("", nil)
	if err != nil {
		// Last resort: unresolved defaults.
		return &config.Config{
			CacheDir:    config.DefaultCacheDir,
			StatePath:   config.DefaultStateFile,
			MappingPath: config.DefaultMappingPath,
		}
	}
	return cfg
}

// getLogger returns the logger stored in the command context.
func getLogger(cmd *cobra.Command) *slog.Logger {
	return config.GetLogger(cmd.Context())
}

// openStore opens the manifest database, creating its directory and
// schema as needed. The returned cleanup must be called (typically
// via defer).
func openStore(cfg *config.Config, logger *slog.Logger) (*state.SQLiteStore, func(), error) {
	stateDir := filepath.Dir(cfg.StatePath)
	if stateDir != "." && stateDir != "" {
		if err := os.MkdirAll(stateDir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	store := state.NewSQLiteStore(logger)
	if err := store.Open(cfg.StatePath); err != nil {
		return nil, nil, err
	}
	if err := store.InitSchema(); err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	cleanup := func() { _ = store.Close() }
	return store, cleanup, nil
}
