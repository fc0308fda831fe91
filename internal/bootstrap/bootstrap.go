// Package bootstrap wires configuration, logging, and the credential manager
// for CLI commands.
package bootstrap

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/nmhq/claude-bridge/internal/config"
	"github.com/nmhq/claude-bridge/internal/credentials"
	log "github.com/nmhq/claude-bridge/internal/logging"
)

// Result carries everything a command needs after bootstrap.
type Result struct {
	Config  *config.Config
	Manager *credentials.Manager

	watcher *credentials.Watcher
}

// Bootstrap loads .env and the config file, configures logging, and builds
// the credential manager. configPath may be empty for the default location.
func Bootstrap(configPath string) (*Result, error) {
	if wd, err := os.Getwd(); err == nil {
		if errLoad := godotenv.Load(filepath.Join(wd, ".env")); errLoad != nil && !errors.Is(errLoad, os.ErrNotExist) {
			log.WithError(errLoad).Warn("failed to load .env file")
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if cfg.LogLevel != "" {
		log.SetLevel(cfg.LogLevel)
	}
	if cfg.LogFile != "" {
		log.EnableFileOutput(cfg.LogFile)
	}

	store := credentials.NewStore(cfg.CredentialsPath)
	manager := credentials.NewManager(store, credentials.ManagerConfig{
		TokenURL:     cfg.TokenURL,
		CacheTTL:     cfg.CacheTTL(),
		ExpiryBuffer: cfg.ExpiryBuffer(),
	})

	result := &Result{Config: cfg, Manager: manager}
	if cfg.WatchCredentials {
		watcher, err := credentials.Watch(manager)
		if err != nil {
			return nil, fmt.Errorf("watch credentials: %w", err)
		}
		result.watcher = watcher
	}
	return result, nil
}

// Close releases bootstrap-owned resources.
func (r *Result) Close() {
	if r.watcher != nil {
		_ = r.watcher.Close()
	}
}
