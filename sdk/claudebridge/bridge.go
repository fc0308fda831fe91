// Package claudebridge is the embeddable entry point: it assembles the
// credential manager, the Messages API client, and optional extras into a
// provider.LanguageModel.
package claudebridge

import (
	"context"
	"time"

	"github.com/nmhq/claude-bridge/internal/anthropic"
	"github.com/nmhq/claude-bridge/internal/config"
	"github.com/nmhq/claude-bridge/internal/credentials"
	"github.com/nmhq/claude-bridge/internal/usage"
	"github.com/nmhq/claude-bridge/sdk/provider"
)

// Options configures a Bridge. Zero values take the same defaults as the CLI.
type Options struct {
	// CredentialsPath overrides the credential file location.
	CredentialsPath string

	// BaseURL overrides the Messages API origin.
	BaseURL string

	// TokenURL overrides the OAuth token endpoint.
	TokenURL string

	// CacheTTL overrides the credential cache window.
	CacheTTL time.Duration

	// ExpiryBuffer overrides the proactive refresh buffer.
	ExpiryBuffer time.Duration

	// WatchCredentials invalidates the cache when the credential file is
	// rewritten by another process.
	WatchCredentials bool

	// UsageDatabasePath enables local usage recording when non-empty.
	UsageDatabasePath string
}

// Bridge bundles a ready-to-use model with the resources behind it.
type Bridge struct {
	model    *anthropic.Client
	manager  *credentials.Manager
	watcher  *credentials.Watcher
	recorder *usage.Recorder
}

// New builds a Bridge. Call Close when done to release the watcher and usage
// database.
func New(opts Options) (*Bridge, error) {
	credPath := opts.CredentialsPath
	if credPath == "" {
		credPath = config.DefaultCredentialsPath()
	}

	store := credentials.NewStore(credPath)
	manager := credentials.NewManager(store, credentials.ManagerConfig{
		TokenURL:     opts.TokenURL,
		CacheTTL:     opts.CacheTTL,
		ExpiryBuffer: opts.ExpiryBuffer,
	})

	client := anthropic.NewClient(manager, anthropic.ClientConfig{
		BaseURL: opts.BaseURL,
	})

	bridge := &Bridge{model: client, manager: manager}

	if opts.WatchCredentials {
		watcher, err := credentials.Watch(manager)
		if err != nil {
			return nil, err
		}
		bridge.watcher = watcher
	}
	if opts.UsageDatabasePath != "" {
		recorder, err := usage.NewRecorder(opts.UsageDatabasePath)
		if err != nil {
			bridge.close()
			return nil, err
		}
		bridge.recorder = recorder
		client.SetUsageObserver(recorder)
	}
	return bridge, nil
}

// Model returns the language model interface.
func (b *Bridge) Model() provider.LanguageModel { return b.model }

// AccessToken returns a currently valid bearer token, refreshing if needed.
func (b *Bridge) AccessToken(ctx context.Context) (string, error) {
	return b.manager.AccessToken(ctx)
}

// Close releases watcher and recorder resources.
func (b *Bridge) Close() error {
	return b.close()
}

func (b *Bridge) close() error {
	var first error
	if b.watcher != nil {
		if err := b.watcher.Close(); err != nil && first == nil {
			first = err
		}
		b.watcher = nil
	}
	if b.recorder != nil {
		if err := b.recorder.Close(); err != nil && first == nil {
			first = err
		}
		b.recorder = nil
	}
	return first
}
