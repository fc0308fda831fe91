package credentials

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nmhq/claude-bridge/internal/json"
)

// fileDocument mirrors the JSON document the Claude CLI writes to
// ~/.claude/.credentials.json.
type fileDocument struct {
	ClaudeAIOAuth    oauthSection `json:"claudeAiOauth"`
	OrganizationUUID string       `json:"organizationUuid,omitempty"`
}

type oauthSection struct {
	AccessToken      string   `json:"accessToken"`
	RefreshToken     string   `json:"refreshToken"`
	ExpiresAt        int64    `json:"expiresAt"`
	Scopes           []string `json:"scopes"`
	SubscriptionType *string  `json:"subscriptionType"`
	RateLimitTier    *string  `json:"rateLimitTier"`
}

// Store reads and writes the credential file as a single JSON document.
// Writes are whole-file overwrites; there is no cross-process locking, which
// is acceptable for a single-user local file.
type Store struct {
	path string
}

// NewStore creates a store backed by the file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file location.
func (s *Store) Path() string { return s.path }

// Read loads and parses the credential file. A missing file yields
// *NotFoundError; unparseable or structurally empty content yields
// *CorruptError.
func (s *Store) Read() (*Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{Path: s.path}
		}
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &CorruptError{Path: s.path, Err: err}
	}
	if doc.ClaudeAIOAuth.AccessToken == "" && doc.ClaudeAIOAuth.RefreshToken == "" {
		return nil, &CorruptError{Path: s.path, Err: fmt.Errorf("missing claudeAiOauth section")}
	}

	rec := &Record{
		AccessToken:    doc.ClaudeAIOAuth.AccessToken,
		RefreshToken:   doc.ClaudeAIOAuth.RefreshToken,
		ExpiresAt:      doc.ClaudeAIOAuth.ExpiresAt,
		Scopes:         doc.ClaudeAIOAuth.Scopes,
		OrganizationID: doc.OrganizationUUID,
	}
	if doc.ClaudeAIOAuth.SubscriptionType != nil {
		rec.SubscriptionType = *doc.ClaudeAIOAuth.SubscriptionType
	}
	if doc.ClaudeAIOAuth.RateLimitTier != nil {
		rec.RateLimitTier = *doc.ClaudeAIOAuth.RateLimitTier
	}
	return rec, nil
}

// Write persists the record, replacing the whole file. Parent directories are
// created as needed and the file keeps user-only permissions.
func (s *Store) Write(rec *Record) error {
	doc := fileDocument{
		ClaudeAIOAuth: oauthSection{
			AccessToken:  rec.AccessToken,
			RefreshToken: rec.RefreshToken,
			ExpiresAt:    rec.ExpiresAt,
			Scopes:       rec.Scopes,
		},
		OrganizationUUID: rec.OrganizationID,
	}
	if rec.SubscriptionType != "" {
		doc.ClaudeAIOAuth.SubscriptionType = &rec.SubscriptionType
	}
	if rec.RateLimitTier != "" {
		doc.ClaudeAIOAuth.RateLimitTier = &rec.RateLimitTier
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create credentials directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}
