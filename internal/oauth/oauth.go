// Package oauth implements the browser-based login flow that mints the
// credential file: authorize URL construction, the loopback callback, and the
// authorization-code exchange.
package oauth

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/nmhq/claude-bridge/internal/credentials"
	"github.com/nmhq/claude-bridge/internal/json"
)

const (
	// AuthorizeURL is the browser-facing authorization endpoint.
	AuthorizeURL = "https://claude.ai/oauth/authorize"

	// CallbackPort is the loopback port the CLI listens on during login.
	CallbackPort = 54545

	// Scopes requested at login.
	Scopes = "org:create_api_key user:profile user:inference"
)

// RedirectURI returns the loopback redirect target.
func RedirectURI() string {
	return fmt.Sprintf("http://localhost:%d/callback", CallbackPort)
}

// GenerateState creates a random state parameter for CSRF protection.
func GenerateState() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("oauth: generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// BuildAuthorizeURL assembles the URL the user opens to sign in.
func BuildAuthorizeURL(state, challenge string) string {
	query := url.Values{}
	query.Set("code", "true")
	query.Set("client_id", credentials.ClientID)
	query.Set("response_type", "code")
	query.Set("redirect_uri", RedirectURI())
	query.Set("scope", Scopes)
	query.Set("state", state)
	query.Set("code_challenge", challenge)
	query.Set("code_challenge_method", "S256")
	return AuthorizeURL + "?" + query.Encode()
}

type exchangeRequest struct {
	GrantType    string `json:"grant_type"`
	Code         string `json:"code"`
	State        string `json:"state"`
	ClientID     string `json:"client_id"`
	RedirectURI  string `json:"redirect_uri"`
	CodeVerifier string `json:"code_verifier"`
}

// ExchangeCode trades an authorization code for a credential record at the
// token endpoint.
func ExchangeCode(ctx context.Context, tokenURL, code, state, verifier string) (*credentials.Record, error) {
	// Pasted codes sometimes arrive as "code#state".
	if idx := strings.IndexByte(code, '#'); idx >= 0 {
		if state == "" {
			state = code[idx+1:]
		}
		code = code[:idx]
	}

	body, err := json.Marshal(exchangeRequest{
		GrantType:    "authorization_code",
		Code:         code,
		State:        state,
		ClientID:     credentials.ClientID,
		RedirectURI:  RedirectURI(),
		CodeVerifier: verifier,
	})
	if err != nil {
		return nil, fmt.Errorf("oauth: encode exchange request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oauth: code exchange: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("oauth: read exchange response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("oauth: code exchange failed: status %d: %s", resp.StatusCode, data)
	}

	doc := gjson.ParseBytes(data)
	accessToken := doc.Get("access_token").String()
	if accessToken == "" {
		return nil, fmt.Errorf("oauth: exchange response missing access_token")
	}

	rec := &credentials.Record{
		AccessToken:    accessToken,
		RefreshToken:   doc.Get("refresh_token").String(),
		ExpiresAt:      time.Now().UnixMilli() + doc.Get("expires_in").Int()*1000,
		OrganizationID: doc.Get("organization.uuid").String(),
	}
	if scope := doc.Get("scope").String(); scope != "" {
		rec.Scopes = strings.Fields(scope)
	}
	return rec, nil
}
