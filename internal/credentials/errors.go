package credentials

import "fmt"

// NotFoundError indicates the credential file does not exist.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("credentials not found at %s (sign in with `claude-bridge login` or the Claude CLI `/login` command)", e.Path)
}

// CorruptError indicates the credential file exists but could not be parsed
// into the expected structure.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("credentials at %s are corrupt: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("credentials at %s are corrupt", e.Path)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// RefreshError indicates the token endpoint rejected a refresh attempt.
// The previously cached token is left untouched when this is returned.
type RefreshError struct {
	StatusCode int
	Body       string
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("token refresh failed: status %d: %s", e.StatusCode, e.Body)
}
