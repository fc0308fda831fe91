package anthropic

import "fmt"

// StatusError is returned when the Messages API answers with a non-2xx
// status. The body is carried verbatim so callers can inspect the vendor
// error document. No retry is attempted anywhere in this package.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("anthropic: status %d: %s", e.StatusCode, e.Body)
}
