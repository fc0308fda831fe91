package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	log "github.com/nmhq/claude-bridge/internal/logging"
)

// CallbackResult carries the query parameters the authorization server
// redirects back with.
type CallbackResult struct {
	Code  string
	State string
}

const callbackPage = `<!doctype html>
<html><body style="font-family: sans-serif; text-align: center; padding-top: 4em;">
<h2>Login complete</h2>
<p>You can close this window and return to the terminal.</p>
</body></html>`

// WaitForCallback runs a loopback HTTP server until the OAuth redirect
// arrives, the context is cancelled, or the timeout elapses. The expected
// state is verified before the code is handed back.
func WaitForCallback(ctx context.Context, expectedState string, timeout time.Duration) (*CallbackResult, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	results := make(chan CallbackResult, 1)
	denials := make(chan error, 1)
	router.GET("/callback", func(c *gin.Context) {
		if errParam := c.Query("error"); errParam != "" {
			c.String(http.StatusBadRequest, "login failed: %s", errParam)
			select {
			case denials <- fmt.Errorf("oauth: authorization denied: %s", errParam):
			default:
			}
			return
		}
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, callbackPage)
		select {
		case results <- CallbackResult{Code: c.Query("code"), State: c.Query("state")}:
		default:
		}
	})

	server := &http.Server{
		Addr:    fmt.Sprintf("localhost:%d", CallbackPort),
		Handler: router,
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Debugf("oauth: callback server shutdown: %v", err)
		}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-results:
		if expectedState != "" && result.State != expectedState {
			return nil, fmt.Errorf("oauth: state mismatch in callback")
		}
		return &result, nil
	case err := <-denials:
		return nil, err
	case err := <-serveErr:
		return nil, fmt.Errorf("oauth: callback server: %w", err)
	case <-timer.C:
		return nil, fmt.Errorf("oauth: timed out waiting for login callback")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
