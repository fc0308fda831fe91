// Package streamutil provides lifecycle plumbing for streamed HTTP response
// bodies.
package streamutil

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/nmhq/claude-bridge/internal/logging"
)

// CancelReader wraps an io.ReadCloser so that context cancellation closes the
// body immediately, unblocking any pending Read. An optional idle watchdog
// closes connections whose upstream has gone silent.
type CancelReader struct {
	body         io.ReadCloser
	ctx          context.Context
	closed       atomic.Bool
	closeOnce    sync.Once
	closeErr     error
	lastActivity atomic.Int64
	idleTimeout  time.Duration
	stop         chan struct{}
	stopOnce     sync.Once
	name         string
}

// NewCancelReader wraps body. idleTimeout of zero disables idle detection;
// name is used only in log lines.
func NewCancelReader(ctx context.Context, body io.ReadCloser, idleTimeout time.Duration, name string) *CancelReader {
	r := &CancelReader{
		body:        body,
		ctx:         ctx,
		idleTimeout: idleTimeout,
		stop:        make(chan struct{}),
		name:        name,
	}
	r.touch()

	go r.watchContext()
	if idleTimeout > 0 {
		go r.watchIdle()
	}
	return r
}

func (r *CancelReader) touch() {
	r.lastActivity.Store(time.Now().UnixNano())
}

func (r *CancelReader) watchContext() {
	select {
	case <-r.ctx.Done():
		r.closeWithReason("context cancelled")
	case <-r.stop:
	}
}

func (r *CancelReader) watchIdle() {
	interval := r.idleTimeout / 4
	if interval < 5*time.Second {
		interval = 5 * time.Second
	}
	if interval > 30*time.Second {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			if r.closed.Load() {
				return
			}
			idle := time.Since(time.Unix(0, r.lastActivity.Load()))
			if idle > r.idleTimeout {
				log.Warnf("%s: stream idle for %v (limit %v), closing", r.name, idle.Round(time.Second), r.idleTimeout)
				r.closeWithReason("idle timeout")
				return
			}
		}
	}
}

// Read implements io.Reader and resets the idle timer on progress.
func (r *CancelReader) Read(p []byte) (int, error) {
	if r.closed.Load() {
		return 0, io.EOF
	}
	n, err := r.body.Read(p)
	if n > 0 {
		r.touch()
	}
	return n, err
}

func (r *CancelReader) closeWithReason(reason string) {
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		r.closeErr = r.body.Close()
		log.Debugf("%s: stream closed: %s", r.name, reason)
	})
}

// Close releases the underlying body. Safe to call multiple times.
func (r *CancelReader) Close() error {
	r.closeWithReason("explicit close")
	r.stopOnce.Do(func() { close(r.stop) })
	return r.closeErr
}
