package credentials

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	log "github.com/nmhq/claude-bridge/internal/logging"
)

// Watcher invalidates a manager's cache when the credential file changes on
// disk, e.g. when the Claude CLI rotates the token in another process.
type Watcher struct {
	fs   *fsnotify.Watcher
	done chan struct{}
}

// Watch starts watching the manager's backing file. The parent directory is
// watched rather than the file itself because editors and the CLI replace the
// file instead of rewriting it in place.
func Watch(m *Manager) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	path := m.Store().Path()
	if err := fs.Add(filepath.Dir(path)); err != nil {
		_ = fs.Close()
		return nil, err
	}

	w := &Watcher{fs: fs, done: make(chan struct{})}
	go w.run(m, path)
	return w, nil
}

func (w *Watcher) run(m *Manager, path string) {
	target := filepath.Clean(path)
	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				log.Debugf("credentials: %s changed on disk, dropping cache", path)
				m.Invalidate()
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			log.Warnf("credentials: watcher error: %v", err)
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fs.Close()
}
