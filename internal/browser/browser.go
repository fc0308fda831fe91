// Package browser opens URLs in the user's default browser.
package browser

import (
	"os"
	"runtime"

	"github.com/skratchdot/open-golang/open"
)

// IsAvailable reports whether opening a browser is likely to work. SSH
// sessions and displayless Linux hosts get manual-URL instructions instead.
func IsAvailable() bool {
	if os.Getenv("SSH_CONNECTION") != "" || os.Getenv("SSH_TTY") != "" {
		return false
	}
	if runtime.GOOS == "linux" {
		return os.Getenv("DISPLAY") != "" || os.Getenv("WAYLAND_DISPLAY") != ""
	}
	return true
}

// OpenURL launches url in the default browser.
func OpenURL(url string) error {
	return open.Run(url)
}
