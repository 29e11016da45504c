// Package browser opens the authorization URL in the user's default web
// browser, falling back to platform-specific commands when the generic
// opener fails.
package browser

import (
	"fmt"
	"os/exec"
	"runtime"

	log "github.com/sirupsen/logrus"
	"github.com/skratchdot/open-golang/open"
)

// linuxBrowsers are tried in order when no desktop opener is registered.
var linuxBrowsers = []string{"xdg-open", "x-www-browser", "www-browser", "firefox", "chromium", "google-chrome"}

// OpenURL opens url in the default browser. The open-golang library is
// tried first, then an OS-specific command.
func OpenURL(url string) error {
	errOpen := open.Run(url)
	if errOpen == nil {
		log.Debug("opened URL via open-golang")
		return nil
	}
	log.Debugf("open-golang failed: %v, trying an OS command", errOpen)

	cmd, err := openCommand(url)
	if err != nil {
		return err
	}
	log.Debugf("running %s", cmd.Path)
	if err = cmd.Start(); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	// Reap the child so long-running monitor sessions don't hold a zombie.
	go func() { _ = cmd.Wait() }()
	return nil
}

// openCommand picks the platform URL opener.
func openCommand(url string) (*exec.Cmd, error) {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url), nil
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url), nil
	case "linux":
		if name := firstAvailable(linuxBrowsers); name != "" {
			return exec.Command(name, url), nil
		}
		return nil, fmt.Errorf("no browser opener found on this system")
	default:
		return nil, fmt.Errorf("no browser opener for %s", runtime.GOOS)
	}
}

// IsAvailable reports whether the current system has any way to open a
// browser at all, so callers can fall back to printing the URL.
func IsAvailable() bool {
	switch runtime.GOOS {
	case "darwin":
		return commandExists("open")
	case "windows":
		return commandExists("rundll32")
	case "linux":
		return firstAvailable(linuxBrowsers) != ""
	default:
		return false
	}
}

func firstAvailable(names []string) string {
	for _, name := range names {
		if commandExists(name) {
			return name
		}
	}
	return ""
}

func commandExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
