// Package platform decides which runtime profile the process is in: the
// desktop shell (recordings go to the host filesystem through the bridge)
// or the browser profile (recordings go to the embedded database).
//
// The decision is made once per process and never changes afterwards, so
// every storage consumer talks to the same backend for the process
// lifetime.
package platform

import (
	"os"
	"strings"
	"sync"
)

// Environment variables consulted by [IsDesktop], in order.
const (
	// EnvRenderer is set by the desktop shell in its renderer processes.
	EnvRenderer = "VOCALISE_RENDERER"

	// EnvDesktop is set process-wide by the desktop shell launcher.
	EnvDesktop = "VOCALISE_DESKTOP"

	// EnvUserAgent carries the embedding shell's user-agent string when
	// the renderer flag is unavailable (sandboxed frontends).
	EnvUserAgent = "VOCALISE_UA"
)

var (
	once    sync.Once
	desktop bool

	mu     sync.Mutex
	forced *bool
)

// IsDesktop reports whether the process runs inside the desktop shell.
// Detection is layered; the first positive signal wins:
//
//  1. the renderer-side flag (EnvRenderer == "desktop"),
//  2. the process-level flag (EnvDesktop is truthy),
//  3. a "Desktop" substring in the shell user agent (EnvUserAgent).
//
// Unknown or ambiguous environments are treated as browser. The result is
// memoized for the process lifetime; it never panics.
func IsDesktop() bool {
	mu.Lock()
	if forced != nil {
		v := *forced
		mu.Unlock()
		return v
	}
	mu.Unlock()

	once.Do(func() { desktop = detect() })
	return desktop
}

func detect() bool {
	if os.Getenv(EnvRenderer) == "desktop" {
		return true
	}
	switch os.Getenv(EnvDesktop) {
	case "1", "true", "yes":
		return true
	}
	if ua := os.Getenv(EnvUserAgent); strings.Contains(ua, "Desktop") {
		return true
	}
	return false
}

// ForceMode overrides the detected profile. Tests use it to exercise both
// backends in one process; the returned func restores detection.
func ForceMode(isDesktop bool) (restore func()) {
	mu.Lock()
	defer mu.Unlock()
	forced = &isDesktop
	return func() {
		mu.Lock()
		defer mu.Unlock()
		forced = nil
	}
}
