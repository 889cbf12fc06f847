package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// CaptureChanged covers the hard recording limit, applied to the
	// next session.
	CaptureChanged bool

	// PlaybackChanged covers the external fallback player command.
	PlaybackChanged bool
}

// Any reports whether the diff carries at least one change.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.CaptureChanged || d.PlaybackChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Capture.MaxDuration != new.Capture.MaxDuration {
		d.CaptureChanged = true
	}

	if old.Playback.FallbackPlayer != new.Playback.FallbackPlayer ||
		old.Playback.TempDir != new.Playback.TempDir ||
		!slices.Equal(old.Playback.FallbackArgs, new.Playback.FallbackArgs) {
		d.PlaybackChanged = true
	}

	return d
}
