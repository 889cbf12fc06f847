// Package config provides the configuration schema, loader, and file
// watcher for the Vocalise backend.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Backend selects the persistence implementation.
type Backend string

const (
	// BackendAuto picks embedded or bridge from runtime detection.
	BackendAuto Backend = "auto"

	// BackendEmbedded stores everything in a local embedded database.
	BackendEmbedded Backend = "embedded"

	// BackendBridge delegates storage to the privileged host process.
	BackendBridge Backend = "bridge"
)

// IsValid reports whether b is a recognised backend mode.
func (b Backend) IsValid() bool {
	switch b {
	case BackendAuto, BackendEmbedded, BackendBridge:
		return true
	}
	return false
}

// Config is the root configuration structure for the backend.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Host     HostConfig     `yaml:"host"`
	Capture  CaptureConfig  `yaml:"capture"`
	Playback PlaybackConfig `yaml:"playback"`
	Content  ContentConfig  `yaml:"content"`
	Review   ReviewConfig   `yaml:"review"`
}

// ServerConfig holds network and logging settings for the API server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8390").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsPath is where Prometheus metrics are served. Empty
	// disables the metrics endpoint.
	MetricsPath string `yaml:"metrics_path"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	// Backend picks the implementation. Defaults to auto.
	Backend Backend `yaml:"backend"`

	// DataDir is the embedded database directory.
	DataDir string `yaml:"data_dir"`

	// Bridge configures the connection to the host process when the
	// bridge backend is active.
	Bridge BridgeConfig `yaml:"bridge"`
}

// BridgeConfig holds the desktop host bridge connection settings.
type BridgeConfig struct {
	// URL is the websocket endpoint of the host process.
	URL string `yaml:"url"`

	// CallTimeout bounds each storage round trip. Defaults to 10s.
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// HostConfig configures the privileged host process itself.
type HostConfig struct {
	// ListenAddr should stay on loopback; the bridge carries raw
	// filesystem operations.
	ListenAddr string `yaml:"listen_addr"`

	// SaveDir is the directory recordings and texts are written under.
	SaveDir string `yaml:"save_dir"`
}

// CaptureConfig holds microphone capture settings.
type CaptureConfig struct {
	// SampleRate in Hz. Defaults to 16000.
	SampleRate int `yaml:"sample_rate"`

	// ChunkSize is the per-read frame count. Defaults to 320 (20 ms).
	ChunkSize int `yaml:"chunk_size"`

	// StoreSampleRate is the rate recordings are resampled to before
	// saving. Defaults to sample_rate, i.e. no conversion.
	StoreSampleRate int `yaml:"store_sample_rate"`

	// MaxDuration is the hard recording limit. Defaults to 20s.
	MaxDuration time.Duration `yaml:"max_duration"`

	// DomainMaxDurations overrides max_duration per practice domain
	// (sound, word, conversation, exam). A single sound drill needs
	// seconds where an exam answer needs minutes.
	DomainMaxDurations map[string]time.Duration `yaml:"domain_max_durations"`
}

// PlaybackConfig holds audio output settings.
type PlaybackConfig struct {
	// FallbackPlayer is the external player command used for
	// containers the built-in decoders cannot handle. Empty disables
	// the fallback.
	FallbackPlayer string `yaml:"fallback_player"`

	// FallbackArgs precede the file path on the player command line.
	FallbackArgs []string `yaml:"fallback_args"`

	// TempDir overrides where fallback playback stages its files.
	TempDir string `yaml:"temp_dir"`
}

// ContentConfig points at the exercise content source.
type ContentConfig struct {
	// BaseURL is the root of the content JSON documents.
	BaseURL string `yaml:"base_url"`

	// Timeout bounds each content fetch. Defaults to 15s.
	Timeout time.Duration `yaml:"timeout"`
}

// ReviewConfig configures the self-review store.
type ReviewConfig struct {
	// Path is the JSONL file review entries are appended to. Empty
	// disables the review store.
	Path string `yaml:"path"`
}
