package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vocalise-app/vocalise/internal/recordkey"
)

// Defaults applied by [Validate] when fields are unset.
const (
	DefaultListenAddr     = ":8390"
	DefaultHostListenAddr = "127.0.0.1:8391"
	DefaultBridgeURL      = "ws://127.0.0.1:8391/bridge"
	DefaultDataDir        = "data/db"
	DefaultSaveDir        = "data"
	DefaultSampleRate     = 16000
	DefaultChunkSize      = 320
	DefaultMaxDuration    = 20 * time.Second
	DefaultCallTimeout    = 10 * time.Second
	DefaultContentTimeout = 15 * time.Second
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values and fills
// in defaults for unset fields. It returns a joined error listing all
// validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	} else if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Storage
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendAuto
	} else if !cfg.Storage.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("storage.backend %q is invalid; valid values: auto, embedded, bridge", cfg.Storage.Backend))
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = DefaultDataDir
	}
	if cfg.Storage.Bridge.URL == "" {
		cfg.Storage.Bridge.URL = DefaultBridgeURL
	} else if u, err := url.Parse(cfg.Storage.Bridge.URL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		errs = append(errs, fmt.Errorf("storage.bridge.url %q must be a ws:// or wss:// URL", cfg.Storage.Bridge.URL))
	}
	if cfg.Storage.Bridge.CallTimeout < 0 {
		errs = append(errs, fmt.Errorf("storage.bridge.call_timeout must not be negative"))
	} else if cfg.Storage.Bridge.CallTimeout == 0 {
		cfg.Storage.Bridge.CallTimeout = DefaultCallTimeout
	}

	// Host
	if cfg.Host.ListenAddr == "" {
		cfg.Host.ListenAddr = DefaultHostListenAddr
	}
	if cfg.Host.SaveDir == "" {
		cfg.Host.SaveDir = DefaultSaveDir
	}

	// Capture
	if cfg.Capture.SampleRate == 0 {
		cfg.Capture.SampleRate = DefaultSampleRate
	} else if cfg.Capture.SampleRate < 8000 || cfg.Capture.SampleRate > 48000 {
		errs = append(errs, fmt.Errorf("capture.sample_rate %d is out of range [8000, 48000]", cfg.Capture.SampleRate))
	}
	if cfg.Capture.ChunkSize == 0 {
		cfg.Capture.ChunkSize = DefaultChunkSize
	} else if cfg.Capture.ChunkSize < 0 {
		errs = append(errs, fmt.Errorf("capture.chunk_size must be positive"))
	}
	if cfg.Capture.StoreSampleRate == 0 {
		cfg.Capture.StoreSampleRate = cfg.Capture.SampleRate
	} else if cfg.Capture.StoreSampleRate < 8000 || cfg.Capture.StoreSampleRate > 48000 {
		errs = append(errs, fmt.Errorf("capture.store_sample_rate %d is out of range [8000, 48000]", cfg.Capture.StoreSampleRate))
	}
	if cfg.Capture.MaxDuration == 0 {
		cfg.Capture.MaxDuration = DefaultMaxDuration
	} else if cfg.Capture.MaxDuration < time.Second || cfg.Capture.MaxDuration > 15*time.Minute {
		errs = append(errs, fmt.Errorf("capture.max_duration %v is out of range [1s, 15m]", cfg.Capture.MaxDuration))
	}
	for domain, d := range cfg.Capture.DomainMaxDurations {
		if !recordkey.Domain(domain).IsValid() {
			errs = append(errs, fmt.Errorf("capture.domain_max_durations: unknown domain %q", domain))
		}
		if d < time.Second || d > 15*time.Minute {
			errs = append(errs, fmt.Errorf("capture.domain_max_durations.%s %v is out of range [1s, 15m]", domain, d))
		}
	}

	// Content
	if cfg.Content.Timeout == 0 {
		cfg.Content.Timeout = DefaultContentTimeout
	}
	if cfg.Content.BaseURL != "" {
		if u, err := url.Parse(cfg.Content.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, fmt.Errorf("content.base_url %q must be an http(s) URL", cfg.Content.BaseURL))
		}
	}

	return errors.Join(errs...)
}
