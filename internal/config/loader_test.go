package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const fullYAML = `
server:
  listen_addr: ":9000"
  log_level: debug
  metrics_path: /metrics
storage:
  backend: bridge
  data_dir: /tmp/voc-db
  bridge:
    url: ws://127.0.0.1:9001/bridge
    call_timeout: 3s
host:
  listen_addr: 127.0.0.1:9001
  save_dir: /tmp/voc
capture:
  sample_rate: 48000
  chunk_size: 960
  store_sample_rate: 16000
  max_duration: 45s
  domain_max_durations:
    sound: 10s
    exam: 3m
playback:
  fallback_player: ffplay
  fallback_args: ["-nodisp", "-autoexit"]
content:
  base_url: https://content.example.com/json
  timeout: 5s
review:
  path: /tmp/review.jsonl
`

func TestLoadFromReaderFull(t *testing.T) {
	t.Parallel()
	cfg, err := LoadFromReader(strings.NewReader(fullYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != ":9000" || cfg.Server.LogLevel != LogDebug {
		t.Fatalf("server = %+v", cfg.Server)
	}
	if cfg.Storage.Backend != BackendBridge {
		t.Fatalf("backend = %q, want bridge", cfg.Storage.Backend)
	}
	if cfg.Storage.Bridge.CallTimeout != 3*time.Second {
		t.Fatalf("call_timeout = %v", cfg.Storage.Bridge.CallTimeout)
	}
	if cfg.Capture.MaxDuration != 45*time.Second {
		t.Fatalf("max_duration = %v", cfg.Capture.MaxDuration)
	}
	if cfg.Capture.StoreSampleRate != 16000 {
		t.Fatalf("store_sample_rate = %d, want 16000", cfg.Capture.StoreSampleRate)
	}
	if got := cfg.Capture.DomainMaxDurations["exam"]; got != 3*time.Minute {
		t.Fatalf("domain_max_durations.exam = %v, want 3m", got)
	}
	if len(cfg.Playback.FallbackArgs) != 2 {
		t.Fatalf("fallback_args = %v", cfg.Playback.FallbackArgs)
	}
}

func TestLoadFromReaderDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := LoadFromReader(strings.NewReader("server: {}\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != DefaultListenAddr {
		t.Errorf("listen_addr = %q, want default", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != LogInfo {
		t.Errorf("log_level = %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Storage.Backend != BackendAuto {
		t.Errorf("backend = %q, want auto", cfg.Storage.Backend)
	}
	if cfg.Storage.Bridge.URL != DefaultBridgeURL {
		t.Errorf("bridge url = %q, want default", cfg.Storage.Bridge.URL)
	}
	if cfg.Capture.SampleRate != DefaultSampleRate || cfg.Capture.MaxDuration != DefaultMaxDuration {
		t.Errorf("capture = %+v", cfg.Capture)
	}
	if cfg.Capture.StoreSampleRate != DefaultSampleRate {
		t.Errorf("store_sample_rate = %d, want the capture rate", cfg.Capture.StoreSampleRate)
	}
	if cfg.Content.Timeout != DefaultContentTimeout {
		t.Errorf("content timeout = %v", cfg.Content.Timeout)
	}
}

func TestLoadFromReaderRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	_, err := LoadFromReader(strings.NewReader("server:\n  listne_addr: \":1\"\n"))
	if err == nil {
		t.Fatal("expected an error for a misspelled field")
	}
}

func TestValidateReportsAllErrors(t *testing.T) {
	t.Parallel()
	bad := `
server:
  log_level: loud
storage:
  backend: cloud
  bridge:
    url: "http://not-a-websocket"
capture:
  sample_rate: 4000
  max_duration: 20h
  domain_max_durations:
    poem: 5s
    exam: 20h
content:
  base_url: "ftp://nope"
`
	_, err := LoadFromReader(strings.NewReader(bad))
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{
		"server.log_level",
		"storage.backend",
		"storage.bridge.url",
		"capture.sample_rate",
		"capture.max_duration",
		"capture.domain_max_durations: unknown domain \"poem\"",
		"capture.domain_max_durations.exam",
		"content.base_url",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error does not mention %s: %v", want, err)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestLoadFromFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(fullYAML), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Host.SaveDir != "/tmp/voc" {
		t.Fatalf("save_dir = %q", cfg.Host.SaveDir)
	}
}
