package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
server:
  port: "9090"
  uploadsPerMinute: 30
redis:
  addr: localhost:6379
session:
  ttl: 2h
media:
  backend: s3
  s3:
    bucket: quiz-media
thumbnail:
  seekTimeout: 1500ms
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Server.UploadsPerMinute != 30 {
		t.Fatalf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Redis.Addr != "localhost:6379" || cfg.Media.Backend != "s3" || cfg.Media.S3.Bucket != "quiz-media" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if got := TTLDuration(cfg.Thumbnail.SeekTimeout, time.Second); got != 1500*time.Millisecond {
		t.Fatalf("expected 1.5s seek timeout, got %s", got)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("expected defaults, got %v", err)
	}
	if cfg.Server.Port != "" || cfg.Redis.Addr != "" {
		t.Fatalf("expected zero config, got %+v", cfg)
	}
}

func TestTTLDurationFallback(t *testing.T) {
	if got := TTLDuration("", time.Minute); got != time.Minute {
		t.Fatalf("empty: got %s", got)
	}
	if got := TTLDuration("soon", time.Minute); got != time.Minute {
		t.Fatalf("garbage: got %s", got)
	}
	if got := TTLDuration("90s", time.Minute); got != 90*time.Second {
		t.Fatalf("parsed: got %s", got)
	}
}
