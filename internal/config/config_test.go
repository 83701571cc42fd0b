package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != "8000" {
		t.Errorf("expected port 8000, got %s", cfg.Server.Port)
	}
	if cfg.Pipeline.Width != 1080 || cfg.Pipeline.Height != 1920 {
		t.Errorf("expected 1080x1920, got %dx%d", cfg.Pipeline.Width, cfg.Pipeline.Height)
	}
	if cfg.Pipeline.PublishTimeout != 300 {
		t.Errorf("expected publish timeout 300, got %d", cfg.Pipeline.PublishTimeout)
	}
	if cfg.Pipeline.MaxConcurrentComposites != 2 {
		t.Errorf("expected 2 concurrent composites, got %d", cfg.Pipeline.MaxConcurrentComposites)
	}
	if cfg.Storage.OutputDir != "output" {
		t.Errorf("expected output dir 'output', got %s", cfg.Storage.OutputDir)
	}
	if cfg.Auth.Enabled {
		t.Error("expected auth disabled by default")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("COMPOSITE_TIMEOUT", "42")
	t.Setenv("PUBLISH_TIMEOUT", "600")
	t.Setenv("TTS_PROVIDER", "espeak")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Pipeline.CompositeTimeout != 42 {
		t.Errorf("expected composite timeout 42, got %d", cfg.Pipeline.CompositeTimeout)
	}
	if cfg.Pipeline.PublishTimeout != 600 {
		t.Errorf("expected publish timeout 600, got %d", cfg.Pipeline.PublishTimeout)
	}
	if cfg.TTS.Provider != "espeak" {
		t.Errorf("expected provider espeak, got %s", cfg.TTS.Provider)
	}
}

func TestReadSecretFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key")
	if err := os.WriteFile(path, []byte("  secret-value\n"), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}
	t.Setenv("ELEVENLABS_API_KEY", "")
	t.Setenv("ELEVENLABS_API_KEY_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TTS.ElevenLabs.APIKey != "secret-value" {
		t.Errorf("expected secret from file, got %q", cfg.TTS.ElevenLabs.APIKey)
	}
}

func TestSeconds(t *testing.T) {
	if Seconds(3) != 3*time.Second {
		t.Errorf("unexpected duration %v", Seconds(3))
	}
}
