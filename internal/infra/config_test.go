package infra

import (
	"bytes"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("VIDEO_POLL_INTERVAL", "")
	t.Setenv("VIDEO_POLL_TIMEOUT", "")
	t.Setenv("MEDIA_STORE", "")
	t.Setenv("KV_STORE", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.VideoPollEvery != 5*time.Second {
		t.Fatalf("VideoPollEvery = %s, want 5s", cfg.VideoPollEvery)
	}
	if cfg.VideoPollTimeout != 0 {
		t.Fatalf("VideoPollTimeout = %s, want unbounded", cfg.VideoPollTimeout)
	}
	if cfg.MediaStore != "inline" {
		t.Fatalf("MediaStore = %q, want inline", cfg.MediaStore)
	}
	if cfg.KVStoreURL != "file://./data/kv" {
		t.Fatalf("KVStoreURL = %q", cfg.KVStoreURL)
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "*" {
		t.Fatalf("CORSAllowedOrigins = %#v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadConfigParsesDurationsAndLists(t *testing.T) {
	t.Setenv("VIDEO_POLL_INTERVAL", "250ms")
	t.Setenv("VIDEO_POLL_TIMEOUT", "120")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("MEDIA_STORE", "fs")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.VideoPollEvery != 250*time.Millisecond {
		t.Fatalf("VideoPollEvery = %s", cfg.VideoPollEvery)
	}
	if cfg.VideoPollTimeout != 2*time.Minute {
		t.Fatalf("VideoPollTimeout = %s", cfg.VideoPollTimeout)
	}
	want := []string{"https://a.example", "https://b.example"}
	if len(cfg.CORSAllowedOrigins) != len(want) {
		t.Fatalf("CORSAllowedOrigins = %#v", cfg.CORSAllowedOrigins)
	}
	for i := range want {
		if cfg.CORSAllowedOrigins[i] != want[i] {
			t.Fatalf("CORSAllowedOrigins[%d] = %q, want %q", i, cfg.CORSAllowedOrigins[i], want[i])
		}
	}
}

func TestLoadConfigRejectsUnknownMediaStore(t *testing.T) {
	t.Setenv("MEDIA_STORE", "ftp")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for unknown media store")
	}
}

func TestLoadConfigRequiresS3Endpoint(t *testing.T) {
	t.Setenv("MEDIA_STORE", "s3")
	t.Setenv("S3_ENDPOINT", "")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error without S3_ENDPOINT")
	}
}

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	prod := newLogger(&buf, "production")
	prod.Debug().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug output leaked in production: %q", buf.String())
	}
	prod.Info().Msg("shown")
	if !bytes.Contains(buf.Bytes(), []byte(`"service":"vaultx"`)) {
		t.Fatalf("missing service field: %q", buf.String())
	}

	if LoggerOrDiscard(nil) == nil {
		t.Fatal("LoggerOrDiscard(nil) returned nil")
	}
}

func TestNewCLILoggerHidesInfoUnlessVerbose(t *testing.T) {
	var buf bytes.Buffer
	quiet := NewCLILogger(&buf, false)
	quiet.Info().Msg("progress")
	if buf.Len() != 0 {
		t.Fatalf("info output leaked: %q", buf.String())
	}
	quiet.Warn().Msg("careful")
	if !bytes.Contains(buf.Bytes(), []byte("careful")) {
		t.Fatalf("warning missing: %q", buf.String())
	}

	buf.Reset()
	loud := NewCLILogger(&buf, true)
	loud.Debug().Msg("details")
	if !bytes.Contains(buf.Bytes(), []byte("details")) {
		t.Fatalf("debug missing in verbose mode: %q", buf.String())
	}
}
