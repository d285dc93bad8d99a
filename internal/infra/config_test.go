package infra

import (
	"testing"
	"time"
)

func TestLoadConfigRequiresBackendURL(t *testing.T) {
	t.Setenv("BACKEND_BASE_URL", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error when BACKEND_BASE_URL missing")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("BACKEND_BASE_URL", "https://billing.example.com/")
	t.Setenv("PORT", "")
	t.Setenv("PRESIGN_TTL_SECONDS", "")
	t.Setenv("ALLOWED_ORIGINS", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "8787" {
		t.Fatalf("Port mismatch: got %q", cfg.Port)
	}
	if cfg.BackendBaseURL != "https://billing.example.com" {
		t.Fatalf("BackendBaseURL not trimmed: %q", cfg.BackendBaseURL)
	}
	if cfg.PresignTTL != 900*time.Second {
		t.Fatalf("PresignTTL mismatch: %s", cfg.PresignTTL)
	}
	if cfg.AllowedOrigins != nil {
		t.Fatalf("AllowedOrigins should default to nil, got %#v", cfg.AllowedOrigins)
	}
	if cfg.ServiceHeaderName != "X-Service-Token" {
		t.Fatalf("ServiceHeaderName mismatch: %q", cfg.ServiceHeaderName)
	}
	if cfg.HTTPReadHeaderTimeout != 5*time.Second {
		t.Fatalf("HTTPReadHeaderTimeout mismatch: %s", cfg.HTTPReadHeaderTimeout)
	}
}

func TestLoadConfigJobEndpoints(t *testing.T) {
	t.Setenv("BACKEND_BASE_URL", "https://billing.example.com")
	t.Setenv("VOICE_ENDPOINT_URL", "https://api.runner.example/v2/abc/")
	t.Setenv("VOICE_ENDPOINT_TOKEN", "tok-voice")
	t.Setenv("LIPSYNC_ENDPOINT_URL", "")
	t.Setenv("FACESWAP_ENDPOINT_URL", "https://api.runner.example/v2/def")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	voice, ok := cfg.JobEndpoints["voice"]
	if !ok {
		t.Fatalf("voice endpoint missing: %#v", cfg.JobEndpoints)
	}
	if voice.URL != "https://api.runner.example/v2/abc" || voice.Token != "tok-voice" {
		t.Fatalf("voice endpoint mismatch: %#v", voice)
	}
	if _, ok := cfg.JobEndpoints["lipsync"]; ok {
		t.Fatalf("lipsync endpoint should be absent when URL unset")
	}
	if _, ok := cfg.JobEndpoints["faceswap"]; !ok {
		t.Fatalf("faceswap endpoint missing")
	}
}

func TestLoadConfigAllowedOrigins(t *testing.T) {
	t.Setenv("BACKEND_BASE_URL", "https://billing.example.com")
	t.Setenv("ALLOWED_ORIGINS", "https://app.example.com, http://localhost:5173 ")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	want := []string{"https://app.example.com", "http://localhost:5173"}
	if len(cfg.AllowedOrigins) != len(want) {
		t.Fatalf("AllowedOrigins mismatch: %#v", cfg.AllowedOrigins)
	}
	for i, origin := range want {
		if cfg.AllowedOrigins[i] != origin {
			t.Fatalf("AllowedOrigins[%d] = %q, want %q", i, cfg.AllowedOrigins[i], origin)
		}
	}
}
