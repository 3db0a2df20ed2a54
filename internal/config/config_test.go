package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"RELAY_HOST", "RELAY_PORT", "RELAY_PATH", "RELAY_SECURE", "RECONNECT_DELAY", "HEALTH_TIMEOUT", "ALLOWED_ORIGINS", "SUPERVISOR_HEALTH_URL"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if got := cfg.RelayURL(); got != "ws://localhost:8000/ws" {
		t.Errorf("Expected ws://localhost:8000/ws, got %s", got)
	}
	if cfg.ReconnectDelay != 3*time.Second {
		t.Errorf("Expected 3s reconnect delay, got %s", cfg.ReconnectDelay)
	}
	if cfg.HealthTimeout != 10*time.Second {
		t.Errorf("Expected 10s health timeout, got %s", cfg.HealthTimeout)
	}
	if cfg.SupervisorHealthURL != "http://localhost:8000/health" {
		t.Errorf("Unexpected supervisor health URL: %s", cfg.SupervisorHealthURL)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "http://127.0.0.1:3000" {
		t.Errorf("Unexpected allowed origins: %v", cfg.AllowedOrigins)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("RELAY_HOST", "supervisor.local")
	t.Setenv("RELAY_PORT", "9443")
	t.Setenv("RELAY_PATH", "socket")
	t.Setenv("RELAY_SECURE", "true")
	t.Setenv("RECONNECT_DELAY", "1500")
	t.Setenv("HEALTH_TIMEOUT", "2s")
	t.Setenv("ALLOWED_ORIGINS", " http://a.example , http://b.example")

	cfg := Load()

	if got := cfg.RelayURL(); got != "wss://supervisor.local:9443/socket" {
		t.Errorf("Expected wss://supervisor.local:9443/socket, got %s", got)
	}
	if cfg.ReconnectDelay != 1500*time.Millisecond {
		t.Errorf("Expected 1.5s reconnect delay, got %s", cfg.ReconnectDelay)
	}
	if cfg.HealthTimeout != 2*time.Second {
		t.Errorf("Expected 2s health timeout, got %s", cfg.HealthTimeout)
	}
	if cfg.AllowedOrigins[0] != "http://a.example" || cfg.AllowedOrigins[1] != "http://b.example" {
		t.Errorf("Origins should be trimmed, got %v", cfg.AllowedOrigins)
	}
}

func TestGetDurationInvalid(t *testing.T) {
	t.Setenv("RECONNECT_DELAY", "soon")
	if d := getDuration("RECONNECT_DELAY", time.Second); d != time.Second {
		t.Errorf("Expected fallback to 1s, got %s", d)
	}
}
