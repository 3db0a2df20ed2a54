package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	// 実行環境
	Env      string
	LogLevel string
	LogFile  string

	// Supervisor WebSocket
	RelayHost      string
	RelayPort      string
	RelayPath      string
	RelaySecure    bool
	ReconnectDelay time.Duration

	// ヘルスチェック
	SupervisorHealthURL string
	Agent1HealthURL     string
	Agent2HealthURL     string
	HealthTimeout       time.Duration
	HealthInterval      time.Duration

	// "show explanations" の保存先
	PreferencesPath string

	// ブリッジサーバー設定
	ServerPort     string
	AllowedOrigins []string
}

// Load loads configuration from environment variables
func Load() Config {
	allowedOrigins := getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000")

	cfg := Config{
		Env:                 getEnv("ENV", "development"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFile:             getEnv("LOG_FILE", "gugudan-chat.log"),
		RelayHost:           getEnv("RELAY_HOST", "localhost"),
		RelayPort:           getEnv("RELAY_PORT", "8000"),
		RelayPath:           getEnv("RELAY_PATH", "/ws"),
		RelaySecure:         getBool("RELAY_SECURE", false),
		ReconnectDelay:      getDuration("RECONNECT_DELAY", 3*time.Second),
		SupervisorHealthURL: getEnv("SUPERVISOR_HEALTH_URL", "http://localhost:8000/health"),
		Agent1HealthURL:     getEnv("AGENT1_HEALTH_URL", "http://localhost:5000/health"),
		Agent2HealthURL:     getEnv("AGENT2_HEALTH_URL", "http://localhost:6001/health"),
		HealthTimeout:       getDuration("HEALTH_TIMEOUT", 10*time.Second),
		HealthInterval:      getDuration("HEALTH_INTERVAL", 5*time.Second),
		PreferencesPath:     os.Getenv("PREFERENCES_PATH"),
		ServerPort:          getEnv("SERVER_PORT", "8090"),
		AllowedOrigins:      strings.Split(allowedOrigins, ","),
	}

	for i := range cfg.AllowedOrigins {
		cfg.AllowedOrigins[i] = strings.TrimSpace(cfg.AllowedOrigins[i])
	}

	return cfg
}

// RelayURL returns the supervisor WebSocket address, ws:// or wss:// depending on RelaySecure.
func (c Config) RelayURL() string {
	scheme := "ws"
	if c.RelaySecure {
		scheme = "wss"
	}
	path := c.RelayPath
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return fmt.Sprintf("%s://%s:%s%s", scheme, c.RelayHost, c.RelayPort, path)
}

// IsDevelopment returns true if running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return v
}

// getDuration accepts Go durations ("3s") or a bare number of milliseconds.
func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	if ms, err := strconv.Atoi(raw); err == nil && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
