package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Participant modes for the participant-left event.
const (
	ParticipantModeLegacy   = "legacy"
	ParticipantModeAbsolute = "absolute"
)

// Config holds client configuration loaded from environment.
type Config struct {
	Server    ServerConfig
	Channel   ChannelConfig
	Reconnect ReconnectConfig
	API       APIConfig
	UI        UIConfig
	Status    StatusConfig
	Redis     RedisConfig
	LogLevel  string
}

// ServerConfig points at the classroom web application.
type ServerConfig struct {
	BaseURL    string // e.g. http://localhost:8080
	AuthCookie string // raw Cookie header forwarded on every request; empty = anonymous
}

// ChannelConfig holds websocket channel settings.
type ChannelConfig struct {
	OrganizationPath string // fixed org-wide path, e.g. /ws
	SessionPath      string // prefix, session ID is appended, e.g. /ws/
	HandshakeTimeout time.Duration
	ReadLimit        int64
	PingInterval     time.Duration // 0 disables keepalive pings
}

// ReconnectConfig controls the backoff reconnect policy.
type ReconnectConfig struct {
	Enabled         bool
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxAttempts     int // 0 = unlimited
}

// APIConfig holds REST collaborator settings.
type APIConfig struct {
	Timeout time.Duration
}

// UIConfig holds view behaviour settings.
type UIConfig struct {
	ParticipantMode string        // legacy | absolute
	NoticeTimeout   time.Duration // auto-dismiss for inline notices
}

// StatusConfig holds the local status endpoint settings.
type StatusConfig struct {
	Addr string // empty disables the endpoint
}

// RedisConfig holds the optional effect mirror connection.
type RedisConfig struct {
	Addr     string // empty disables the mirror
	Password string
	DB       int
}

// WebsocketURL converts the base URL to a ws:// or wss:// URL for the given path.
func (c ServerConfig) WebsocketURL(path string) (string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws", "":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String(), nil
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			BaseURL:    getEnv("LIVE_BASE_URL", "http://localhost:8080"),
			AuthCookie: getEnv("AUTH_COOKIE", ""),
		},
		Channel: ChannelConfig{
			OrganizationPath: getEnv("ORG_WS_PATH", "/ws"),
			SessionPath:      getEnv("SESSION_WS_PATH", "/ws/"),
			HandshakeTimeout: time.Duration(getEnvInt("HANDSHAKE_TIMEOUT_SEC", 10)) * time.Second,
			ReadLimit:        int64(getEnvInt("READ_LIMIT_BYTES", 65536)),
			PingInterval:     time.Duration(getEnvInt("PING_INTERVAL_SEC", 30)) * time.Second,
		},
		Reconnect: ReconnectConfig{
			Enabled:         getEnvBool("RECONNECT_ENABLED", true),
			InitialInterval: time.Duration(getEnvInt("RECONNECT_INITIAL_MS", 500)) * time.Millisecond,
			MaxInterval:     time.Duration(getEnvInt("RECONNECT_MAX_MS", 30000)) * time.Millisecond,
			MaxAttempts:     getEnvInt("RECONNECT_MAX_ATTEMPTS", 0),
		},
		API: APIConfig{
			Timeout: time.Duration(getEnvInt("API_TIMEOUT_SEC", 10)) * time.Second,
		},
		UI: UIConfig{
			ParticipantMode: strings.ToLower(getEnv("PARTICIPANT_MODE", ParticipantModeLegacy)),
			NoticeTimeout:   time.Duration(getEnvInt("NOTICE_TIMEOUT_MS", 3000)) * time.Millisecond,
		},
		Status: StatusConfig{
			Addr: getEnv("STATUS_ADDR", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports configuration values the client cannot work with.
func (c *Config) Validate() error {
	if _, err := c.Server.WebsocketURL(c.Channel.OrganizationPath); err != nil {
		return fmt.Errorf("LIVE_BASE_URL: %w", err)
	}
	switch c.UI.ParticipantMode {
	case ParticipantModeLegacy, ParticipantModeAbsolute:
	default:
		return fmt.Errorf("PARTICIPANT_MODE: unknown mode %q", c.UI.ParticipantMode)
	}
	if c.Reconnect.InitialInterval <= 0 || c.Reconnect.MaxInterval < c.Reconnect.InitialInterval {
		return fmt.Errorf("RECONNECT_INITIAL_MS/RECONNECT_MAX_MS: invalid interval range")
	}
	return nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
