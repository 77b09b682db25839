// Package config handles configuration loading for buzzer-bridge
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for buzzer-bridge
type Config struct {
	// HTTP server
	HTTPHost    string
	HTTPPort    int
	GinMode     string
	TLSCertFile string
	TLSKeyFile  string

	// PublicURL is the base URL of this service as the provider reaches it.
	PublicURL string

	// Twilio
	TwilioAccountSID   string
	TwilioAuthToken    string
	TwilioTimeout      time.Duration
	ValidateSignatures bool

	// Telephony identities
	GatewayNumber string
	PanelNumber   string
	TenantANumber string
	TenantBNumber string
	TenantAName   string
	TenantBName   string

	// Conference
	ConferenceName string
	RingAudioURL   string
	HoldPath       string
	SessionTTL     time.Duration
	DialTimeout    time.Duration

	// Lighting notifications
	HueBridgeURL    string
	HueUsername     string
	HueColorLights  []string
	HuePlainLights  []string
	NotifyWorkers   int
	NotifyQueueSize int
	BootSMSEnabled  bool

	// Storage
	DatabaseURL    string
	ValkeyURL      string
	ValkeyPassword string
	ValkeyDB       int

	// Logging
	LogLevel      string
	LogFormat     string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int

	// Session API
	APIUsername string
	APIPassword string

	// Metrics
	MetricsEnabled bool
	MetricsPath    string
}

// Load loads configuration from environment variables
func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		// HTTP server
		HTTPHost:    getEnv("HTTP_HOST", "0.0.0.0"),
		HTTPPort:    getEnvInt("HTTP_PORT", 8080),
		GinMode:     getEnv("GIN_MODE", "release"),
		TLSCertFile: getEnv("TLS_CERT_FILE", ""),
		TLSKeyFile:  getEnv("TLS_KEY_FILE", ""),
		PublicURL:   strings.TrimRight(getEnv("PUBLIC_URL", "http://localhost:8080"), "/"),

		// Twilio
		TwilioAccountSID:   getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:    getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioTimeout:      getEnvDuration("TWILIO_TIMEOUT", 10*time.Second),
		ValidateSignatures: getEnvBool("VALIDATE_SIGNATURES", true),

		// Telephony identities
		GatewayNumber: getEnv("GATEWAY_NUMBER", ""),
		PanelNumber:   getEnv("PANEL_NUMBER", ""),
		TenantANumber: getEnv("TENANT_A_NUMBER", ""),
		TenantBNumber: getEnv("TENANT_B_NUMBER", ""),
		TenantAName:   getEnv("TENANT_A_NAME", "Tenant A"),
		TenantBName:   getEnv("TENANT_B_NAME", "Tenant B"),

		// Conference
		ConferenceName: getEnv("CONFERENCE_NAME", "Buzzer conference"),
		RingAudioURL:   getEnv("RING_AUDIO_URL", ""),
		HoldPath:       getEnv("HOLD_PATH", "/hold"),
		SessionTTL:     getEnvDuration("SESSION_TTL", 10*time.Minute),
		DialTimeout:    getEnvDuration("DIAL_TIMEOUT", 15*time.Second),

		// Lighting notifications
		HueBridgeURL:    getEnv("HUE_BRIDGE_URL", ""),
		HueUsername:     getEnv("HUE_USERNAME", ""),
		HueColorLights:  getEnvList("HUE_COLOR_LIGHTS"),
		HuePlainLights:  getEnvList("HUE_PLAIN_LIGHTS"),
		NotifyWorkers:   getEnvInt("NOTIFY_WORKERS", 1),
		NotifyQueueSize: getEnvInt("NOTIFY_QUEUE_SIZE", 16),
		BootSMSEnabled:  getEnvBool("BOOT_SMS_ENABLED", true),

		// Storage
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		ValkeyURL:      getEnv("VALKEY_URL", ""),
		ValkeyPassword: getEnv("VALKEY_PASSWORD", ""),
		ValkeyDB:       getEnvInt("VALKEY_DB", 0),

		// Logging
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "json"),
		LogFile:       getEnv("LOG_FILE", ""),
		LogMaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 10),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
		LogMaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 30),

		// Session API
		APIUsername: getEnv("API_USERNAME", ""),
		APIPassword: getEnv("API_PASSWORD", ""),

		// Metrics
		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
		MetricsPath:    getEnv("METRICS_PATH", "/metrics"),
	}
}

// Validate reports the settings the service cannot run without.
func (c *Config) Validate() error {
	var errs []error
	required := []struct{ key, value string }{
		{"GATEWAY_NUMBER", c.GatewayNumber},
		{"PANEL_NUMBER", c.PanelNumber},
		{"TENANT_A_NUMBER", c.TenantANumber},
		{"TENANT_B_NUMBER", c.TenantBNumber},
		{"TWILIO_ACCOUNT_SID", c.TwilioAccountSID},
		{"TWILIO_AUTH_TOKEN", c.TwilioAuthToken},
	}
	for _, r := range required {
		if r.value == "" {
			errs = append(errs, fmt.Errorf("%s is required", r.key))
		}
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		errs = append(errs, errors.New("TLS_CERT_FILE and TLS_KEY_FILE must be set together"))
	}
	return errors.Join(errs...)
}

// TLSEnabled reports whether the server should terminate TLS itself.
func (c *Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

// HueEnabled reports whether a lighting bridge is configured.
func (c *Config) HueEnabled() bool {
	return c.HueBridgeURL != "" && c.HueUsername != ""
}

// APIAuthEnabled reports whether the session API is exposed.
func (c *Config) APIAuthEnabled() bool {
	return c.APIUsername != "" && c.APIPassword != ""
}

// getEnv returns environment variable or default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns environment variable as int or default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvBool returns environment variable as bool or default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration returns environment variable as duration or default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList returns a comma separated environment variable as a slice
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
