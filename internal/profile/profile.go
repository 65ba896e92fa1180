package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Profile is the configuration to start the main server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where nagbot stores its own data
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of server
	Version string

	// DefaultLocale is the locale assumed for owners that do not send one.
	DefaultLocale string
	// DefaultTimezone is the IANA zone assumed for owners that do not send one.
	DefaultTimezone string

	// Recognizer model fallback configuration
	ModelEnabled bool          // NAGBOT_MODEL_ENABLED
	ModelAPIKey  string        // NAGBOT_MODEL_API_KEY
	ModelBaseURL string        // NAGBOT_MODEL_BASE_URL (default: https://api.openai.com/v1)
	ModelName    string        // NAGBOT_MODEL_NAME (default: gpt-4o-mini)
	ModelTimeout time.Duration // NAGBOT_MODEL_TIMEOUT_SECONDS (default: 15s)

	// Webhook delivery configuration
	WebhookURL     string        // NAGBOT_WEBHOOK_URL
	WebhookSecret  string        // NAGBOT_WEBHOOK_SECRET
	WebhookTimeout time.Duration // NAGBOT_WEBHOOK_TIMEOUT_SECONDS (default: 10s)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsModelEnabled returns true if the remote-model recognition fallback is usable.
func (p *Profile) IsModelEnabled() bool {
	return p.ModelEnabled && p.ModelAPIKey != ""
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FromEnv loads configuration from NAGBOT_* environment variables.
func (p *Profile) FromEnv() {
	getSeconds := func(key string, def time.Duration) time.Duration {
		if val := os.Getenv(key); val != "" {
			if n, err := strconv.Atoi(val); err == nil && n > 0 {
				return time.Duration(n) * time.Second
			}
		}
		return def
	}

	p.DefaultLocale = getEnvOrDefault("NAGBOT_DEFAULT_LOCALE", "en-US")
	p.DefaultTimezone = getEnvOrDefault("NAGBOT_DEFAULT_TIMEZONE", "UTC")

	p.ModelEnabled = os.Getenv("NAGBOT_MODEL_ENABLED") == "true"
	p.ModelAPIKey = os.Getenv("NAGBOT_MODEL_API_KEY")
	p.ModelBaseURL = getEnvOrDefault("NAGBOT_MODEL_BASE_URL", "https://api.openai.com/v1")
	p.ModelName = getEnvOrDefault("NAGBOT_MODEL_NAME", "gpt-4o-mini")
	p.ModelTimeout = getSeconds("NAGBOT_MODEL_TIMEOUT_SECONDS", 15*time.Second)

	p.WebhookURL = os.Getenv("NAGBOT_WEBHOOK_URL")
	p.WebhookSecret = os.Getenv("NAGBOT_WEBHOOK_SECRET")
	p.WebhookTimeout = getSeconds("NAGBOT_WEBHOOK_TIMEOUT_SECONDS", 10*time.Second)
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "nagbot")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
					return err
				}
			}
		} else {
			p.Data = "/var/opt/nagbot"
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", dataDir), slog.String("error", err.Error()))
		return err
	}

	p.Data = dataDir
	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("nagbot_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}

	if p.DefaultTimezone != "" && p.DefaultTimezone != "UTC" {
		if _, err := time.LoadLocation(p.DefaultTimezone); err != nil {
			return errors.Wrapf(err, "invalid default timezone %q", p.DefaultTimezone)
		}
	}

	return nil
}
