package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ClientConfig holds the configuration of the expensync client.
type ClientConfig struct {
	APIURL      string
	DBPath      string
	SessionFile string

	LogLevel string

	HTTPTimeout          time.Duration
	ConnectivityInterval time.Duration
	SyncSchedule         string
	SyncBatchSize        int
}

func LoadClient() *ClientConfig {
	home := getEnv("EXPENSYNC_HOME", defaultClientHome())
	return &ClientConfig{
		APIURL:      strings.TrimRight(getEnv("EXPENSYNC_API_URL", "http://localhost:8081"), "/"),
		DBPath:      getEnv("EXPENSYNC_DB_PATH", filepath.Join(home, "local.db")),
		SessionFile: getEnv("EXPENSYNC_SESSION_FILE", filepath.Join(home, "session.json")),

		LogLevel: getEnv("LOG_LEVEL", "warn"),

		HTTPTimeout:          getEnvDuration("HTTP_TIMEOUT", 10*time.Second),
		ConnectivityInterval: getEnvDuration("CONNECTIVITY_INTERVAL", 5*time.Second),
		SyncSchedule:         getEnv("SYNC_SCHEDULE", "@every 30s"),
		SyncBatchSize:        getEnvInt("SYNC_BATCH_SIZE", 25),
	}
}

func (c *ClientConfig) Validate() error {
	var errors []string

	if u, err := url.Parse(c.APIURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errors = append(errors, fmt.Sprintf("invalid API URL '%s': must be an absolute http or https URL", c.APIURL))
	}
	if c.DBPath == "" {
		errors = append(errors, "local database path cannot be empty")
	}
	if c.SessionFile == "" {
		errors = append(errors, "session file path cannot be empty")
	}
	if c.HTTPTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid HTTP timeout %v: must be at least 1 second", c.HTTPTimeout))
	}
	if c.ConnectivityInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid connectivity interval %v: must be at least 1 second", c.ConnectivityInterval))
	}
	if _, err := cron.ParseStandard(c.SyncSchedule); err != nil {
		errors = append(errors, fmt.Sprintf("invalid sync schedule '%s': %v", c.SyncSchedule, err))
	}
	if c.SyncBatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid sync batch size %d: must be at least 1", c.SyncBatchSize))
	} else if c.SyncBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid sync batch size %d: must be at most 1000", c.SyncBatchSize))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func defaultClientHome() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "expensync")
	}
	return ".expensync"
}
