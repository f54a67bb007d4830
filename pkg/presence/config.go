package presence

import (
	"os"
	"strconv"
	"time"
)

// Env constants for overriding dispatcher settings.
const (
	EnvMinSendInterval  = "PRESENCE_MIN_SEND_INTERVAL"
	EnvMaxQueueSize     = "PRESENCE_MAX_QUEUE_SIZE"
	EnvMaxRetries       = "PRESENCE_MAX_RETRIES"
	EnvRetryBackoffBase = "PRESENCE_RETRY_BACKOFF_BASE"
	EnvDeviceID         = "PRESENCE_DEVICE_ID"
)

// LoadConfigWithEnv returns a Config populated with defaults, overridden by
// environment variables where set. Duration variables accept Go duration
// syntax, for example "30s".
func LoadConfigWithEnv() Config {
	cfg := Config{
		MinSendInterval:  30 * time.Second,
		MaxQueueSize:     10,
		MaxRetries:       3,
		RetryBackoffBase: 2 * time.Second,
	}
	if v := os.Getenv(EnvMinSendInterval); v != "" {
		if val, err := time.ParseDuration(v); err == nil {
			cfg.MinSendInterval = val
		}
	}
	if v := os.Getenv(EnvMaxQueueSize); v != "" {
		if val, err := strconv.Atoi(v); err == nil {
			cfg.MaxQueueSize = val
		}
	}
	if v := os.Getenv(EnvMaxRetries); v != "" {
		if val, err := strconv.Atoi(v); err == nil {
			cfg.MaxRetries = val
		}
	}
	if v := os.Getenv(EnvRetryBackoffBase); v != "" {
		if val, err := time.ParseDuration(v); err == nil {
			cfg.RetryBackoffBase = val
		}
	}
	if v := os.Getenv(EnvDeviceID); v != "" {
		cfg.DeviceID = v
	}
	return cfg
}
