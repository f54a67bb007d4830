package fetchqueue

import (
	"os"
	"strconv"
	"time"
)

// Env constants for overriding queue settings.
const (
	EnvMaxConcurrent     = "FETCHQUEUE_MAX_CONCURRENT"
	EnvDelayBetweenTasks = "FETCHQUEUE_DELAY_BETWEEN_TASKS"
)

// LoadConfigWithEnv returns a Config populated with defaults, overridden by
// environment variables where set. EnvDelayBetweenTasks accepts Go duration
// syntax, for example "250ms".
func LoadConfigWithEnv() Config {
	cfg := Config{
		MaxConcurrent:     3,
		DelayBetweenTasks: 200 * time.Millisecond,
	}
	if mc := os.Getenv(EnvMaxConcurrent); mc != "" {
		if val, err := strconv.Atoi(mc); err == nil {
			cfg.MaxConcurrent = val
		}
	}
	if d := os.Getenv(EnvDelayBetweenTasks); d != "" {
		if val, err := time.ParseDuration(d); err == nil {
			cfg.DelayBetweenTasks = val
		}
	}
	return cfg
}
