package processreport

import (
	"time"

	"rapidresponse/internal/common/config"
)

type Config struct {
	Timeout time.Duration
}

// LoadConfig derives the job timeout from the worker block; intake runs several
// provider calls so the default is generous.
func LoadConfig(wc config.WorkerConfig) *Config {
	cfg := &Config{Timeout: 60 * time.Second}
	if wc.Timeout > 0 {
		cfg.Timeout = config.GetDuration(wc.Timeout)
	}
	return cfg
}
