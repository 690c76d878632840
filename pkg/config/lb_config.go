package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LBConfig holds the load balancer's environment-driven tunables
// (spec.md §6.3).
type LBConfig struct {
	Port int `json:"port"`

	WorkerURLs []string `json:"worker_urls"`

	RequestTimeout     time.Duration `json:"request_timeout"`
	HealthInterval     time.Duration `json:"health_interval"`
	DisableOnFail      time.Duration `json:"disable_on_fail"`
	RetryAttempts      int           `json:"retry_attempts"`
	LatencyEWMAAlpha   float64       `json:"latency_ewma_alpha"`
	StreamInterval     time.Duration `json:"stream_interval"`
	WeightMode         string        `json:"weight_mode"`
	AutoWeightInterval time.Duration `json:"auto_weight_interval"`
	AutoWeightMax      int           `json:"auto_weight_max"`

	ClientGenURL string `json:"clientgen_url"`
}

func LoadLBConfig() (*LBConfig, error) {
	cfg := &LBConfig{
		Port:               8000,
		RequestTimeout:     2 * time.Second,
		HealthInterval:     2 * time.Second,
		DisableOnFail:      3 * time.Second,
		RetryAttempts:      2,
		LatencyEWMAAlpha:   0.2,
		StreamInterval:     500 * time.Millisecond,
		WeightMode:         "manual",
		AutoWeightInterval: 2 * time.Second,
		AutoWeightMax:      10,
	}

	if v := os.Getenv("LB_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}

	rawURLs := os.Getenv("WORKER_URLS")
	if rawURLs == "" {
		return nil, fmt.Errorf("WORKER_URLS environment variable is required")
	}
	for _, u := range strings.Split(rawURLs, ",") {
		u = strings.TrimSpace(u)
		if u != "" {
			cfg.WorkerURLs = append(cfg.WorkerURLs, u)
		}
	}

	if v := os.Getenv("LB_REQUEST_TIMEOUT_SEC"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RequestTimeout = secondsToDuration(f)
		}
	}
	if v := os.Getenv("LB_HEALTH_INTERVAL_SEC"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.HealthInterval = secondsToDuration(f)
		}
	}
	if v := os.Getenv("LB_DISABLE_ON_FAIL_SEC"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.DisableOnFail = secondsToDuration(f)
		}
	}
	if v := os.Getenv("LB_RETRY_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RetryAttempts = n
		}
	}
	if v := os.Getenv("LB_LAT_EWMA_ALPHA"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.LatencyEWMAAlpha = f
		}
	}
	if v := os.Getenv("LB_STREAM_INTERVAL_SEC"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			if f < 0.05 {
				f = 0.05
			}
			cfg.StreamInterval = secondsToDuration(f)
		}
	}
	if v := os.Getenv("LB_WEIGHT_MODE"); v != "" {
		cfg.WeightMode = v
	}
	if v := os.Getenv("AUTO_WEIGHT_INTERVAL_SEC"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.AutoWeightInterval = secondsToDuration(f)
		}
	}
	if v := os.Getenv("AUTO_WEIGHT_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AutoWeightMax = n
		}
	}
	if v := os.Getenv("CLIENTGEN_URL"); v != "" {
		cfg.ClientGenURL = v
	}

	return cfg, nil
}

func secondsToDuration(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}

func (c *LBConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if len(c.WorkerURLs) == 0 {
		return fmt.Errorf("at least one worker URL is required")
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("retry attempts must be at least 1")
	}
	if c.WeightMode != "manual" && c.WeightMode != "auto" {
		return fmt.Errorf(`weight mode must be "manual" or "auto"`)
	}
	if c.StreamInterval < 50*time.Millisecond {
		return fmt.Errorf("stream interval floor is 0.05s")
	}
	return nil
}
