package config

import (
	"fmt"
	"os"
	"strconv"
)

// WorkerConfig holds a worker's environment-driven tunables (spec.md
// §6.3). Fields mapped 1:1 into handler.Config at startup; later
// changes flow through PATCH /config instead of the environment.
type WorkerConfig struct {
	Port      int    `json:"port"`
	WorkerID  string `json:"worker_id"`
	BaseLatMs int    `json:"base_lat_ms"`
	JitterMs  int    `json:"jitter_ms"`
	Capacity  int    `json:"capacity"`
	Weight    int    `json:"weight"`
}

func LoadWorkerConfig() (*WorkerConfig, error) {
	cfg := &WorkerConfig{
		Port:      8100,
		WorkerID:  "worker-unknown",
		BaseLatMs: 20,
		JitterMs:  5,
		Capacity:  50,
		Weight:    1,
	}

	if v := os.Getenv("WORKER_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v := os.Getenv("WORKER_ID"); v != "" {
		cfg.WorkerID = v
	}
	if v := os.Getenv("BASE_LAT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BaseLatMs = n
		}
	}
	if v := os.Getenv("JITTER_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.JitterMs = n
		}
	}
	if v := os.Getenv("CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Capacity = n
		}
	}
	if v := os.Getenv("WEIGHT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Weight = n
		}
	}

	return cfg, nil
}

func (c *WorkerConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.BaseLatMs < 0 || c.BaseLatMs > 60000 {
		return fmt.Errorf("base_lat_ms must be in [0, 60000]")
	}
	if c.JitterMs < 0 || c.JitterMs > 60000 {
		return fmt.Errorf("jitter_ms must be in [0, 60000]")
	}
	if c.Capacity < 1 || c.Capacity > 100000 {
		return fmt.Errorf("capacity must be in [1, 100000]")
	}
	if c.Weight < 1 || c.Weight > 1000 {
		return fmt.Errorf("weight must be in [1, 1000]")
	}
	return nil
}
