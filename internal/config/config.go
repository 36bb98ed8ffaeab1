// Package config loads service configuration from an optional YAML file
// merged with environment variables. Environment wins.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"taskroute/internal/model"
)

// SolverDefaults are applied to plan requests that leave the
// corresponding field unset.
type SolverDefaults struct {
	Algorithm     string `yaml:"algorithm"`
	Mode          string `yaml:"mode"`
	TimeBudgetMs  int    `yaml:"timeBudgetMs"`
	Seed          int64  `yaml:"seed"`
	OpenLocations string `yaml:"openLocations"`
}

type Config struct {
	Addr        string         `yaml:"addr"`
	DatabaseURL string         `yaml:"databaseUrl"`
	RedisURL    string         `yaml:"redisUrl"`
	RateRPS     float64        `yaml:"rateRps"`
	RateBurst   int            `yaml:"rateBurst"`
	Solver      SolverDefaults `yaml:"solver"`
}

// Load reads the YAML file at path (skipped when empty or missing) and
// overlays environment variables.
func Load(path string) (Config, error) {
	cfg := Config{
		Addr:      ":8080",
		RateRPS:   10,
		RateBurst: 20,
		Solver: SolverDefaults{
			Algorithm:     "greedy",
			Mode:          model.ModeAssignment,
			TimeBudgetMs:  2000,
			OpenLocations: model.OpenLocationsNone,
		},
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if v := os.Getenv("PORT"); v != "" {
		cfg.Addr = ":" + v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.RateRPS = f
		}
	}
	if v := os.Getenv("RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateBurst = n
		}
	}
	if v := os.Getenv("SOLVER_ALGORITHM"); v != "" {
		cfg.Solver.Algorithm = v
	}
	if v := os.Getenv("SOLVER_TIME_BUDGET_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Solver.TimeBudgetMs = n
		}
	}
	if v := os.Getenv("SOLVER_OPEN_LOCATIONS"); v != "" {
		cfg.Solver.OpenLocations = v
	}
	return cfg, nil
}

// ApplyDefaults fills unset request fields from the configured defaults.
func (c Config) ApplyDefaults(req *model.PlanRequest) {
	if req.Algorithm == "" {
		req.Algorithm = c.Solver.Algorithm
	}
	if req.Mode == "" {
		req.Mode = c.Solver.Mode
	}
	if req.TimeBudgetMs == 0 {
		req.TimeBudgetMs = c.Solver.TimeBudgetMs
	}
	if req.Seed == 0 {
		req.Seed = c.Solver.Seed
	}
	if req.OpenLocations == "" {
		req.OpenLocations = c.Solver.OpenLocations
	}
}
