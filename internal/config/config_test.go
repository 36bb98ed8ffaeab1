package config

import (
	"os"
	"path/filepath"
	"testing"

	"taskroute/internal/model"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("addr = %s", cfg.Addr)
	}
	if cfg.Solver.Algorithm != "greedy" || cfg.Solver.OpenLocations != model.OpenLocationsNone {
		t.Fatalf("solver defaults = %+v", cfg.Solver)
	}
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte("addr: \":9090\"\nsolver:\n  algorithm: anneal\n  timeBudgetMs: 500\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("SOLVER_ALGORITHM", "greedy")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Fatalf("addr = %s, want :9090 from file", cfg.Addr)
	}
	if cfg.Solver.TimeBudgetMs != 500 {
		t.Fatalf("timeBudgetMs = %d, want 500 from file", cfg.Solver.TimeBudgetMs)
	}
	if cfg.Solver.Algorithm != "greedy" {
		t.Fatalf("algorithm = %s, env must win", cfg.Solver.Algorithm)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg, _ := Load("")
	req := model.PlanRequest{Algorithm: "anneal"}
	cfg.ApplyDefaults(&req)
	if req.Algorithm != "anneal" {
		t.Fatalf("explicit algorithm overwritten: %s", req.Algorithm)
	}
	if req.Mode != model.ModeAssignment || req.TimeBudgetMs != 2000 {
		t.Fatalf("defaults not applied: %+v", req)
	}
}
