package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"aulaplan/internal/config"
)

func TestLoadMissingFileHintsInitCommand(t *testing.T) {
	_, err := config.Load(t.TempDir())
	if err == nil {
		t.Fatalf("expected error for missing config")
	}
	if !strings.Contains(err.Error(), "aulaplan config init") {
		t.Fatalf("error should name the init command, got: %v", err)
	}
}

func TestDefaultValidates(t *testing.T) {
	cfg := config.Default("aula-1")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Schedule.HoursPerDay != 6 || cfg.Schedule.DefaultView != "meses" {
		t.Fatalf("unexpected defaults: %+v", cfg.Schedule)
	}
	if len(cfg.Submissions.AllowedKinds) != 4 {
		t.Fatalf("allowed kinds = %v", cfg.Submissions.AllowedKinds)
	}
}

func TestGeneratedDefaultRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aulaplan.yml")
	if err := os.WriteFile(path, []byte(config.GenerateDefault("aula-2")), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Workspace.ID != "aula-2" || cfg.Workspace.Kind != "classroom" {
		t.Fatalf("workspace = %+v", cfg.Workspace)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"missing id", func(c *config.Config) { c.Workspace.ID = "" }, "workspace.id"},
		{"wrong kind", func(c *config.Config) { c.Workspace.Kind = "office" }, "classroom"},
		{"hours out of range", func(c *config.Config) { c.Schedule.HoursPerDay = 0 }, "hours_per_day"},
		{"bad view", func(c *config.Config) { c.Schedule.DefaultView = "semanas" }, "default_view"},
		{"empty kind", func(c *config.Config) { c.Submissions.AllowedKinds = []string{""} }, "allowed_kinds"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default("aula-1")
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("want error containing %q, got %v", tc.want, err)
			}
		})
	}
}
