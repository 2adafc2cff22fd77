package config

import "testing"

type testConfig struct {
	DBPath string `env:"EXAMROOM_TEST_DB_PATH" envDefault:"exam.db"`
	Batch  int    `env:"EXAMROOM_TEST_BATCH" envDefault:"25"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg testConfig
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.DBPath != "exam.db" {
		t.Fatalf("expected default db path, got %q", cfg.DBPath)
	}
	if cfg.Batch != 25 {
		t.Fatalf("expected default batch 25, got %d", cfg.Batch)
	}
}

func TestParseEnvOverrides(t *testing.T) {
	t.Setenv("EXAMROOM_TEST_DB_PATH", "/var/lib/examroom/exam.db")
	t.Setenv("EXAMROOM_TEST_BATCH", "100")

	var cfg testConfig
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.DBPath != "/var/lib/examroom/exam.db" {
		t.Fatalf("expected env override, got %q", cfg.DBPath)
	}
	if cfg.Batch != 100 {
		t.Fatalf("expected env override 100, got %d", cfg.Batch)
	}
}
