package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
# minimal run
data_dir: data/mnist
epochs: 3
batch_size: 100
learning_rate: 0.1
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Hidden1 != 100 || cfg.Hidden2 != 50 {
		t.Fatalf("expected hidden defaults 100/50, got %d/%d", cfg.Hidden1, cfg.Hidden2)
	}
	if cfg.Seed != 42 || cfg.LogEvery != 50 || cfg.NumWorkers != 2 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Checkpoint == "" {
		t.Fatal("expected default checkpoint path")
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []string{
		"epochs: 3\nbatch_size: 100\nlearning_rate: 0.1\n",            // no data_dir
		"data_dir: d\nepochs: 0\nbatch_size: 100\nlearning_rate: 0.1", // epochs
		"data_dir: d\nepochs: 1\nbatch_size: 100\nlearning_rate: 0",   // lr
		"data_dir: d\nepochs: 1\nbatch_size: 100\nlearning_rate: 0.1\nmomentum: 1.5",
		"data_dir: d\nepochs: 1\nbatch_size: 100\nlearning_rate: 0.1\nlr_decay_every: 5",
		"bogus_key: 1",
		"no colon here",
		"epochs: notanumber",
	}
	for i, body := range cases {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Fatalf("case %d: expected error for %q", i, body)
		}
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := &Config{
		DataDir:      "data/mnist",
		Epochs:       20,
		BatchSize:    100,
		LearningRate: 0.1,
	}
	cfg.ApplyOverrides(Overrides{Epochs: 5, LearningRate: 0.01, Checkpoint: "x.gob"})
	if cfg.Epochs != 5 || cfg.LearningRate != 0.01 || cfg.Checkpoint != "x.gob" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	cfg.ApplyOverrides(Overrides{})
	if cfg.Epochs != 5 || cfg.BatchSize != 100 {
		t.Fatalf("zero overrides should not change config: %+v", cfg)
	}
}
