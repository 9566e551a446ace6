package config

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Config captures the runtime knobs for a training run.
type Config struct {
	DataDir       string  `yaml:"data_dir"`
	Epochs        int     `yaml:"epochs"`
	BatchSize     int     `yaml:"batch_size"`
	Hidden1       int     `yaml:"hidden1"`
	Hidden2       int     `yaml:"hidden2"`
	LearningRate  float64 `yaml:"learning_rate"`
	Momentum      float64 `yaml:"momentum"`
	LRDecayEvery  int     `yaml:"lr_decay_every"`
	LRDecayFactor float64 `yaml:"lr_decay_factor"`
	Seed          int64   `yaml:"seed"`
	LogEvery      int     `yaml:"log_every"`
	NumWorkers    int     `yaml:"num_workers"`
	Checkpoint    string  `yaml:"checkpoint"`
	HistoryDB     string  `yaml:"history_db"`
	Limit         int     `yaml:"limit"`
}

// Overrides captures CLI supplied values.
type Overrides struct {
	DataDir      string
	Epochs       int
	BatchSize    int
	Hidden1      int
	Hidden2      int
	LearningRate float64
	Seed         int64
	LogEvery     int
	NumWorkers   int
	Checkpoint   string
	HistoryDB    string
	Limit        int
}

// Load reads and validates a Config from YAML.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open config")
	}
	defer f.Close()

	cfg, err := parseYAML(f)
	if err != nil {
		return nil, errors.Wrap(err, "parse config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyOverrides updates cfg using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.DataDir != "" {
		c.DataDir = o.DataDir
	}
	if o.Epochs > 0 {
		c.Epochs = o.Epochs
	}
	if o.BatchSize > 0 {
		c.BatchSize = o.BatchSize
	}
	if o.Hidden1 > 0 {
		c.Hidden1 = o.Hidden1
	}
	if o.Hidden2 > 0 {
		c.Hidden2 = o.Hidden2
	}
	if o.LearningRate > 0 {
		c.LearningRate = o.LearningRate
	}
	if o.Seed != 0 {
		c.Seed = o.Seed
	}
	if o.LogEvery > 0 {
		c.LogEvery = o.LogEvery
	}
	if o.NumWorkers > 0 {
		c.NumWorkers = o.NumWorkers
	}
	if o.Checkpoint != "" {
		c.Checkpoint = o.Checkpoint
	}
	if o.HistoryDB != "" {
		c.HistoryDB = o.HistoryDB
	}
	if o.Limit > 0 {
		c.Limit = o.Limit
	}
}

// Validate verifies the config is runnable, filling defaults where a zero
// value has a sensible one.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.DataDir == "" {
		return errors.New("data_dir must be set")
	}
	if c.Epochs <= 0 {
		return errors.Errorf("epochs must be > 0 (got %d)", c.Epochs)
	}
	if c.BatchSize <= 0 {
		return errors.Errorf("batch_size must be > 0 (got %d)", c.BatchSize)
	}
	if c.Hidden1 <= 0 {
		c.Hidden1 = 100
	}
	if c.Hidden2 <= 0 {
		c.Hidden2 = 50
	}
	if c.LearningRate <= 0 {
		return errors.Errorf("learning_rate must be > 0 (got %g)", c.LearningRate)
	}
	if c.Momentum < 0 || c.Momentum >= 1 {
		return errors.Errorf("momentum must be in [0,1) (got %g)", c.Momentum)
	}
	if c.LRDecayEvery < 0 {
		return errors.Errorf("lr_decay_every must be >= 0 (got %d)", c.LRDecayEvery)
	}
	if c.LRDecayEvery > 0 && (c.LRDecayFactor <= 0 || c.LRDecayFactor > 1) {
		return errors.Errorf("lr_decay_factor must be in (0,1] (got %g)", c.LRDecayFactor)
	}
	if c.Limit < 0 {
		return errors.Errorf("limit must be >= 0 (got %d)", c.Limit)
	}
	if c.Seed == 0 {
		c.Seed = 42
	}
	if c.LogEvery <= 0 {
		c.LogEvery = 50
	}
	if c.NumWorkers <= 0 {
		c.NumWorkers = 2
	}
	if c.Checkpoint == "" {
		c.Checkpoint = "digitforge.gob"
	}
	return nil
}

func parseYAML(r io.Reader) (*Config, error) {
	cfg := &Config{}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			return nil, errors.Errorf("line %d: missing ':'", lineNo)
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		value = strings.Trim(value, "\"'")
		if err := cfg.setKey(key, value); err != nil {
			return nil, errors.Wrapf(err, "line %d", lineNo)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) setKey(key, value string) error {
	switch key {
	case "data_dir":
		c.DataDir = value
	case "checkpoint":
		c.Checkpoint = value
	case "history_db":
		c.HistoryDB = value
	case "epochs":
		return parseInt(key, value, &c.Epochs)
	case "batch_size":
		return parseInt(key, value, &c.BatchSize)
	case "hidden1":
		return parseInt(key, value, &c.Hidden1)
	case "hidden2":
		return parseInt(key, value, &c.Hidden2)
	case "lr_decay_every":
		return parseInt(key, value, &c.LRDecayEvery)
	case "log_every":
		return parseInt(key, value, &c.LogEvery)
	case "num_workers":
		return parseInt(key, value, &c.NumWorkers)
	case "limit":
		return parseInt(key, value, &c.Limit)
	case "learning_rate":
		return parseFloat(key, value, &c.LearningRate)
	case "momentum":
		return parseFloat(key, value, &c.Momentum)
	case "lr_decay_factor":
		return parseFloat(key, value, &c.LRDecayFactor)
	case "seed":
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return errors.Wrap(err, key)
		}
		c.Seed = v
	default:
		return errors.Errorf("unknown key %s", key)
	}
	return nil
}

func parseInt(key, value string, dst *int) error {
	v, err := strconv.Atoi(value)
	if err != nil {
		return errors.Wrap(err, key)
	}
	*dst = v
	return nil
}

func parseFloat(key, value string, dst *float64) error {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return errors.Wrap(err, key)
	}
	*dst = v
	return nil
}
