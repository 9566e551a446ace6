package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"digitforge/internal/config"
	"digitforge/internal/dataset"
	"digitforge/internal/metrics"
	"digitforge/internal/trainer"
)

func main() {
	cfgPath := flag.String("config", "configs/mnist.yaml", "Path to YAML config")
	dataDir := flag.String("data-dir", "", "Override dataset directory")
	epochs := flag.Int("epochs", 0, "Number of training epochs")
	batchSize := flag.Int("batch-size", 0, "Mini-batch size")
	learningRate := flag.Float64("learning-rate", 0, "SGD learning rate")
	seed := flag.Int64("seed", 0, "PRNG seed")
	logEvery := flag.Int("log-every", 0, "Log every N steps")
	numWorkers := flag.Int("num-workers", 0, "Number of batch loader workers")
	checkpoint := flag.String("checkpoint", "", "Override checkpoint path")
	historyDB := flag.String("history-db", "", "Override run history database path")
	limit := flag.Int("limit", 0, "Train on only the first N examples")

	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	cfg.ApplyOverrides(config.Overrides{
		DataDir:      *dataDir,
		Epochs:       *epochs,
		BatchSize:    *batchSize,
		LearningRate: *learningRate,
		Seed:         *seed,
		LogEvery:     *logEvery,
		NumWorkers:   *numWorkers,
		Checkpoint:   *checkpoint,
		HistoryDB:    *historyDB,
		Limit:        *limit,
	})

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	train, test, err := dataset.Load(cfg.DataDir)
	if err != nil {
		log.Fatalf("load dataset under %s: %v", cfg.DataDir, err)
	}
	if cfg.Limit > 0 {
		train = train.Subset(cfg.Limit)
		test = test.Subset(cfg.Limit)
	}
	log.Printf("train=%d test=%d image=%dx%d", train.Len(), test.Len(), train.Rows, train.Cols)

	var history *metrics.History
	if cfg.HistoryDB != "" {
		history, err = metrics.OpenHistory(cfg.HistoryDB)
		if err != nil {
			log.Fatalf("open history db: %v", err)
		}
		defer history.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runCfg := trainer.RunConfig{
		Train:         train,
		Test:          test,
		Epochs:        cfg.Epochs,
		BatchSize:     cfg.BatchSize,
		Hidden1:       cfg.Hidden1,
		Hidden2:       cfg.Hidden2,
		LearningRate:  cfg.LearningRate,
		Momentum:      cfg.Momentum,
		LRDecayEvery:  cfg.LRDecayEvery,
		LRDecayFactor: cfg.LRDecayFactor,
		Seed:          cfg.Seed,
		LogEvery:      cfg.LogEvery,
		NumWorkers:    cfg.NumWorkers,
		Checkpoint:    cfg.Checkpoint,
		History:       history,
	}

	result, err := trainer.Run(ctx, runCfg)
	if err != nil {
		log.Fatalf("training failed: %v", err)
	}
	log.Printf("done epochs=%d test_loss=%.4f test_acc=%.4f checkpoint=%s",
		result.Epochs, result.TestLoss, result.TestAcc, cfg.Checkpoint)
}
