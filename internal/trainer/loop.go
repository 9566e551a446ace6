package trainer

import (
	"context"
	"log"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"digitforge/internal/dataset"
	"digitforge/internal/metrics"
	"digitforge/internal/model"
	"digitforge/internal/optimizer"
)

const numClasses = 10

// RunConfig captures the knobs required by the training loop.
type RunConfig struct {
	Train *dataset.Set
	Test  *dataset.Set

	Epochs    int
	BatchSize int
	Hidden1   int
	Hidden2   int

	LearningRate  float64
	Momentum      float64
	LRDecayEvery  int
	LRDecayFactor float64

	Seed       int64
	LogEvery   int
	NumWorkers int

	Checkpoint string
	History    *metrics.History
}

// Result holds the final held-out metrics of a completed run.
type Result struct {
	TestLoss float64
	TestAcc  float64
	Epochs   int
}

// Run executes the training workload: one optimizer step per mini-batch,
// a held-out evaluation and a checkpoint at the end of every epoch.
func Run(ctx context.Context, cfg RunConfig) (Result, error) {
	if cfg.Train == nil || cfg.Train.Len() == 0 {
		return Result{}, errors.New("trainer: empty training set")
	}
	if cfg.Test == nil || cfg.Test.Len() == 0 {
		return Result{}, errors.New("trainer: empty test set")
	}
	if cfg.Epochs <= 0 {
		return Result{}, errors.New("trainer: epochs must be > 0")
	}
	if cfg.BatchSize <= 0 {
		return Result{}, errors.New("trainer: batch size must be > 0")
	}
	if cfg.LogEvery <= 0 {
		cfg.LogEvery = 50
	}

	mdl := model.New(cfg.Train.ImageSize(), cfg.Hidden1, cfg.Hidden2, numClasses, cfg.Seed)
	opt := optimizer.New(cfg.LearningRate, cfg.Momentum)

	var runID string
	if cfg.History != nil {
		var err error
		runID, err = cfg.History.BeginRun(cfg.Epochs, cfg.BatchSize, cfg.LearningRate)
		if err != nil {
			return Result{}, err
		}
	}

	var window metrics.Window
	var result Result
	step := 0

	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		opt.LearningRate = optimizer.StepDecay(cfg.LearningRate, epoch, cfg.LRDecayEvery, cfg.LRDecayFactor)
		epochStart := time.Now()

		batches, loaderErr, err := dataset.StartLoader(ctx, dataset.LoaderOptions{
			Set:        cfg.Train,
			BatchSize:  cfg.BatchSize,
			Seed:       cfg.Seed + int64(epoch),
			NumWorkers: cfg.NumWorkers,
			Shuffle:    true,
		})
		if err != nil {
			return Result{}, err
		}

		sumLoss := 0.0
		correct := 0
		seen := 0

		for {
			startData := time.Now()
			batch, ok, err := nextBatch(ctx, batches, loaderErr)
			if err != nil {
				return Result{}, err
			}
			if !ok {
				break
			}
			dataTime := time.Since(startData)

			startCompute := time.Now()
			loss, batchCorrect, grads := mdl.Backward(batch.Inputs, batch.Labels)
			if err := opt.Step(mdl.Params(), grads); err != nil {
				return Result{}, err
			}
			computeTime := time.Since(startCompute)

			n := len(batch.Labels)
			sumLoss += loss * float64(n)
			correct += batchCorrect
			seen += n
			window.Record(n, batchCorrect, dataTime, computeTime, loss)
			step++

			if step%cfg.LogEvery == 0 {
				snap := window.Snapshot()
				log.Printf("step=%d epoch=%d examples_per_sec=%.1f data_ms=%.2f compute_ms=%.2f loss=%.4f acc=%.4f",
					step,
					epoch,
					snap.ExamplesPerSec,
					snap.AvgDataMS,
					snap.AvgComputeMS,
					snap.LastLoss,
					snap.Accuracy,
				)
			}
		}

		// The batch stream can close on cancellation; never record a
		// truncated epoch.
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		testLoss, testAcc := Evaluate(mdl, cfg.Test, cfg.BatchSize)
		trainLoss := sumLoss / float64(seen)
		trainAcc := float64(correct) / float64(seen)
		elapsed := time.Since(epochStart)

		log.Printf("epoch=%d train_loss=%.4f train_acc=%.4f test_loss=%.4f test_acc=%.4f lr=%.4g elapsed=%s",
			epoch, trainLoss, trainAcc, testLoss, testAcc, opt.LearningRate, elapsed.Round(time.Millisecond))

		if cfg.History != nil {
			err := cfg.History.RecordEpoch(runID, metrics.EpochStats{
				Epoch:        epoch,
				TrainLoss:    trainLoss,
				TrainAcc:     trainAcc,
				TestLoss:     testLoss,
				TestAcc:      testAcc,
				LearningRate: opt.LearningRate,
				Duration:     elapsed,
			})
			if err != nil {
				return Result{}, err
			}
		}
		if cfg.Checkpoint != "" {
			if err := mdl.Save(cfg.Checkpoint); err != nil {
				return Result{}, err
			}
		}

		result = Result{TestLoss: testLoss, TestAcc: testAcc, Epochs: epoch}
	}

	if cfg.History != nil {
		if err := cfg.History.FinishRun(runID, result.TestLoss, result.TestAcc); err != nil {
			return Result{}, err
		}
	}
	return result, nil
}

func nextBatch(ctx context.Context, batches <-chan dataset.Batch, errs <-chan error) (dataset.Batch, bool, error) {
	for {
		select {
		case <-ctx.Done():
			return dataset.Batch{}, false, ctx.Err()
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				return dataset.Batch{}, false, err
			}
		case batch, ok := <-batches:
			if !ok {
				// Drain any error the loader reported before closing.
				if errs != nil {
					if err, open := <-errs; open && err != nil {
						return dataset.Batch{}, false, err
					}
				}
				return dataset.Batch{}, false, nil
			}
			return batch, true, nil
		}
	}
}

// Evaluate computes mean loss and accuracy over a set in sequential batches.
func Evaluate(mdl *model.MLP, set *dataset.Set, batchSize int) (loss, acc float64) {
	n := set.Len()
	size := set.ImageSize()
	sumLoss := 0.0
	correct := 0
	for lo := 0; lo < n; lo += batchSize {
		hi := lo + batchSize
		if hi > n {
			hi = n
		}
		count := hi - lo
		inputs := mat.NewDense(count, size, set.Images[lo*size:hi*size])
		batchLoss, batchCorrect := mdl.Score(inputs, set.Labels[lo:hi])
		sumLoss += batchLoss * float64(count)
		correct += batchCorrect
	}
	return sumLoss / float64(n), float64(correct) / float64(n)
}
