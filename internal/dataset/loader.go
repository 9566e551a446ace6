package dataset

import (
	"context"
	"math/rand"
	"sync"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Batch is one mini-batch of flattened images and their labels. Inputs has
// one example per row.
type Batch struct {
	Index  int
	Inputs *mat.Dense
	Labels []int
}

// LoaderOptions configures a one-epoch batch stream.
type LoaderOptions struct {
	Set        *Set
	BatchSize  int
	Seed       int64
	NumWorkers int
	Shuffle    bool
}

// StartLoader launches the batch assembly pipeline for a single epoch.
// Batches are emitted in deterministic order for a given seed; the final
// batch of the epoch may be short. The sample stream closes after the last
// batch.
func StartLoader(parent context.Context, opts LoaderOptions) (<-chan Batch, <-chan error, error) {
	if opts.Set == nil || opts.Set.Len() == 0 {
		return nil, nil, errors.New("loader: empty dataset")
	}
	if opts.BatchSize <= 0 {
		return nil, nil, errors.New("loader: batch size must be > 0")
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 1
	}

	n := opts.Set.Len()
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	if opts.Shuffle {
		rng := rand.New(rand.NewSource(opts.Seed))
		rng.Shuffle(n, func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}
	numBatches := (n + opts.BatchSize - 1) / opts.BatchSize

	ctx, cancel := context.WithCancel(parent)

	jobs := make(chan batchJob, opts.NumWorkers)
	results := make(chan Batch, opts.NumWorkers)
	out := make(chan Batch, opts.NumWorkers)
	errCh := make(chan error, 1)

	go func() {
		defer close(jobs)
		for id := 0; id < numBatches; id++ {
			lo := id * opts.BatchSize
			hi := lo + opts.BatchSize
			if hi > n {
				hi = n
			}
			select {
			case <-ctx.Done():
				return
			case jobs <- batchJob{id: id, indices: order[lo:hi]}:
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < opts.NumWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker(ctx, opts.Set, jobs, results)
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	go func() {
		defer cancel()
		defer close(out)
		defer close(errCh)
		runAggregator(ctx, results, out, errCh, numBatches)
	}()

	return out, errCh, nil
}

type batchJob struct {
	id      int
	indices []int
}

func worker(ctx context.Context, set *Set, jobs <-chan batchJob, results chan<- Batch) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			batch := assemble(set, job)
			select {
			case <-ctx.Done():
				return
			case results <- batch:
			}
		}
	}
}

func assemble(set *Set, job batchJob) Batch {
	inputs := mat.NewDense(len(job.indices), set.ImageSize(), nil)
	labels := make([]int, len(job.indices))
	for row, idx := range job.indices {
		inputs.SetRow(row, set.Image(idx))
		labels[row] = set.Labels[idx]
	}
	return Batch{Index: job.id, Inputs: inputs, Labels: labels}
}

// runAggregator re-orders worker output so batches stream in id order.
func runAggregator(ctx context.Context, results <-chan Batch, out chan<- Batch, errCh chan<- error, total int) {
	pending := make(map[int]Batch)
	next := 0
	for next < total {
		batch, ok := pending[next]
		if !ok {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case batch, ok = <-results:
				if !ok {
					// Workers only stop short of the full epoch on cancel.
					if err := ctx.Err(); err != nil {
						errCh <- err
					}
					return
				}
				pending[batch.Index] = batch
				continue
			}
		}
		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
			return
		case out <- batch:
		}
		delete(pending, next)
		next++
	}
}
