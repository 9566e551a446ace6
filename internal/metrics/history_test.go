package metrics

import (
	"path/filepath"
	"testing"
	"time"
)

func TestHistoryRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.sqlite3")
	h, err := OpenHistory(path)
	if err != nil {
		t.Fatalf("OpenHistory: %v", err)
	}
	defer h.Close()

	runID, err := h.BeginRun(2, 100, 0.1)
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if runID == "" {
		t.Fatal("expected non-empty run id")
	}

	for epoch := 1; epoch <= 2; epoch++ {
		err := h.RecordEpoch(runID, EpochStats{
			Epoch:        epoch,
			TrainLoss:    1.0 / float64(epoch),
			TrainAcc:     0.5 * float64(epoch),
			TestLoss:     1.1 / float64(epoch),
			TestAcc:      0.45 * float64(epoch),
			LearningRate: 0.1,
			Duration:     1500 * time.Millisecond,
		})
		if err != nil {
			t.Fatalf("RecordEpoch %d: %v", epoch, err)
		}
	}
	if err := h.FinishRun(runID, 0.55, 0.9); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	epochs, err := h.Epochs(runID)
	if err != nil {
		t.Fatalf("Epochs: %v", err)
	}
	if len(epochs) != 2 {
		t.Fatalf("expected 2 epochs, got %d", len(epochs))
	}
	if epochs[0].Epoch != 1 || epochs[1].Epoch != 2 {
		t.Fatalf("epochs out of order: %+v", epochs)
	}
	if epochs[1].TrainLoss != 0.5 || epochs[1].Duration != 1500*time.Millisecond {
		t.Fatalf("unexpected epoch row: %+v", epochs[1])
	}
}

func TestHistoryDuplicateEpochRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.sqlite3")
	h, err := OpenHistory(path)
	if err != nil {
		t.Fatalf("OpenHistory: %v", err)
	}
	defer h.Close()

	runID, err := h.BeginRun(1, 10, 0.01)
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if err := h.RecordEpoch(runID, EpochStats{Epoch: 1}); err != nil {
		t.Fatalf("RecordEpoch: %v", err)
	}
	if err := h.RecordEpoch(runID, EpochStats{Epoch: 1}); err == nil {
		t.Fatal("expected duplicate epoch to be rejected")
	}
}
