package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// History is a sqlite-backed log of training runs and their per-epoch
// metrics. It is safe for concurrent use.
type History struct {
	db *sql.DB
	mu sync.Mutex
}

// EpochStats is one completed epoch's worth of metrics.
type EpochStats struct {
	Epoch        int
	TrainLoss    float64
	TrainAcc     float64
	TestLoss     float64
	TestAcc      float64
	LearningRate float64
	Duration     time.Duration
}

// OpenHistory opens (creating if needed) the history database at path.
func OpenHistory(path string) (*History, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open history db")
	}
	h := &History{db: db}
	if err := h.init(); err != nil {
		db.Close()
		return nil, err
	}
	return h, nil
}

func (h *History) init() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT,
			epochs INTEGER,
			batch_size INTEGER,
			learning_rate REAL,
			final_test_loss REAL,
			final_test_acc REAL
		)`,
		`CREATE TABLE IF NOT EXISTS epochs (
			run_id TEXT REFERENCES runs(id),
			epoch INTEGER,
			train_loss REAL,
			train_acc REAL,
			test_loss REAL,
			test_acc REAL,
			learning_rate REAL,
			duration_ms INTEGER,
			PRIMARY KEY (run_id, epoch)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := h.db.Exec(stmt); err != nil {
			return errors.Wrap(err, "init history schema")
		}
	}
	return nil
}

// BeginRun registers a new run and returns its id.
func (h *History) BeginRun(epochs, batchSize int, learningRate float64) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := uuid.NewString()
	_, err := h.db.Exec(
		`INSERT INTO runs (id, started_at, epochs, batch_size, learning_rate) VALUES (?, ?, ?, ?, ?)`,
		id, time.Now().UTC().Format(time.RFC3339), epochs, batchSize, learningRate,
	)
	if err != nil {
		return "", errors.Wrap(err, "insert run")
	}
	return id, nil
}

// RecordEpoch writes one completed epoch's metrics.
func (h *History) RecordEpoch(runID string, s EpochStats) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.db.Exec(
		`INSERT INTO epochs (run_id, epoch, train_loss, train_acc, test_loss, test_acc, learning_rate, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, s.Epoch, s.TrainLoss, s.TrainAcc, s.TestLoss, s.TestAcc,
		s.LearningRate, s.Duration.Milliseconds(),
	)
	return errors.Wrapf(err, "insert epoch %d", s.Epoch)
}

// FinishRun records the run's final held-out metrics.
func (h *History) FinishRun(runID string, testLoss, testAcc float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.db.Exec(
		`UPDATE runs SET final_test_loss = ?, final_test_acc = ? WHERE id = ?`,
		testLoss, testAcc, runID,
	)
	return errors.Wrap(err, "finish run")
}

// Epochs returns the recorded epochs for a run in order.
func (h *History) Epochs(runID string) ([]EpochStats, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rows, err := h.db.Query(
		`SELECT epoch, train_loss, train_acc, test_loss, test_acc, learning_rate, duration_ms
		 FROM epochs WHERE run_id = ? ORDER BY epoch`, runID)
	if err != nil {
		return nil, errors.Wrap(err, "query epochs")
	}
	defer rows.Close()

	var out []EpochStats
	for rows.Next() {
		var s EpochStats
		var durationMS int64
		if err := rows.Scan(&s.Epoch, &s.TrainLoss, &s.TrainAcc, &s.TestLoss,
			&s.TestAcc, &s.LearningRate, &durationMS); err != nil {
			return nil, errors.Wrap(err, "scan epoch")
		}
		s.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, s)
	}
	return out, rows.Err()
}

// RunIDs returns all run ids ordered by start time.
func (h *History) RunIDs() ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rows, err := h.db.Query(`SELECT id FROM runs ORDER BY started_at`)
	if err != nil {
		return nil, errors.Wrap(err, "query runs")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan run id")
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (h *History) Close() error {
	return h.db.Close()
}
