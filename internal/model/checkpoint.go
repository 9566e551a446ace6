package model

import (
	"encoding/gob"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// checkpoint is the on-disk parameter file layout. mat.Dense gob-encodes via
// its binary marshaler.
type checkpoint struct {
	InputSize  int
	Hidden1    int
	Hidden2    int
	NumClasses int
	W1, B1     *mat.Dense
	W2, B2     *mat.Dense
	W3, B3     *mat.Dense
}

// Save writes the model parameters to path. The file is written to a
// temporary sibling and renamed into place so a crash never leaves a
// half-written checkpoint.
func (m *MLP) Save(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "create checkpoint temp")
	}
	defer os.Remove(tmp.Name())

	cp := checkpoint{
		InputSize:  m.inputSize,
		Hidden1:    m.hidden1,
		Hidden2:    m.hidden2,
		NumClasses: m.numClasses,
		W1:         m.w1, B1: m.b1,
		W2: m.w2, B2: m.b2,
		W3: m.w3, B3: m.b3,
	}
	if err := gob.NewEncoder(tmp).Encode(&cp); err != nil {
		tmp.Close()
		return errors.Wrap(err, "encode checkpoint")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close checkpoint temp")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrap(err, "rename checkpoint")
	}
	return nil
}

// Load reads a parameter file written by Save.
func Load(path string) (*MLP, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open checkpoint")
	}
	defer f.Close()

	var cp checkpoint
	if err := gob.NewDecoder(f).Decode(&cp); err != nil {
		return nil, errors.Wrap(err, "decode checkpoint")
	}
	if cp.W1 == nil || cp.B1 == nil || cp.W2 == nil || cp.B2 == nil || cp.W3 == nil || cp.B3 == nil {
		return nil, errors.New("checkpoint missing parameters")
	}
	m := &MLP{
		inputSize:  cp.InputSize,
		hidden1:    cp.Hidden1,
		hidden2:    cp.Hidden2,
		numClasses: cp.NumClasses,
		w1:         cp.W1, b1: cp.B1,
		w2: cp.W2, b2: cp.B2,
		w3: cp.W3, b3: cp.B3,
	}
	if err := m.checkShapes(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MLP) checkShapes() error {
	checks := []struct {
		name       string
		mt         *mat.Dense
		rows, cols int
	}{
		{"w1", m.w1, m.inputSize, m.hidden1},
		{"b1", m.b1, 1, m.hidden1},
		{"w2", m.w2, m.hidden1, m.hidden2},
		{"b2", m.b2, 1, m.hidden2},
		{"w3", m.w3, m.hidden2, m.numClasses},
		{"b3", m.b3, 1, m.numClasses},
	}
	for _, c := range checks {
		r, cl := c.mt.Dims()
		if r != c.rows || cl != c.cols {
			return errors.Errorf("checkpoint %s has shape %dx%d, want %dx%d", c.name, r, cl, c.rows, c.cols)
		}
	}
	return nil
}
