package model

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func TestBackwardReducesLoss(t *testing.T) {
	m := New(4, 6, 5, 3, 1)
	x := mat.NewDense(2, 4, []float64{
		0.1, 0.2, 0.3, 0.4,
		0.4, 0.3, 0.2, 0.1,
	})
	labels := []int{1, 2}

	loss1, _, grads := m.Backward(x, labels)
	for i := 0; i < 5; i++ {
		applySGD(m.Params(), grads, 0.1)
		var loss2 float64
		loss2, _, grads = m.Backward(x, labels)
		if loss2 >= loss1 {
			t.Fatalf("step %d: expected loss to decrease; before=%f after=%f", i, loss1, loss2)
		}
		loss1 = loss2
	}
}

func TestBackwardMatchesNumericGradient(t *testing.T) {
	m := New(4, 5, 4, 3, 7)
	x := mat.NewDense(3, 4, []float64{
		0.2, -0.1, 0.5, 0.3,
		-0.4, 0.8, 0.1, -0.2,
		0.6, 0.2, -0.3, 0.9,
	})
	labels := []int{0, 2, 1}

	params := m.Params()
	var theta []float64
	for _, p := range params {
		theta = append(theta, p.RawMatrix().Data...)
	}
	setTheta := func(v []float64) {
		off := 0
		for _, p := range params {
			data := p.RawMatrix().Data
			copy(data, v[off:off+len(data)])
			off += len(data)
		}
	}

	numeric := fd.Gradient(nil, func(v []float64) float64 {
		setTheta(v)
		loss, _ := m.Evaluate(x, labels)
		return loss
	}, theta, &fd.Settings{Formula: fd.Central})
	setTheta(theta)

	_, _, grads := m.Backward(x, labels)
	var analytic []float64
	for _, g := range grads {
		analytic = append(analytic, g.RawMatrix().Data...)
	}
	if len(analytic) != len(numeric) {
		t.Fatalf("gradient length mismatch: %d vs %d", len(analytic), len(numeric))
	}
	for i := range numeric {
		if diff := math.Abs(numeric[i] - analytic[i]); diff > 1e-6 {
			t.Fatalf("gradient %d mismatch: numeric=%g analytic=%g", i, numeric[i], analytic[i])
		}
	}
}

func TestForwardProbabilitiesSumToOne(t *testing.T) {
	m := New(8, 6, 5, 10, 3)
	x := mat.NewDense(4, 8, nil)
	for i := 0; i < 4; i++ {
		for j := 0; j < 8; j++ {
			x.Set(i, j, float64(i*8+j)/32)
		}
	}
	probs := m.Forward(x)
	rows, cols := probs.Dims()
	if rows != 4 || cols != 10 {
		t.Fatalf("unexpected probs shape %dx%d", rows, cols)
	}
	for r := 0; r < rows; r++ {
		sum := floats.Sum(probs.RawRowView(r))
		if math.Abs(sum-1) > 1e-12 {
			t.Fatalf("row %d probabilities sum to %g", r, sum)
		}
		for c := 0; c < cols; c++ {
			if probs.At(r, c) < 0 {
				t.Fatalf("negative probability at %d,%d", r, c)
			}
		}
	}
}

func TestEvaluatePerfectPrediction(t *testing.T) {
	// A single-class problem the net can trivially overfit.
	m := New(2, 8, 8, 2, 1)
	x := mat.NewDense(4, 2, []float64{
		1, 0,
		1, 0.1,
		0, 1,
		0.1, 1,
	})
	labels := []int{0, 0, 1, 1}

	for i := 0; i < 500; i++ {
		_, _, grads := m.Backward(x, labels)
		applySGD(m.Params(), grads, 0.3)
	}
	loss, acc := m.Evaluate(x, labels)
	if acc != 1.0 {
		t.Fatalf("expected perfect accuracy after overfitting, got %f (loss %f)", acc, loss)
	}
}

func TestBackwardClampsOutOfRangeLabels(t *testing.T) {
	m := New(4, 5, 4, 3, 1)
	x := mat.NewDense(2, 4, []float64{
		0.1, 0.2, 0.3, 0.4,
		0.4, 0.3, 0.2, 0.1,
	})

	loss, _, grads := m.Backward(x, []int{200, -7})
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		t.Fatalf("expected finite loss, got %f", loss)
	}
	if len(grads) != 6 {
		t.Fatalf("expected 6 gradients, got %d", len(grads))
	}

	// Clamping is a modulo fold, so 200 and -7 land on 2 for 3 classes.
	wantLoss, _, _ := m.Backward(x, []int{200 % 3, 2})
	gotLoss, _, _ := m.Backward(x, []int{200, -7})
	if wantLoss != gotLoss {
		t.Fatalf("clamped labels diverge: %f vs %f", wantLoss, gotLoss)
	}

	if _, correct := m.Score(x, []int{200, -7}); correct < 0 || correct > 2 {
		t.Fatalf("correct count out of range: %d", correct)
	}
}

func TestNewDefaults(t *testing.T) {
	m := New(0, 0, 0, 0, 1)
	if m.InputSize() != 784 || m.NumClasses() != 10 {
		t.Fatalf("unexpected defaults: input=%d classes=%d", m.InputSize(), m.NumClasses())
	}
	if len(m.Params()) != 6 {
		t.Fatalf("expected 6 parameter matrices, got %d", len(m.Params()))
	}
}

func applySGD(params, grads []*mat.Dense, lr float64) {
	for i, p := range params {
		raw := p.RawMatrix().Data
		graw := grads[i].RawMatrix().Data
		for j := range raw {
			raw[j] -= lr * graw[j]
		}
	}
}
