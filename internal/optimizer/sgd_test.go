package optimizer

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestStepPlainSGD(t *testing.T) {
	p := mat.NewDense(1, 2, []float64{1.0, 2.0})
	g := mat.NewDense(1, 2, []float64{0.5, -0.5})

	o := New(0.1, 0)
	if err := o.Step([]*mat.Dense{p}, []*mat.Dense{g}); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if got := p.At(0, 0); math.Abs(got-0.95) > 1e-12 {
		t.Fatalf("expected 0.95, got %f", got)
	}
	if got := p.At(0, 1); math.Abs(got-2.05) > 1e-12 {
		t.Fatalf("expected 2.05, got %f", got)
	}
}

func TestStepMomentumAccumulates(t *testing.T) {
	p := mat.NewDense(1, 1, []float64{0})
	g := mat.NewDense(1, 1, []float64{1})

	o := New(0.1, 0.9)
	// v1 = -0.1, p = -0.1; v2 = 0.9*-0.1 - 0.1 = -0.19, p = -0.29
	for i := 0; i < 2; i++ {
		if err := o.Step([]*mat.Dense{p}, []*mat.Dense{g}); err != nil {
			t.Fatalf("Step: %v", err)
		}
	}
	if got := p.At(0, 0); math.Abs(got-(-0.29)) > 1e-12 {
		t.Fatalf("expected -0.29, got %f", got)
	}
}

func TestStepShapeMismatch(t *testing.T) {
	o := New(0.1, 0)
	p := mat.NewDense(1, 2, nil)
	g := mat.NewDense(1, 3, nil)
	if err := o.Step([]*mat.Dense{p}, []*mat.Dense{g}); err == nil {
		t.Fatal("expected error for mismatched shapes")
	}
	if err := o.Step([]*mat.Dense{p}, nil); err == nil {
		t.Fatal("expected error for mismatched lengths")
	}
}

func TestStepDecay(t *testing.T) {
	cases := []struct {
		epoch int
		want  float64
	}{
		{1, 0.1},
		{10, 0.1},
		{11, 0.05},
		{20, 0.05},
		{21, 0.025},
	}
	for _, c := range cases {
		if got := StepDecay(0.1, c.epoch, 10, 0.5); math.Abs(got-c.want) > 1e-12 {
			t.Fatalf("epoch %d: expected %f, got %f", c.epoch, c.want, got)
		}
	}
	if got := StepDecay(0.1, 100, 0, 0.5); got != 0.1 {
		t.Fatalf("expected decay disabled, got %f", got)
	}
}
