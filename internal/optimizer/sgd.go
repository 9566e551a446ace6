package optimizer

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// SGD performs stochastic gradient descent with classical momentum. With
// Momentum zero it reduces to plain gradient descent. Velocity buffers are
// allocated on first use and keyed by parameter position, so a single SGD
// value must only ever be used with one parameter set.
type SGD struct {
	LearningRate float64
	Momentum     float64

	velocity [][]float64
}

// New constructs an SGD optimizer.
func New(learningRate, momentum float64) *SGD {
	return &SGD{LearningRate: learningRate, Momentum: momentum}
}

// Step applies one update in place: v = momentum*v - lr*g; p += v.
// params and grads must be aligned and shape-compatible.
func (o *SGD) Step(params, grads []*mat.Dense) error {
	if len(params) != len(grads) {
		return errors.Errorf("optimizer: %d params but %d grads", len(params), len(grads))
	}
	if o.velocity == nil {
		o.velocity = make([][]float64, len(params))
	}
	for i, p := range params {
		praw := p.RawMatrix().Data
		graw := grads[i].RawMatrix().Data
		if len(praw) != len(graw) {
			return errors.Errorf("optimizer: param %d has %d elements but grad has %d",
				i, len(praw), len(graw))
		}
		if o.velocity[i] == nil {
			o.velocity[i] = make([]float64, len(praw))
		}
		v := o.velocity[i]
		if o.Momentum != 0 {
			floats.Scale(o.Momentum, v)
			floats.AddScaled(v, -o.LearningRate, graw)
		} else {
			for j := range v {
				v[j] = -o.LearningRate * graw[j]
			}
		}
		floats.Add(praw, v)
	}
	return nil
}

// StepDecay returns the learning rate for a 1-based epoch under a step
// schedule: base multiplied by factor once every `every` epochs. An `every`
// of zero disables decay.
func StepDecay(base float64, epoch, every int, factor float64) float64 {
	if every <= 0 || epoch <= 0 {
		return base
	}
	lr := base
	for e := every; e < epoch; e += every {
		lr *= factor
	}
	return lr
}
