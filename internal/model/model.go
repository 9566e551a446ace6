package model

import "gonum.org/v1/gonum/mat"

// Model defines the minimal training functionality required by the loop.
// Backward and Params return parameter-aligned slices: gradient i belongs to
// parameter i.
type Model interface {
	Backward(x *mat.Dense, labels []int) (loss float64, correct int, grads []*mat.Dense)
	Params() []*mat.Dense
	Score(x *mat.Dense, labels []int) (loss float64, correct int)
}
