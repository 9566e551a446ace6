package model

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const lossFloor = 1e-9

// MLP is a three-layer dense network with ReLU hidden activations and a
// softmax cross-entropy output, trained by explicit backpropagation.
type MLP struct {
	inputSize  int
	hidden1    int
	hidden2    int
	numClasses int

	// weights are inputs x outputs, biases 1 x outputs
	w1, b1 *mat.Dense
	w2, b2 *mat.Dense
	w3, b3 *mat.Dense
}

// New constructs the network with He-style initialization from the seed.
func New(inputSize, hidden1, hidden2, numClasses int, seed int64) *MLP {
	if inputSize <= 0 {
		inputSize = 784
	}
	if hidden1 <= 0 {
		hidden1 = 100
	}
	if hidden2 <= 0 {
		hidden2 = 50
	}
	if numClasses <= 0 {
		numClasses = 10
	}
	rng := rand.New(rand.NewSource(seed))
	return &MLP{
		inputSize:  inputSize,
		hidden1:    hidden1,
		hidden2:    hidden2,
		numClasses: numClasses,
		w1:         heInit(rng, inputSize, hidden1),
		b1:         mat.NewDense(1, hidden1, nil),
		w2:         heInit(rng, hidden1, hidden2),
		b2:         mat.NewDense(1, hidden2, nil),
		w3:         heInit(rng, hidden2, numClasses),
		b3:         mat.NewDense(1, numClasses, nil),
	}
}

func heInit(rng *rand.Rand, fanIn, fanOut int) *mat.Dense {
	scale := math.Sqrt(2.0 / float64(fanIn))
	w := make([]float64, fanIn*fanOut)
	for i := range w {
		w[i] = rng.NormFloat64() * scale
	}
	return mat.NewDense(fanIn, fanOut, w)
}

// InputSize returns the expected flattened input length.
func (m *MLP) InputSize() int { return m.inputSize }

// NumClasses returns the output dimension.
func (m *MLP) NumClasses() int { return m.numClasses }

// Params returns the live parameter matrices in a fixed order matching the
// gradients produced by Backward.
func (m *MLP) Params() []*mat.Dense {
	return []*mat.Dense{m.w1, m.b1, m.w2, m.b2, m.w3, m.b3}
}

type activations struct {
	z1, a1 *mat.Dense
	z2, a2 *mat.Dense
	probs  *mat.Dense
}

func (m *MLP) forward(x *mat.Dense) *activations {
	acts := &activations{}

	acts.z1 = affine(x, m.w1, m.b1)
	acts.a1 = relu(acts.z1)

	acts.z2 = affine(acts.a1, m.w2, m.b2)
	acts.a2 = relu(acts.z2)

	logits := affine(acts.a2, m.w3, m.b3)
	acts.probs = softmaxRows(logits)
	return acts
}

// Forward computes class probabilities for a batch, one example per row.
func (m *MLP) Forward(x *mat.Dense) *mat.Dense {
	return m.forward(x).probs
}

// Predict returns the argmax class for each row of x.
func (m *MLP) Predict(x *mat.Dense) []int {
	return argmaxRows(m.Forward(x))
}

// Score computes mean cross-entropy loss and the number of correctly
// classified examples over a batch.
func (m *MLP) Score(x *mat.Dense, labels []int) (loss float64, correct int) {
	labels = clampLabels(labels, m.numClasses)
	probs := m.Forward(x)
	return crossEntropy(probs, labels), countCorrect(probs, labels)
}

// Evaluate computes mean cross-entropy loss and accuracy over a batch.
func (m *MLP) Evaluate(x *mat.Dense, labels []int) (loss, acc float64) {
	n, _ := x.Dims()
	loss, correct := m.Score(x, labels)
	return loss, float64(correct) / float64(n)
}

// Backward runs one forward/backward pass and returns the mean batch loss,
// the number of correctly classified examples, and parameter gradients
// aligned with Params. It does not update any parameters.
func (m *MLP) Backward(x *mat.Dense, labels []int) (float64, int, []*mat.Dense) {
	labels = clampLabels(labels, m.numClasses)
	acts := m.forward(x)
	n, _ := x.Dims()

	loss := crossEntropy(acts.probs, labels)
	correct := countCorrect(acts.probs, labels)

	// delta3 = (probs - onehot(labels)) / n
	delta3 := mat.DenseCopyOf(acts.probs)
	for i, label := range labels {
		delta3.Set(i, label, delta3.At(i, label)-1)
	}
	delta3.Scale(1/float64(n), delta3)

	gw3, gb3 := layerGrads(acts.a2, delta3)
	delta2 := backprop(delta3, m.w3, acts.z2)
	gw2, gb2 := layerGrads(acts.a1, delta2)
	delta1 := backprop(delta2, m.w2, acts.z1)
	gw1, gb1 := layerGrads(x, delta1)

	return loss, correct, []*mat.Dense{gw1, gb1, gw2, gb2, gw3, gb3}
}

// affine computes x*w + b with b broadcast across rows.
func affine(x, w, b *mat.Dense) *mat.Dense {
	var out mat.Dense
	out.Mul(x, w)
	rows, _ := out.Dims()
	bias := b.RawRowView(0)
	for r := 0; r < rows; r++ {
		floats.Add(out.RawRowView(r), bias)
	}
	return &out
}

func relu(z *mat.Dense) *mat.Dense {
	out := mat.DenseCopyOf(z)
	raw := out.RawMatrix().Data
	for i, v := range raw {
		if v < 0 {
			raw[i] = 0
		}
	}
	return out
}

// backprop propagates delta through a layer's weights and applies the ReLU
// derivative mask for the layer's pre-activation z.
func backprop(delta, w, z *mat.Dense) *mat.Dense {
	var out mat.Dense
	out.Mul(delta, w.T())
	raw := out.RawMatrix().Data
	zraw := z.RawMatrix().Data
	for i := range raw {
		if zraw[i] <= 0 {
			raw[i] = 0
		}
	}
	return &out
}

// layerGrads computes the weight gradient input'*delta and the bias gradient
// as column sums of delta.
func layerGrads(input, delta *mat.Dense) (*mat.Dense, *mat.Dense) {
	var gw mat.Dense
	gw.Mul(input.T(), delta)

	rows, cols := delta.Dims()
	gb := mat.NewDense(1, cols, nil)
	sums := gb.RawRowView(0)
	for r := 0; r < rows; r++ {
		floats.Add(sums, delta.RawRowView(r))
	}
	return &gw, gb
}

func softmaxRows(logits *mat.Dense) *mat.Dense {
	out := mat.DenseCopyOf(logits)
	rows, _ := out.Dims()
	for r := 0; r < rows; r++ {
		row := out.RawRowView(r)
		max := floats.Max(row)
		sum := 0.0
		for i, v := range row {
			e := math.Exp(v - max)
			row[i] = e
			sum += e
		}
		floats.Scale(1/sum, row)
	}
	return out
}

// clampLabels folds out-of-range labels into [0, numClasses) so a bad label
// can never index past the output layer.
func clampLabels(labels []int, numClasses int) []int {
	out := make([]int, len(labels))
	for i, label := range labels {
		if label < 0 || label >= numClasses {
			label %= numClasses
			if label < 0 {
				label += numClasses
			}
		}
		out[i] = label
	}
	return out
}

func crossEntropy(probs *mat.Dense, labels []int) float64 {
	total := 0.0
	for i, label := range labels {
		total += -math.Log(math.Max(probs.At(i, label), lossFloor))
	}
	return total / float64(len(labels))
}

func countCorrect(probs *mat.Dense, labels []int) int {
	correct := 0
	for i, pred := range argmaxRows(probs) {
		if pred == labels[i] {
			correct++
		}
	}
	return correct
}

func argmaxRows(probs *mat.Dense) []int {
	rows, _ := probs.Dims()
	out := make([]int, rows)
	for r := 0; r < rows; r++ {
		out[r] = floats.MaxIdx(probs.RawRowView(r))
	}
	return out
}
