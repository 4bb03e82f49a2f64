package nn

import (
	"math"
	"math/rand"

	"molmeta/internal/tensor"
)

// Linear is a dense layer: x @ W + b.
type Linear struct {
	W *tensor.Tensor // [in, out]
	B *tensor.Tensor // [out]
}

func NewLinear(r *rand.Rand, in, out int) *Linear {
	return &Linear{
		W: tensor.Randn(r, 1/math.Sqrt(float64(in)), in, out).RequireGrad(),
		B: tensor.New(out).RequireGrad(),
	}
}

func (l *Linear) Kind() LayerKind { return KindLinear }

func (l *Linear) Params() []*tensor.Tensor { return []*tensor.Tensor{l.W, l.B} }

func (l *Linear) Apply(x *tensor.Tensor) *tensor.Tensor {
	rows := x.Shape()[0]
	return tensor.Add(tensor.MatMul(x, l.W), tensor.ExpandRows(l.B, rows))
}
