package nn

import "molmeta/internal/tensor"

// LayerNorm normalizes each row to zero mean and unit variance, then
// applies a learned affine transform.
type LayerNorm struct {
	Gamma *tensor.Tensor // [d]
	Beta  *tensor.Tensor // [d]
	eps   float64
}

func NewLayerNorm(d int) *LayerNorm {
	return &LayerNorm{
		Gamma: tensor.Full(1, d).RequireGrad(),
		Beta:  tensor.New(d).RequireGrad(),
		eps:   1e-5,
	}
}

func (l *LayerNorm) Kind() LayerKind { return KindNorm }

func (l *LayerNorm) Params() []*tensor.Tensor { return []*tensor.Tensor{l.Gamma, l.Beta} }

func (l *LayerNorm) Apply(x *tensor.Tensor) *tensor.Tensor {
	shape := x.Shape()
	n, d := shape[0], shape[1]

	mean := tensor.Scale(tensor.RowSum(x), 1/float64(d))
	centered := tensor.Sub(x, tensor.ExpandCols(mean, d))
	variance := tensor.Scale(tensor.RowSum(tensor.Mul(centered, centered)), 1/float64(d))
	std := tensor.Sqrt(tensor.AddScalar(variance, l.eps))
	normed := tensor.Div(centered, tensor.ExpandCols(std, d))

	return tensor.Add(
		tensor.Mul(normed, tensor.ExpandRows(l.Gamma, n)),
		tensor.ExpandRows(l.Beta, n),
	)
}
