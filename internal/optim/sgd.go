package optim

import "molmeta/internal/tensor"

// SGD is plain stochastic gradient descent, no momentum. It is the
// inner-loop rule: a small fixed step from the current parameters.
type SGD struct {
	LR float64
}

func NewSGD(lr float64) *SGD {
	return &SGD{LR: lr}
}

func (s *SGD) Step(params []*tensor.Tensor) error {
	for _, p := range params {
		g := p.Grad()
		if g == nil {
			continue
		}
		data := p.Data()
		gd := g.Data()
		for i := range data {
			data[i] -= s.LR * gd[i]
		}
	}
	return nil
}

func (s *SGD) ZeroGrad(params []*tensor.Tensor) {
	for _, p := range params {
		p.ZeroGrad()
	}
}
