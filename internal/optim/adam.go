package optim

import (
	"fmt"
	"math"

	"molmeta/internal/tensor"
)

// AdamConfig holds the Adam hyperparameters.
type AdamConfig struct {
	LR      float64
	Beta1   float64
	Beta2   float64
	Epsilon float64
}

func DefaultAdamConfig() AdamConfig {
	return AdamConfig{
		LR:      1e-3,
		Beta1:   0.9,
		Beta2:   0.999,
		Epsilon: 1e-8,
	}
}

// Adam keeps first and second moment estimates per parameter. It is
// constructed once for one parameter set and its state persists across
// steps; bias correction uses the internal step counter.
type Adam struct {
	cfg AdamConfig

	m    [][]float64
	v    [][]float64
	step int
}

func NewAdam(cfg AdamConfig, params []*tensor.Tensor) *Adam {
	a := &Adam{
		cfg: cfg,
		m:   make([][]float64, len(params)),
		v:   make([][]float64, len(params)),
	}
	for i, p := range params {
		a.m[i] = make([]float64, p.Size())
		a.v[i] = make([]float64, p.Size())
	}
	return a
}

func (a *Adam) Step(params []*tensor.Tensor) error {
	if len(params) != len(a.m) {
		return fmt.Errorf("optim: adam built for %d parameters, got %d", len(a.m), len(params))
	}
	a.step++
	bias1 := 1 - math.Pow(a.cfg.Beta1, float64(a.step))
	bias2 := 1 - math.Pow(a.cfg.Beta2, float64(a.step))

	for i, p := range params {
		g := p.Grad()
		if g == nil {
			continue
		}
		if g.Size() != len(a.m[i]) {
			return fmt.Errorf("optim: parameter %d gradient has %d elements, state has %d", i, g.Size(), len(a.m[i]))
		}
		data := p.Data()
		gd := g.Data()
		for j := range data {
			a.m[i][j] = a.cfg.Beta1*a.m[i][j] + (1-a.cfg.Beta1)*gd[j]
			a.v[i][j] = a.cfg.Beta2*a.v[i][j] + (1-a.cfg.Beta2)*gd[j]*gd[j]
			mHat := a.m[i][j] / bias1
			vHat := a.v[i][j] / bias2
			data[j] -= a.cfg.LR * mHat / (math.Sqrt(vHat) + a.cfg.Epsilon)
		}
	}
	return nil
}

func (a *Adam) ZeroGrad(params []*tensor.Tensor) {
	for _, p := range params {
		p.ZeroGrad()
	}
}

// StepCount reports how many updates have been applied.
func (a *Adam) StepCount() int { return a.step }
