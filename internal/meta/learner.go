// Package meta implements the two-level MAML-style optimization
// protocol: per-episode inner-loop adaptation of a working network
// (Learner) and accumulation plus hook-based injection of query
// gradients into the shared base network (MetaOptimizer).
package meta

import (
	"fmt"

	"molmeta/internal/episode"
	"molmeta/internal/metrics"
	"molmeta/internal/nn"
	"molmeta/internal/optim"
	"molmeta/internal/tensor"
)

// LearnerConfig controls inner-loop adaptation.
type LearnerConfig struct {
	// InnerLR is the plain-SGD step size for inner updates.
	InnerLR float64
	// ResetKinds is the allowlist of layer kinds whose parameters are
	// copied from base to working on reset. Layers of any other kind
	// keep whatever state they already have; that mirrors the original
	// trainer and is deliberate, not a silent skip.
	ResetKinds []nn.LayerKind
}

func DefaultLearnerConfig() LearnerConfig {
	return LearnerConfig{
		InnerLR:    1e-3,
		ResetKinds: []nn.LayerKind{nn.KindLinear, nn.KindNorm},
	}
}

// Learner owns a base network and a structurally identical working
// network. Per episode it resets the working copy from the base,
// fine-tunes it on the support set, and reports the query-set gradient
// with respect to the working parameters, position-aligned with the
// base parameters.
type Learner struct {
	base    nn.Network
	working nn.Network

	inner      *optim.SGD
	resetKinds map[nn.LayerKind]bool
}

// NewLearner builds both networks from the factory and verifies they
// align layer by layer and parameter by parameter.
func NewLearner(factory nn.Factory, cfg LearnerConfig) (*Learner, error) {
	if factory == nil {
		return nil, fmt.Errorf("meta: network factory is required")
	}
	if cfg.InnerLR <= 0 {
		return nil, fmt.Errorf("meta: inner learning rate must be positive, got %g", cfg.InnerLR)
	}

	l := &Learner{
		base:       factory(),
		working:    factory(),
		inner:      optim.NewSGD(cfg.InnerLR),
		resetKinds: make(map[nn.LayerKind]bool, len(cfg.ResetKinds)),
	}
	for _, k := range cfg.ResetKinds {
		l.resetKinds[k] = true
	}

	if err := l.checkAlignment(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Learner) checkAlignment() error {
	bl, wl := l.base.Layers(), l.working.Layers()
	if len(bl) != len(wl) {
		return fmt.Errorf("meta: base has %d layers, working has %d", len(bl), len(wl))
	}
	for i := range bl {
		if bl[i].Kind() != wl[i].Kind() {
			return fmt.Errorf("meta: layer %d kind %q vs %q", i, bl[i].Kind(), wl[i].Kind())
		}
	}
	bp, wp := l.base.Parameters(), l.working.Parameters()
	if len(bp) != len(wp) {
		return fmt.Errorf("meta: base has %d parameters, working has %d", len(bp), len(wp))
	}
	for i := range bp {
		if bp[i].Size() != wp[i].Size() {
			return fmt.Errorf("meta: parameter %d size %d vs %d", i, bp[i].Size(), wp[i].Size())
		}
	}
	return nil
}

// BaseParameters enumerates the shared initialization's parameters in
// the network's stable order. Only the meta optimizer mutates them.
func (l *Learner) BaseParameters() []*tensor.Tensor { return l.base.Parameters() }

// WorkingParameters enumerates the working copy's parameters in the
// same order as BaseParameters.
func (l *Learner) WorkingParameters() []*tensor.Tensor { return l.working.Parameters() }

// ResetWorking overwrites every allowlisted layer's parameters in the
// working network with value copies of the base network's. The copy is
// by value: later in-place updates to the working network never touch
// the base.
func (l *Learner) ResetWorking() error {
	bl, wl := l.base.Layers(), l.working.Layers()
	for i := range bl {
		if !l.resetKinds[bl[i].Kind()] {
			continue
		}
		bp, wp := bl[i].Params(), wl[i].Params()
		if len(bp) != len(wp) {
			return fmt.Errorf("meta: layer %d has %d vs %d parameters", i, len(bp), len(wp))
		}
		for j := range bp {
			if err := wp[j].CopyFrom(bp[j]); err != nil {
				return fmt.Errorf("meta: layer %d parameter %d: %w", i, j, err)
			}
		}
	}
	return nil
}

// Adapt fine-tunes the working network on the support set for exactly
// numSteps plain-SGD updates. The base network is untouched.
func (l *Learner) Adapt(support episode.Inputs, labels []int, numSteps int) error {
	params := l.working.Parameters()
	for step := 0; step < numSteps; step++ {
		loss, _, err := l.working.Forward(support, labels)
		if err != nil {
			return fmt.Errorf("meta: inner step %d: %w", step, err)
		}
		l.inner.ZeroGrad(params)
		if err := tensor.Backward(loss); err != nil {
			return fmt.Errorf("meta: inner step %d: %w", step, err)
		}
		if err := l.inner.Step(params); err != nil {
			return fmt.Errorf("meta: inner step %d: %w", step, err)
		}
	}
	l.inner.ZeroGrad(params)
	return nil
}

// EvaluateAndGrad runs the adapted working network on the query set and
// returns the scalar loss, the query gradient for every working
// parameter, and the metric bundle. The gradient is requested with
// graph retention here, at the single call site that needs it, because
// the meta optimizer later feeds these tensors through another
// backward pass.
func (l *Learner) EvaluateAndGrad(query episode.Inputs, labels []int) (float64, []*tensor.Tensor, metrics.Bundle, error) {
	loss, pred, err := l.working.Forward(query, labels)
	if err != nil {
		return 0, nil, metrics.Bundle{}, fmt.Errorf("meta: query forward: %w", err)
	}

	probs := positiveClassProbs(pred)
	bundle := metrics.Compute(labels, probs)

	grads, err := tensor.Grad(loss, l.working.Parameters(), true)
	if err != nil {
		return 0, nil, metrics.Bundle{}, fmt.Errorf("meta: query gradient: %w", err)
	}
	return loss.Item(), grads, bundle, nil
}

// DummyForward runs the base network on a support set without any
// update. Its only purpose is to hand the meta optimizer a
// differentiable loss anchored to the base network's graph.
func (l *Learner) DummyForward(support episode.Inputs, labels []int) (*tensor.Tensor, error) {
	loss, _, err := l.base.Forward(support, labels)
	if err != nil {
		return nil, fmt.Errorf("meta: dummy forward: %w", err)
	}
	return loss, nil
}

// positiveClassProbs softmax-normalizes [N,2] logits and extracts the
// positive-class column.
func positiveClassProbs(pred *tensor.Tensor) []float64 {
	probs := tensor.Softmax(pred).Value()
	n := probs.Shape()[0]
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = probs.At(i, 1)
	}
	return out
}
