package meta

import (
	"fmt"

	"molmeta/internal/episode"
	"molmeta/internal/metrics"
	"molmeta/internal/optim"
	"molmeta/internal/tensor"
)

// Config controls one meta-training session.
type Config struct {
	// InnerSteps is the number of inner-loop SGD updates per episode.
	InnerSteps int
	// Adam configures the outer update on the base parameters.
	Adam optim.AdamConfig
}

func DefaultConfig() Config {
	return Config{
		InnerSteps: 5,
		Adam:       optim.DefaultAdamConfig(),
	}
}

// MetaOptimizer drives meta-batches through a Learner, sums the
// per-episode query gradients by parameter position, and applies the
// sum to the base network through gradient injection plus one Adam
// step. The Adam moments are tied to the base parameters and persist
// across meta-steps.
type MetaOptimizer struct {
	learner    *Learner
	opt        *optim.Adam
	innerSteps int
}

func NewMetaOptimizer(learner *Learner, cfg Config) (*MetaOptimizer, error) {
	if learner == nil {
		return nil, fmt.Errorf("meta: learner is required")
	}
	if cfg.InnerSteps < 0 {
		return nil, fmt.Errorf("meta: inner steps must not be negative, got %d", cfg.InnerSteps)
	}
	return &MetaOptimizer{
		learner:    learner,
		opt:        optim.NewAdam(cfg.Adam, learner.BaseParameters()),
		innerSteps: cfg.InnerSteps,
	}, nil
}

// MetaTrain runs one meta-step over the batch: episodes strictly in
// order (the working network is shared and fully reset between them),
// query gradients summed element-wise by parameter position, then one
// injected Adam update on the base network. Returns the per-episode
// query losses and ROC-AUC scores.
func (m *MetaOptimizer) MetaTrain(batch episode.Batch) ([]float64, []float64, error) {
	if len(batch) == 0 {
		return nil, nil, fmt.Errorf("meta: empty meta-batch")
	}

	losses := make([]float64, 0, len(batch))
	rocs := make([]float64, 0, len(batch))
	var sum []*tensor.Tensor

	for i, ep := range batch {
		loss, grads, bundle, err := m.runEpisode(ep)
		if err != nil {
			return nil, nil, fmt.Errorf("meta: episode %d: %w", i, err)
		}
		losses = append(losses, loss)
		rocs = append(rocs, bundle.ROCAUC)

		sum, err = accumulate(sum, grads)
		if err != nil {
			return nil, nil, fmt.Errorf("meta: episode %d: %w", i, err)
		}
	}

	dummyLoss, err := m.learner.DummyForward(batch[0].Support, batch[0].SupportY)
	if err != nil {
		return nil, nil, err
	}
	if err := m.applyMetaGradient(dummyLoss, sum); err != nil {
		return nil, nil, err
	}
	return losses, rocs, nil
}

// MetaEval runs the same per-episode protocol without accumulating or
// applying any base-network update. Returns per-episode losses and the
// mean of each metric across the batch.
func (m *MetaOptimizer) MetaEval(batch episode.Batch) ([]float64, metrics.Bundle, error) {
	if len(batch) == 0 {
		return nil, metrics.Bundle{}, fmt.Errorf("meta: empty meta-batch")
	}

	losses := make([]float64, 0, len(batch))
	var total metrics.Bundle
	for i, ep := range batch {
		loss, _, bundle, err := m.runEpisode(ep)
		if err != nil {
			return nil, metrics.Bundle{}, fmt.Errorf("meta: episode %d: %w", i, err)
		}
		losses = append(losses, loss)
		total = total.Add(bundle)
	}
	return losses, total.Scale(1 / float64(len(batch))), nil
}

// runEpisode executes the per-episode protocol: reset, adapt, evaluate.
func (m *MetaOptimizer) runEpisode(ep episode.Episode) (float64, []*tensor.Tensor, metrics.Bundle, error) {
	if err := ep.Validate(); err != nil {
		return 0, nil, metrics.Bundle{}, err
	}
	if err := m.learner.ResetWorking(); err != nil {
		return 0, nil, metrics.Bundle{}, err
	}
	if err := m.learner.Adapt(ep.Support, ep.SupportY, m.innerSteps); err != nil {
		return 0, nil, metrics.Bundle{}, err
	}
	return m.learner.EvaluateAndGrad(ep.Query, ep.QueryY)
}

// accumulate folds one episode's gradient vector into the running sum.
// A nil sum is the zero state. A count or shape mismatch is a fatal
// configuration error: aborting beats silently misaligning a parameter.
func accumulate(sum, grads []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if sum == nil {
		return append([]*tensor.Tensor(nil), grads...), nil
	}
	if len(sum) != len(grads) {
		return nil, fmt.Errorf("meta: gradient count %d, accumulator holds %d", len(grads), len(sum))
	}
	for i := range sum {
		if sum[i].Size() != grads[i].Size() {
			return nil, fmt.Errorf("meta: gradient %d has %d elements, accumulator holds %d", i, grads[i].Size(), sum[i].Size())
		}
		sum[i] = tensor.Add(sum[i], grads[i])
	}
	return sum, nil
}

// applyMetaGradient substitutes the accumulated sum for whatever
// gradient the dummy backward pass would produce, parameter by
// parameter by position, then steps Adam. Hooks are registered
// immediately before the backward pass and removed on every exit path;
// a stale hook would corrupt all later meta-steps.
func (m *MetaOptimizer) applyMetaGradient(dummyLoss *tensor.Tensor, sum []*tensor.Tensor) error {
	params := m.learner.BaseParameters()
	if len(sum) != len(params) {
		return fmt.Errorf("meta: accumulated %d gradients for %d base parameters", len(sum), len(params))
	}
	for i := range params {
		if sum[i].Size() != params[i].Size() {
			return fmt.Errorf("meta: gradient %d has %d elements, parameter has %d", i, sum[i].Size(), params[i].Size())
		}
	}

	handles := make([]tensor.HookHandle, 0, len(params))
	defer func() {
		for _, h := range handles {
			h.Remove()
		}
	}()
	for i, p := range params {
		g := sum[i]
		handles = append(handles, p.RegisterGradHook(func(*tensor.Tensor) *tensor.Tensor {
			return g
		}))
	}

	m.opt.ZeroGrad(params)
	if err := tensor.Backward(dummyLoss); err != nil {
		return fmt.Errorf("meta: dummy backward: %w", err)
	}
	return m.opt.Step(params)
}
