// Package optim implements the two update rules the trainer needs:
// plain SGD for inner-loop adaptation and Adam for the meta update.
// Optimizers read each parameter's stored gradient and mutate the
// parameter values in place.
package optim

import "molmeta/internal/tensor"

type Optimizer interface {
	// Step applies one update to every parameter from its stored
	// gradient. Parameters with no gradient are skipped.
	Step(params []*tensor.Tensor) error

	// ZeroGrad clears the stored gradients.
	ZeroGrad(params []*tensor.Tensor)
}
