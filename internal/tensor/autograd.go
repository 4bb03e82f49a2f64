package tensor

import (
	"errors"
	"fmt"
)

var errNotScalar = errors.New("tensor: backward needs a single-element loss")

// backprop walks the graph from loss in reverse topological order and
// returns the gradient reaching every tensor in the graph.
func backprop(loss *Tensor) (map[*Tensor]*Tensor, error) {
	if loss.Size() != 1 {
		return nil, errNotScalar
	}

	var order []*Tensor
	visited := make(map[*Tensor]bool)
	var visit func(t *Tensor)
	visit = func(t *Tensor) {
		if visited[t] {
			return
		}
		visited[t] = true
		if t.node != nil {
			for _, in := range t.node.inputs {
				visit(in)
			}
		}
		order = append(order, t)
	}
	visit(loss)

	grads := make(map[*Tensor]*Tensor, len(order))
	grads[loss] = Full(1, loss.shape...)

	for i := len(order) - 1; i >= 0; i-- {
		t := order[i]
		up := grads[t]
		if up == nil || t.node == nil {
			continue
		}
		inGrads := t.node.backward(up)
		if len(inGrads) != len(t.node.inputs) {
			return nil, fmt.Errorf("tensor: op produced %d gradients for %d inputs", len(inGrads), len(t.node.inputs))
		}
		for j, in := range t.node.inputs {
			g := inGrads[j]
			if g == nil {
				continue
			}
			if acc := grads[in]; acc != nil {
				grads[in] = Add(acc, g)
			} else {
				grads[in] = g
			}
		}
	}
	return grads, nil
}

// Backward differentiates a scalar loss and accumulates detached
// gradients into every reachable leaf that requires them. Each leaf's
// registered hooks run on the final gradient before it is stored,
// replacing it with whatever they return.
func Backward(loss *Tensor) error {
	grads, err := backprop(loss)
	if err != nil {
		return err
	}
	for t, g := range grads {
		if !t.requiresGrad || t.node != nil {
			continue
		}
		final := t.applyHooks(g).Value()
		if t.grad == nil {
			t.grad = final
		} else {
			if err := t.grad.CopyFrom(Add(t.grad, final)); err != nil {
				return fmt.Errorf("tensor: gradient accumulation: %w", err)
			}
		}
	}
	return nil
}

// Grad computes the gradients of a scalar loss with respect to params.
// Stored leaf gradients and hooks are untouched. With retainGraph the
// returned tensors stay attached to the graph, so they remain usable as
// differentiable values in a later backward pass; without it they are
// plain detached values.
func Grad(loss *Tensor, params []*Tensor, retainGraph bool) ([]*Tensor, error) {
	grads, err := backprop(loss)
	if err != nil {
		return nil, err
	}
	out := make([]*Tensor, len(params))
	for i, p := range params {
		g := grads[p]
		if g == nil {
			return nil, fmt.Errorf("tensor: parameter %d is not reachable from the loss", i)
		}
		if !retainGraph {
			g = g.Value()
		}
		out[i] = g
	}
	return out, nil
}
