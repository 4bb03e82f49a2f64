// Package tensor implements a small reverse-mode automatic
// differentiation engine over dense float64 tensors. Graphs are built
// dynamically by the ops in ops.go; Backward and Grad in autograd.go
// walk them. Gradients are themselves tensors and, when requested with
// graph retention, remain differentiable values.
package tensor

import (
	"fmt"
	"math/rand"
)

// GradHook intercepts the final gradient of a leaf tensor during
// Backward. The returned tensor replaces the computed gradient.
type GradHook func(grad *Tensor) *Tensor

type hookEntry struct {
	id int
	fn GradHook
}

type Tensor struct {
	data  []float64
	shape []int

	requiresGrad bool
	grad         *Tensor
	node         *node

	hooks      []hookEntry
	nextHookID int
}

// node links an op output back to its inputs. backward receives the
// upstream gradient and returns one gradient per input (nil for inputs
// that do not participate).
type node struct {
	inputs   []*Tensor
	backward func(up *Tensor) []*Tensor
}

func numElems(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// New returns a zero-filled tensor. New() with no dims is a scalar.
func New(shape ...int) *Tensor {
	return &Tensor{
		data:  make([]float64, numElems(shape)),
		shape: append([]int(nil), shape...),
	}
}

// FromSlice wraps a copy of data in a tensor of the given shape.
func FromSlice(data []float64, shape ...int) *Tensor {
	if len(data) != numElems(shape) {
		panic(fmt.Sprintf("tensor: FromSlice data length %d does not match shape %v", len(data), shape))
	}
	t := New(shape...)
	copy(t.data, data)
	return t
}

// Scalar returns a rank-0 tensor holding v.
func Scalar(v float64) *Tensor {
	t := New()
	t.data[0] = v
	return t
}

// Full returns a tensor of the given shape with every element set to v.
func Full(v float64, shape ...int) *Tensor {
	t := New(shape...)
	for i := range t.data {
		t.data[i] = v
	}
	return t
}

// Randn fills a tensor with N(0, scale) samples from r.
func Randn(r *rand.Rand, scale float64, shape ...int) *Tensor {
	t := New(shape...)
	for i := range t.data {
		t.data[i] = r.NormFloat64() * scale
	}
	return t
}

func (t *Tensor) Shape() []int { return append([]int(nil), t.shape...) }

func (t *Tensor) Size() int { return len(t.data) }

// Data returns the underlying storage. Mutating it mutates the tensor.
func (t *Tensor) Data() []float64 { return t.data }

func (t *Tensor) offset(idx []int) int {
	if len(idx) != len(t.shape) {
		panic(fmt.Sprintf("tensor: index rank %d does not match shape %v", len(idx), t.shape))
	}
	off := 0
	for i, x := range idx {
		if x < 0 || x >= t.shape[i] {
			panic(fmt.Sprintf("tensor: index %v out of range for shape %v", idx, t.shape))
		}
		off = off*t.shape[i] + x
	}
	return off
}

func (t *Tensor) At(idx ...int) float64 { return t.data[t.offset(idx)] }

func (t *Tensor) Set(v float64, idx ...int) { t.data[t.offset(idx)] = v }

// Item returns the value of a single-element tensor.
func (t *Tensor) Item() float64 {
	if len(t.data) != 1 {
		panic(fmt.Sprintf("tensor: Item on tensor of %d elements", len(t.data)))
	}
	return t.data[0]
}

// RequireGrad marks the tensor as a trainable leaf and returns it.
func (t *Tensor) RequireGrad() *Tensor {
	t.requiresGrad = true
	return t
}

func (t *Tensor) RequiresGrad() bool { return t.requiresGrad }

// IsLeaf reports whether the tensor was not produced by a recorded op.
func (t *Tensor) IsLeaf() bool { return t.node == nil }

// Grad returns the gradient accumulated by Backward, or nil.
func (t *Tensor) Grad() *Tensor { return t.grad }

func (t *Tensor) SetGrad(g *Tensor) { t.grad = g }

func (t *Tensor) ZeroGrad() { t.grad = nil }

// Value returns a detached copy: same data, no graph, no hooks.
func (t *Tensor) Value() *Tensor {
	return FromSlice(t.data, t.shape...)
}

// Clone returns an independent copy that preserves the requires-grad
// flag but shares nothing: mutating the clone never touches t.
func (t *Tensor) Clone() *Tensor {
	c := t.Value()
	c.requiresGrad = t.requiresGrad
	return c
}

// CopyFrom overwrites t's values with those of src. Shapes must match.
// The graph, gradient and hooks of t are untouched.
func (t *Tensor) CopyFrom(src *Tensor) error {
	if !sameShape(t.shape, src.shape) {
		return fmt.Errorf("tensor: cannot copy shape %v into shape %v", src.shape, t.shape)
	}
	copy(t.data, src.data)
	return nil
}

// HookHandle removes a registered gradient hook.
type HookHandle struct {
	t  *Tensor
	id int
}

// RegisterGradHook installs fn to run on this leaf's final gradient
// during Backward. Hooks run in registration order, each receiving the
// previous hook's output.
func (t *Tensor) RegisterGradHook(fn GradHook) HookHandle {
	t.nextHookID++
	id := t.nextHookID
	t.hooks = append(t.hooks, hookEntry{id: id, fn: fn})
	return HookHandle{t: t, id: id}
}

// Remove deregisters the hook. Removing twice is a no-op.
func (h HookHandle) Remove() {
	if h.t == nil {
		return
	}
	hooks := h.t.hooks[:0]
	for _, e := range h.t.hooks {
		if e.id != h.id {
			hooks = append(hooks, e)
		}
	}
	h.t.hooks = hooks
}

// ActiveGradHooks reports how many gradient hooks are registered.
func (t *Tensor) ActiveGradHooks() int { return len(t.hooks) }

func (t *Tensor) applyHooks(g *Tensor) *Tensor {
	for _, e := range t.hooks {
		g = e.fn(g)
	}
	return g
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func mustSameShape(op string, a, b *Tensor) {
	if !sameShape(a.shape, b.shape) {
		panic(fmt.Sprintf("tensor: %s shape mismatch %v vs %v", op, a.shape, b.shape))
	}
}
