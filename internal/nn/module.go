// Package nn defines the network contract the meta trainer adapts, the
// layer kinds its reset allowlist ranges over, and a reference
// molecular message-passing classifier.
package nn

import (
	"molmeta/internal/episode"
	"molmeta/internal/tensor"
)

// LayerKind tags a layer for the working-network reset allowlist.
type LayerKind string

const (
	KindLinear LayerKind = "linear"
	KindNorm   LayerKind = "norm"
)

// Layer is one parameterized building block of a network.
type Layer interface {
	Kind() LayerKind
	Params() []*tensor.Tensor
}

// Network is the external-collaborator contract: a graph classifier
// producing a differentiable scalar loss and [N,2] prediction logits
// for one episode set. Parameters and Layers must enumerate in a
// fixed, stable order so that two instances built from the same
// factory align position by position.
type Network interface {
	Forward(in episode.Inputs, labels []int) (loss, pred *tensor.Tensor, err error)
	Parameters() []*tensor.Tensor
	Layers() []Layer
}

// Factory builds a fresh network instance. The meta trainer calls it
// twice: once for the base network, once for the working copy.
type Factory func() Network
