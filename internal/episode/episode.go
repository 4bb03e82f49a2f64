// Package episode defines the few-shot task structures consumed by the
// meta trainer: graph-structured input tuples, support/query episodes,
// and meta-batches. A deterministic synthetic sampler lives in
// sampler.go; real data pipelines construct the same types.
package episode

import (
	"fmt"

	"molmeta/internal/tensor"
)

// Inputs is the fixed five-part graph input tuple for one episode set.
// Feature tensors are dense; the index tables address neighbor slots
// per atom, with -1 marking an empty slot.
type Inputs struct {
	Atom      *tensor.Tensor // [set, maxAtoms, atomFeatures]
	Bond      *tensor.Tensor // [set, maxBonds, bondFeatures]
	AtomIndex [][][]int      // [set][maxAtoms][degree] neighbor atom ids
	BondIndex [][][]int      // [set][maxAtoms][degree] bond ids per slot
	Mask      *tensor.Tensor // [set, maxAtoms], 1 for real atoms
}

// SetSize reports the number of examples in the set.
func (in Inputs) SetSize() int {
	if in.Atom == nil {
		return 0
	}
	return in.Atom.Shape()[0]
}

// Validate checks the tuple's internal shape coherence.
func (in Inputs) Validate() error {
	if in.Atom == nil || in.Bond == nil || in.Mask == nil {
		return fmt.Errorf("episode: incomplete input tuple")
	}
	atomShape := in.Atom.Shape()
	bondShape := in.Bond.Shape()
	maskShape := in.Mask.Shape()
	if len(atomShape) != 3 || len(bondShape) != 3 || len(maskShape) != 2 {
		return fmt.Errorf("episode: bad input ranks atom=%v bond=%v mask=%v", atomShape, bondShape, maskShape)
	}
	set, maxAtoms := atomShape[0], atomShape[1]
	if bondShape[0] != set || maskShape[0] != set {
		return fmt.Errorf("episode: set size disagrees across tuple")
	}
	if maskShape[1] != maxAtoms {
		return fmt.Errorf("episode: mask width %d vs %d atoms", maskShape[1], maxAtoms)
	}
	if len(in.AtomIndex) != set || len(in.BondIndex) != set {
		return fmt.Errorf("episode: index tables cover %d/%d of %d examples", len(in.AtomIndex), len(in.BondIndex), set)
	}
	for i := 0; i < set; i++ {
		if len(in.AtomIndex[i]) != maxAtoms || len(in.BondIndex[i]) != maxAtoms {
			return fmt.Errorf("episode: example %d index tables do not cover %d atoms", i, maxAtoms)
		}
	}
	return nil
}

// Episode is one few-shot task: adapt on the support set, evaluate on
// the query set. Constructed by a data pipeline, consumed once.
type Episode struct {
	Support  Inputs
	SupportY []int
	Query    Inputs
	QueryY   []int
}

func (e Episode) Validate() error {
	if err := e.Support.Validate(); err != nil {
		return fmt.Errorf("support: %w", err)
	}
	if err := e.Query.Validate(); err != nil {
		return fmt.Errorf("query: %w", err)
	}
	if e.Support.SetSize() != len(e.SupportY) {
		return fmt.Errorf("episode: %d support labels for %d examples", len(e.SupportY), e.Support.SetSize())
	}
	if e.Query.SetSize() != len(e.QueryY) {
		return fmt.Errorf("episode: %d query labels for %d examples", len(e.QueryY), e.Query.SetSize())
	}
	return nil
}

// Batch is one meta-batch of independent episodes.
type Batch []Episode
