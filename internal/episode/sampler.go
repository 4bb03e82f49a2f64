package episode

import (
	"fmt"
	"math/rand"

	"molmeta/internal/tensor"
)

// SamplerConfig shapes the synthetic task distribution.
type SamplerConfig struct {
	AtomFeatures int
	BondFeatures int
	MaxAtoms     int
	Degree       int
	SupportSize  int
	QuerySize    int
	// Signal scales how far the two classes sit apart in atom-feature
	// space; larger is easier.
	Signal float64
}

func DefaultSamplerConfig() SamplerConfig {
	return SamplerConfig{
		AtomFeatures: 8,
		BondFeatures: 4,
		MaxAtoms:     12,
		Degree:       3,
		SupportSize:  10,
		QuerySize:    10,
		Signal:       1.5,
	}
}

// Sampler generates synthetic molecular-graph classification tasks.
// Each episode draws a fresh class direction in atom-feature space;
// class-1 molecules have their atom features shifted along it. All
// randomness comes from the injected source, so a fixed seed yields a
// fixed task stream.
type Sampler struct {
	cfg  SamplerConfig
	rand *rand.Rand
}

func NewSampler(cfg SamplerConfig, r *rand.Rand) (*Sampler, error) {
	if cfg.AtomFeatures <= 0 || cfg.BondFeatures <= 0 {
		return nil, fmt.Errorf("episode: feature widths must be positive")
	}
	if cfg.MaxAtoms < 3 {
		return nil, fmt.Errorf("episode: need at least 3 atoms, got %d", cfg.MaxAtoms)
	}
	if cfg.Degree < 1 {
		return nil, fmt.Errorf("episode: neighbor degree must be positive")
	}
	if cfg.SupportSize < 2 || cfg.QuerySize < 2 {
		return nil, fmt.Errorf("episode: support and query sets need at least 2 examples")
	}
	if r == nil {
		return nil, fmt.Errorf("episode: random source is required")
	}
	return &Sampler{cfg: cfg, rand: r}, nil
}

// SampleBatch draws a meta-batch of independent episodes.
func (s *Sampler) SampleBatch(size int) Batch {
	batch := make(Batch, size)
	for i := range batch {
		batch[i] = s.SampleEpisode()
	}
	return batch
}

// SampleEpisode draws one task with balanced support and query labels.
func (s *Sampler) SampleEpisode() Episode {
	direction := make([]float64, s.cfg.AtomFeatures)
	for i := range direction {
		direction[i] = s.rand.NormFloat64()
	}

	support, supportY := s.sampleSet(s.cfg.SupportSize, direction)
	query, queryY := s.sampleSet(s.cfg.QuerySize, direction)
	return Episode{Support: support, SupportY: supportY, Query: query, QueryY: queryY}
}

func (s *Sampler) sampleSet(size int, direction []float64) (Inputs, []int) {
	maxBonds := s.cfg.MaxAtoms // chain plus ring closure stays under one bond per atom
	atom := tensor.New(size, s.cfg.MaxAtoms, s.cfg.AtomFeatures)
	bond := tensor.New(size, maxBonds, s.cfg.BondFeatures)
	mask := tensor.New(size, s.cfg.MaxAtoms)
	atomIndex := make([][][]int, size)
	bondIndex := make([][][]int, size)
	labels := make([]int, size)

	for i := 0; i < size; i++ {
		labels[i] = i % 2 // balanced
		s.fillMolecule(i, labels[i], direction, atom, bond, mask, &atomIndex[i], &bondIndex[i])
	}
	return Inputs{Atom: atom, Bond: bond, AtomIndex: atomIndex, BondIndex: bondIndex, Mask: mask}, labels
}

// fillMolecule writes one random chain molecule, optionally closed into
// a ring, into slab i of the batched tensors.
func (s *Sampler) fillMolecule(i, label int, direction []float64, atom, bond, mask *tensor.Tensor, atomIdx, bondIdx *[][]int) {
	n := 3 + s.rand.Intn(s.cfg.MaxAtoms-2)

	for a := 0; a < n; a++ {
		mask.Set(1, i, a)
		for f := 0; f < s.cfg.AtomFeatures; f++ {
			v := s.rand.NormFloat64()
			if label == 1 {
				v += s.cfg.Signal * direction[f]
			}
			atom.Set(v, i, a, f)
		}
	}

	type edge struct{ a, b int }
	edges := make([]edge, 0, n)
	for a := 0; a+1 < n; a++ {
		edges = append(edges, edge{a, a + 1})
	}
	if n >= 4 && s.rand.Float64() < 0.5 {
		edges = append(edges, edge{n - 1, 0}) // ring closure
	}

	for b := range edges {
		for f := 0; f < s.cfg.BondFeatures; f++ {
			bond.Set(s.rand.NormFloat64(), i, b, f)
		}
	}

	ai := make([][]int, s.cfg.MaxAtoms)
	bi := make([][]int, s.cfg.MaxAtoms)
	for a := range ai {
		ai[a] = make([]int, s.cfg.Degree)
		bi[a] = make([]int, s.cfg.Degree)
		for d := range ai[a] {
			ai[a][d] = -1
			bi[a][d] = -1
		}
	}
	slot := make([]int, n)
	link := func(from, to, bondID int) {
		if slot[from] >= s.cfg.Degree {
			return
		}
		ai[from][slot[from]] = to
		bi[from][slot[from]] = bondID
		slot[from]++
	}
	for b, e := range edges {
		link(e.a, e.b, b)
		link(e.b, e.a, b)
	}
	*atomIdx = ai
	*bondIdx = bi
}
