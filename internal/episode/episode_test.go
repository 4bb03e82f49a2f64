package episode

import (
	"math/rand"
	"testing"

	"molmeta/internal/tensor"
)

func TestSamplerProducesValidEpisodes(t *testing.T) {
	s, err := NewSampler(DefaultSamplerConfig(), rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("sampler: %v", err)
	}
	batch := s.SampleBatch(3)
	if len(batch) != 3 {
		t.Fatalf("batch size: got=%d want=3", len(batch))
	}
	for i, ep := range batch {
		if err := ep.Validate(); err != nil {
			t.Fatalf("episode %d: %v", i, err)
		}
	}
}

func TestSamplerBalancedLabels(t *testing.T) {
	cfg := DefaultSamplerConfig()
	s, err := NewSampler(cfg, rand.New(rand.NewSource(2)))
	if err != nil {
		t.Fatalf("sampler: %v", err)
	}
	ep := s.SampleEpisode()
	pos := 0
	for _, y := range ep.SupportY {
		pos += y
	}
	if pos != cfg.SupportSize/2 {
		t.Fatalf("support positives: got=%d want=%d", pos, cfg.SupportSize/2)
	}
}

func TestSamplerDeterministicUnderSeed(t *testing.T) {
	cfg := DefaultSamplerConfig()
	s1, _ := NewSampler(cfg, rand.New(rand.NewSource(9)))
	s2, _ := NewSampler(cfg, rand.New(rand.NewSource(9)))
	a := s1.SampleEpisode()
	b := s2.SampleEpisode()

	da, db := a.Support.Atom.Data(), b.Support.Atom.Data()
	for i := range da {
		if da[i] != db[i] {
			t.Fatalf("same seed diverged at atom feature %d", i)
		}
	}
}

func TestSamplerIndexTablesInRange(t *testing.T) {
	cfg := DefaultSamplerConfig()
	s, _ := NewSampler(cfg, rand.New(rand.NewSource(3)))
	ep := s.SampleEpisode()

	for i, table := range ep.Support.AtomIndex {
		for a, slots := range table {
			for _, idx := range slots {
				if idx < -1 || idx >= cfg.MaxAtoms {
					t.Fatalf("example %d atom %d: neighbor index %d out of range", i, a, idx)
				}
			}
		}
	}
}

func TestSamplerConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SamplerConfig)
		nilRnd bool
	}{
		{name: "zero-features", mutate: func(c *SamplerConfig) { c.AtomFeatures = 0 }},
		{name: "tiny-molecule", mutate: func(c *SamplerConfig) { c.MaxAtoms = 2 }},
		{name: "zero-degree", mutate: func(c *SamplerConfig) { c.Degree = 0 }},
		{name: "tiny-support", mutate: func(c *SamplerConfig) { c.SupportSize = 1 }},
		{name: "nil-rand", mutate: func(*SamplerConfig) {}, nilRnd: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultSamplerConfig()
			tc.mutate(&cfg)
			var r *rand.Rand
			if !tc.nilRnd {
				r = rand.New(rand.NewSource(1))
			}
			if _, err := NewSampler(cfg, r); err == nil {
				t.Fatal("expected config error")
			}
		})
	}
}

func TestValidateRejectsIncoherentInputs(t *testing.T) {
	in := Inputs{
		Atom: tensor.New(2, 4, 3),
		Bond: tensor.New(2, 4, 2),
		Mask: tensor.New(2, 5), // wrong width
	}
	if err := in.Validate(); err == nil {
		t.Fatal("expected mask width error")
	}
}
