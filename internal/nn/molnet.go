package nn

import (
	"fmt"
	"math/rand"

	"molmeta/internal/episode"
	"molmeta/internal/tensor"
)

// MolNetConfig shapes the reference molecular classifier.
type MolNetConfig struct {
	AtomFeatures  int
	BondFeatures  int
	Hidden        int
	MessagePasses int
}

func DefaultMolNetConfig() MolNetConfig {
	return MolNetConfig{
		AtomFeatures:  8,
		BondFeatures:  4,
		Hidden:        16,
		MessagePasses: 2,
	}
}

// MolNet is a small message-passing classifier over molecular graphs:
// atom embedding, bond-aware neighbor aggregation, layer-normalized
// node states, masked mean pooling and a two-way head.
type MolNet struct {
	cfg MolNetConfig

	embed  *Linear
	neigh  *Linear
	bond   *Linear
	update *Linear
	norm   *LayerNorm
	hidden *Linear
	out    *Linear
}

func NewMolNet(r *rand.Rand, cfg MolNetConfig) *MolNet {
	return &MolNet{
		cfg:    cfg,
		embed:  NewLinear(r, cfg.AtomFeatures, cfg.Hidden),
		neigh:  NewLinear(r, cfg.Hidden, cfg.Hidden),
		bond:   NewLinear(r, cfg.BondFeatures, cfg.Hidden),
		update: NewLinear(r, cfg.Hidden, cfg.Hidden),
		norm:   NewLayerNorm(cfg.Hidden),
		hidden: NewLinear(r, cfg.Hidden, cfg.Hidden),
		out:    NewLinear(r, cfg.Hidden, 2),
	}
}

func (m *MolNet) Layers() []Layer {
	return []Layer{m.embed, m.neigh, m.bond, m.update, m.norm, m.hidden, m.out}
}

func (m *MolNet) Parameters() []*tensor.Tensor {
	var params []*tensor.Tensor
	for _, l := range m.Layers() {
		params = append(params, l.Params()...)
	}
	return params
}

func (m *MolNet) Forward(in episode.Inputs, labels []int) (*tensor.Tensor, *tensor.Tensor, error) {
	if err := in.Validate(); err != nil {
		return nil, nil, err
	}
	set := in.SetSize()
	if set != len(labels) {
		return nil, nil, fmt.Errorf("nn: %d labels for %d examples", len(labels), set)
	}
	if got := in.Atom.Shape()[2]; got != m.cfg.AtomFeatures {
		return nil, nil, fmt.Errorf("nn: atom feature width %d, network expects %d", got, m.cfg.AtomFeatures)
	}
	if got := in.Bond.Shape()[2]; got != m.cfg.BondFeatures {
		return nil, nil, fmt.Errorf("nn: bond feature width %d, network expects %d", got, m.cfg.BondFeatures)
	}

	logits := make([]*tensor.Tensor, set)
	for i := 0; i < set; i++ {
		logits[i] = m.forwardOne(in, i)
	}
	pred := tensor.StackRows(logits)
	loss := tensor.CrossEntropyLogits(pred, labels)
	return loss, pred, nil
}

func (m *MolNet) forwardOne(in episode.Inputs, i int) *tensor.Tensor {
	atoms := tensor.Block(in.Atom, i)
	bonds := tensor.Block(in.Bond, i)

	h := tensor.Relu(m.embed.Apply(atoms))
	for pass := 0; pass < m.cfg.MessagePasses; pass++ {
		msg := m.aggregate(h, bonds, in.AtomIndex[i], in.BondIndex[i])
		h = tensor.Relu(tensor.Add(h, m.update.Apply(msg)))
	}
	h = m.norm.Apply(h)

	// Masked mean pool over real atoms.
	maskRow := tensor.GatherRows(in.Mask, []int{i})
	count := 0.0
	for _, v := range maskRow.Data() {
		count += v
	}
	if count == 0 {
		count = 1
	}
	pooled := tensor.Scale(tensor.MatMul(maskRow, h), 1/count)

	return m.out.Apply(tensor.Relu(m.hidden.Apply(pooled)))
}

// aggregate sums neighbor and bond messages over the degree slots of
// every atom. Empty slots (-1) gather zero rows and contribute nothing.
func (m *MolNet) aggregate(h, bonds *tensor.Tensor, atomIdx, bondIdx [][]int) *tensor.Tensor {
	n := len(atomIdx)
	degree := len(atomIdx[0])

	var msg *tensor.Tensor
	for s := 0; s < degree; s++ {
		aCol := make([]int, n)
		bCol := make([]int, n)
		for a := 0; a < n; a++ {
			aCol[a] = atomIdx[a][s]
			bCol[a] = bondIdx[a][s]
		}
		contrib := tensor.Add(
			m.neigh.Apply(tensor.GatherRows(h, aCol)),
			m.bond.Apply(tensor.GatherRows(bonds, bCol)),
		)
		if msg == nil {
			msg = contrib
		} else {
			msg = tensor.Add(msg, contrib)
		}
	}
	return msg
}
