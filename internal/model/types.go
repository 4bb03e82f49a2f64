package model

import "molmeta/internal/metrics"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// RunRecord describes one meta-training run and the hyperparameters it
// was launched with.
type RunRecord struct {
	VersionedRecord
	ID         string  `json:"id"`
	CreatedAt  string  `json:"created_at"`
	Seed       int64   `json:"seed"`
	Epochs     int     `json:"epochs"`
	MetaBatch  int     `json:"meta_batch"`
	InnerSteps int     `json:"inner_steps"`
	InnerLR    float64 `json:"inner_lr"`
	OuterLR    float64 `json:"outer_lr"`
	Status     string  `json:"status"`
}

// EpochRecord is one meta-epoch's aggregate outcome: the mean query
// loss across the epoch's meta-batches and the mean metric bundle.
type EpochRecord struct {
	VersionedRecord
	Epoch    int            `json:"epoch"`
	MeanLoss float64        `json:"mean_loss"`
	Metrics  metrics.Bundle `json:"metrics"`
}

// Checkpoint holds a run's final base-network parameters, flattened
// per parameter in the network's stable order.
type Checkpoint struct {
	VersionedRecord
	RunID  string      `json:"run_id"`
	Params [][]float64 `json:"params"`
	Shapes [][]int     `json:"shapes"`
}
