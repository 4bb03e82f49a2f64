// Package molmeta is the public façade over the meta-learning stack:
// construct a client, then train, evaluate and inspect runs without
// touching the internal packages.
package molmeta

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"molmeta/internal/episode"
	"molmeta/internal/meta"
	"molmeta/internal/metrics"
	"molmeta/internal/model"
	"molmeta/internal/nn"
	"molmeta/internal/storage"
	"molmeta/internal/tensor"
)

const defaultDBPath = "molmeta.db"

type Options struct {
	StoreKind string
	DBPath    string
}

type Client struct {
	store       storage.Store
	initialized bool
}

type TrainRequest struct {
	Seed        int64
	Epochs      int
	MetaBatch   int
	InnerSteps  int
	InnerLR     float64
	OuterLR     float64
	SupportSize int
	QuerySize   int
	Hidden      int
}

type EpochSummary struct {
	Epoch    int
	MeanLoss float64
	Metrics  metrics.Bundle
}

type TrainSummary struct {
	RunID  string
	Epochs []EpochSummary
	Final  metrics.Bundle
}

type EvalRequest struct {
	// RunID selects a stored checkpoint to evaluate. Empty evaluates a
	// freshly initialized network.
	RunID       string
	Latest      bool
	Seed        int64
	MetaBatch   int
	InnerSteps  int
	InnerLR     float64
	SupportSize int
	QuerySize   int
	Hidden      int
}

type EvalSummary struct {
	RunID    string
	MeanLoss float64
	Metrics  metrics.Bundle
}

type RunsRequest struct {
	Limit int
}

type HistoryRequest struct {
	RunID  string
	Latest bool
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}
	return &Client{store: store}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.ensureStore(ctx)
}

func (c *Client) ensureStore(ctx context.Context) error {
	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	c.initialized = true
	return nil
}

func (req *TrainRequest) applyDefaults() {
	if req.Epochs <= 0 {
		req.Epochs = 10
	}
	if req.MetaBatch <= 0 {
		req.MetaBatch = 8
	}
	if req.InnerSteps <= 0 {
		req.InnerSteps = 5
	}
	if req.InnerLR <= 0 {
		req.InnerLR = 1e-3
	}
	if req.OuterLR <= 0 {
		req.OuterLR = 1e-3
	}
}

// Train runs a full meta-training session over synthetic molecular
// tasks, persists the run descriptor, per-epoch history and the final
// parameter checkpoint, and returns the epoch-by-epoch summary.
func (c *Client) Train(ctx context.Context, req TrainRequest) (TrainSummary, error) {
	req.applyDefaults()
	if err := c.ensureStore(ctx); err != nil {
		return TrainSummary{}, err
	}

	sampler, evalSampler, learner, err := buildSession(req.Seed, req.SupportSize, req.QuerySize, req.Hidden, req.InnerLR)
	if err != nil {
		return TrainSummary{}, err
	}

	mcfg := meta.DefaultConfig()
	mcfg.InnerSteps = req.InnerSteps
	mcfg.Adam.LR = req.OuterLR
	opt, err := meta.NewMetaOptimizer(learner, mcfg)
	if err != nil {
		return TrainSummary{}, err
	}

	runID := uuid.NewString()
	summary := TrainSummary{RunID: runID}
	history := make([]model.EpochRecord, 0, req.Epochs)

	for epoch := 0; epoch < req.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return TrainSummary{}, err
		}

		batch := sampler.SampleBatch(req.MetaBatch)
		losses, _, err := opt.MetaTrain(batch)
		if err != nil {
			return TrainSummary{}, fmt.Errorf("epoch %d: %w", epoch, err)
		}

		evalBatch := evalSampler.SampleBatch(req.MetaBatch)
		_, bundle, err := opt.MetaEval(evalBatch)
		if err != nil {
			return TrainSummary{}, fmt.Errorf("epoch %d eval: %w", epoch, err)
		}

		es := EpochSummary{Epoch: epoch, MeanLoss: mean(losses), Metrics: bundle}
		summary.Epochs = append(summary.Epochs, es)
		history = append(history, model.EpochRecord{
			VersionedRecord: currentVersion(),
			Epoch:           epoch,
			MeanLoss:        es.MeanLoss,
			Metrics:         bundle,
		})
	}
	if len(summary.Epochs) > 0 {
		summary.Final = summary.Epochs[len(summary.Epochs)-1].Metrics
	}

	run := model.RunRecord{
		VersionedRecord: currentVersion(),
		ID:              runID,
		CreatedAt:       time.Now().UTC().Format(time.RFC3339Nano),
		Seed:            req.Seed,
		Epochs:          req.Epochs,
		MetaBatch:       req.MetaBatch,
		InnerSteps:      req.InnerSteps,
		InnerLR:         req.InnerLR,
		OuterLR:         req.OuterLR,
		Status:          "completed",
	}
	if err := c.store.SaveRun(ctx, run); err != nil {
		return TrainSummary{}, err
	}
	if err := c.store.SaveEpochHistory(ctx, runID, history); err != nil {
		return TrainSummary{}, err
	}
	if err := c.store.SaveCheckpoint(ctx, checkpointFromParams(runID, learner.BaseParameters())); err != nil {
		return TrainSummary{}, err
	}
	return summary, nil
}

// Eval measures few-shot performance without updating anything. With a
// run id (or Latest) the stored checkpoint is loaded into the base
// network first.
func (c *Client) Eval(ctx context.Context, req EvalRequest) (EvalSummary, error) {
	if req.MetaBatch <= 0 {
		req.MetaBatch = 8
	}
	if req.InnerSteps <= 0 {
		req.InnerSteps = 5
	}
	if req.InnerLR <= 0 {
		req.InnerLR = 1e-3
	}
	if err := c.ensureStore(ctx); err != nil {
		return EvalSummary{}, err
	}

	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest, false)
	if err != nil {
		return EvalSummary{}, err
	}

	sampler, _, learner, err := buildSession(req.Seed, req.SupportSize, req.QuerySize, req.Hidden, req.InnerLR)
	if err != nil {
		return EvalSummary{}, err
	}
	if runID != "" {
		cp, ok, err := c.store.GetCheckpoint(ctx, runID)
		if err != nil {
			return EvalSummary{}, err
		}
		if !ok {
			return EvalSummary{}, fmt.Errorf("checkpoint not found for run id: %s", runID)
		}
		if err := loadCheckpoint(learner.BaseParameters(), cp); err != nil {
			return EvalSummary{}, err
		}
	}

	mcfg := meta.DefaultConfig()
	mcfg.InnerSteps = req.InnerSteps
	opt, err := meta.NewMetaOptimizer(learner, mcfg)
	if err != nil {
		return EvalSummary{}, err
	}

	losses, bundle, err := opt.MetaEval(sampler.SampleBatch(req.MetaBatch))
	if err != nil {
		return EvalSummary{}, err
	}
	return EvalSummary{RunID: runID, MeanLoss: mean(losses), Metrics: bundle}, nil
}

// Runs lists stored runs, newest first.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]model.RunRecord, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}
	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}

	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(runs)-1; i < j; i, j = i+1, j-1 {
		runs[i], runs[j] = runs[j], runs[i]
	}
	if len(runs) > req.Limit {
		runs = runs[:req.Limit]
	}
	return runs, nil
}

// History returns a run's per-epoch records.
func (c *Client) History(ctx context.Context, req HistoryRequest) ([]model.EpochRecord, error) {
	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest, true)
	if err != nil {
		return nil, err
	}

	history, ok, err := c.store.GetEpochHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("epoch history not found for run id: %s", runID)
	}
	return history, nil
}

func (c *Client) resolveRunID(ctx context.Context, runID string, latest, required bool) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if latest {
		runs, err := c.store.ListRuns(ctx)
		if err != nil {
			return "", err
		}
		if len(runs) == 0 {
			return "", errors.New("no runs available")
		}
		return runs[len(runs)-1].ID, nil
	}
	if runID == "" && required {
		return "", errors.New("run id or latest is required")
	}
	return runID, nil
}

// buildSession wires the sampler and learner for one train or eval
// session. The factory seeds its own source so both networks the
// learner constructs start from the same initialization.
func buildSession(seed int64, supportSize, querySize, hidden int, innerLR float64) (*episode.Sampler, *episode.Sampler, *meta.Learner, error) {
	scfg := episode.DefaultSamplerConfig()
	if supportSize > 0 {
		scfg.SupportSize = supportSize
	}
	if querySize > 0 {
		scfg.QuerySize = querySize
	}

	sampler, err := episode.NewSampler(scfg, rand.New(rand.NewSource(seed)))
	if err != nil {
		return nil, nil, nil, err
	}
	evalSampler, err := episode.NewSampler(scfg, rand.New(rand.NewSource(seed+500)))
	if err != nil {
		return nil, nil, nil, err
	}

	ncfg := nn.DefaultMolNetConfig()
	ncfg.AtomFeatures = scfg.AtomFeatures
	ncfg.BondFeatures = scfg.BondFeatures
	if hidden > 0 {
		ncfg.Hidden = hidden
	}
	factory := func() nn.Network {
		return nn.NewMolNet(rand.New(rand.NewSource(seed+1)), ncfg)
	}

	lcfg := meta.DefaultLearnerConfig()
	lcfg.InnerLR = innerLR
	learner, err := meta.NewLearner(factory, lcfg)
	if err != nil {
		return nil, nil, nil, err
	}
	return sampler, evalSampler, learner, nil
}

func checkpointFromParams(runID string, params []*tensor.Tensor) model.Checkpoint {
	cp := model.Checkpoint{
		VersionedRecord: currentVersion(),
		RunID:           runID,
		Params:          make([][]float64, len(params)),
		Shapes:          make([][]int, len(params)),
	}
	for i, p := range params {
		cp.Params[i] = append([]float64(nil), p.Data()...)
		cp.Shapes[i] = append([]int(nil), p.Shape()...)
	}
	return cp
}

func loadCheckpoint(params []*tensor.Tensor, cp model.Checkpoint) error {
	if len(cp.Params) != len(params) {
		return fmt.Errorf("checkpoint holds %d parameters, network has %d", len(cp.Params), len(params))
	}
	for i, p := range params {
		if len(cp.Params[i]) != p.Size() {
			return fmt.Errorf("checkpoint parameter %d has %d elements, network expects %d", i, len(cp.Params[i]), p.Size())
		}
		copy(p.Data(), cp.Params[i])
	}
	return nil
}

func currentVersion() model.VersionedRecord {
	return model.VersionedRecord{
		SchemaVersion: storage.CurrentSchemaVersion,
		CodecVersion:  storage.CurrentCodecVersion,
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	total := 0.0
	for _, x := range xs {
		total += x
	}
	return total / float64(len(xs))
}
