package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"molmeta/internal/storage"
	api "molmeta/pkg/molmeta"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "train":
		return runTrain(ctx, args[1:])
	case "eval":
		return runEval(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "history":
		return runHistory(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "molmeta.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := api.New(api.Options{StoreKind: *storeKind, DBPath: *dbPath})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Init(ctx); err != nil {
		return err
	}
	fmt.Printf("initialized store=%s\n", *storeKind)
	return nil
}

func runTrain(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "molmeta.db", "sqlite database path")
	configPath := fs.String("config", "", "JSON config file with training parameters")
	seed := fs.Int64("seed", 0, "random seed for task sampling and initialization")
	epochs := fs.Int("epochs", 0, "meta-training epochs")
	metaBatch := fs.Int("meta-batch", 0, "episodes per meta-batch")
	innerSteps := fs.Int("inner-steps", 0, "inner-loop SGD steps per episode")
	innerLR := fs.Float64("inner-lr", 0, "inner-loop learning rate")
	outerLR := fs.Float64("outer-lr", 0, "outer Adam learning rate")
	supportSize := fs.Int("support", 0, "support-set size per episode")
	querySize := fs.Int("query", 0, "query-set size per episode")
	hidden := fs.Int("hidden", 0, "hidden width of the classifier")
	jsonOut := fs.Bool("json", false, "emit summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	req, err := loadOrDefaultTrainRequest(*configPath)
	if err != nil {
		return err
	}
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["seed"] {
		req.Seed = *seed
	}
	if set["epochs"] {
		req.Epochs = *epochs
	}
	if set["meta-batch"] {
		req.MetaBatch = *metaBatch
	}
	if set["inner-steps"] {
		req.InnerSteps = *innerSteps
	}
	if set["inner-lr"] {
		req.InnerLR = *innerLR
	}
	if set["outer-lr"] {
		req.OuterLR = *outerLR
	}
	if set["support"] {
		req.SupportSize = *supportSize
	}
	if set["query"] {
		req.QuerySize = *querySize
	}
	if set["hidden"] {
		req.Hidden = *hidden
	}

	client, err := api.New(api.Options{StoreKind: *storeKind, DBPath: *dbPath})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Train(ctx, req)
	if err != nil {
		return err
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}
	for _, e := range summary.Epochs {
		fmt.Printf("epoch=%d mean_loss=%.6f roc_auc=%.4f accuracy=%.4f\n",
			e.Epoch, e.MeanLoss, e.Metrics.ROCAUC, e.Metrics.Accuracy)
	}
	fmt.Printf("run_id=%s final_roc_auc=%.4f final_accuracy=%.4f\n",
		summary.RunID, summary.Final.ROCAUC, summary.Final.Accuracy)
	return nil
}

func runEval(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("eval", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "molmeta.db", "sqlite database path")
	runID := fs.String("run", "", "run id whose checkpoint to evaluate")
	latest := fs.Bool("latest", false, "evaluate the most recent run's checkpoint")
	seed := fs.Int64("seed", 0, "random seed for evaluation tasks")
	metaBatch := fs.Int("meta-batch", 8, "episodes to evaluate")
	innerSteps := fs.Int("inner-steps", 5, "inner-loop SGD steps per episode")
	innerLR := fs.Float64("inner-lr", 1e-3, "inner-loop learning rate")
	supportSize := fs.Int("support", 0, "support-set size per episode")
	querySize := fs.Int("query", 0, "query-set size per episode")
	hidden := fs.Int("hidden", 0, "hidden width of the classifier")
	jsonOut := fs.Bool("json", false, "emit summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := api.New(api.Options{StoreKind: *storeKind, DBPath: *dbPath})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Eval(ctx, api.EvalRequest{
		RunID:       *runID,
		Latest:      *latest,
		Seed:        *seed,
		MetaBatch:   *metaBatch,
		InnerSteps:  *innerSteps,
		InnerLR:     *innerLR,
		SupportSize: *supportSize,
		QuerySize:   *querySize,
		Hidden:      *hidden,
	})
	if err != nil {
		return err
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}
	fmt.Printf("run_id=%s mean_loss=%.6f roc_auc=%.4f prc_auc=%.4f accuracy=%.4f f1=%.4f mcc=%.4f\n",
		summary.RunID, summary.MeanLoss,
		summary.Metrics.ROCAUC, summary.Metrics.PRCAUC,
		summary.Metrics.Accuracy, summary.Metrics.F1, summary.Metrics.MCC)
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "molmeta.db", "sqlite database path")
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := api.New(api.Options{StoreKind: *storeKind, DBPath: *dbPath})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	runs, err := client.Runs(ctx, api.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}
	for _, r := range runs {
		fmt.Printf("run_id=%s created_at=%s seed=%d epochs=%d meta_batch=%d inner_steps=%d status=%s\n",
			r.ID, r.CreatedAt, r.Seed, r.Epochs, r.MetaBatch, r.InnerSteps, r.Status)
	}
	return nil
}

func runHistory(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "molmeta.db", "sqlite database path")
	runID := fs.String("run", "", "run id to inspect")
	latest := fs.Bool("latest", false, "inspect the most recent run")
	jsonOut := fs.Bool("json", false, "emit history as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := api.New(api.Options{StoreKind: *storeKind, DBPath: *dbPath})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	history, err := client.History(ctx, api.HistoryRequest{RunID: *runID, Latest: *latest})
	if err != nil {
		return err
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(history)
	}
	for _, e := range history {
		fmt.Printf("epoch=%d mean_loss=%.6f roc_auc=%.4f accuracy=%.4f f1=%.4f\n",
			e.Epoch, e.MeanLoss, e.Metrics.ROCAUC, e.Metrics.Accuracy, e.Metrics.F1)
	}
	return nil
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: molmetactl <init|train|eval|runs|history> [flags]", msg)
}
