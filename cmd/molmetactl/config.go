package main

import (
	"encoding/json"
	"fmt"
	"os"

	api "molmeta/pkg/molmeta"
)

func loadTrainRequestFromConfig(path string) (api.TrainRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return api.TrainRequest{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return api.TrainRequest{}, err
	}

	var req api.TrainRequest
	if v, ok := asInt64(raw["seed"]); ok {
		req.Seed = v
	}
	if v, ok := asInt(raw["epochs"]); ok {
		req.Epochs = v
	}
	if v, ok := asInt(raw["meta_batch"]); ok {
		req.MetaBatch = v
	}
	if v, ok := asInt(raw["inner_steps"]); ok {
		req.InnerSteps = v
	}
	if v, ok := asFloat64(raw["inner_lr"]); ok {
		req.InnerLR = v
	}
	if v, ok := asFloat64(raw["outer_lr"]); ok {
		req.OuterLR = v
	}
	if v, ok := asInt(raw["support_size"]); ok {
		req.SupportSize = v
	}
	if v, ok := asInt(raw["query_size"]); ok {
		req.QuerySize = v
	}
	if v, ok := asInt(raw["hidden"]); ok {
		req.Hidden = v
	}
	return req, nil
}

func loadOrDefaultTrainRequest(configPath string) (api.TrainRequest, error) {
	if configPath == "" {
		return api.TrainRequest{}, nil
	}
	req, err := loadTrainRequestFromConfig(configPath)
	if err != nil {
		return api.TrainRequest{}, fmt.Errorf("load config: %w", err)
	}
	return req, nil
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}
