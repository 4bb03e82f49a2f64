package main

import (
	"context"
	"strings"
	"testing"
)

func TestRunRejectsMissingAndUnknownCommands(t *testing.T) {
	if err := run(context.Background(), nil); err == nil || !strings.Contains(err.Error(), "missing command") {
		t.Fatalf("expected missing command error, got %v", err)
	}
	if err := run(context.Background(), []string{"bogus"}); err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}

func TestInitCommandMemoryStore(t *testing.T) {
	if err := run(context.Background(), []string{"init", "--store", "memory"}); err != nil {
		t.Fatalf("init: %v", err)
	}
}

func TestTrainCommandMemoryStore(t *testing.T) {
	args := []string{
		"train",
		"--store", "memory",
		"--seed", "19",
		"--epochs", "1",
		"--meta-batch", "1",
		"--inner-steps", "1",
		"--support", "4",
		"--query", "4",
		"--hidden", "4",
	}
	if err := run(context.Background(), args); err != nil {
		t.Fatalf("train command: %v", err)
	}
}

func TestEvalCommandFreshNetwork(t *testing.T) {
	args := []string{
		"eval",
		"--store", "memory",
		"--seed", "23",
		"--meta-batch", "1",
		"--inner-steps", "1",
		"--support", "4",
		"--query", "4",
		"--hidden", "4",
	}
	if err := run(context.Background(), args); err != nil {
		t.Fatalf("eval command: %v", err)
	}
}

func TestRunsCommandEmptyStore(t *testing.T) {
	if err := run(context.Background(), []string{"runs", "--store", "memory"}); err != nil {
		t.Fatalf("runs command: %v", err)
	}
	if err := run(context.Background(), []string{"runs", "--store", "memory", "--limit", "0"}); err == nil {
		t.Fatal("expected limit error")
	}
}

func TestHistoryCommandRequiresRun(t *testing.T) {
	if err := run(context.Background(), []string{"history", "--store", "memory"}); err == nil {
		t.Fatal("expected error without run id or latest")
	}
	if err := run(context.Background(), []string{"history", "--store", "memory", "--latest"}); err == nil {
		t.Fatal("expected error with no stored runs")
	}
}
