//go:build sqlite

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestTrainThenInspectSQLite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "molmeta.db")

	trainArgs := []string{
		"train",
		"--store", "sqlite",
		"--db-path", dbPath,
		"--seed", "31",
		"--epochs", "1",
		"--meta-batch", "1",
		"--inner-steps", "1",
		"--support", "4",
		"--query", "4",
		"--hidden", "4",
	}
	if err := run(context.Background(), trainArgs); err != nil {
		t.Fatalf("train command: %v", err)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("expected sqlite db at %s: %v", dbPath, err)
	}

	if err := run(context.Background(), []string{"runs", "--store", "sqlite", "--db-path", dbPath}); err != nil {
		t.Fatalf("runs command: %v", err)
	}
	if err := run(context.Background(), []string{"history", "--store", "sqlite", "--db-path", dbPath, "--latest"}); err != nil {
		t.Fatalf("history command: %v", err)
	}
	if err := run(context.Background(), []string{"eval", "--store", "sqlite", "--db-path", dbPath, "--latest", "--seed", "32", "--meta-batch", "1", "--inner-steps", "1", "--support", "4", "--query", "4", "--hidden", "4"}); err != nil {
		t.Fatalf("eval command: %v", err)
	}
}
