package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestMigrateCommand(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "quicklink.db")

	cmd := newRootCmd()
	cmd.SetArgs([]string{"migrate", "--config", filepath.Join(dir, "config.yaml"), "--db", dbPath})
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("database not created: %v", err)
	}
}

func TestUnknownCommandFails(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"launch-rockets"})
	if err := cmd.ExecuteContext(context.Background()); err == nil {
		t.Fatal("expected error for unknown command")
	}
}
