package helmcli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestUpdateDependencies_NoDependencies(t *testing.T) {
	a, err := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Skipf("helm not on PATH, skipping: %v", err)
	}

	dir := t.TempDir()
	chart := "apiVersion: v1\nname: chart\nversion: 1.0.0\n"
	if err := os.WriteFile(filepath.Join(dir, "Chart.yaml"), []byte(chart), 0o644); err != nil {
		t.Fatalf("writing Chart.yaml: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "requirements.yaml"), []byte("dependencies: []\n"), 0o644); err != nil {
		t.Fatalf("writing requirements.yaml: %v", err)
	}

	if err := a.UpdateDependencies(context.Background(), dir); err != nil {
		t.Fatalf("UpdateDependencies() error = %v", err)
	}
}

func TestUpdateDependencies_MissingChart(t *testing.T) {
	a, err := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Skipf("helm not on PATH, skipping: %v", err)
	}

	if err := a.UpdateDependencies(context.Background(), t.TempDir()); err == nil {
		t.Fatal("UpdateDependencies() expected error for directory without Chart.yaml")
	}
}
