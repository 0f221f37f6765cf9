package main

import (
	"context"
	"path/filepath"
	"testing"

	"task-manager/config"
	"task-manager/storage"
)

func TestOpenBackendFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	backend, err := openBackend(context.Background(), &config.Config{Backend: config.BackendFile, TasksFile: path})
	if err != nil {
		t.Fatalf("open backend: %v", err)
	}
	fb, ok := backend.(*storage.FileBackend)
	if !ok {
		t.Fatalf("expected file backend, got %T", backend)
	}
	if fb.Path() != path {
		t.Fatalf("unexpected path %q", fb.Path())
	}
}

func TestOpenBackendUnknown(t *testing.T) {
	if _, err := openBackend(context.Background(), &config.Config{Backend: "sqlite"}); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}
