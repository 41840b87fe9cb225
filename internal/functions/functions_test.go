package functions

import (
	"context"
	"io"
	"log"
	"testing"

	"github.com/dunamismax/pixelbench/internal/config"
	"github.com/dunamismax/pixelbench/internal/domain"
	"github.com/dunamismax/pixelbench/internal/storage"
)

func TestBuildLocalBackend(t *testing.T) {
	cfg := config.Config{
		Storage:   config.StorageConfig{Backend: config.StorageBackendLocal, LocalDir: t.TempDir(), Bucket: "out"},
		Functions: config.FunctionsConfig{Prefix: "pixel_func", Arch: "arm"},
	}

	fns, err := Build(context.Background(), cfg, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(fns) != 5 {
		t.Fatalf("expected 5 functions, got %d", len(fns))
	}
	for step := 1; step <= 5; step++ {
		if _, ok := fns[domain.FunctionID("pixel_func", "arm", step)]; !ok {
			t.Fatalf("missing function for step %d", step)
		}
	}
}

func TestNewObjectStoreLocal(t *testing.T) {
	dir := t.TempDir()
	objects, err := NewObjectStore(context.Background(), config.StorageConfig{Backend: config.StorageBackendLocal, LocalDir: dir}, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("new object store: %v", err)
	}
	if ds, ok := objects.(storage.DirStore); !ok || ds.Root != dir {
		t.Fatalf("expected dir store rooted at %s, got %#v", dir, objects)
	}
}

func TestNewObjectStoreRejectsUnknownBackend(t *testing.T) {
	_, err := NewObjectStore(context.Background(), config.StorageConfig{Backend: "ftp"}, log.New(io.Discard, "", 0))
	if err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
