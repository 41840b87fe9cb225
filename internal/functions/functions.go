// Package functions assembles the deployable stage functions from config.
package functions

import (
	"context"
	"fmt"
	"log"

	"github.com/dunamismax/pixelbench/internal/codec"
	"github.com/dunamismax/pixelbench/internal/config"
	"github.com/dunamismax/pixelbench/internal/stage"
	"github.com/dunamismax/pixelbench/internal/storage"
)

// NewObjectStore returns the backend ConvertAndStore writes to.
func NewObjectStore(ctx context.Context, cfg config.StorageConfig, logger *log.Logger) (stage.ObjectStore, error) {
	switch cfg.Backend {
	case config.StorageBackendLocal:
		logger.Printf("object store backend=local dir=%s bucket=%s", cfg.LocalDir, cfg.Bucket)
		return storage.DirStore{Root: cfg.LocalDir, Bucket: cfg.Bucket}, nil
	case config.StorageBackendMinio, "":
		client, err := storage.NewClient(storage.Config{
			Endpoint: cfg.Endpoint,
			Access:   cfg.AccessKey,
			Secret:   cfg.SecretKey,
			Bucket:   cfg.Bucket,
			Region:   cfg.Region,
			UseSSL:   cfg.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		if err := client.EnsureBucket(ctx, cfg.Bucket); err != nil {
			return nil, fmt.Errorf("ensure bucket: %w", err)
		}
		logger.Printf("object store backend=minio endpoint=%s bucket=%s", cfg.Endpoint, cfg.Bucket)
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
}

// Build returns every stage keyed by its function id. Callers release the
// codec runtime with codec.Shutdown.
func Build(ctx context.Context, cfg config.Config, logger *log.Logger) (map[string]stage.Stage, error) {
	if err := codec.Startup(); err != nil {
		return nil, fmt.Errorf("start codec runtime: %w", err)
	}

	objects, err := NewObjectStore(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, err
	}

	stages := stage.NewSet(codec.Default(), objects,
		stage.WithDebugTraces(cfg.Functions.DebugTraces),
		stage.WithDefaultBucket(cfg.Storage.Bucket),
	)
	fns := stage.Functions(cfg.Functions.Prefix, cfg.Functions.Arch, stages)
	logger.Printf("registered %d functions prefix=%s arch=%s", len(fns), cfg.Functions.Prefix, cfg.Functions.Arch)
	return fns, nil
}
