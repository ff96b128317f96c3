package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/tour-ingest/internal/config"
	"github.com/JakeFAU/tour-ingest/internal/storage/csvstore"
	gcsstore "github.com/JakeFAU/tour-ingest/internal/storage/gcs"
	localstore "github.com/JakeFAU/tour-ingest/internal/storage/local"
	memorystore "github.com/JakeFAU/tour-ingest/internal/storage/memory"
	"github.com/JakeFAU/tour-ingest/internal/storage/sqlite"
	"github.com/JakeFAU/tour-ingest/internal/tour"
)

// tableBackendFor picks the table store for path. A recognised extension
// wins over the configured backend.
func tableBackendFor(path, fallback string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return "csv"
	case ".db", ".sqlite", ".sqlite3":
		return "sqlite"
	default:
		return fallback
	}
}

// openTableStore opens the table at path. The returned func releases it.
func openTableStore(backend, path string) (tour.TableStore, func(), error) {
	switch tableBackendFor(path, backend) {
	case "sqlite":
		s, err := sqlite.New(sqlite.Config{Path: path})
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	default:
		s, err := csvstore.New(csvstore.Config{Path: path})
		if err != nil {
			return nil, nil, fmt.Errorf("open csv store: %w", err)
		}
		return s, func() {}, nil
	}
}

// defaultOutput names the table for scope when no output is configured.
func defaultOutput(scope, backend string) string {
	name := scope
	if name == "" {
		name = "tours"
	}
	if backend == "sqlite" {
		return filepath.Join("data", name+".db")
	}
	return filepath.Join("data", name+".csv")
}

// openBlobStore builds the snapshot archive. The "none" backend returns a
// nil store, which disables archiving.
func openBlobStore(ctx context.Context, cfg config.StorageConfig) (tour.BlobStore, func(), error) {
	switch cfg.Backend {
	case "none":
		return nil, func() {}, nil
	case "memory":
		return memorystore.NewBlobStore(), func() {}, nil
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("create storage client: %w", err)
		}
		blobs, err := gcsstore.New(client, gcsstore.Config{Bucket: cfg.GCSBucket, Prefix: cfg.Prefix})
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return blobs, func() { _ = client.Close() }, nil
	default:
		blobs, err := localstore.New(localstore.Config{BaseDir: cfg.BaseDir})
		if err != nil {
			return nil, nil, fmt.Errorf("open snapshot archive: %w", err)
		}
		return blobs, func() {}, nil
	}
}
