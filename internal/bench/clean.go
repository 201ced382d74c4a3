package bench

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/arkilian/sweep/internal/config"
	"github.com/arkilian/sweep/internal/grid"
	"github.com/arkilian/sweep/internal/storage"
	"github.com/arkilian/sweep/internal/store"
)

// IsArtifact reports whether name is a file this tool builds.
func IsArtifact(name string) bool {
	if strings.HasSuffix(name, grid.Extension) {
		return true
	}
	for _, base := range []string{store.BoltFileName, store.SQLiteFileName} {
		if name == base || strings.HasPrefix(name, base+"-") {
			return true
		}
	}
	return false
}

// Clean removes every artifact from the configured folder and, when
// withMirror is set, from the artifact mirror. It returns the number of
// removed files and objects.
func Clean(ctx context.Context, cfg *config.Config, withMirror bool) (int, error) {
	cfg.Resolve()

	removed := 0
	entries, err := os.ReadDir(cfg.Folder)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return 0, fmt.Errorf("failed to read folder: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !IsArtifact(e.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(cfg.Folder, e.Name())); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", e.Name(), err)
		}
		removed++
	}
	log.Printf("bench: removed %d artifacts from %s", removed, cfg.Folder)

	if !withMirror || cfg.Storage.Type == "none" {
		return removed, nil
	}

	var mirror storage.ObjectStorage
	switch cfg.Storage.Type {
	case "local":
		mirror, err = storage.NewLocalStorage(cfg.Storage.Path)
	case "s3":
		mirror, err = storage.NewS3Storage(ctx, cfg.Storage.S3.Bucket, storage.S3Config{
			Region:       cfg.Storage.S3.Region,
			Endpoint:     cfg.Storage.S3.Endpoint,
			UsePathStyle: cfg.Storage.S3.UsePathStyle,
			Prefix:       cfg.Storage.S3.Prefix,
		})
	default:
		return removed, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
	if err != nil {
		return removed, fmt.Errorf("failed to initialize mirror: %w", err)
	}

	objects, err := mirror.ListObjects(ctx, "")
	if err != nil {
		return removed, err
	}
	mirrored := 0
	for _, obj := range objects {
		if !IsArtifact(filepath.Base(obj)) {
			continue
		}
		if err := mirror.Delete(ctx, obj); err != nil {
			return removed + mirrored, err
		}
		mirrored++
	}
	log.Printf("bench: removed %d artifacts from the %s mirror", mirrored, cfg.Storage.Type)
	return removed + mirrored, nil
}
