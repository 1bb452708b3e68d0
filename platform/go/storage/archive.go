package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// Archive persists raw report snapshots next to the materialized rows.
type Archive interface {
	Bucket() string
	Put(ctx context.Context, loc ObjectLocation, contentType string, data []byte) error
	Check(ctx context.Context, prefix string) error
	// Purge removes every object under prefix.
	Purge(ctx context.Context, prefix string) error
}

// NopArchive discards snapshots.
type NopArchive struct{}

func (NopArchive) Bucket() string                                            { return "" }
func (NopArchive) Put(context.Context, ObjectLocation, string, []byte) error { return nil }
func (NopArchive) Check(context.Context, string) error                       { return nil }
func (NopArchive) Purge(context.Context, string) error                       { return nil }

// GCSArchive writes snapshots to a Cloud Storage bucket.
type GCSArchive struct {
	client *storage.Client
	bucket string
}

func NewGCSArchive(client *storage.Client, bucket string) *GCSArchive {
	if client == nil {
		panic("gcs archive requires client")
	}
	if bucket == "" {
		panic("gcs archive requires bucket")
	}
	return &GCSArchive{client: client, bucket: bucket}
}

func (a *GCSArchive) Bucket() string { return a.bucket }

func (a *GCSArchive) Put(ctx context.Context, loc ObjectLocation, contentType string, data []byte) error {
	w := a.client.Bucket(loc.Bucket).Object(loc.FullPath).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write %s: %w", loc.FullPath, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close %s: %w", loc.FullPath, err)
	}
	return nil
}

// Check verifies bucket access and that the prefix can be listed.
func (a *GCSArchive) Check(ctx context.Context, prefix string) error {
	bkt := a.client.Bucket(a.bucket)
	if _, err := bkt.Attrs(ctx); err != nil {
		return fmt.Errorf("bucket attrs: %w", err)
	}

	it := bkt.Objects(ctx, &storage.Query{Prefix: prefix})
	if _, err := it.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return fmt.Errorf("list prefix: %w", err)
	}
	return nil
}

func (a *GCSArchive) Purge(ctx context.Context, prefix string) error {
	if strings.Trim(prefix, "/") == "" {
		return errors.New("purge requires a non-empty prefix")
	}
	bkt := a.client.Bucket(a.bucket)
	it := bkt.Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("list prefix: %w", err)
		}
		if err := bkt.Object(attrs.Name).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("delete %s: %w", attrs.Name, err)
		}
	}
}

// LocalArchive writes snapshots under a directory, for local development.
type LocalArchive struct {
	basePath string
}

func NewLocalArchive(basePath string) *LocalArchive {
	if strings.TrimSpace(basePath) == "" {
		panic("local archive requires basePath")
	}
	return &LocalArchive{basePath: basePath}
}

func (a *LocalArchive) Bucket() string { return "local" }

func (a *LocalArchive) Put(_ context.Context, loc ObjectLocation, _ string, data []byte) error {
	fullPath := filepath.Join(a.basePath, filepath.FromSlash(loc.FullPath))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

func (a *LocalArchive) Check(_ context.Context, prefix string) error {
	if err := os.MkdirAll(filepath.Join(a.basePath, filepath.FromSlash(prefix)), 0o755); err != nil {
		return fmt.Errorf("create prefix path: %w", err)
	}
	return nil
}

func (a *LocalArchive) Purge(_ context.Context, prefix string) error {
	if strings.Trim(prefix, "/") == "" {
		return errors.New("purge requires a non-empty prefix")
	}
	if err := os.RemoveAll(filepath.Join(a.basePath, filepath.FromSlash(prefix))); err != nil {
		return fmt.Errorf("remove prefix path: %w", err)
	}
	return nil
}

var (
	_ Archive = NopArchive{}
	_ Archive = (*GCSArchive)(nil)
	_ Archive = (*LocalArchive)(nil)
)
