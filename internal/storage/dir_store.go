package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

var ErrInvalidKey = errors.New("object key escapes the storage root")

// DirStore keeps objects on the local filesystem under Root/bucket/key.
type DirStore struct {
	Root   string
	Bucket string
}

func (d DirStore) Put(ctx context.Context, bucket, key string, data []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(d.Root) == "" {
		return "", errors.New("storage root is required")
	}
	if bucket == "" {
		bucket = d.Bucket
	}
	if strings.TrimSpace(bucket) == "" {
		return "", errors.New("bucket is required")
	}
	if strings.TrimSpace(key) == "" {
		return "", errors.New("object key is required")
	}

	root, err := filepath.Abs(d.Root)
	if err != nil {
		return "", fmt.Errorf("resolve storage root: %w", err)
	}
	bucketDir := filepath.Join(root, sanitizePathToken(bucket))
	target := filepath.Join(bucketDir, filepath.FromSlash(key))
	if !strings.HasPrefix(target, bucketDir+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrInvalidKey, key)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", fmt.Errorf("write object %s: %w", key, err)
	}

	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(target)}).String(), nil
}

func sanitizePathToken(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "default"
	}

	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "default"
	}
	return out
}
