package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const DefaultRegion = "us-east-1"

type Config struct {
	Endpoint string
	Access   string
	Secret   string
	Bucket   string
	Region   string
	UseSSL   bool
}

// Client writes stage outputs to an S3-compatible object store.
type Client struct {
	minio    *minio.Client
	endpoint string
	bucket   string
	region   string
	useSSL   bool
}

func NewClient(cfg Config) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	mc, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Access, cfg.Secret, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &Client{
		minio:    mc,
		endpoint: endpoint,
		bucket:   cfg.Bucket,
		region:   strings.TrimSpace(cfg.Region),
		useSSL:   cfg.UseSSL,
	}, nil
}

func (c *Client) Bucket() string {
	return c.bucket
}

func (c *Client) EnsureBucket(ctx context.Context, bucket string) error {
	if bucket == "" {
		bucket = c.bucket
	}

	exists, err := c.minio.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket existence: %w", err)
	}
	if exists {
		return nil
	}

	if err := c.minio.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: c.region}); err != nil {
		exists, checkErr := c.minio.BucketExists(ctx, bucket)
		if checkErr == nil && exists {
			return nil
		}
		return fmt.Errorf("create bucket %s: %w", bucket, err)
	}

	return nil
}

// Put stores data under bucket/key and returns the object's URL. An empty
// bucket selects the configured one.
func (c *Client) Put(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error) {
	if bucket == "" {
		bucket = c.bucket
	}
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("object key is required")
	}

	_, err := c.minio.PutObject(
		ctx,
		bucket,
		key,
		bytes.NewReader(data),
		int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType},
	)
	if err != nil {
		return "", fmt.Errorf("put object %s/%s: %w", bucket, key, err)
	}
	return c.ObjectURL(bucket, key), nil
}

// ObjectURL builds the public locator of an object. AWS endpoints use
// virtual-hosted style; anything else is addressed by path.
func (c *Client) ObjectURL(bucket, key string) string {
	escaped := escapeKey(key)
	if isAWSEndpoint(c.endpoint) {
		if c.region == "" || c.region == DefaultRegion {
			return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", bucket, escaped)
		}
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, c.region, escaped)
	}

	scheme := "http"
	if c.useSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, c.endpoint, bucket, escaped)
}

func isAWSEndpoint(endpoint string) bool {
	host := strings.ToLower(endpoint)
	if idx := strings.IndexByte(host, ':'); idx >= 0 {
		host = host[:idx]
	}
	return strings.HasSuffix(host, "amazonaws.com")
}

func escapeKey(key string) string {
	parts := strings.Split(strings.TrimPrefix(key, "/"), "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
