package assets

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"mapdna/platform/config"
)

// PresignedURLTTL is how long a presigned bundle URL stays valid.
const PresignedURLTTL = 15 * time.Minute

// BucketResolver serves interpreter bundles from a MinIO bucket through
// presigned URLs.
type BucketResolver struct {
	client *minio.Client
	bucket string
	prefix string
}

var _ BundleResolver = (*BucketResolver)(nil)

// NewBucketResolver connects to the configured MinIO endpoint.
func NewBucketResolver(cfg config.MinIOConfig, prefix string) (*BucketResolver, error) {
	if !cfg.IsMinIOEnabled() {
		return nil, fmt.Errorf("MinIO is not configured")
	}

	client, err := minio.New(cfg.GetMinIOEndpoint(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.GetMinIOAccessKey(), cfg.GetMinIOSecretKey(), ""),
		Secure: cfg.GetMinIOUseSSL(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &BucketResolver{client: client, bucket: cfg.GetMinioBucketMapAssets(), prefix: prefix}, nil
}

// Bucket returns the bucket name bundles are read from.
func (b *BucketResolver) Bucket() string { return b.bucket }

// ObjectKey returns the object key for a bundle.
func (b *BucketResolver) ObjectKey(name string) string {
	return path.Join(b.prefix, path.Base(name))
}

// EnsureBucketExists creates the bucket if it doesn't exist.
func (b *BucketResolver) EnsureBucketExists(ctx context.Context) error {
	exists, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := b.client.MakeBucket(ctx, b.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", b.bucket, err)
		}
	}
	return nil
}

// BundleURL implements BundleResolver.
func (b *BucketResolver) BundleURL(ctx context.Context, name string) (string, error) {
	u, err := b.client.PresignedGetObject(ctx, b.bucket, b.ObjectKey(name), PresignedURLTTL, make(url.Values))
	if err != nil {
		return "", fmt.Errorf("failed to presign bundle %s: %w", name, err)
	}
	return u.String(), nil
}

// Publish uploads a bundle and returns its object key.
func (b *BucketResolver) Publish(ctx context.Context, name string, r io.Reader, size int64) (string, error) {
	key := b.ObjectKey(name)
	_, err := b.client.PutObject(ctx, b.bucket, key, r, size, minio.PutObjectOptions{
		ContentType:  "application/javascript",
		CacheControl: "public, max-age=300",
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload bundle %s: %w", key, err)
	}
	return key, nil
}
