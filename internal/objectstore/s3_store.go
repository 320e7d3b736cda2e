package objectstore

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hawkaii/fastspeech/internal/config"
)

// S3Store implements core.RemoteStore over any S3-compatible endpoint holding
// the model artifact bucket.
type S3Store struct {
	client *minio.Client
	bucket string
}

// NewS3Store connects to the artifact bucket and verifies it exists.
func NewS3Store(ctx context.Context, cfg config.RemoteStoreConfig) (*S3Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init S3 client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %q: %w", cfg.Bucket, err)
	}

	if !exists {
		return nil, fmt.Errorf("bucket %q does not exist", cfg.Bucket)
	}

	return &S3Store{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// ListObjects returns every object name under the prefix.
func (s *S3Store) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	var names []string

	objects := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix + "/",
		Recursive: true,
	})

	for object := range objects {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list objects under %q: %w", prefix, object.Err)
		}

		names = append(names, object.Key)
	}

	return names, nil
}

// Fetch copies one remote object to a local file path.
func (s *S3Store) Fetch(ctx context.Context, remotePath, localPath string) error {
	err := s.client.FGetObject(ctx, s.bucket, remotePath, localPath, minio.GetObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to fetch object %q: %w", remotePath, err)
	}

	return nil
}
