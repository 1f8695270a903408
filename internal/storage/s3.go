// Package storage provides access to the event-log object store and the
// local upload/output directories.
package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectStore lists and fetches objects from a bucket. The S3 client
// satisfies it in production; tests use an in-memory fake.
type ObjectStore interface {
	List(ctx context.Context, bucket, prefix string) ([]string, error)
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// S3Store is the AWS S3 implementation of ObjectStore.
type S3Store struct {
	client *s3.Client
}

// NewS3Store creates an S3-backed object store for the given region using
// the default AWS credential chain.
func NewS3Store(ctx context.Context, region string) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return &S3Store{client: s3.NewFromConfig(cfg)}, nil
}

// List returns every key under prefix, following pagination.
func (s *S3Store) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	var keys []string

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list s3 objects under %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}

	return keys, nil
}

// Get fetches one object's body. The caller closes the reader.
func (s *S3Store) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get s3 object %s: %w", key, err)
	}
	return out.Body, nil
}
