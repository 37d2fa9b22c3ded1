// Zeytinvault - Backup and Restore for the Zeytin Analiz Deployment
// Copyright 2026 Zeytinlab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zeytinlab/zeytinvault

package remote

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/zeytinlab/zeytinvault/internal/config"
	"github.com/zeytinlab/zeytinvault/internal/logging"
)

// s3API is the slice of the S3 client the target uses; swappable for tests.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Target uploads archives to an S3-compatible bucket. Custom endpoints
// (MinIO, Ceph RGW) are supported via path-style addressing.
type S3Target struct {
	client    s3API
	bucket    string
	keyPrefix string
	endpoint  string
}

func newS3Target(cfg config.RemoteConfig) (*S3Target, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("object-store replication requires a bucket")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("object-store replication requires access and secret keys")
	}

	opts := s3.Options{
		Region:      cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}

	return &S3Target{
		client:    s3.New(opts),
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
		endpoint:  cfg.Endpoint,
	}, nil
}

// Name implements Target.
func (t *S3Target) Name() string {
	if t.endpoint != "" {
		return fmt.Sprintf("s3://%s/%s (%s)", t.bucket, t.keyPrefix, t.endpoint)
	}
	return fmt.Sprintf("s3://%s/%s", t.bucket, t.keyPrefix)
}

// Upload implements Target.
func (t *S3Target) Upload(ctx context.Context, localPath string) error {
	file, err := os.Open(localPath) //nolint:gosec // G304: path is a finished archive in the backup directory
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer file.Close() //nolint:errcheck // Best effort cleanup

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stating archive: %w", err)
	}

	key := path.Join(t.keyPrefix, filepath.Base(localPath))
	_, err = t.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(t.bucket),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(info.Size()),
	})
	if err != nil {
		return fmt.Errorf("uploading %s to bucket %s: %w", key, t.bucket, err)
	}

	logging.Info().
		Str("bucket", t.bucket).
		Str("key", key).
		Int64("size_bytes", info.Size()).
		Msg("archive replicated")
	return nil
}
