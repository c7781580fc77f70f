// Package s3 uploads export snapshots to S3-compatible object storage.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/ersonp/unistore/internal/domain/ports"
	"github.com/ersonp/unistore/internal/infrastructure/config"
)

// putObjectAPI is the subset of *s3.Client the store needs.
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Store implements ports.ObjectStore on one bucket.
type Store struct {
	client putObjectAPI
	bucket string
	prefix string
	logger *zap.Logger
}

var _ ports.ObjectStore = (*Store)(nil)

// NewStore builds an S3 client from cfg. Static credentials are used when
// both keys are set; otherwise the default AWS credential chain applies.
func NewStore(ctx context.Context, cfg config.S3Config, logger *zap.Logger) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return newStore(client, cfg.Bucket, cfg.Prefix, logger), nil
}

func newStore(client putObjectAPI, bucket, prefix string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		client: client,
		bucket: bucket,
		prefix: prefix,
		logger: logger.Named("s3"),
	}
}

// Put uploads body under the configured prefix and returns an s3:// URL.
func (s *Store) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	objectKey := path.Join(s.prefix, key)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(objectKey),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		s.logger.Error("upload failed", zap.String("key", objectKey), zap.Error(err))
		return "", fmt.Errorf("uploading %s: %w", objectKey, err)
	}

	s.logger.Info("object uploaded",
		zap.String("bucket", s.bucket),
		zap.String("key", objectKey),
		zap.Int("size", len(body)))
	return fmt.Sprintf("s3://%s/%s", s.bucket, objectKey), nil
}
