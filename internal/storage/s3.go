package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"luminatext/pkg/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

const audioPrefix = "audio"

type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
}

// objectAPI is the subset of the S3 client used by S3Storage.
type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Storage archives uploaded audio in an S3-compatible bucket.
type S3Storage struct {
	client objectAPI
	bucket string
}

// NewS3Storage creates a new S3 storage client. An empty endpoint uses AWS;
// any other value is treated as an S3-compatible service with path-style URLs.
func NewS3Storage(ctx context.Context, cfg S3Config) (*S3Storage, error) {
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	logger.Info("S3 storage initialized",
		zap.String("bucket", cfg.Bucket),
		zap.String("endpoint", cfg.Endpoint))

	return &S3Storage{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// GenerateKey returns the object key for a transcription's audio.
func (s *S3Storage) GenerateKey(id string) string {
	return path.Join(audioPrefix, id)
}

func (s *S3Storage) StoreAudio(ctx context.Context, id string, content []byte, contentType string) error {
	key := s.GenerateKey(id)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(content),
		ContentLength: aws.Int64(int64(len(content))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload audio: %w", err)
	}

	logger.Debug("Audio archived to S3",
		zap.String("key", key),
		zap.Int("size", len(content)))

	return nil
}

func (s *S3Storage) DeleteAudio(ctx context.Context, id string) error {
	key := s.GenerateKey(id)

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete audio: %w", err)
	}

	logger.Debug("Audio deleted from S3", zap.String("key", key))

	return nil
}
