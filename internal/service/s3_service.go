package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"media-gateway/config"
	"media-gateway/internal/util"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectPutter : the part of the S3 client used to archive indexes.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Service : copies every persisted zone index to a bucket.
type S3Service struct {
	client ObjectPutter
	bucket string
	prefix string
	logger *slog.Logger
}

func NewS3Service(ctx context.Context, cfg *config.S3Config, logger *slog.Logger) (*S3Service, error) {
	var client *s3.Client

	if cfg.Local {
		client = s3.New(s3.Options{
			Region: cfg.Region,
			Credentials: credentials.NewStaticCredentialsProvider(
				"minioadmin",
				"minioadmin",
				"",
			),
			BaseEndpoint: aws.String(cfg.Endpoint),
			UsePathStyle: true,
		})

		if err := createBucketIfNotExists(ctx, client, cfg.Bucket, logger); err != nil {
			return nil, util.LogError("[S3Service] could not create bucket", err)
		}
	} else {
		awsCfg, err := awsConfig.LoadDefaultConfig(ctx, awsConfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, util.LogError("[S3Service] could not load AWS config", err)
		}
		client = s3.NewFromConfig(awsCfg)
	}

	return NewS3ServiceWithClient(client, cfg.Bucket, cfg.Prefix, logger), nil
}

func NewS3ServiceWithClient(client ObjectPutter, bucket, prefix string, logger *slog.Logger) *S3Service {
	return &S3Service{
		client: client,
		bucket: bucket,
		prefix: prefix,
		logger: logger.With(slog.String("component", "archive")),
	}
}

// createBucketIfNotExists : creates the bucket when HeadBucket fails
func createBucketIfNotExists(ctx context.Context, client *s3.Client, bucket string, logger *slog.Logger) error {
	_, err := client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(bucket),
	})

	if err == nil {
		return nil
	}

	_, err = client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(bucket),
	})

	if err != nil {
		return util.LogError("[S3Service] could not create bucket", err)
	}

	logger.Info("bucket created", slog.String("bucket", bucket))
	return nil
}

// ObjectKey : {prefix}/{zone}/{index file name}
func (s *S3Service) ObjectKey(zone, indexPath string) string {
	return path.Join(s.prefix, zone, filepath.Base(indexPath))
}

// ArchiveIndex : uploads the index file of zone.
func (s *S3Service) ArchiveIndex(ctx context.Context, zone string, indexPath string) error {
	content, err := os.ReadFile(indexPath)
	if err != nil {
		return fmt.Errorf("[S3Service] could not read index %s: %w", indexPath, err)
	}

	key := s.ObjectKey(zone, indexPath)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return fmt.Errorf("[S3Service] could not upload %s: %w", key, err)
	}

	s.logger.Debug("index archived", slog.String("bucket", s.bucket), slog.String("key", key), slog.Int("bytes", len(content)))
	return nil
}
