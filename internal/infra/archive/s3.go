package archive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/KasumiMercury/primind-bulk-operations/internal/domain"
)

const defaultRegion = "us-east-1"

type S3Config struct {
	Bucket string
	Prefix string
	Region string
	// Endpoint targets an S3 compatible service such as MinIO.
	Endpoint     string
	UsePathStyle bool
}

type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Archiver struct {
	client putObjectAPI
	bucket string
	prefix string
	now    func() time.Time
}

// NewS3Archiver builds a client from the default AWS credential chain.
func NewS3Archiver(ctx context.Context, cfg S3Config) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, ErrBucketRequired
	}

	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	slog.Info("report archive initialized",
		slog.String("type", "s3"),
		slog.String("bucket", cfg.Bucket),
		slog.String("prefix", cfg.Prefix),
		slog.String("region", region),
	)

	return NewS3ArchiverWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

func NewS3ArchiverWithClient(client putObjectAPI, bucket, prefix string) *S3Archiver {
	return &S3Archiver{
		client: client,
		bucket: bucket,
		prefix: prefix,
		now:    time.Now,
	}
}

func (a *S3Archiver) Archive(ctx context.Context, op *domain.Operation) error {
	body, err := encodeReport(op, a.now())
	if err != nil {
		return err
	}

	key := reportKey(a.prefix, op)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"operation-id":     op.ID,
			"operation-type":   op.Type.String(),
			"operation-status": op.Status.String(),
		},
	})
	if err != nil {
		return fmt.Errorf("put report %s: %w", key, err)
	}

	slog.DebugContext(ctx, "operation report archived",
		slog.String("operation_id", op.ID),
		slog.String("bucket", a.bucket),
		slog.String("key", key),
	)
	return nil
}
