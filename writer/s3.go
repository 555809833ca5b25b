package writer

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "quoteflow/config"
	"quoteflow/logger"
)

// S3Uploader pushes finished run outputs to an S3 bucket.
type S3Uploader struct {
	client *s3.Client
	bucket string
	prefix string
	log    *logger.Log
}

// NewS3Uploader configures the AWS SDK from the storage block. Static
// credentials from the config win; otherwise the default chain applies.
func NewS3Uploader(cfg *appconfig.Config) (*S3Uploader, error) {
	log := logger.GetLogger()
	ctx := context.Background()

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Storage.S3.Region),
	}
	if cfg.Storage.S3.AccessKeyID != "" && cfg.Storage.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Storage.S3.AccessKeyID,
				cfg.Storage.S3.SecretAccessKey,
				"",
			),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		log.WithComponent("s3_writer").WithError(err).Warn("failed to load AWS configuration")
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.S3.Endpoint)
		}
		o.UsePathStyle = cfg.Storage.S3.PathStyle
	})

	log.WithComponent("s3_writer").WithFields(logger.Fields{
		"bucket": cfg.Storage.S3.Bucket,
		"region": cfg.Storage.S3.Region,
	}).Debug("s3 uploader initialized")

	return &S3Uploader{
		client: client,
		bucket: cfg.Storage.S3.Bucket,
		prefix: cfg.Storage.S3.Prefix,
		log:    log,
	}, nil
}

// Upload writes one object under the configured prefix.
func (u *S3Uploader) Upload(ctx context.Context, key, contentType string, body []byte) error {
	fullKey := key
	if u.prefix != "" {
		fullKey = path.Join(u.prefix, key)
	}

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(fullKey),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		u.log.WithComponent("s3_writer").WithError(err).WithFields(logger.Fields{
			"key": fullKey,
		}).Error("failed to upload object")
		return fmt.Errorf("upload %s: %w", fullKey, err)
	}

	logger.IncrementS3Write()
	u.log.WithComponent("s3_writer").WithFields(logger.Fields{
		"key":   fullKey,
		"bytes": len(body),
	}).Info("uploaded object")
	return nil
}
