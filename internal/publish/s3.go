package publish

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Compile-time check that S3Publisher implements Publisher.
var _ Publisher = (*S3Publisher)(nil)

// S3Config holds the configuration for S3 publishing.
type S3Config struct {
	Bucket          string
	Region          string
	PublicBaseURL   string // Optional: overrides the native S3 URL scheme
	Endpoint        string // Optional: for custom S3-compatible endpoints
	AccessKeyID     string // Optional: AWS access key ID
	SecretAccessKey string // Optional: AWS secret access key
}

// S3Publisher uploads artifacts to an S3 bucket with a single-shot
// PutObject, so the final key never holds a partially written object.
type S3Publisher struct {
	client  *s3.Client
	bucket  string
	region  string
	baseURL string
}

// NewS3Publisher creates a new S3Publisher.
func NewS3Publisher(cfg S3Config) (*S3Publisher, error) {
	var configOpts []func(*awsconfig.LoadOptions) error
	configOpts = append(configOpts, awsconfig.WithRegion(cfg.Region))

	// Use static credentials if provided
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		configOpts = append(configOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), configOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, clientOpts...)

	return &S3Publisher{
		client:  client,
		bucket:  cfg.Bucket,
		region:  cfg.Region,
		baseURL: cfg.PublicBaseURL,
	}, nil
}

// Publish uploads the artifact at localPath under key and returns its
// public URL and size.
func (p *S3Publisher) Publish(ctx context.Context, localPath, key string) (Result, error) {
	f, err := os.Open(localPath) // #nosec G304 - path is produced by the encoder, not user input
	if err != nil {
		return Result{}, fmt.Errorf("%w: open artifact: %w", ErrPublishFailed, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return Result{}, fmt.Errorf("%w: stat artifact: %w", ErrPublishFailed, err)
	}

	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType(localPath)),
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: put s3://%s/%s: %w", ErrPublishFailed, p.bucket, key, err)
	}

	return Result{
		URL:       PublicURL(p.baseURL, p.bucket, p.region, key),
		Key:       key,
		SizeBytes: info.Size(),
	}, nil
}
