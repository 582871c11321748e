package fileserve

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Store serves objects from an S3 bucket. A request for "a/b.txt" reads
// the key prefix+"a/b.txt".
//
// Example usage:
//
//	client := fileserve.NewS3Client(fileserve.S3Config{Region: "us-east-1"})
//	store := fileserve.NewS3Store(client, "my-bucket", "public/", 0)
type S3Store struct {
	client  S3API
	bucket  string
	prefix  string
	maxSize int64
}

// NewS3Store creates a new S3 store.
//
// Parameters:
//   - client: S3 client from aws-sdk-go-v2 (or any S3API)
//   - bucket: bucket name
//   - prefix: key prefix prepended to every name (e.g. "site/")
//   - maxSize: maximum object size in bytes (0 = no limit)
func NewS3Store(client S3API, bucket, prefix string, maxSize int64) *S3Store {
	return &S3Store{
		client:  client,
		bucket:  bucket,
		prefix:  prefix,
		maxSize: maxSize,
	}
}

// ReadFile implements Store.
func (s *S3Store) ReadFile(ctx context.Context, name string) ([]byte, error) {
	key := s.prefix + name

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("%w: s3://%s/%s", ErrNotFound, s.bucket, key)
		}
		return nil, fmt.Errorf("fileserve: s3 get %s: %w", key, err)
	}
	defer out.Body.Close()

	if s.maxSize > 0 {
		if out.ContentLength != nil && *out.ContentLength > s.maxSize {
			return nil, fmt.Errorf("fileserve: %s exceeds %d bytes", key, s.maxSize)
		}
		body, err := io.ReadAll(io.LimitReader(out.Body, s.maxSize+1))
		if err != nil {
			return nil, err
		}
		if int64(len(body)) > s.maxSize {
			return nil, fmt.Errorf("fileserve: %s exceeds %d bytes", key, s.maxSize)
		}
		return body, nil
	}

	return io.ReadAll(out.Body)
}

func isS3NotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return true
		}
	}
	return false
}

// S3Config describes how to reach the bucket backing an S3Store.
type S3Config struct {
	Region    string
	Endpoint  string // custom endpoint for S3-compatible services
	PathStyle bool   // use path-style addressing (MinIO and friends)
}

// NewS3Client builds an S3 client from cfg. Credentials are taken from
// AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY and AWS_SESSION_TOKEN; without
// them requests are sent anonymously, which works for public buckets.
func NewS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		UsePathStyle: cfg.PathStyle,
		Credentials:  envCredentials(),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

func envCredentials() aws.CredentialsProvider {
	id := os.Getenv("AWS_ACCESS_KEY_ID")
	secret := os.Getenv("AWS_SECRET_ACCESS_KEY")
	if id == "" || secret == "" {
		return aws.AnonymousCredentials{}
	}
	token := os.Getenv("AWS_SESSION_TOKEN")
	return aws.NewCredentialsCache(aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     id,
			SecretAccessKey: secret,
			SessionToken:    token,
			Source:          "environment",
		}, nil
	}))
}
