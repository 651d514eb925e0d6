package artifacts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3StoreConfig points an S3Store at a bucket. Endpoint is for
// S3-compatible services such as MinIO and forces path-style addressing.
type S3StoreConfig struct {
	Bucket   string
	Region   string
	Endpoint string
	Prefix   string
}

// S3Store keeps content objects in an S3 bucket under Prefix.
type S3Store struct {
	api    *s3.Client
	bucket *string
	prefix string
}

func NewS3Store(ctx context.Context, cfg S3StoreConfig) (*S3Store, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("artifacts: aws config: %w", err)
	}
	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint == "" {
			return
		}
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})
	return &S3Store{api: api, bucket: aws.String(cfg.Bucket), prefix: cfg.Prefix}, nil
}

func (s *S3Store) objectName(digest string) (*string, error) {
	key, err := objectKey(digest)
	if err != nil {
		return nil, err
	}
	return aws.String(s.prefix + key), nil
}

func missingObject(err error) bool {
	var head *types.NotFound
	var get *types.NoSuchKey
	return errors.As(err, &head) || errors.As(err, &get)
}

func (s *S3Store) head(ctx context.Context, name *string) (bool, error) {
	_, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{Bucket: s.bucket, Key: name})
	switch {
	case err == nil:
		return true, nil
	case missingObject(err):
		return false, nil
	default:
		return false, fmt.Errorf("artifacts: s3 head %s: %w", *name, err)
	}
}

func (s *S3Store) Store(ctx context.Context, data []byte) (string, error) {
	d := Digest(data)
	name, err := s.objectName(d)
	if err != nil {
		return "", err
	}
	if present, err := s.head(ctx, name); err != nil || present {
		return d, err
	}
	if _, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        s.bucket,
		Key:           name,
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/octet-stream"),
	}); err != nil {
		return "", fmt.Errorf("artifacts: s3 put %s: %w", d, err)
	}
	return d, nil
}

func (s *S3Store) Get(ctx context.Context, digest string) ([]byte, error) {
	name, err := s.objectName(digest)
	if err != nil {
		return nil, err
	}
	obj, err := s.api.GetObject(ctx, &s3.GetObjectInput{Bucket: s.bucket, Key: name})
	if missingObject(err) {
		return nil, notFound(digest)
	}
	if err != nil {
		return nil, fmt.Errorf("artifacts: s3 get %s: %w", digest, err)
	}
	defer func() { _ = obj.Body.Close() }()
	return io.ReadAll(obj.Body)
}

func (s *S3Store) Exists(ctx context.Context, digest string) (bool, error) {
	name, err := s.objectName(digest)
	if err != nil {
		return false, err
	}
	return s.head(ctx, name)
}

// Delete is idempotent: S3 answers a delete of a missing key with success.
func (s *S3Store) Delete(ctx context.Context, digest string) error {
	name, err := s.objectName(digest)
	if err != nil {
		return err
	}
	if _, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: s.bucket, Key: name}); err != nil {
		return fmt.Errorf("artifacts: s3 delete %s: %w", digest, err)
	}
	return nil
}
