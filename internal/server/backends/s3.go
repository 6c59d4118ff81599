package backends

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/dmitrijs2005/rtmp-auth/internal/common"
	"github.com/dmitrijs2005/rtmp-auth/internal/server/models"
)

// S3Config configures the S3 backend. Endpoint is only needed for S3
// compatible services such as MinIO, which also switches to path-style
// addressing.
type S3Config struct {
	Bucket    string `toml:"bucket" env:"BUCKET"`
	Key       string `toml:"key" env:"KEY"`
	Region    string `toml:"region" env:"REGION"`
	Endpoint  string `toml:"endpoint" env:"ENDPOINT"`
	AccessKey string `toml:"access_key" env:"ACCESS_KEY"`
	SecretKey string `toml:"secret_key" env:"SECRET_KEY"`
}

// S3API is the part of the S3 client the backend needs.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Backend stores the encoded state as a single object. Writes are
// conditional on the ETag of the last read.
type S3Backend struct {
	client S3API
	bucket string
	key    string
	mu     sync.Mutex
	etag   string
}

// OpenS3 builds an S3 client from cfg. Without static credentials the
// default AWS credential chain is used.
func OpenS3(ctx context.Context, cfg S3Config) (*S3Backend, error) {
	opts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3Backend(client, cfg.Bucket, cfg.Key), nil
}

func NewS3Backend(client S3API, bucket, key string) *S3Backend {
	if key == "" {
		key = common.StateKey
	}
	return &S3Backend{client: client, bucket: bucket, key: key}
}

func (b *S3Backend) Read(ctx context.Context) (*models.State, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key),
	})
	if err != nil {
		if isMissingObject(err) {
			b.etag = ""
			return &models.State{}, nil
		}
		return nil, fmt.Errorf("get state object: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read state object: %w", err)
	}

	state, err := DecodeState(data)
	if err != nil {
		return nil, err
	}
	b.etag = aws.ToString(out.ETag)
	return state, nil
}

func (b *S3Backend) Write(ctx context.Context, state *models.State) error {
	if state == nil {
		return errors.New("state should not be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	in := &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(b.key),
		Body:        bytes.NewReader(EncodeState(state)),
		ContentType: aws.String("application/x-protobuf"),
	}
	if b.etag != "" {
		in.IfMatch = aws.String(b.etag)
	} else {
		in.IfNoneMatch = aws.String("*")
	}

	out, err := b.client.PutObject(ctx, in)
	if err != nil {
		if isPreconditionFailed(err) {
			return common.ErrConflict
		}
		return fmt.Errorf("put state object: %w", err)
	}
	b.etag = aws.ToString(out.ETag)
	return nil
}

func (b *S3Backend) Close() error {
	return nil
}

type httpStatusError interface {
	HTTPStatusCode() int
}

func statusCode(err error) int {
	var se httpStatusError
	if errors.As(err, &se) {
		return se.HTTPStatusCode()
	}
	return 0
}

func isMissingObject(err error) bool {
	var nsk *types.NoSuchKey
	return errors.As(err, &nsk) || statusCode(err) == http.StatusNotFound
}

// isPreconditionFailed matches a lost If-Match/If-None-Match race. S3 answers
// 412, or 409 when two conditional writes overlap.
func isPreconditionFailed(err error) bool {
	code := statusCode(err)
	return code == http.StatusPreconditionFailed || code == http.StatusConflict
}
