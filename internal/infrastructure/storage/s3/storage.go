package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/kirillkom/tradedoc-ledger/internal/core/domain"
	"github.com/kirillkom/tradedoc-ledger/internal/infrastructure/resilience"
)

const LocatorScheme = "s3://"

// objectAPI is the subset of *s3.Client the storage uses.
type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type Options struct {
	Endpoint     string
	Region       string
	Bucket       string
	Prefix       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
	SpoolDir     string
	Executor     *resilience.Executor
}

type Storage struct {
	client   objectAPI
	bucket   string
	prefix   string
	spoolDir string
	executor *resilience.Executor
}

func New(ctx context.Context, opts Options) (*Storage, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, errors.New("s3 bucket is required")
	}
	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})
	return newWithClient(client, opts), nil
}

func newWithClient(client objectAPI, opts Options) *Storage {
	return &Storage{
		client:   client,
		bucket:   opts.Bucket,
		prefix:   strings.Trim(opts.Prefix, "/"),
		spoolDir: opts.SpoolDir,
		executor: opts.Executor,
	}
}

// Save spools data to a temporary file so the request body is seekable for
// signing and for retries, then uploads it.
func (s *Storage) Save(ctx context.Context, key string, data io.Reader) (string, error) {
	if key == "" || strings.Contains(key, "..") {
		return "", domain.WrapError(domain.ErrInvalidInput, "s3 save", fmt.Errorf("invalid key %q", key))
	}
	spool, err := os.CreateTemp(s.spoolDir, "s3-spool-*")
	if err != nil {
		return "", fmt.Errorf("create spool file: %w", err)
	}
	defer func() {
		_ = spool.Close()
		_ = os.Remove(spool.Name())
	}()
	size, err := io.Copy(spool, data)
	if err != nil {
		return "", fmt.Errorf("spool upload: %w", err)
	}

	objectKey := s.objectKey(key)
	err = s.executor.Execute(ctx, "s3.put_object", func(ctx context.Context) error {
		if _, err := spool.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("rewind spool: %w", err)
		}
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(objectKey),
			Body:          spool,
			ContentLength: aws.Int64(size),
		})
		return err
	}, classifyS3Error)
	if err != nil {
		return "", wrapStorageError("s3 put object", err)
	}
	return LocatorScheme + s.bucket + "/" + objectKey, nil
}

func (s *Storage) Open(ctx context.Context, locator string) (io.ReadCloser, error) {
	bucket, key, err := parseLocator(locator)
	if err != nil {
		return nil, err
	}
	out, err := resilience.Call(ctx, s.executor, "s3.get_object", func(ctx context.Context) (*s3.GetObjectOutput, error) {
		return s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
	}, classifyS3Error)
	if err != nil {
		return nil, wrapStorageError("s3 get object", err)
	}
	return out.Body, nil
}

func (s *Storage) Delete(ctx context.Context, locator string) error {
	bucket, key, err := parseLocator(locator)
	if err != nil {
		return err
	}
	err = s.executor.Execute(ctx, "s3.delete_object", func(ctx context.Context) error {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		return err
	}, classifyS3Error)
	if err != nil {
		return wrapStorageError("s3 delete object", err)
	}
	return nil
}

func (s *Storage) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

func parseLocator(locator string) (string, string, error) {
	rest, ok := strings.CutPrefix(locator, LocatorScheme)
	if !ok {
		return "", "", domain.WrapError(domain.ErrInvalidInput, "parse locator", fmt.Errorf("unsupported locator %q", locator))
	}
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", domain.WrapError(domain.ErrInvalidInput, "parse locator", fmt.Errorf("malformed locator %q", locator))
	}
	return bucket, key, nil
}

func isMissingObject(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchKey")
}

func classifyS3Error(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case isMissingObject(err):
		return resilience.ErrorClassification{}
	case resilience.IsCircuitOpen(err):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorFault() == smithy.FaultClient {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
}

func wrapStorageError(op string, err error) error {
	if isMissingObject(err) {
		return domain.WrapError(domain.ErrNotFound, op, err)
	}
	if classifyS3Error(err).Retryable || resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrStorageUnavailable, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
