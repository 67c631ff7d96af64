package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog/log"
)

// Client is the subset of the S3 API the gateway uses. *s3.Client satisfies
// it; tests substitute an in-memory fake.
type Client interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Presigner is the presigning subset of the S3 API. *s3.PresignClient
// satisfies it.
type Presigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Store implements Store against an S3 bucket.
type S3Store struct {
	client    Client
	presigner Presigner
	bucket    string
}

var _ Store = (*S3Store)(nil)

// NewS3Store creates a gateway over the given bucket.
func NewS3Store(client Client, presigner Presigner, bucket string) *S3Store {
	return &S3Store{client: client, presigner: presigner, bucket: bucket}
}

func (s *S3Store) Put(ctx context.Context, key string, body io.Reader, contentType string) error {
	start := time.Now()
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               &s.bucket,
		Key:                  &key,
		Body:                 body,
		ContentType:          &contentType,
		ServerSideEncryption: types.ServerSideEncryptionAwsKms,
	})
	if err != nil {
		return classify("put", key, err)
	}
	log.Debug().Str("key", key).Str("contentType", contentType).Dur("duration", time.Since(start)).Msg("Object stored")
	return nil
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		return nil, classify("get", key, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, ErrTransient)
	}
	return data, nil
}

func (s *S3Store) List(ctx context.Context, prefix string) ([]string, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: &s.bucket,
		Prefix: &prefix,
	}

	var keys []string
	for {
		result, err := s.client.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, classify("list", prefix, err)
		}
		for _, obj := range result.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		if result.NextContinuationToken == nil {
			break
		}
		input.ContinuationToken = result.NextContinuationToken
	}
	return keys, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		err = classify("delete", key, err)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	return nil
}

func (s *S3Store) DeletePrefix(ctx context.Context, prefix string) error {
	keys, err := s.List(ctx, prefix)
	if err != nil {
		return fmt.Errorf("delete prefix %s: %w", prefix, err)
	}
	for _, key := range keys {
		if err := s.Delete(ctx, key); err != nil {
			return fmt.Errorf("delete prefix %s: %w", prefix, err)
		}
	}
	if len(keys) > 0 {
		log.Debug().Str("prefix", prefix).Int("deleted", len(keys)).Msg("Prefix cleared")
	}
	return nil
}

func (s *S3Store) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	result, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	}, func(opts *s3.PresignOptions) {
		opts.Expires = ttl
	})
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return result.URL, nil
}

// PutBytes is a convenience wrapper for small in-memory payloads.
func PutBytes(ctx context.Context, s Store, key string, data []byte, contentType string) error {
	return s.Put(ctx, key, bytes.NewReader(data), contentType)
}

// credentialErrorCodes are S3 error codes that indicate a configuration
// problem rather than anything retryable.
var credentialErrorCodes = map[string]bool{
	"InvalidAccessKeyId":      true,
	"SignatureDoesNotMatch":   true,
	"ExpiredToken":            true,
	"AccessDenied":            true,
	"CredentialsNotSupported": true,
}

// classify maps an SDK error onto the package's error taxonomy while keeping
// the operation and key in the message.
func classify(op, key string, err error) error {
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return fmt.Errorf("%s %s: %w", op, key, ErrNotFound)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		switch {
		case code == "NoSuchKey" || code == "NotFound" || code == "NoSuchBucket":
			return fmt.Errorf("%s %s: %w", op, key, ErrNotFound)
		case credentialErrorCodes[code]:
			return fmt.Errorf("%s %s: %s: %w", op, key, code, ErrCredentials)
		}
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() >= 500 {
		return fmt.Errorf("%s %s: status %d: %w", op, key, respErr.HTTPStatusCode(), ErrTransient)
	}

	// Connection resets, timeouts, and anything unclassified: retryable.
	return fmt.Errorf("%s %s: %v: %w", op, key, err, ErrTransient)
}
