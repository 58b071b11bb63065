// Package storage talks to the S3-compatible bucket (MinIO in development)
// that holds ingredient images.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"makecoffee/internal/config"
	applog "makecoffee/internal/log"
)

// ErrNotConfigured is returned by Disabled for every call.
var ErrNotConfigured = errors.New("object storage is not configured")

// s3Client is the subset of *s3.Client the store needs.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type presigner interface {
	PresignGetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.PresignOptions)) (*PresignedRequest, error)
}

// PresignedRequest mirrors the fields of the SDK's presigned request we use.
type PresignedRequest struct {
	URL string
}

type sdkPresigner struct {
	client *s3.PresignClient
}

func (p sdkPresigner) PresignGetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.PresignOptions)) (*PresignedRequest, error) {
	req, err := p.client.PresignGetObject(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return &PresignedRequest{URL: req.URL}, nil
}

// S3Store stores objects in a single bucket.
type S3Store struct {
	client    s3Client
	presigner presigner
	bucket    string
	baseURL   string
}

// New builds an S3Store using static credentials and path-style addressing.
func New(cfg config.StorageConfig) *S3Store {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	client := s3.New(opts)
	return &S3Store{
		client:    client,
		presigner: sdkPresigner{client: s3.NewPresignClient(client)},
		bucket:    cfg.Bucket,
		baseURL:   objectBaseURL(cfg),
	}
}

func objectBaseURL(cfg config.StorageConfig) string {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://s3.%s.amazonaws.com", cfg.Region)
	}
	return endpoint + "/" + cfg.Bucket
}

// Bucket returns the bucket the store writes to.
func (s *S3Store) Bucket() string {
	return s.bucket
}

// Put uploads body under key and returns the object's path-style URL.
func (s *S3Store) Put(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("put object %s/%s: %w", s.bucket, key, err)
	}
	applog.Debug(ctx, "object stored", "bucket", s.bucket, "key", key)
	return s.objectURL(key), nil
}

// Delete removes key. Deleting a missing key succeeds, so retries are safe.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("delete object %s/%s: %w", s.bucket, key, err)
	}
	applog.Debug(ctx, "object deleted", "bucket", s.bucket, "key", key)
	return nil
}

// Presign returns a time-limited GET URL for key.
func (s *S3Store) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign object %s/%s: %w", s.bucket, key, err)
	}
	return req.URL, nil
}

func (s *S3Store) objectURL(key string) string {
	return s.baseURL + "/" + (&url.URL{Path: key}).EscapedPath()
}

// Disabled stands in when no bucket is configured; every call fails.
type Disabled struct{}

func (Disabled) Put(context.Context, string, string, io.Reader) (string, error) {
	return "", ErrNotConfigured
}

func (Disabled) Delete(context.Context, string) error {
	return ErrNotConfigured
}

func (Disabled) Presign(context.Context, string, time.Duration) (string, error) {
	return "", ErrNotConfigured
}
