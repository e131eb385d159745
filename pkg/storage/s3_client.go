package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Client stores generated documents (retirement certificates, report
// exports) under a single bucket.
type Client interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	PresignedURL(ctx context.Context, key string, expiration time.Duration) (string, error)
}

// S3Client implements Client over AWS S3
type S3Client struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

// NewS3Client builds a client from the ambient AWS credential chain
func NewS3Client(ctx context.Context, bucket, region string) (*S3Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg)
	return &S3Client{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  bucket,
	}, nil
}

func (c *S3Client) Upload(ctx context.Context, key string, body io.Reader, contentType string) error {
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

func (c *S3Client) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", key, err)
	}
	return out.Body, nil
}

func (c *S3Client) Delete(ctx context.Context, key string) error {
	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (c *S3Client) PresignedURL(ctx context.Context, key string, expiration time.Duration) (string, error) {
	req, err := c.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiration))
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return req.URL, nil
}

// MemoryClient is an in-process Client for development and tests
type MemoryClient struct {
	mu      sync.RWMutex
	objects map[string][]byte
	baseURL string
}

func NewMemoryClient(baseURL string) *MemoryClient {
	return &MemoryClient{
		objects: make(map[string][]byte),
		baseURL: baseURL,
	}
}

func (c *MemoryClient) Upload(_ context.Context, key string, body io.Reader, _ string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.objects[key] = data
	c.mu.Unlock()
	return nil
}

func (c *MemoryClient) Download(_ context.Context, key string) (io.ReadCloser, error) {
	c.mu.RLock()
	data, ok := c.objects[key]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (c *MemoryClient) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.objects, key)
	c.mu.Unlock()
	return nil
}

func (c *MemoryClient) PresignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return c.baseURL + "/" + key, nil
}
