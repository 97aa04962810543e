package archive

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gofiber/fiber/v2/log"
)

// downloadTimeout bounds the fetch of a provider output; render results can
// be large videos.
const downloadTimeout = 5 * time.Minute

// Client wraps the S3 client with render-archive functionality
type Client struct {
	s3Client   *s3.Client
	httpClient *http.Client
	config     *Config
}

// NewClient creates a new S3 archive client
func NewClient(cfg *Config) (*Client, error) {
	if !cfg.IsEnabled() {
		return nil, fmt.Errorf("S3 archiving is disabled")
	}

	// Create AWS config
	awsConfig, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Create S3 client
	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			// S3-compatible services need path-style URLs
			o.UsePathStyle = true
			o.UseAccelerate = false
		}
	})

	client := &Client{
		s3Client:   s3Client,
		httpClient: &http.Client{Timeout: downloadTimeout},
		config:     cfg,
	}

	// Test connection
	if err := client.testConnection(); err != nil {
		return nil, fmt.Errorf("failed to connect to S3: %w", err)
	}

	log.Infof("[Archive] Successfully initialized S3 client for bucket: %s", cfg.GetBucketName())
	return client, nil
}

// testConnection tests the S3 connection by checking if the bucket exists
func (c *Client) testConnection() error {
	ctx := context.Background()
	bucketName := c.config.GetBucketName()

	_, err := c.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(bucketName),
	})

	if err != nil {
		// If bucket doesn't exist, try to create it (for development)
		if GetAppEnv() != "prod" {
			log.Warnf("[Archive] Bucket %s not found, attempting to create it", bucketName)
			return c.createBucket(bucketName)
		}
		return fmt.Errorf("bucket %s not accessible: %w", bucketName, err)
	}

	return nil
}

// createBucket creates a new S3 bucket (dev/staging only)
func (c *Client) createBucket(bucketName string) error {
	ctx := context.Background()

	input := &s3.CreateBucketInput{
		Bucket: aws.String(bucketName),
	}

	// For AWS regions other than us-east-1 the location constraint is
	// required; S3-compatible endpoints reject it.
	if c.config.EndpointURL == "" && c.config.Region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(c.config.Region),
		}
	}

	_, err := c.s3Client.CreateBucket(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", bucketName, err)
	}

	log.Infof("[Archive] Successfully created bucket: %s", bucketName)
	return nil
}

// ArchiveResult contains information about a stored render output
type ArchiveResult struct {
	BucketName  string
	ObjectKey   string
	Size        int64
	ContentType string
}

// ArchiveOutput streams a provider output URL into the archive bucket. The
// provider's CDN URLs expire, so completed renders are copied to permanent
// storage as soon as the completion webhook lands.
func (c *Client) ArchiveOutput(ctx context.Context, jobUUID, outputURL string) (*ArchiveResult, error) {
	bucketName := c.config.GetBucketName()
	objectKey := c.config.GetObjectKey(jobUUID, outputURL, time.Now())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, outputURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build output download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download render output: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("render output download returned status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	log.Infof("[Archive] Starting upload: %s -> s3://%s/%s", outputURL, bucketName, objectKey)

	putInput := &s3.PutObjectInput{
		Bucket:      aws.String(bucketName),
		Key:         aws.String(objectKey),
		Body:        resp.Body,
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"source-url":    outputURL,
			"upload-source": "renderforge-archive",
		},
	}
	if resp.ContentLength > 0 {
		putInput.ContentLength = aws.Int64(resp.ContentLength)
	}

	if _, err := c.s3Client.PutObject(ctx, putInput); err != nil {
		return nil, fmt.Errorf("failed to upload to S3: %w", err)
	}

	result := &ArchiveResult{
		BucketName:  bucketName,
		ObjectKey:   objectKey,
		Size:        resp.ContentLength,
		ContentType: contentType,
	}

	log.Infof("[Archive] Successfully uploaded: s3://%s/%s", bucketName, objectKey)
	return result, nil
}

// DeleteObject deletes an archived output from S3
func (c *Client) DeleteObject(ctx context.Context, objectKey string) error {
	bucketName := c.config.GetBucketName()

	_, err := c.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object from S3: %w", err)
	}

	log.Infof("[Archive] Deleted: s3://%s/%s", bucketName, objectKey)
	return nil
}
