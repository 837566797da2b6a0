package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "github.com/stylemirror/tryon-api/internal/config"
)

// StorageService stores try-on result images in S3-compatible object
// storage (Tigris, MinIO, AWS).
type StorageService struct {
	client    *s3.Client
	bucket    string
	publicURL string
	enabled   bool
	logger    *slog.Logger
}

// NewStorageService creates the storage service. With no bucket
// configured it stays disabled and callers skip durable storage.
func NewStorageService(cfg *appconfig.Config, logger *slog.Logger) (*StorageService, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.StorageEnabled {
		logger.Info("storage service disabled - no bucket configured")
		return &StorageService{enabled: false, logger: logger}, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.StorageRegion),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.StorageAccessKey,
			cfg.StorageSecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.StorageEndpoint)
		o.UsePathStyle = true // Required for some S3-compatible services
	})

	publicURL := cfg.StoragePublicURL
	if publicURL == "" {
		publicURL = strings.TrimSuffix(cfg.StorageEndpoint, "/") + "/" + cfg.StorageBucket
	}

	logger.Info("storage service initialized",
		"bucket", cfg.StorageBucket,
		"endpoint", cfg.StorageEndpoint,
	)

	return &StorageService{
		client:    client,
		bucket:    cfg.StorageBucket,
		publicURL: strings.TrimSuffix(publicURL, "/"),
		enabled:   true,
		logger:    logger,
	}, nil
}

// IsEnabled returns whether storage is configured and available.
func (s *StorageService) IsEnabled() bool {
	return s.enabled
}

// PutResult stores a generated try-on image and returns its public URL.
func (s *StorageService) PutResult(ctx context.Context, sessionID string, data []byte, contentType string) (string, error) {
	if !s.enabled {
		return "", fmt.Errorf("storage is not configured")
	}
	if contentType == "" {
		contentType = "image/jpeg"
	}

	key := "results/" + sessionID + extensionFor(contentType)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to store result: %w", err)
	}
	return s.publicURL + "/" + key, nil
}

// DeleteByURL removes a stored object given its public URL. Unknown URLs
// are ignored so bulk cleanup can pass through external links safely.
func (s *StorageService) DeleteByURL(ctx context.Context, url string) error {
	if !s.enabled {
		return nil
	}
	key, ok := strings.CutPrefix(url, s.publicURL+"/")
	if !ok {
		return nil
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
