// Package storage holds the object-storage integrations behind the proxy's
// presign endpoint: an S3-compatible presigner for production and a local
// filesystem store for development.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Presigner issues time-limited write and read URLs against an
// S3-compatible bucket (AWS S3, Cloudflare R2).
type S3Presigner struct {
	presign    *s3.PresignClient
	bucket     string
	publicBase string
}

// NewS3Presigner loads the default AWS credential chain for the region and
// wraps a presign client around it. publicBase, when set, is the CDN base the
// bucket is exposed through.
func NewS3Presigner(ctx context.Context, region, bucket, publicBase string) (*S3Presigner, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("storage: bucket is required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &S3Presigner{
		presign:    s3.NewPresignClient(client),
		bucket:     bucket,
		publicBase: strings.TrimRight(publicBase, "/"),
	}, nil
}

// PresignPut returns a write URL for the key plus the public URL the object
// will be readable from, if a public base is configured.
func (p *S3Presigner) PresignPut(ctx context.Context, key, contentType string, expires time.Duration) (writeURL, publicURL string, err error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	req, err := p.presign.PresignPutObject(ctx, input, func(opts *s3.PresignOptions) {
		opts.Expires = expires
	})
	if err != nil {
		return "", "", fmt.Errorf("storage: presign put %s: %w", key, err)
	}
	if p.publicBase != "" {
		publicURL = p.publicBase + "/" + key
	}
	return req.URL, publicURL, nil
}

// PresignGet returns a read URL for the key.
func (p *S3Presigner) PresignGet(ctx context.Context, key string, expires time.Duration) (string, error) {
	req, err := p.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expires
	})
	if err != nil {
		return "", fmt.Errorf("storage: presign get %s: %w", key, err)
	}
	return req.URL, nil
}
