// Package publish uploads rendered snapshots to S3 compatible storage.
package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/soypat/raymark/config"
)

// ErrDisabled is returned by New when no bucket is configured.
var ErrDisabled = errors.New("publishing disabled: no bucket configured")

const defaultRegion = "us-east-1"

// Publisher puts objects in a single bucket under a key prefix.
type Publisher struct {
	client  *s3.S3
	bucket  string
	prefix  string
	timeout time.Duration
	log     *slog.Logger
}

// New returns a Publisher for cfg. Path style addressing is used so that
// self hosted endpoints such as MinIO work.
func New(cfg config.Publish, log *slog.Logger) (*Publisher, error) {
	if !cfg.Enabled() {
		return nil, ErrDisabled
	}
	timeout, err := cfg.TimeoutDuration()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}
	awsCfg := &aws.Config{
		Region:           aws.String(region),
		S3ForcePathStyle: aws.Bool(true),
	}
	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("creating S3 session: %w", err)
	}
	return &Publisher{
		client:  s3.New(sess),
		bucket:  cfg.Bucket,
		prefix:  cfg.Prefix,
		timeout: timeout,
		log:     log,
	}, nil
}

// Key returns the object key name is stored under.
func (p *Publisher) Key(name string) string {
	if p.prefix == "" {
		return name
	}
	return path.Join(p.prefix, name)
}

// Upload stores data under the prefixed name and returns the object key.
func (p *Publisher) Upload(ctx context.Context, name, contentType string, data []byte) (string, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	key := p.Key(name)
	size := int64(len(data))
	start := time.Now()
	_, err := p.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", key, err)
	}
	p.log.Info("uploaded snapshot", "bucket", p.bucket, "key", key, "bytes", size, "elapsed", time.Since(start))
	return key, nil
}

// PNG uploads a PNG image.
func (p *Publisher) PNG(ctx context.Context, name string, data []byte) (string, error) {
	return p.Upload(ctx, name, "image/png", data)
}
