// Package s3util mirrors pipeline artifacts to an S3 bucket.
//
// Local files stay the source of truth; the bucket holds copies under
// <prefix>/<stage>/<filename> so a run can be shared or archived.
package s3util

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/fpang/image-story/internal/config"
	"github.com/fpang/image-story/internal/filehandler"
	"github.com/rs/zerolog/log"
)

// Publisher uploads artifacts to one bucket.
type Publisher struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewPublisher builds a Publisher from the default AWS credential chain.
// cfg.Region overrides the region from the environment when set.
func NewPublisher(ctx context.Context, cfg config.ArtifactConfig) (*Publisher, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewPublisherWithClient(s3.NewFromConfig(awsCfg), cfg.S3Bucket, cfg.S3Prefix), nil
}

// NewPublisherWithClient wraps an existing client.
func NewPublisherWithClient(client *s3.Client, bucket, prefix string) *Publisher {
	return &Publisher{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

// Key returns the object key for a local artifact of the given stage.
func (p *Publisher) Key(stage, localPath string) string {
	return path.Join(p.prefix, stage, filepath.Base(localPath))
}

// Publish uploads the file at localPath and returns its object key.
func (p *Publisher) Publish(ctx context.Context, stage, localPath string) (string, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to read artifact: %w", err)
	}
	key := p.Key(stage, localPath)
	contentType := contentTypeFor(localPath, data)

	log.Debug().
		Str("bucket", p.bucket).
		Str("key", key).
		Int("size_bytes", len(data)).
		Msg("Uploading artifact to S3")

	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &p.bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
		Tagging:     ProjectTagging(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s to S3: %w", key, err)
	}

	log.Info().Str("bucket", p.bucket).Str("key", key).Msg("Artifact uploaded to S3")
	return key, nil
}

// projectTag is the URL-encoded S3 object tagging string for cost allocation.
const projectTag = "Project=image-story"

// ProjectTagging returns a pointer to the URL-encoded S3 object tagging string.
func ProjectTagging() *string {
	t := projectTag
	return &t
}

func contentTypeFor(localPath string, data []byte) string {
	if strings.EqualFold(filepath.Ext(localPath), ".txt") {
		return "text/plain; charset=utf-8"
	}
	return filehandler.GetMIMEType(localPath, data)
}
