// Package publish uploads generated pipeline artifacts to remote storage.
package publish

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/errgroup"

	"github.com/me/cwl2nf/internal/convert"
)

// Publisher stores the artifacts of one conversion under name and returns
// their location.
type Publisher interface {
	Publish(ctx context.Context, name string, arts []convert.Artifact) (string, error)
}

// Uploader is the subset of the S3 upload manager used by S3Publisher.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Publisher uploads artifacts to s3://bucket/prefix/<name>/.
type S3Publisher struct {
	bucket      string
	prefix      string
	region      string
	concurrency int
	uploader    Uploader
	logger      *slog.Logger
}

// Option configures an S3Publisher.
type Option func(*S3Publisher)

// WithUploader replaces the S3 upload manager.
func WithUploader(u Uploader) Option { return func(p *S3Publisher) { p.uploader = u } }

// WithRegion sets the AWS region used when building the default client.
func WithRegion(region string) Option { return func(p *S3Publisher) { p.region = region } }

// WithConcurrency bounds the number of parallel uploads.
func WithConcurrency(n int) Option { return func(p *S3Publisher) { p.concurrency = n } }

// ParseTarget splits an s3://bucket/prefix URL.
func ParseTarget(target string) (bucket, prefix string, err error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", "", fmt.Errorf("parse publish target %q: %w", target, err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("publish target %q: want s3://bucket[/prefix]", target)
	}
	return u.Host, strings.Trim(u.Path, "/"), nil
}

// NewS3Publisher creates a publisher for target. Without WithUploader the
// default AWS credential chain is loaded.
func NewS3Publisher(ctx context.Context, target string, logger *slog.Logger, opts ...Option) (*S3Publisher, error) {
	bucket, prefix, err := ParseTarget(target)
	if err != nil {
		return nil, err
	}
	p := &S3Publisher{
		bucket:      bucket,
		prefix:      prefix,
		concurrency: 4,
		logger:      logger.With("component", "publisher"),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.uploader == nil {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if p.region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(p.region))
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		p.uploader = manager.NewUploader(s3.NewFromConfig(cfg))
	}
	if p.concurrency < 1 {
		p.concurrency = 1
	}
	return p, nil
}

// Location returns the URL artifacts published under name end up at.
func (p *S3Publisher) Location(name string) string {
	return "s3://" + p.bucket + "/" + p.key(name, "")
}

func (p *S3Publisher) key(name, file string) string {
	k := path.Join(p.prefix, name, file)
	if file == "" {
		k += "/"
	}
	return strings.TrimPrefix(k, "/")
}

// Publish uploads every artifact. The first failed upload cancels the rest.
func (p *S3Publisher) Publish(ctx context.Context, name string, arts []convert.Artifact) (string, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, a := range arts {
		key := p.key(name, a.Name)
		g.Go(func() error {
			_, err := p.uploader.Upload(ctx, &s3.PutObjectInput{
				Bucket:      aws.String(p.bucket),
				Key:         aws.String(key),
				Body:        bytes.NewReader(a.Data),
				ContentType: aws.String(contentType(a.Name)),
			})
			if err != nil {
				return fmt.Errorf("upload s3://%s/%s: %w", p.bucket, key, err)
			}
			p.logger.Debug("uploaded", "bucket", p.bucket, "key", key, "bytes", len(a.Data))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	loc := p.Location(name)
	p.logger.Info("artifacts published", "location", loc, "files", len(arts))
	return loc, nil
}

func contentType(name string) string {
	switch path.Ext(name) {
	case ".json":
		return "application/json"
	case ".sh":
		return "text/x-shellscript"
	}
	return "text/plain; charset=utf-8"
}
