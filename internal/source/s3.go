package source

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/JonMunkholm/regingest/internal/record"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectGetter is the part of *s3.Client the reader uses.
type ObjectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// IsS3 reports whether ref is an s3:// reference.
func IsS3(ref string) bool {
	return strings.HasPrefix(strings.ToLower(ref), "s3://")
}

// ParseS3 splits s3://bucket/key.
func ParseS3(ref string) (bucket, key string, err error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", "", fmt.Errorf("parse %q: %w", ref, err)
	}
	if !strings.EqualFold(u.Scheme, "s3") {
		return "", "", fmt.Errorf("%q is not an s3:// reference", ref)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("%q: want s3://bucket/key", ref)
	}
	return u.Host, key, nil
}

// NewS3Client builds an S3 client from the default AWS credential chain. A
// custom endpoint switches to path-style addressing for MinIO/LocalStack.
func NewS3Client(ctx context.Context, cfg Config) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

func (r *Reader) client(ctx context.Context) (ObjectGetter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.s3 != nil {
		return r.s3, nil
	}
	c, err := NewS3Client(ctx, r.cfg)
	if err != nil {
		return nil, err
	}
	r.s3 = c
	return c, nil
}

func (r *Reader) readS3(ctx context.Context, ref string) (*Batch, error) {
	bucket, key, err := ParseS3(ref)
	if err != nil {
		return nil, err
	}
	c, err := r.client(ctx)
	if err != nil {
		return nil, err
	}

	out, err := c.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get %s: %w", ref, err)
	}
	defer func() { _ = out.Body.Close() }()

	records, err := decode(out.Body, record.FormatFromName(path.Base(key)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ref, err)
	}
	return &Batch{Ref: ref, Records: records}, nil
}
