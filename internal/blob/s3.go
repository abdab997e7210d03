// Package blob stores snapshot files in an S3-compatible bucket (AWS S3 or
// MinIO).
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Scheme prefixes snapshot locations that live in a bucket.
const Scheme = "s3://"

// ErrNoBucket reports a location without a bucket name.
var ErrNoBucket = errors.New("s3 bucket required")

// Config holds connection settings. Credentials come from the default AWS
// chain (environment, shared files, instance role).
type Config struct {
	Region    string
	Endpoint  string // optional; set for MinIO and other S3-compatible stores
	PathStyle bool
}

// Store reads and writes objects of a single S3 client.
type Store struct {
	client *s3.Client
}

// New creates a Store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &Store{client: client}, nil
}

// Location is a bucket and object key.
type Location struct {
	Bucket string
	Key    string
}

func (l Location) String() string { return Scheme + l.Bucket + "/" + l.Key }

// IsURL reports whether s names a bucket location.
func IsURL(s string) bool {
	return strings.HasPrefix(s, Scheme)
}

// ParseURL reads an s3://bucket/key location.
func ParseURL(raw string) (Location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("parse %q: %w", raw, err)
	}
	if u.Scheme != "s3" {
		return Location{}, fmt.Errorf("%q is not an s3:// location", raw)
	}
	if u.Host == "" {
		return Location{}, fmt.Errorf("%q: %w", raw, ErrNoBucket)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return Location{}, fmt.Errorf("%q: object key required", raw)
	}
	return Location{Bucket: u.Host, Key: key}, nil
}

// Put writes body to loc, replacing any existing object. body should be
// seekable so the payload can be signed without streaming.
func (s *Store) Put(ctx context.Context, loc Location, body io.Reader, contentType string) error {
	input := &s3.PutObjectInput{Bucket: aws.String(loc.Bucket), Key: aws.String(loc.Key), Body: body}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("put %s: %w", loc, err)
	}
	return nil
}

// Get opens the object at loc. The caller closes the reader.
func (s *Store) Get(ctx context.Context, loc Location) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(loc.Bucket), Key: aws.String(loc.Key)})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", loc, err)
	}
	return out.Body, nil
}
