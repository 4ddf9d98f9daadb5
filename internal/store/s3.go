package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"

	"github.com/fpang/photo-derive/internal/filehandler"
)

// projectTag is the URL-encoded S3 object tagging string for cost allocation.
const projectTag = "Project=photo-derive"

// S3API is the subset of *s3.Client used by S3.
type S3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 stores objects addressed as s3://bucket/key.
type S3 struct {
	client     S3API
	tagObjects bool
}

var _ Store = (*S3)(nil)

// NewS3 wraps an S3 client. When tagObjects is set, written objects carry
// the Project cost-allocation tag.
func NewS3(client S3API, tagObjects bool) *S3 {
	return &S3{client: client, tagObjects: tagObjects}
}

// NewS3FromDefaultConfig loads the default AWS credential chain, optionally
// overriding the region, and returns an S3 store.
func NewS3FromDefaultConfig(ctx context.Context, region string, tagObjects bool) (*S3, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return NewS3(s3.NewFromConfig(cfg), tagObjects), nil
}

// ParseURL splits s3://bucket/key into its bucket and key.
func ParseURL(url string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(url, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 URL: %s", url)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 URL needs bucket and key: %s", url)
	}
	return bucket, key, nil
}

// Exists issues HeadObject and maps 404 to false.
func (s *S3) Exists(ctx context.Context, path string) (bool, error) {
	bucket, key, err := ParseURL(path)
	if err != nil {
		return false, err
	}
	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &bucket, Key: &key})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("S3 HeadObject %s: %w", path, err)
}

// Read downloads the whole object.
func (s *S3) Read(ctx context.Context, path string) ([]byte, error) {
	bucket, key, err := ParseURL(path)
	if err != nil {
		return nil, err
	}

	log.Debug().Str("bucket", bucket).Str("key", key).Msg("Downloading from S3")
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &bucket, Key: &key})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("S3 GetObject %s: %w", path, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", path, err)
	}
	return data, nil
}

// Write uploads data with a content type derived from the key's extension.
// PutObject is atomic from a reader's point of view.
func (s *S3) Write(ctx context.Context, path string, data []byte) error {
	bucket, key, err := ParseURL(path)
	if err != nil {
		return err
	}

	input := &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: aws.String(filehandler.ContentTypeFor(key)),
	}
	if s.tagObjects {
		input.Tagging = aws.String(projectTag)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("S3 PutObject %s: %w", path, err)
	}

	log.Debug().Str("bucket", bucket).Str("key", key).Int("size", len(data)).Msg("Uploaded to S3")
	return nil
}

func isNotFound(err error) bool {
	var notFound *s3types.NotFound
	var noSuchKey *s3types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return true
	}
	var respErr *awshttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}
