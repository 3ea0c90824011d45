package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Store implements Store on top of an S3-compatible object store. One
// instance is safe for concurrent use; the underlying client pools
// connections.
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient

	// UploadSessionTTL bounds how long a browser upload session URL stays
	// valid. Zero means the default of 15 minutes.
	UploadSessionTTL time.Duration
}

// NewS3Store wraps an S3 client as a Store.
func NewS3Store(client *s3.Client) *S3Store {
	return &S3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
	}
}

func (s *S3Store) ListPrefixes(ctx context.Context, bucket, prefix string) ([]string, error) {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	delimiter := "/"

	var folders []string
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    &bucket,
		Prefix:    &prefix,
		Delimiter: &delimiter,
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing prefixes under %s/%s: %w", bucket, prefix, err)
		}
		for _, cp := range page.CommonPrefixes {
			if cp.Prefix == nil {
				continue
			}
			// Full key prefix back to its immediate folder name.
			name := strings.TrimSuffix(strings.TrimPrefix(*cp.Prefix, prefix), "/")
			if name != "" {
				folders = append(folders, name)
			}
		}
	}
	return folders, nil
}

func (s *S3Store) ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	var objects []ObjectInfo
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: &bucket,
		Prefix: &prefix,
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing objects under %s/%s: %w", bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil || strings.HasSuffix(*obj.Key, "/") {
				continue
			}
			info := ObjectInfo{Name: *obj.Key}
			if obj.LastModified != nil {
				info.CreatedAt = *obj.LastModified
			}
			objects = append(objects, info)
		}
	}
	return objects, nil
}

func (s *S3Store) ReadBytes(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, key)
		}
		return nil, fmt.Errorf("reading %s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s/%s body: %w", bucket, key, err)
	}
	return data, nil
}

func (s *S3Store) WriteFile(ctx context.Context, bucket, key, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", localPath, err)
	}
	defer f.Close()

	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
		Body:   f,
	}); err != nil {
		return fmt.Errorf("uploading %s to %s/%s: %w", localPath, bucket, key, err)
	}
	return nil
}

// CreateUploadSession presigns a PUT so the browser writes the object
// directly. Cross-origin access is bucket configuration on S3, so the origin
// argument is accepted for interface parity but not sent.
func (s *S3Store) CreateUploadSession(ctx context.Context, bucket, key, origin string) (string, error) {
	ttl := s.UploadSessionTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presigning upload for %s/%s: %w", bucket, key, err)
	}
	return req.URL, nil
}
