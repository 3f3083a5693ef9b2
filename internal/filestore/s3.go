package filestore

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	commons3 "github.com/xxxsen/common/s3"
)

type s3Args struct {
	Endpoint  string `json:"endpoint"`
	SecretID  string `json:"secret_id"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
	Prefix    string `json:"prefix"`
	UseSSL    bool   `json:"use_ssl"`
}

// s3Store is write-only: the client wrapper only exposes uploads, and the
// ingestion pipeline never reads raw files back (it extracts from the upload
// bytes in memory). Delete reports unsupported and callers treat object
// removal as best-effort.
type s3Store struct {
	client *commons3.S3Client
	prefix string
}

func init() {
	Register("s3", newS3Store)
}

func newS3Store(args interface{}) (Store, error) {
	sa := &s3Args{}
	if err := decodeArgs(args, sa); err != nil {
		return nil, err
	}
	if sa.Endpoint == "" || sa.Bucket == "" || sa.SecretID == "" || sa.SecretKey == "" {
		return nil, fmt.Errorf("s3 endpoint/bucket/secret_id/secret_key are required")
	}
	if sa.Region == "" {
		sa.Region = "us-east-1"
	}
	client, err := commons3.New(
		commons3.WithEndpoint(sa.Endpoint),
		commons3.WithSecret(sa.SecretID, sa.SecretKey),
		commons3.WithBucket(sa.Bucket),
		commons3.WithRegion(sa.Region),
		commons3.WithSSL(sa.UseSSL),
	)
	if err != nil {
		return nil, err
	}
	return &s3Store{client: client, prefix: strings.Trim(sa.Prefix, "/")}, nil
}

func (s *s3Store) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

func (s *s3Store) Save(ctx context.Context, key string, r io.ReadSeekCloser, size int64) error {
	if !validKey(key) {
		return fmt.Errorf("invalid file key %q", key)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := s.client.Upload(ctx, s.objectKey(key), r, size); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

func (s *s3Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	_ = ctx
	return nil, fmt.Errorf("s3 store does not support open (key %s)", key)
}

func (s *s3Store) Delete(ctx context.Context, key string) error {
	_ = ctx
	return fmt.Errorf("s3 store does not support delete (key %s)", key)
}
