package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// DirOpener reads files from a local directory.
type DirOpener struct {
	Root string
}

// Check reports an error unless the root is an existing directory.
func (d DirOpener) Check(_ context.Context) error {
	info, err := os.Stat(d.Root)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", d.Root, ErrRootNotFound)
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", d.Root)
	}
	return nil
}

// Open opens name under the root directory.
func (d DirOpener) Open(_ context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(d.Root, filepath.FromSlash(name)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", d.Location(name), ErrNotExist)
	}
	return f, err
}

// Exists reports whether name is a regular file under the root.
func (d DirOpener) Exists(_ context.Context, name string) (bool, error) {
	info, err := os.Stat(filepath.Join(d.Root, filepath.FromSlash(name)))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// Location returns the file path.
func (d DirOpener) Location(name string) string {
	return filepath.Join(d.Root, filepath.FromSlash(name))
}

// S3Config holds connection settings for an S3-compatible object store.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// BucketOpener reads objects from an S3-compatible bucket under a prefix.
type BucketOpener struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewBucketOpener wraps an existing client.
func NewBucketOpener(client *minio.Client, bucket, prefix string) *BucketOpener {
	return &BucketOpener{client: client, bucket: bucket, prefix: prefix}
}

func (b *BucketOpener) key(name string) string {
	return path.Join(b.prefix, name)
}

// Check reports an error unless the bucket exists.
func (b *BucketOpener) Check(ctx context.Context) error {
	ok, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", b.bucket, err)
	}
	if !ok {
		return fmt.Errorf("s3://%s: %w", b.bucket, ErrRootNotFound)
	}
	return nil
}

// Open streams the object. A missing object is reported as ErrNotExist.
func (b *BucketOpener) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	ok, err := b.Exists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", b.Location(name), ErrNotExist)
	}

	obj, err := b.client.GetObject(ctx, b.bucket, b.key(name), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", b.Location(name), err)
	}
	return obj, nil
}

// Exists stats the object.
func (b *BucketOpener) Exists(ctx context.Context, name string) (bool, error) {
	_, err := b.client.StatObject(ctx, b.bucket, b.key(name), minio.StatObjectOptions{})
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NotFound" {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", b.Location(name), err)
	}
	return true, nil
}

// Location returns the s3:// URL of the object.
func (b *BucketOpener) Location(name string) string {
	return "s3://" + b.bucket + "/" + b.key(name)
}

// NewOpener returns a BucketOpener for s3://bucket/prefix data roots and a
// DirOpener otherwise.
func NewOpener(dataDir string, cfg S3Config) (Opener, error) {
	rest, ok := strings.CutPrefix(dataDir, "s3://")
	if !ok {
		return DirOpener{Root: dataDir}, nil
	}

	bucket, prefix, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return nil, fmt.Errorf("data dir %q has no bucket", dataDir)
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("data dir %q requires S3_ENDPOINT", dataDir)
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return NewBucketOpener(client, bucket, prefix), nil
}

// IsRemote reports whether dataDir names an object store location.
func IsRemote(dataDir string) bool {
	return strings.HasPrefix(dataDir, "s3://")
}
