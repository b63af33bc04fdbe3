package source

import (
	"context"
	"fmt"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"

	"github.com/IQzhan/abload"
)

// S3Options configures an S3-compatible bundle store (AWS S3, MinIO, ...).
type S3Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	Bucket    string
	Prefix    string
	Target    string
}

// S3 reads bundles from <Bucket>/<Prefix>/<bundle name>; the manifest is the
// object <Prefix>/<Target>.
type S3 struct {
	client *minio.Client
	bucket string
	prefix string
	target string
}

func NewS3(opts S3Options) (*S3, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("new s3 source: bucket is empty")
	}
	if opts.Target == "" {
		return nil, fmt.Errorf("new s3 source: target is empty")
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	log.Info().
		Str("endpoint", opts.Endpoint).
		Str("bucket", opts.Bucket).
		Bool("ssl", opts.UseSSL).
		Msg("S3 bundle source initialized")

	return &S3{client: client, bucket: opts.Bucket, prefix: opts.Prefix, target: opts.Target}, nil
}

func (s *S3) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

func (s *S3) Fetch(ctx context.Context, name string, version string, progress *abload.Progress) (abload.Handle, error) {
	data, err := s.download(ctx, s.key(name), progress)
	if err != nil {
		return nil, err
	}
	return &Bundle{Name: name, Version: version, Data: data}, nil
}

func (s *S3) FetchManifest(ctx context.Context) (abload.Manifest, error) {
	data, err := s.download(ctx, s.key(s.target), nil)
	if err != nil {
		return nil, err
	}
	return abload.ParseManifest(data)
}

func (s *S3) download(ctx context.Context, key string, progress *abload.Progress) ([]byte, error) {
	stat, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object info: %w", err)
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}
	defer obj.Close()

	data, err := readAll(obj, stat.Size, progress)
	if err != nil {
		return nil, fmt.Errorf("failed to read S3 object %s: %w", key, err)
	}
	log.Debug().
		Str("bucket", s.bucket).
		Str("key", key).
		Int64("size", stat.Size).
		Msg("Object downloaded from S3")
	return data, nil
}
