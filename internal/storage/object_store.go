package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"picturecoupon/internal/config"
)

type ObjectStore struct {
	client *minio.Client
	cfg    config.StorageConfig
}

func NewObjectStore(cfg config.StorageConfig) (*ObjectStore, error) {
	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL

	if strings.HasPrefix(endpoint, "http") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse endpoint: %w", err)
		}
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}

	return &ObjectStore{
		client: client,
		cfg:    cfg,
	}, nil
}

func (s *ObjectStore) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{s.cfg.BucketOriginals, s.cfg.BucketVariants} {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("bucket exists %s: %w", bucket, err)
		}
		if !exists {
			if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
	}
	return nil
}

// Ping checks that the originals bucket is reachable.
func (s *ObjectStore) Ping(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.BucketOriginals)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("bucket %s missing", s.cfg.BucketOriginals)
	}
	return nil
}

func (s *ObjectStore) OriginalsBucket() string {
	return s.cfg.BucketOriginals
}

func (s *ObjectStore) VariantsBucket() string {
	return s.cfg.BucketVariants
}

// Put stores data and returns the size recorded by the object store.
func (s *ObjectStore) Put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) (int64, error) {
	info, err := s.client.PutObject(ctx, bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return 0, fmt.Errorf("put object %s/%s: %w", bucket, key, err)
	}
	return info.Size, nil
}

func (s *ObjectStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s/%s: %w", bucket, key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read object %s/%s: %w", bucket, key, err)
	}
	return data, nil
}

func (s *ObjectStore) Remove(ctx context.Context, bucket, key string) error {
	if err := s.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s/%s: %w", bucket, key, err)
	}
	return nil
}

// RemovePrefix deletes every object under prefix, used for thumbnail variants.
func (s *ObjectStore) RemovePrefix(ctx context.Context, bucket, prefix string) error {
	objects := s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true})
	for errResult := range s.client.RemoveObjects(ctx, bucket, objects, minio.RemoveObjectsOptions{}) {
		if errResult.Err != nil {
			return fmt.Errorf("remove object %s/%s: %w", bucket, errResult.ObjectName, errResult.Err)
		}
	}
	return nil
}

func (s *ObjectStore) PublicURL(bucket, key string) string {
	return PublicURL(s.cfg, bucket, key)
}

// PublicURL builds the browser-facing URL of an object. PublicURL in the
// config wins over the API endpoint when set.
func PublicURL(cfg config.StorageConfig, bucket, key string) string {
	base := cfg.PublicURL
	if base == "" {
		base = cfg.Endpoint
	}
	base = strings.TrimSuffix(base, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		scheme := "https://"
		if !cfg.UseSSL && cfg.PublicURL == "" {
			scheme = "http://"
		}
		base = scheme + base
	}
	return fmt.Sprintf("%s/%s/%s", base, bucket, key)
}
