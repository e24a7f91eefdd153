package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"vaultx/internal/domain"
)

// presignTTL is the longest expiry S3 accepts for a presigned GET.
const presignTTL = 7 * 24 * time.Hour

type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// S3Store uploads artifacts to an S3-compatible bucket and returns presigned
// download URLs.
type S3Store struct {
	client     *minio.Client
	bucketName string
	region     string
	initOnce   sync.Once
	initErr    error
}

func NewS3Store(cfg S3Config) (*S3Store, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &S3Store{client: client, bucketName: bucket, region: region}, nil
}

func (s *S3Store) ensureBucket(ctx context.Context) error {
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucketName)
		if err != nil {
			s.initErr = err
			return
		}
		if exists {
			return
		}
		s.initErr = s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{Region: s.region})
	})
	return s.initErr
}

func (s *S3Store) Save(ctx context.Context, key string, m domain.Media) (string, error) {
	cleanKey, err := SanitizeKey(key)
	if err != nil {
		return "", err
	}
	if err := s.ensureBucket(ctx); err != nil {
		return "", fmt.Errorf("ensure bucket: %w", err)
	}
	contentType := m.MIMEType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err = s.client.PutObject(ctx, s.bucketName, cleanKey, bytes.NewReader(m.Data), int64(len(m.Data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucketName, cleanKey, presignTTL, nil)
	if err != nil {
		return "", fmt.Errorf("presign object: %w", err)
	}
	return u.String(), nil
}

// Load fetches the object behind a presigned URL issued by this store. Both
// path-style and virtual-host-style URLs are accepted.
func (s *S3Store) Load(ctx context.Context, locator string) (domain.Media, error) {
	u, err := url.Parse(locator)
	if err != nil || u.Host == "" {
		return domain.Media{}, fmt.Errorf("%w: %s", ErrNotLoadable, locator)
	}
	key := strings.TrimPrefix(u.Path, "/")
	key = strings.TrimPrefix(key, s.bucketName+"/")
	cleanKey, err := SanitizeKey(key)
	if err != nil {
		return domain.Media{}, err
	}

	obj, err := s.client.GetObject(ctx, s.bucketName, cleanKey, minio.GetObjectOptions{})
	if err != nil {
		return domain.Media{}, fmt.Errorf("get object: %w", err)
	}
	defer obj.Close()
	info, err := obj.Stat()
	if err != nil {
		return domain.Media{}, fmt.Errorf("stat object: %w", err)
	}
	data, err := io.ReadAll(obj)
	if err != nil {
		return domain.Media{}, fmt.Errorf("read object: %w", err)
	}
	contentType := info.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return domain.Media{MIMEType: contentType, Data: data}, nil
}

var (
	_ Store  = (*S3Store)(nil)
	_ Loader = (*S3Store)(nil)
)
