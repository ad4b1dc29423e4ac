package store

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectProvider stores each key as one object in a MinIO/S3 bucket.
type ObjectProvider struct {
	client *minio.Client
	bucket string
}

// NewObjectProvider connects to MinIO and ensures the bucket exists.
func NewObjectProvider(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*ObjectProvider, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return &ObjectProvider{client: client, bucket: bucket}, nil
}

func (p *ObjectProvider) Get(ctx context.Context, key string) (string, bool, error) {
	obj, err := p.client.GetObject(ctx, p.bucket, objectName(key), minio.GetObjectOptions{})
	if err != nil {
		return "", false, fmt.Errorf("get object: %w", err)
	}
	defer obj.Close()
	b, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read object: %w", err)
	}
	return string(b), true, nil
}

func (p *ObjectProvider) Set(ctx context.Context, key, value string) error {
	_, err := p.client.PutObject(ctx, p.bucket, objectName(key), strings.NewReader(value), int64(len(value)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

func (p *ObjectProvider) Remove(ctx context.Context, key string) error {
	if err := p.client.RemoveObject(ctx, p.bucket, objectName(key), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

func objectName(key string) string {
	return safeFilename(key) + ".json"
}
