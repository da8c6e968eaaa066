package session

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/pkg/errors"
)

// Publisher makes a finished artifact downloadable and returns its URL.
type Publisher interface {
	Publish(ctx context.Context, path, name string) (string, error)
}

// LocalPublisher serves artifacts straight from the export directory.
type LocalPublisher struct {
	BaseURL string
}

func (p LocalPublisher) Publish(_ context.Context, _, name string) (string, error) {
	return strings.TrimRight(p.BaseURL, "/") + "/exports/" + url.PathEscape(name), nil
}

// objectStore is the part of *minio.Client the publisher uses.
type objectStore interface {
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
}

// MinioPublisher uploads artifacts to a bucket and hands out presigned links.
type MinioPublisher struct {
	client objectStore
	bucket string
	expiry time.Duration
}

func NewMinioPublisher(client objectStore, bucket string, expiry time.Duration) *MinioPublisher {
	return &MinioPublisher{client: client, bucket: bucket, expiry: expiry}
}

func (p *MinioPublisher) Publish(ctx context.Context, path, name string) (string, error) {
	if _, err := p.client.FPutObject(ctx, p.bucket, name, path, minio.PutObjectOptions{ContentType: "text/csv"}); err != nil {
		return "", errors.Wrapf(err, "failed to upload %s", name)
	}
	params := url.Values{}
	params.Set("response-content-disposition", `attachment; filename="`+name+`"`)
	link, err := p.client.PresignedGetObject(ctx, p.bucket, name, p.expiry, params)
	if err != nil {
		return "", errors.Wrapf(err, "failed to presign %s", name)
	}
	return link.String(), nil
}
