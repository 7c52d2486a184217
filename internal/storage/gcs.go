// Package storage uploads run artifacts to Google Cloud Storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Uploader copies local files to a blob store.
type Uploader interface {
	Upload(ctx context.Context, localPath, objectName string) (string, error)
	Close() error
}

// GCSUploader writes objects once: an existing object is left untouched.
type GCSUploader struct {
	client *gcs.Client
	bucket *gcs.BucketHandle
	name   string
	prefix string
	logger *slog.Logger
}

var _ Uploader = (*GCSUploader)(nil)

// NewGCSUploader dials GCS for bucket. prefix is prepended to every object name.
func NewGCSUploader(ctx context.Context, bucket, prefix string, logger *slog.Logger, opts ...option.ClientOption) (*GCSUploader, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("storage: bucket is required")
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GCSUploader{
		client: client,
		bucket: client.Bucket(bucket),
		name:   bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: logger.With("bucket", bucket),
	}, nil
}

// ObjectName joins the prefix with the given relative parts.
func (u *GCSUploader) ObjectName(parts ...string) string {
	return ObjectName(u.prefix, parts...)
}

// Upload copies localPath to objectName under the uploader prefix and returns
// the gs:// URI. An object that already exists counts as uploaded.
func (u *GCSUploader) Upload(ctx context.Context, localPath, objectName string) (string, error) {
	objectName = u.ObjectName(objectName)
	uri := fmt.Sprintf("gs://%s/%s", u.name, objectName)

	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", filepath.Base(localPath), err)
	}
	defer f.Close()

	w := u.bucket.Object(objectName).If(gcs.Conditions{DoesNotExist: true}).NewWriter(ctx)
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		if alreadyExists(err) {
			u.logger.Info("storage.upload.exists", "object", objectName)
			return uri, nil
		}
		return "", fmt.Errorf("upload %s: %w", objectName, err)
	}
	if err := w.Close(); err != nil {
		if alreadyExists(err) {
			u.logger.Info("storage.upload.exists", "object", objectName)
			return uri, nil
		}
		return "", fmt.Errorf("finalize %s: %w", objectName, err)
	}
	u.logger.Debug("storage.upload.ok", "object", objectName)
	return uri, nil
}

func (u *GCSUploader) Close() error {
	return u.client.Close()
}

// ObjectName joins prefix and parts with forward slashes.
func ObjectName(prefix string, parts ...string) string {
	elems := make([]string, 0, len(parts)+1)
	if p := strings.Trim(prefix, "/"); p != "" {
		elems = append(elems, p)
	}
	for _, part := range parts {
		if p := strings.Trim(filepath.ToSlash(part), "/"); p != "" {
			elems = append(elems, p)
		}
	}
	return path.Join(elems...)
}

func alreadyExists(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}
