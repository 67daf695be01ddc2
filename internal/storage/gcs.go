package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"bip-service/internal/util"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// GCS stores bip attachments in a Google Cloud Storage bucket.
type GCS struct {
	client  *storage.Client
	bucket  string
	baseURL string
}

// NewGCS creates a bucket client. Explicit credentials JSON takes precedence
// over application default credentials.
func NewGCS(ctx context.Context, bucket, credentialsJSON, publicBaseURL string) (*GCS, error) {
	if bucket == "" {
		return nil, errors.New("storage bucket is required")
	}

	var opts []option.ClientOption
	if strings.TrimSpace(credentialsJSON) != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credentialsJSON)))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcs client: %w", err)
	}

	return &GCS{
		client:  client,
		bucket:  bucket,
		baseURL: strings.TrimRight(publicBaseURL, "/"),
	}, nil
}

// Close closes the underlying client
func (g *GCS) Close() error {
	return g.client.Close()
}

// Upload streams r into key and returns the object's public URL. A read
// error from r aborts the upload without creating the object.
func (g *GCS) Upload(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wc := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	wc.ContentType = contentType

	if _, err := io.Copy(wc, r); err != nil {
		cancel()
		_ = wc.Close()
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize upload %s: %w", key, err)
	}

	return g.URL(key), nil
}

// Delete removes key. A missing object is not an error.
func (g *GCS) Delete(ctx context.Context, key string) error {
	err := g.client.Bucket(g.bucket).Object(key).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		util.GetLogger().Debug("Object already absent", zap.String("key", key))
		return nil
	}
	return err
}

// URL returns the public URL of key.
func (g *GCS) URL(key string) string {
	return g.baseURL + "/" + key
}

// KeyFromURL returns the object key of a URL produced by URL, or "" when
// url points elsewhere.
func (g *GCS) KeyFromURL(url string) string {
	return KeyFromURL(g.baseURL, url)
}

// KeyFromURL strips baseURL from url.
func KeyFromURL(baseURL, url string) string {
	prefix := strings.TrimRight(baseURL, "/") + "/"
	if !strings.HasPrefix(url, prefix) {
		return ""
	}
	return strings.TrimPrefix(url, prefix)
}
