package gcp

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/thomasmilici/domux-backend/internal/platform/logger"
)

// BucketService is the object-storage boundary for project artifacts and
// images. Keys are namespaced projects/<userId>/<sessionId>/<filename>.
type BucketService interface {
	Upload(ctx context.Context, key string, r io.Reader, contentType string) error
	UploadBase64(ctx context.Context, key, data, contentType string) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
	ListKeys(ctx context.Context, prefix string) ([]string, error)
	Attrs(ctx context.Context, key string) (*ObjectAttrs, error)
	PublicURL(key string) string
}

type ObjectAttrs struct {
	Size        int64
	ContentType string
	Updated     time.Time
	ETag        string
}

type bucketService struct {
	log           *logger.Logger
	storageClient *storage.Client
	bucketName    string
	cdnDomain     string
	publicBaseURL string
}

func NewBucketService(ctx context.Context, log *logger.Logger) (BucketService, error) {
	serviceLog := log.With("service", "BucketService")

	bucketName := strings.TrimSpace(os.Getenv("PROJECT_GCS_BUCKET_NAME"))
	if bucketName == "" {
		return nil, fmt.Errorf("missing env var PROJECT_GCS_BUCKET_NAME")
	}
	cdnDomain := strings.TrimSpace(os.Getenv("PROJECT_CDN_DOMAIN"))
	publicBaseURL := strings.TrimRight(strings.TrimSpace(os.Getenv("OBJECT_STORAGE_PUBLIC_BASE_URL")), "/")

	opts := ClientOptionsFromEnv()
	opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	stClient, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	serviceLog.Info("Object storage initialized",
		"bucket", bucketName,
		"cdn_domain", cdnDomain,
		"public_base_url", publicBaseURL,
	)

	return &bucketService{
		log:           serviceLog,
		storageClient: stClient,
		bucketName:    bucketName,
		cdnDomain:     cdnDomain,
		publicBaseURL: publicBaseURL,
	}, nil
}

func (bs *bucketService) Upload(ctx context.Context, key string, r io.Reader, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := bs.storageClient.Bucket(bs.bucketName).Object(key).NewWriter(ctx)
	if contentType == "" {
		contentType = contentTypeForKey(key)
	}
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return nil
}

// UploadBase64 mirrors the Firebase uploadString(ref, data, 'base64') path
// used for AI-generated preview images.
func (bs *bucketService) UploadBase64(ctx context.Context, key, data, contentType string) error {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return fmt.Errorf("invalid base64 payload for %q: %w", key, err)
	}
	return bs.Upload(ctx, key, strings.NewReader(string(raw)), contentType)
}

func (bs *bucketService) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	o := bs.storageClient.Bucket(bs.bucketName).Object(key)
	if err := o.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete GCS object %q in bucket %q: %w", key, bs.bucketName, err)
	}
	return nil
}

func (bs *bucketService) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	it := bs.storageClient.Bucket(bs.bucketName).Objects(ctx, &storage.Query{Prefix: prefix})
	out := []string{}
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, attrs.Name)
	}
	return out, nil
}

func (bs *bucketService) DeletePrefix(ctx context.Context, prefix string) error {
	keys, err := bs.ListKeys(ctx, prefix)
	if err != nil {
		return err
	}
	for _, k := range keys {
		_ = bs.Delete(ctx, k)
	}
	return nil
}

func (bs *bucketService) Attrs(ctx context.Context, key string) (*ObjectAttrs, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	attrs, err := bs.storageClient.Bucket(bs.bucketName).Object(key).Attrs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to stat GCS object %q: %w", key, err)
	}
	return &ObjectAttrs{
		Size:        attrs.Size,
		ContentType: attrs.ContentType,
		Updated:     attrs.Updated,
		ETag:        attrs.Etag,
	}, nil
}

// PublicURL returns the durable URL for a stored object.
func (bs *bucketService) PublicURL(key string) string {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	escaped := url.PathEscape(key)
	// PathEscape also escapes "/", which must survive in object paths.
	escaped = strings.ReplaceAll(escaped, "%2F", "/")
	if bs.cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", bs.cdnDomain, escaped)
	}
	if bs.publicBaseURL != "" {
		return fmt.Sprintf("%s/%s/%s", bs.publicBaseURL, bs.bucketName, escaped)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bs.bucketName, escaped)
}

func contentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	switch {
	case strings.HasSuffix(s, ".pdf"):
		return "application/pdf"
	case strings.HasSuffix(s, ".png"):
		return "image/png"
	case strings.HasSuffix(s, ".jpg"), strings.HasSuffix(s, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(s, ".webp"):
		return "image/webp"
	case strings.HasSuffix(s, ".json"):
		return "application/json"
	default:
		return ""
	}
}
