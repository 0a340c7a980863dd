// Package storage uploads product images into the hosted object store. It
// authenticates with the service key, which must never reach a browser.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/ariefcatur/dbs-storefront/internal/imagery"
	"github.com/ariefcatur/dbs-storefront/internal/telemetry"
)

var ErrNotConfigured = errors.New("image storage not configured")

// APIError is a non-2xx answer from the storage API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("storage: %d %s", e.StatusCode, e.Body)
}

type Uploader struct {
	baseURL    string
	serviceKey string
	http       *http.Client
}

func NewUploader(baseURL, serviceKey string) *Uploader {
	return &Uploader{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		http:       telemetry.Client(&http.Client{Timeout: 30 * time.Second}),
	}
}

// ObjectKey names an upload products/<id>-<unix ms>.<ext>; ext falls back to jpg.
func ObjectKey(productID, filename string, now time.Time) string {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(filename)), ".")
	if ext == "" {
		ext = "jpg"
	}
	return fmt.Sprintf("products/%s-%d.%s", productID, now.UnixMilli(), ext)
}

// Upload writes body under key in the product image bucket, replacing any
// object already there.
func (u *Uploader) Upload(ctx context.Context, key, contentType string, body io.Reader) error {
	if u.baseURL == "" || u.serviceKey == "" {
		return ErrNotConfigured
	}
	endpoint := fmt.Sprintf("%s/storage/v1/object/%s/%s", u.baseURL, imagery.Bucket, imagery.EscapeKey(key))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+u.serviceKey)
	req.Header.Set("apikey", u.serviceKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Cache-Control", "max-age=3600")
	req.Header.Set("x-upsert", "true")

	resp, err := u.http.Do(req)
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return nil
}
