package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	now := time.UnixMilli(1740830400000)
	assert.Equal(t, "products/p1-1740830400000.png", ObjectKey("p1", "Front.PNG", now))
	assert.Equal(t, "products/p1-1740830400000.jpg", ObjectKey("p1", "blob", now))
}

func TestUpload(t *testing.T) {
	var gotPath, gotAuth, gotKey, gotType, gotUpsert, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotKey = r.Header.Get("apikey")
		gotType = r.Header.Get("Content-Type")
		gotUpsert = r.Header.Get("x-upsert")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		_, _ = w.Write([]byte(`{"Key":"product-images/products/p1-1.png"}`))
	}))
	t.Cleanup(srv.Close)

	u := NewUploader(srv.URL+"/", "service-key")
	require.NoError(t, u.Upload(context.Background(), "products/p1-1.png", "image/png", strings.NewReader("PNG")))

	assert.Equal(t, "/storage/v1/object/product-images/products/p1-1.png", gotPath)
	assert.Equal(t, "Bearer service-key", gotAuth)
	assert.Equal(t, "service-key", gotKey)
	assert.Equal(t, "image/png", gotType)
	assert.Equal(t, "true", gotUpsert)
	assert.Equal(t, "PNG", gotBody)
}

func TestUpload_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"new row violates row-level security policy"}`))
	}))
	t.Cleanup(srv.Close)

	err := NewUploader(srv.URL, "anon").Upload(context.Background(), "k.png", "image/png", strings.NewReader("x"))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)

	err = NewUploader("", "k").Upload(context.Background(), "k.png", "image/png", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrNotConfigured)
	err = NewUploader(srv.URL, "").Upload(context.Background(), "k.png", "image/png", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrNotConfigured)
}
