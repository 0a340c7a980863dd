package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ariefcatur/dbs-storefront/internal/adminview"
	"github.com/ariefcatur/dbs-storefront/internal/catalog"
	"github.com/ariefcatur/dbs-storefront/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdmin struct {
	orders   []orders.Summary
	resolved []string
	uploaded string
}

func (f *fakeAdmin) server(t *testing.T) *adminview.Panels {
	t.Helper()
	r := chi.NewRouter()
	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
	r.Get("/orders", func(w http.ResponseWriter, _ *http.Request) { writeJSON(w, f.orders) })
	r.Patch("/orders/{id}", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Status orders.Fulfillment `json:"status"`
		}
		_ = json.NewDecoder(req.Body).Decode(&body)
		for i := range f.orders {
			if f.orders[i].ID == chi.URLParam(req, "id") {
				f.orders[i].Status = body.Status
				writeJSON(w, orders.Order{ID: f.orders[i].ID, OrderNumber: f.orders[i].OrderNumber, State: orders.State{Fulfillment: body.Status}})
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, map[string]string{"error": "Order not found"})
	})
	r.Delete("/reconciliation/{reference}", func(w http.ResponseWriter, req *http.Request) {
		f.resolved = append(f.resolved, chi.URLParam(req, "reference"))
		w.WriteHeader(http.StatusNoContent)
	})
	r.Post("/products/{id}/image", func(w http.ResponseWriter, req *http.Request) {
		_, hdr, err := req.FormFile("file")
		require.NoError(t, err)
		f.uploaded = hdr.Filename
		writeJSON(w, catalog.Product{ID: chi.URLParam(req, "id"), Name: "Ankara Dress", ImageKey: "products/p1.png"})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return adminview.NewPanels(adminview.NewClient(srv.URL, "tok"))
}

func TestRun_SetStatus(t *testing.T) {
	f := &fakeAdmin{orders: []orders.Summary{
		{ID: "o1", OrderNumber: "DBS-2025-000001", Status: orders.StatusPending},
		{ID: "o2", OrderNumber: "DBS-2025-000002", Status: orders.StatusPending},
	}}
	p := f.server(t)

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), p, []string{"set-status", "o2", "shipped"}, &out))
	assert.Contains(t, out.String(), "Order status updated")
	assert.Equal(t, orders.StatusShipped, f.orders[1].Status)
	assert.Equal(t, orders.StatusPending, f.orders[0].Status)

	err := run(context.Background(), p, []string{"set-status", "o9", "shipped"}, &out)
	assert.EqualError(t, err, "order o9 not found")

	err = run(context.Background(), p, []string{"set-status", "o1", "lost"}, &out)
	assert.Error(t, err)
}

func TestRun_ResolveAndUpload(t *testing.T) {
	f := &fakeAdmin{}
	p := f.server(t)

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), p, []string{"resolve", "ref 1"}, &out))
	assert.Equal(t, []string{"ref 1"}, f.resolved)

	file := filepath.Join(t.TempDir(), "dress.png")
	require.NoError(t, os.WriteFile(file, []byte("\x89PNG\r\n\x1a\n"), 0o600))
	out.Reset()
	require.NoError(t, run(context.Background(), p, []string{"upload-image", "p1", file}, &out))
	assert.Equal(t, "dress.png", f.uploaded)
	assert.Equal(t, "Ankara Dress image products/p1.png\n", out.String())
}

func TestRun_Usage(t *testing.T) {
	p := (&fakeAdmin{}).server(t)
	var out bytes.Buffer
	assert.ErrorIs(t, run(context.Background(), p, nil, &out), errUsage)
	assert.ErrorIs(t, run(context.Background(), p, []string{"resolve"}, &out), errUsage)
	assert.ErrorIs(t, run(context.Background(), p, []string{"bogus"}, &out), errUsage)
}
