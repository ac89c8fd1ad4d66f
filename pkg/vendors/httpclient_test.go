package vendors

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	client := NewClient(10 * time.Second)
	body, contentType, err := client.Get(context.Background(), "testvendor", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, `{"ok": true}`, string(body))
	assert.Contains(t, contentType, "application/json")
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_ExhaustedRetriesRaiseHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(5 * time.Second)
	_, _, err := client.Get(context.Background(), "testvendor", srv.URL)
	require.Error(t, err)

	var httpErr *VendorHTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
	assert.Equal(t, "testvendor", httpErr.Vendor)
}

func TestClient_RateLimitedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient(5 * time.Second)
	_, _, err := client.Get(context.Background(), "testvendor", srv.URL)
	require.Error(t, err)

	var rlErr *VendorRateLimitedError
	assert.ErrorAs(t, err, &rlErr)
}

func TestClient_ContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient(5 * time.Second)
	_, _, err := client.Get(ctx, "testvendor", srv.URL)
	require.Error(t, err)
	var vendorErr *VendorError
	if errors.As(err, &vendorErr) {
		assert.Equal(t, "testvendor", vendorErr.Vendor)
	}
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, time.Second, backoff(0))
	assert.Equal(t, 2*time.Second, backoff(1))
	assert.Equal(t, 4*time.Second, backoff(2))
	assert.Equal(t, 30*time.Second, backoff(10), "capped at 30s")
}
