package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/require"
)

// testNow is the fixed wall clock every handler test runs at.
var testNow = time.Date(2026, 10, 15, 14, 0, 0, 0, time.UTC)

// newTestHandler builds a Handler over blobs with a fixed clock, no auth,
// and no AI gateway. Tests set h.ai or h.apiTokenHash as needed.
func newTestHandler(t *testing.T, blobs blobStore) *Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)

	metrics := newMetricsManager("test")
	store, err := loadRecordStore(context.Background(), blobs, metrics)
	require.NoError(t, err)

	return &Handler{
		store:       store,
		blobs:       blobs,
		metrics:     metrics,
		seriesCache: cache.New(time.Minute, 0),
		now:         func() time.Time { return testNow },
	}
}

// doRequest sends body (marshalled as JSON unless it is already a string or
// nil) to the router and returns the recorder.
func doRequest(router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// decodeBody unmarshals the recorder body into T, failing the test on error.
func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), "body: %s", w.Body.String())
	return out
}

// failingBlobStore wraps a memory store and fails every Set once armed.
type failingBlobStore struct {
	*memoryBlobStore
	failSet bool
}

func (f *failingBlobStore) Set(ctx context.Context, key, value string) error {
	if f.failSet {
		return errSetFailed
	}
	return f.memoryBlobStore.Set(ctx, key, value)
}

var errSetFailed = errors.New("storage unavailable")

// hookBlobStore wraps a memory store and calls afterSet once each Set has
// been stored.
type hookBlobStore struct {
	*memoryBlobStore
	afterSet func(key string)
}

func (b *hookBlobStore) Set(ctx context.Context, key, value string) error {
	if err := b.memoryBlobStore.Set(ctx, key, value); err != nil {
		return err
	}
	if b.afterSet != nil {
		b.afterSet(key)
	}
	return nil
}
