package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedHandler returns a handler whose store holds a little of everything.
func seedHandler(t *testing.T) *Handler {
	t.Helper()
	ctx := context.Background()
	h := newTestHandler(t, newMemoryBlobStore())
	require.NoError(t, h.store.AddEntry(ctx, "2026-10-14", kindMeal, entry{Name: "Soup", Calories: 220}))
	require.NoError(t, h.store.AddEntry(ctx, "2026-10-15", kindExercise, entry{Name: "Swim", Calories: 410}))
	require.NoError(t, h.store.SetWeight(ctx, "2026-10-15", 77.3))
	require.NoError(t, h.store.SetTargetCalories(ctx, 1650))
	return h
}

func TestExportBackup(t *testing.T) {
	h := seedHandler(t)
	require.NoError(t, h.blobs.Set(context.Background(), "theme", "dark"))

	w := doRequest(h.newRouter(), http.MethodGet, "/api/backup/export", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, `attachment; filename="health_record_backup_2026-10-15.json"`, w.Header().Get("Content-Disposition"))
	assert.Contains(t, w.Body.String(), "\n  \"", "export is indented")

	doc := decodeBody[map[string]string](t, w)
	assert.Equal(t, "dark", doc["theme"])

	st, skipped, err := decodeState([]byte(doc[stateKey]))
	require.NoError(t, err)
	assert.Empty(t, skipped)
	want, _ := h.store.View()
	assert.Equal(t, want, st)
}

// TestImportBackup_RoundTrip exports from one handler and imports into a
// fresh one; the second ends up with the same state.
func TestImportBackup_RoundTrip(t *testing.T) {
	src := seedHandler(t)
	exported := doRequest(src.newRouter(), http.MethodGet, "/api/backup/export", nil)
	require.Equal(t, http.StatusOK, exported.Code)

	dst := newTestHandler(t, newMemoryBlobStore())
	router := dst.newRouter()

	preview := doRequest(router, http.MethodPost, "/api/backup/import", exported.Body.String())
	require.Equal(t, http.StatusOK, preview.Code, preview.Body.String())
	previewBody := decodeBody[struct {
		Confirmed bool     `json:"confirmed"`
		Keys      []string `json:"keys"`
	}](t, preview)
	assert.False(t, previewBody.Confirmed)
	assert.Equal(t, []string{stateKey}, previewBody.Keys)

	st, _ := dst.store.View()
	assert.Equal(t, defaultAppState(), st, "preview must not write")

	w := doRequest(router, http.MethodPost, "/api/backup/import?confirm=true", exported.Body.String())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	want, _ := src.store.View()
	got, _ := dst.store.View()
	assert.Equal(t, want, got)

	// Reads through the API see the imported data straight away.
	daily := doRequest(router, http.MethodGet, "/api/daily?date=2026-10-15", nil)
	summary := decodeBody[dailySummary](t, daily)
	assert.Equal(t, 1650, summary.TargetCalories)
	assert.Equal(t, 410, summary.Burned)
}

// TestImportBackup_RejectsBadFiles: nothing is written and the live state is
// untouched byte for byte.
func TestImportBackup_RejectsBadFiles(t *testing.T) {
	cases := map[string]string{
		"not json":          `this is not a backup`,
		"array":             `[1, 2, 3]`,
		"null":              `null`,
		"corrupt state":     `{"healthApp_data": "{not json"}`,
		"bad record key":    `{"healthApp_data": "{\"records\":{\"yesterday\":{}}}"}`,
		"state wrong shape": `{"healthApp_data": {"records": [1]}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			h := seedHandler(t)
			before, _, err := h.blobs.Get(context.Background(), stateKey)
			require.NoError(t, err)
			stBefore, _ := h.store.View()

			w := doRequest(h.newRouter(), http.MethodPost, "/api/backup/import?confirm=true", body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

			after, _, err := h.blobs.Get(context.Background(), stateKey)
			require.NoError(t, err)
			assert.Equal(t, before, after)
			stAfter, _ := h.store.View()
			assert.Equal(t, stBefore, stAfter)
		})
	}
}

// TestImportBackup_ObjectState accepts a state blob given as a JSON object
// instead of a JSON-encoded string.
func TestImportBackup_ObjectState(t *testing.T) {
	h := newTestHandler(t, newMemoryBlobStore())
	body := `{"healthApp_data": {"settings": {"targetCalories": 1999}, "records": {"2026-10-01": {"water": 800}}}, "theme": "light"}`

	w := doRequest(h.newRouter(), http.MethodPost, "/api/backup/import?confirm=true", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	st, _ := h.store.View()
	assert.Equal(t, 1999, st.Settings.TargetCalories)
	assert.Equal(t, 800, st.Records["2026-10-01"].Water)

	theme, found, _ := h.blobs.Get(context.Background(), "theme")
	assert.True(t, found)
	assert.Equal(t, "light", theme)
}

func TestImportBackup_PartialWriteFailure(t *testing.T) {
	blobs := &failingBlobStore{memoryBlobStore: newMemoryBlobStore()}
	h := newTestHandler(t, blobs)
	blobs.failSet = true

	doc, _ := json.Marshal(map[string]string{stateKey: `{"settings":{"targetCalories":1300},"records":{}}`})
	w := doRequest(h.newRouter(), http.MethodPost, "/api/backup/import?confirm=true", string(doc))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "import partially failed")
}

// TestImportBackup_ConcurrentMutation starts a mutation right after the
// import has written the state blob. The mutation must wait for the reload
// and then apply on top of the imported state.
func TestImportBackup_ConcurrentMutation(t *testing.T) {
	blobs := &hookBlobStore{memoryBlobStore: newMemoryBlobStore()}
	h := newTestHandler(t, blobs)

	mutated := make(chan error, 1)
	var armed atomic.Bool
	armed.Store(true)
	blobs.afterSet = func(key string) {
		if key != stateKey || !armed.CompareAndSwap(true, false) {
			return
		}
		go func() { mutated <- h.store.AddWater(context.Background(), "2026-10-15", 300) }()
		// Let the mutation run now if it can.
		select {
		case err := <-mutated:
			mutated <- err
		case <-time.After(50 * time.Millisecond):
		}
	}

	body := `{"healthApp_data": {"settings": {"targetCalories": 1999}, "records": {"2026-10-01": {"water": 800}}}}`
	w := doRequest(h.newRouter(), http.MethodPost, "/api/backup/import?confirm=true", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, <-mutated)

	st, _ := h.store.View()
	assert.Equal(t, 1999, st.Settings.TargetCalories)
	assert.Equal(t, 800, st.Records["2026-10-01"].Water)
	assert.Equal(t, 300, st.Records["2026-10-15"].Water)

	raw, _, err := blobs.Get(context.Background(), stateKey)
	require.NoError(t, err)
	saved, _, err := decodeState([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, st, saved)
}
