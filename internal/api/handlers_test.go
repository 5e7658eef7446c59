package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"instagate/internal/ingest"
	"instagate/internal/storage"
	"instagate/internal/store"
)

const testAPIKey = "test-admin-key"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	st := store.New(db)
	srv := New(Config{Listen: "127.0.0.1:0", APIKey: testAPIKey}, st, nil, testLogger())
	return srv, st
}

func seedEvents(t *testing.T, st *store.Store, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		ev := ingest.InboundEvent{
			EventID:     fmt.Sprintf("mid.%d", i),
			Type:        ingest.EventTypeMessage,
			SenderID:    "sender-1",
			RecipientID: "biz-1",
			Text:        fmt.Sprintf("hello %d", i),
			Timestamp:   1700000000000 + int64(i),
			Raw:         json.RawMessage(`{}`),
		}
		inserted, err := st.TryInsert(context.Background(), ev, "hash")
		require.NoError(t, err)
		require.True(t, inserted)
	}
}

func doRequest(t *testing.T, srv *Server, method, target, apiKey string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	rec := httptest.NewRecorder()
	srv.setupRoutes().ServeHTTP(rec, req)
	return rec
}

func TestHealthzRequiresNoAuth(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestListEventsRejectsMissingToken(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/admin/events", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListEventsRejectsWrongToken(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/admin/events", "wrong-key")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListEvents(t *testing.T) {
	srv, st := newTestServer(t)
	seedEvents(t, st, 3)
	_, err := st.RecordReply(context.Background(), "mid.1", store.StatusSent, "")
	require.NoError(t, err)

	rec := doRequest(t, srv, http.MethodGet, "/admin/events", testAPIKey)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp listEventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 3, resp.Count)

	byID := map[string]store.StoredEvent{}
	for _, ev := range resp.Events {
		byID[ev.EventID] = ev
	}
	assert.Equal(t, string(store.StatusSent), byID["mid.1"].ReplyStatus)
	assert.Empty(t, byID["mid.0"].ReplyStatus)
}

func TestListEventsHonorsLimit(t *testing.T) {
	srv, st := newTestServer(t)
	seedEvents(t, st, 5)

	rec := doRequest(t, srv, http.MethodGet, "/admin/events?limit=2", testAPIKey)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp listEventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
}

func TestListEventsInvalidLimit(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, limit := range []string{"abc", "0", "-5"} {
		rec := doRequest(t, srv, http.MethodGet, "/admin/events?limit="+limit, testAPIKey)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "limit=%s", limit)
	}
}

func TestListEventsEmptyStore(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/admin/events", testAPIKey)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp listEventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Count)
	assert.NotNil(t, resp.Events)
}

func TestGetEvent(t *testing.T) {
	srv, st := newTestServer(t)
	seedEvents(t, st, 1)

	rec := doRequest(t, srv, http.MethodGet, "/admin/events/mid.0", testAPIKey)
	require.Equal(t, http.StatusOK, rec.Code)

	var ev store.StoredEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ev))
	assert.Equal(t, "mid.0", ev.EventID)
	assert.Equal(t, "hello 0", ev.Text)
}

func TestGetEventNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/admin/events/mid.unknown", testAPIKey)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestValidateAPIKey(t *testing.T) {
	assert.True(t, ValidateAPIKey("secret", "secret"))
	assert.False(t, ValidateAPIKey("secret", "other"))
	assert.False(t, ValidateAPIKey("", "secret"))
	assert.False(t, ValidateAPIKey("secret", ""))
	assert.False(t, ValidateAPIKey("", ""))
}

func TestExtractAPIKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := ExtractAPIKey(req)
	assert.Error(t, err)

	req.Header.Set("Authorization", "Basic abc")
	_, err = ExtractAPIKey(req)
	assert.Error(t, err)

	req.Header.Set("Authorization", "Bearer ")
	_, err = ExtractAPIKey(req)
	assert.Error(t, err)

	req.Header.Set("Authorization", "Bearer my-key")
	key, err := ExtractAPIKey(req)
	require.NoError(t, err)
	assert.Equal(t, "my-key", key)
}
