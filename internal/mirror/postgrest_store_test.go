package mirror

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalogsync/internal/models"
)

func setupPostgrestStore(t *testing.T, handler http.HandlerFunc) *PostgrestStore {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	store, err := NewPostgrestStore(PostgrestOptions{URL: server.URL, ServiceKey: "service-key"})
	require.NoError(t, err)
	return store
}

func TestNewPostgrestStore_RequiresCredentials(t *testing.T) {
	_, err := NewPostgrestStore(PostgrestOptions{URL: "https://example.supabase.co"})
	assert.Error(t, err)
}

func TestPostgrestStore_ListKeys(t *testing.T) {
	var gotPath, gotProject, gotKey string
	store := setupPostgrestStore(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotProject = r.URL.Query().Get("project_id")
		gotKey = r.Header.Get("apikey")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"a","external_id":"1"},{"id":"b","external_id":"2"}]`))
	})

	keys, err := store.ListKeys(context.Background(), scopeA)
	require.NoError(t, err)

	assert.Equal(t, map[string]struct{}{"1": {}, "2": {}}, keys)
	assert.Equal(t, "/rest/v1/products", gotPath)
	assert.Equal(t, "eq.project-a", gotProject)
	assert.Equal(t, "service-key", gotKey)
}

func TestPostgrestStore_UpsertChunkOmitsIDs(t *testing.T) {
	var records []map[string]interface{}
	var onConflict string
	store := setupPostgrestStore(t, func(w http.ResponseWriter, r *http.Request) {
		onConflict = r.URL.Query().Get("on_conflict")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &records)
		w.WriteHeader(http.StatusCreated)
	})

	err := store.UpsertChunk(context.Background(), scopeA, []models.Product{
		{ID: "keep-out", ExternalID: "1", Title: "A", ProjectID: "someone-else"},
	})
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.Equal(t, "project_id,external_id", onConflict)
	assert.NotContains(t, records[0], "id")
	assert.Equal(t, "project-a", records[0]["project_id"])
	assert.Equal(t, "1", records[0]["external_id"])
}

func TestPostgrestStore_UpdateByIDNotFound(t *testing.T) {
	store := setupPostgrestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		w.Header().Set("Content-Range", "*/0")
		w.WriteHeader(http.StatusNoContent)
	})

	err := store.UpdateByID(context.Background(), scopeA, "missing", map[string]interface{}{"title": "x"})
	assert.ErrorIs(t, err, ErrRowNotFound)
}

func TestPostgrestStore_TransportError(t *testing.T) {
	store := setupPostgrestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"boom"}`))
	})

	_, err := store.ListKeys(context.Background(), scopeA)
	assert.Error(t, err)
}

func TestPostgrestStore_MissingScope(t *testing.T) {
	store := setupPostgrestStore(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL)
	})

	_, err := store.ListKeys(context.Background(), models.Scope{Table: "products"})
	assert.ErrorIs(t, err, ErrMissingScope)
	_, err = store.DeleteByIDs(context.Background(), models.Scope{ProjectID: "p"}, []string{"a"})
	assert.ErrorIs(t, err, ErrMissingScope)
}
