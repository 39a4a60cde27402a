package mirror

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"catalogsync/internal/models"
)

func setupGormStore(t *testing.T, scopes ...models.Scope) *GormStore {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	store := NewGormStore(db)
	for _, s := range scopes {
		require.NoError(t, store.EnsureTable(context.Background(), s))
	}
	return store
}

func ptr(n int64) *int64 { return &n }

var (
	scopeA = models.Scope{ProjectID: "project-a", Table: "products"}
	scopeB = models.Scope{ProjectID: "project-b", Table: "products"}
)

func TestGormStore_UpsertAndListKeys(t *testing.T) {
	ctx := context.Background()
	store := setupGormStore(t, scopeA)

	rows := []models.Product{
		{ExternalID: "1", Title: "A", Price: 100},
		{ExternalID: "2", Title: "B", Price: 200, ShopeePrice: ptr(210)},
	}
	require.NoError(t, store.UpsertChunk(ctx, scopeA, rows))

	keys, err := store.ListKeys(ctx, scopeA)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"1": {}, "2": {}}, keys)

	assert.Empty(t, rows[0].ID, "caller rows are not mutated")
}

func TestGormStore_UpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := setupGormStore(t, scopeA)

	rows := []models.Product{{ID: "row-1", ExternalID: "1", Title: "A", Price: 100}}
	require.NoError(t, store.UpsertChunk(ctx, scopeA, rows))

	rows[0].Title = "A renamed"
	rows[0].ID = "row-other"
	require.NoError(t, store.UpsertChunk(ctx, scopeA, rows))
	require.NoError(t, store.UpsertChunk(ctx, scopeA, rows))

	all, err := store.ListRows(ctx, scopeA)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "row-1", all[0].ID, "conflicting upsert keeps the original identity")
	assert.Equal(t, "A renamed", all[0].Title)
}

func TestGormStore_ScopesAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := setupGormStore(t, scopeA)

	require.NoError(t, store.UpsertChunk(ctx, scopeA, []models.Product{{ExternalID: "1", Title: "A"}}))
	require.NoError(t, store.UpsertChunk(ctx, scopeB, []models.Product{
		{ExternalID: "1", Title: "B1", ProjectID: "project-a"},
		{ExternalID: "9", Title: "B9"},
	}))

	keysA, err := store.ListKeys(ctx, scopeA)
	require.NoError(t, err)
	assert.Len(t, keysA, 1)

	rowsB, err := store.ListRows(ctx, scopeB, models.ColumnID, models.ColumnExternalID, models.ColumnProjectID)
	require.NoError(t, err)
	require.Len(t, rowsB, 2)
	for _, r := range rowsB {
		assert.Equal(t, "project-b", r.ProjectID, "rows are pinned to the scope they are written through")
		assert.Empty(t, r.Title, "projection leaves other columns empty")
	}

	rowsA, err := store.ListRows(ctx, scopeA)
	require.NoError(t, err)
	n, err := store.DeleteByIDs(ctx, scopeB, []string{rowsA[0].ID})
	require.NoError(t, err)
	assert.Zero(t, n, "ids from another scope are not deleted")

	err = store.UpdateByID(ctx, scopeB, rowsA[0].ID, map[string]interface{}{"title": "hijack"})
	assert.ErrorIs(t, err, ErrRowNotFound)
}

func TestGormStore_DeleteByIDs(t *testing.T) {
	ctx := context.Background()
	store := setupGormStore(t, scopeA)

	require.NoError(t, store.UpsertChunk(ctx, scopeA, []models.Product{
		{ID: "a", ExternalID: "1", Title: "A"},
		{ID: "b", ExternalID: "2", Title: "B"},
		{ID: "c", ExternalID: "3", Title: "C"},
	}))

	n, err := store.DeleteByIDs(ctx, scopeA, []string{"a", "c", "missing"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	keys, err := store.ListKeys(ctx, scopeA)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"2": {}}, keys)

	n, err = store.DeleteByIDs(ctx, scopeA, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGormStore_UpdateByID(t *testing.T) {
	ctx := context.Background()
	store := setupGormStore(t, scopeA)

	require.NoError(t, store.UpsertChunk(ctx, scopeA, []models.Product{
		{ID: "a", ExternalID: "1", Title: "A", ShopeePrice: ptr(500)},
	}))

	require.NoError(t, store.UpdateByID(ctx, scopeA, "a", map[string]interface{}{
		models.ColumnOutOfStock: true,
		"shopee_price":          (*int64)(nil),
	}))

	got, err := store.GetByID(ctx, scopeA, "a")
	require.NoError(t, err)
	assert.True(t, got.OutOfStock)
	assert.Nil(t, got.ShopeePrice)
	assert.Equal(t, "A", got.Title)

	assert.ErrorIs(t, store.UpdateByID(ctx, scopeA, "nope", map[string]interface{}{"title": "x"}), ErrRowNotFound)
	assert.Error(t, store.UpdateByID(ctx, scopeA, "a", map[string]interface{}{"project_id": "other"}))
	assert.Error(t, store.UpdateByID(ctx, scopeA, "a", map[string]interface{}{"bogus": 1}))
}

func TestGormStore_Page(t *testing.T) {
	ctx := context.Background()
	store := setupGormStore(t, scopeA)

	var rows []models.Product
	for i, title := range []string{"Nồi cơm điện", "Quạt đứng", "Nồi chiên", "Máy xay"} {
		rows = append(rows, models.Product{ExternalID: string(rune('1' + i)), Title: title, OutOfStock: i%2 == 1})
	}
	require.NoError(t, store.UpsertChunk(ctx, scopeA, rows))

	page, total, err := store.Page(ctx, scopeA, PageFilter{Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	assert.Len(t, page, 2)

	_, total, err = store.Page(ctx, scopeA, PageFilter{Search: "Nồi"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	out := true
	_, total, err = store.Page(ctx, scopeA, PageFilter{OutOfStock: &out})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestGormStore_MissingScope(t *testing.T) {
	ctx := context.Background()
	store := setupGormStore(t)

	_, err := store.ListKeys(ctx, models.Scope{Table: "products"})
	assert.ErrorIs(t, err, ErrMissingScope)

	err = store.UpsertChunk(ctx, models.Scope{ProjectID: "p"}, []models.Product{{ExternalID: "1"}})
	assert.ErrorIs(t, err, ErrMissingScope)

	_, err = store.ListKeys(ctx, models.Scope{ProjectID: "p", Table: "products;--"})
	assert.Error(t, err)

	_, err = store.ListRows(ctx, scopeA, "title; drop")
	assert.Error(t, err)
}
