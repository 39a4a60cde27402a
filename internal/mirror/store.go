// Package mirror reads and writes the local copy of a project's remote catalog.
// Every operation is restricted to one models.Scope. Nothing here locks: callers
// serialize runs against the same scope.
package mirror

import (
	"context"
	"errors"
	"fmt"

	"catalogsync/internal/database"
	"catalogsync/internal/models"
)

var (
	// ErrMissingScope is returned when an operation is attempted without a project or table.
	ErrMissingScope = errors.New("mirror: scope is missing project id or table")
	// ErrRowNotFound is returned when a single-row operation matched nothing in the scope.
	ErrRowNotFound = errors.New("mirror: row not found")
)

// Store is the keyed local product store.
type Store interface {
	// ListKeys returns the external ids present in the scope without loading rows.
	ListKeys(ctx context.Context, scope models.Scope) (map[string]struct{}, error)
	// ListRows returns every row of the scope with only the requested columns populated.
	// No fields means all columns.
	ListRows(ctx context.Context, scope models.Scope, fields ...string) ([]models.Product, error)
	// UpsertChunk inserts rows, overwriting synced columns on (project_id, external_id) conflicts.
	UpsertChunk(ctx context.Context, scope models.Scope, rows []models.Product) error
	// DeleteByIDs physically removes rows by internal id and returns how many went away.
	DeleteByIDs(ctx context.Context, scope models.Scope, ids []string) (int64, error)
	// UpdateByID applies a partial update to one row.
	UpdateByID(ctx context.Context, scope models.Scope, id string, fields map[string]interface{}) error

	// GetByID and Page back the review screens.
	GetByID(ctx context.Context, scope models.Scope, id string) (*models.Product, error)
	Page(ctx context.Context, scope models.Scope, filter PageFilter) ([]models.Product, int64, error)
}

// PageFilter selects one page of rows for review.
type PageFilter struct {
	Search     string
	OutOfStock *bool
	Page       int
	Limit      int
}

func (f PageFilter) normalized() PageFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 500 {
		f.Limit = 20
	}
	return f
}

func (f PageFilter) offset() int {
	return (f.Page - 1) * f.Limit
}

var readableColumns = func() map[string]bool {
	cols := map[string]bool{
		models.ColumnID:         true,
		models.ColumnProjectID:  true,
		models.ColumnExternalID: true,
		"created_at":            true,
		models.ColumnUpdatedAt:  true,
	}
	for _, c := range models.SyncColumns {
		cols[c] = true
	}
	return cols
}()

func checkScope(scope models.Scope) error {
	if !scope.Valid() {
		return ErrMissingScope
	}
	return database.ValidateTableName(scope.Table)
}

func checkColumns(columns []string) error {
	for _, c := range columns {
		if !readableColumns[c] {
			return fmt.Errorf("mirror: unknown column %q", c)
		}
	}
	return nil
}

func checkUpdate(fields map[string]interface{}) error {
	for c := range fields {
		if !readableColumns[c] || c == models.ColumnID || c == models.ColumnProjectID || c == "created_at" {
			return fmt.Errorf("mirror: column %q cannot be updated", c)
		}
	}
	return nil
}

// scoped copies rows and pins them to the scope's project.
func scoped(scope models.Scope, rows []models.Product) []models.Product {
	out := make([]models.Product, len(rows))
	copy(out, rows)
	for i := range out {
		out[i].ProjectID = scope.ProjectID
		out[i].EnsureIdentity()
	}
	return out
}
