package mirror

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/supabase-community/postgrest-go"

	"catalogsync/internal/models"
)

// postgrestPageSize matches Supabase's default max-rows cap.
const postgrestPageSize = 1000

// PostgrestStore keeps the mirror in a Supabase table reached through PostgREST.
// The table must default its id column (gen_random_uuid()); inserts never send ids so a
// conflicting upsert cannot rewrite an existing row's identity.
type PostgrestStore struct {
	client *postgrest.Client
}

var _ Store = (*PostgrestStore)(nil)

type PostgrestOptions struct {
	// URL is the project URL, e.g. https://xyz.supabase.co
	URL        string
	ServiceKey string
	Schema     string
}

func NewPostgrestStore(opts PostgrestOptions) (*PostgrestStore, error) {
	if opts.URL == "" || opts.ServiceKey == "" {
		return nil, fmt.Errorf("mirror: supabase url and service key are required")
	}
	if opts.Schema == "" {
		opts.Schema = "public"
	}

	client := postgrest.NewClient(strings.TrimRight(opts.URL, "/")+"/rest/v1", opts.Schema, map[string]string{
		"apikey":        opts.ServiceKey,
		"Authorization": "Bearer " + opts.ServiceKey,
	})
	if client.ClientError != nil {
		return nil, fmt.Errorf("mirror: create postgrest client: %w", client.ClientError)
	}

	return &PostgrestStore{client: client}, nil
}

// The postgrest client does not take a context; requests are bounded by its transport
// timeout and the context is only checked between pages.

func (s *PostgrestStore) ListKeys(ctx context.Context, scope models.Scope) (map[string]struct{}, error) {
	rows, err := s.listPaged(ctx, scope, []string{models.ColumnID, models.ColumnExternalID})
	if err != nil {
		return nil, fmt.Errorf("list keys of %s: %w", scope, err)
	}

	set := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		set[r.ExternalID] = struct{}{}
	}
	return set, nil
}

func (s *PostgrestStore) ListRows(ctx context.Context, scope models.Scope, fields ...string) ([]models.Product, error) {
	if err := checkColumns(fields); err != nil {
		return nil, err
	}
	rows, err := s.listPaged(ctx, scope, fields)
	if err != nil {
		return nil, fmt.Errorf("list rows of %s: %w", scope, err)
	}
	return rows, nil
}

func (s *PostgrestStore) listPaged(ctx context.Context, scope models.Scope, fields []string) ([]models.Product, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}

	columns := "*"
	if len(fields) > 0 {
		columns = strings.Join(fields, ",")
	}

	var all []models.Product
	for from := 0; ; from += postgrestPageSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var page []models.Product
		_, err := s.client.From(scope.Table).
			Select(columns, "", false).
			Eq(models.ColumnProjectID, scope.ProjectID).
			Order(models.ColumnID, &postgrest.OrderOpts{Ascending: true}).
			Range(from, from+postgrestPageSize-1, "").
			ExecuteTo(&page)
		if err != nil {
			return nil, err
		}

		all = append(all, page...)
		if len(page) < postgrestPageSize {
			return all, nil
		}
	}
}

func (s *PostgrestStore) UpsertChunk(ctx context.Context, scope models.Scope, rows []models.Product) error {
	if err := checkScope(scope); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	records := make([]map[string]interface{}, 0, len(rows))
	for _, r := range scoped(scope, rows) {
		rec := r.Record()
		delete(rec, models.ColumnID)
		rec[models.ColumnUpdatedAt] = time.Now().UTC()
		records = append(records, rec)
	}

	_, _, err := s.client.From(scope.Table).
		Upsert(records, models.ColumnProjectID+","+models.ColumnExternalID, "minimal", "").
		Execute()
	if err != nil {
		return fmt.Errorf("upsert %d rows into %s: %w", len(records), scope, err)
	}
	return nil
}

func (s *PostgrestStore) DeleteByIDs(ctx context.Context, scope models.Scope, ids []string) (int64, error) {
	if err := checkScope(scope); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	_, count, err := s.client.From(scope.Table).
		Delete("minimal", "exact").
		Eq(models.ColumnProjectID, scope.ProjectID).
		In(models.ColumnID, ids).
		Execute()
	if err != nil {
		return 0, fmt.Errorf("delete %d rows from %s: %w", len(ids), scope, err)
	}
	return count, nil
}

func (s *PostgrestStore) UpdateByID(ctx context.Context, scope models.Scope, id string, fields map[string]interface{}) error {
	if err := checkUpdate(fields); err != nil {
		return err
	}
	if err := checkScope(scope); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	values := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		values[k] = v
	}
	values[models.ColumnUpdatedAt] = time.Now().UTC()

	_, count, err := s.client.From(scope.Table).
		Update(values, "minimal", "exact").
		Eq(models.ColumnProjectID, scope.ProjectID).
		Eq(models.ColumnID, id).
		Execute()
	if err != nil {
		return fmt.Errorf("update row %s in %s: %w", id, scope, err)
	}
	if count == 0 {
		return ErrRowNotFound
	}
	return nil
}

func (s *PostgrestStore) GetByID(ctx context.Context, scope models.Scope, id string) (*models.Product, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}

	var rows []models.Product
	_, err := s.client.From(scope.Table).
		Select("*", "", false).
		Eq(models.ColumnProjectID, scope.ProjectID).
		Eq(models.ColumnID, id).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("get row %s from %s: %w", id, scope, err)
	}
	if len(rows) == 0 {
		return nil, ErrRowNotFound
	}
	return &rows[0], nil
}

func (s *PostgrestStore) Page(ctx context.Context, scope models.Scope, filter PageFilter) ([]models.Product, int64, error) {
	filter = filter.normalized()
	if err := checkScope(scope); err != nil {
		return nil, 0, err
	}

	q := s.client.From(scope.Table).
		Select("*", "exact", false).
		Eq(models.ColumnProjectID, scope.ProjectID)
	if filter.Search != "" {
		q = q.Ilike("title", "%"+filter.Search+"%")
	}
	if filter.OutOfStock != nil {
		q = q.Eq(models.ColumnOutOfStock, fmt.Sprintf("%t", *filter.OutOfStock))
	}

	var rows []models.Product
	total, err := q.
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Range(filter.offset(), filter.offset()+filter.Limit-1, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, 0, fmt.Errorf("page rows of %s: %w", scope, err)
	}
	return rows, total, nil
}
