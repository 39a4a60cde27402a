package mirror

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"catalogsync/internal/database"
	"catalogsync/internal/models"
)

// GormStore keeps the mirror in a SQL database reached through gorm.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// EnsureTable creates the scope's table and unique index if needed.
func (s *GormStore) EnsureTable(ctx context.Context, scope models.Scope) error {
	if err := checkScope(scope); err != nil {
		return err
	}
	return database.EnsureProductTable(s.db.WithContext(ctx), scope.Table)
}

func (s *GormStore) scopedQuery(ctx context.Context, scope models.Scope) (*gorm.DB, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}
	return s.db.WithContext(ctx).Table(scope.Table).Where("project_id = ?", scope.ProjectID), nil
}

func (s *GormStore) ListKeys(ctx context.Context, scope models.Scope) (map[string]struct{}, error) {
	q, err := s.scopedQuery(ctx, scope)
	if err != nil {
		return nil, err
	}

	var keys []string
	if err := q.Pluck(models.ColumnExternalID, &keys).Error; err != nil {
		return nil, fmt.Errorf("list keys of %s: %w", scope, err)
	}

	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set, nil
}

func (s *GormStore) ListRows(ctx context.Context, scope models.Scope, fields ...string) ([]models.Product, error) {
	if err := checkColumns(fields); err != nil {
		return nil, err
	}
	q, err := s.scopedQuery(ctx, scope)
	if err != nil {
		return nil, err
	}
	if len(fields) > 0 {
		q = q.Select(fields)
	}

	var rows []models.Product
	if err := q.Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list rows of %s: %w", scope, err)
	}
	return rows, nil
}

func (s *GormStore) UpsertChunk(ctx context.Context, scope models.Scope, rows []models.Product) error {
	if err := checkScope(scope); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	batch := scoped(scope, rows)
	updates := append(append([]string{}, models.SyncColumns...), models.ColumnUpdatedAt)

	err := s.db.WithContext(ctx).Table(scope.Table).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: models.ColumnProjectID}, {Name: models.ColumnExternalID}},
			DoUpdates: clause.AssignmentColumns(updates),
		}).
		Create(&batch).Error
	if err != nil {
		return fmt.Errorf("upsert %d rows into %s: %w", len(batch), scope, err)
	}
	return nil
}

func (s *GormStore) DeleteByIDs(ctx context.Context, scope models.Scope, ids []string) (int64, error) {
	q, err := s.scopedQuery(ctx, scope)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	res := q.Where("id IN ?", ids).Delete(&models.Product{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete %d rows from %s: %w", len(ids), scope, res.Error)
	}
	return res.RowsAffected, nil
}

func (s *GormStore) UpdateByID(ctx context.Context, scope models.Scope, id string, fields map[string]interface{}) error {
	if err := checkUpdate(fields); err != nil {
		return err
	}
	q, err := s.scopedQuery(ctx, scope)
	if err != nil {
		return err
	}

	values := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		values[k] = v
	}
	values[models.ColumnUpdatedAt] = time.Now().UTC()

	res := q.Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return fmt.Errorf("update row %s in %s: %w", id, scope, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRowNotFound
	}
	return nil
}

func (s *GormStore) GetByID(ctx context.Context, scope models.Scope, id string) (*models.Product, error) {
	q, err := s.scopedQuery(ctx, scope)
	if err != nil {
		return nil, err
	}

	var p models.Product
	if err := q.Where("id = ?", id).Take(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRowNotFound
		}
		return nil, fmt.Errorf("get row %s from %s: %w", id, scope, err)
	}
	return &p, nil
}

func (s *GormStore) Page(ctx context.Context, scope models.Scope, filter PageFilter) ([]models.Product, int64, error) {
	filter = filter.normalized()
	q, err := s.scopedQuery(ctx, scope)
	if err != nil {
		return nil, 0, err
	}

	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		q = q.Where("(LOWER(title) LIKE LOWER(?) OR LOWER(sku) LIKE LOWER(?) OR external_id = ?)", like, like, filter.Search)
	}
	if filter.OutOfStock != nil {
		q = q.Where("out_of_stock = ?", *filter.OutOfStock)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count rows of %s: %w", scope, err)
	}

	var rows []models.Product
	if err := q.Order("created_at DESC, id").Offset(filter.offset()).Limit(filter.Limit).Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("page rows of %s: %w", scope, err)
	}
	return rows, total, nil
}
