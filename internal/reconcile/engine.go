// Package reconcile compares a project's remote catalog with its local mirror and
// applies the difference in retried chunks.
package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"catalogsync/internal/connectors/woocommerce"
	"catalogsync/internal/logger"
	"catalogsync/internal/metrics"
	"catalogsync/internal/mirror"
	"catalogsync/internal/models"
)

// CatalogFetcher retrieves the complete remote catalog or fails.
type CatalogFetcher interface {
	FetchAll(ctx context.Context) ([]woocommerce.Product, error)
}

type Options struct {
	ChunkSize       int
	UploadChunkSize int
	MaxAttempts     int
	Backoff         time.Duration
	Pause           time.Duration
	// Progress, when set, is called from the running goroutine after every chunk.
	Progress func(Progress)
}

// DefaultOptions are the chunking and retry settings used when none are configured.
func DefaultOptions() Options {
	return Options{
		ChunkSize:       50,
		UploadChunkSize: 200,
		MaxAttempts:     3,
		Backoff:         500 * time.Millisecond,
		Pause:           100 * time.Millisecond,
	}
}

// Engine runs reconciliation operations for one remote catalog. It holds no lock;
// runs against the same scope must be serialized by the caller.
type Engine struct {
	fetcher     CatalogFetcher
	store       mirror.Store
	transformer *woocommerce.Transformer
	writer      Writer
	upload      Writer
	logger      *logger.Logger
	progress    func(Progress)
}

func NewEngine(fetcher CatalogFetcher, store mirror.Store, log *logger.Logger, opts Options) *Engine {
	if log == nil {
		log = logger.NewNop()
	}
	defaults := DefaultOptions()
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaults.ChunkSize
	}
	if opts.UploadChunkSize <= 0 {
		opts.UploadChunkSize = defaults.UploadChunkSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaults.MaxAttempts
	}

	writer := Writer{
		ChunkSize:   opts.ChunkSize,
		MaxAttempts: opts.MaxAttempts,
		Backoff:     opts.Backoff,
		Pause:       opts.Pause,
		Logger:      log,
	}
	upload := writer
	upload.ChunkSize = opts.UploadChunkSize

	return &Engine{
		fetcher:     fetcher,
		store:       store,
		transformer: woocommerce.NewTransformer(),
		writer:      writer,
		upload:      upload,
		logger:      log,
		progress:    opts.Progress,
	}
}

func (e *Engine) phaseWriter(w Writer, op Operation, phase string) Writer {
	if e.progress == nil {
		return w
	}
	return w.withProgress(func(done, total int) {
		e.progress(Progress{Operation: op, Phase: phase, Done: done, Total: total})
	})
}

func (e *Engine) report(op Operation, phase string, done, total int) {
	if e.progress != nil {
		e.progress(Progress{Operation: op, Phase: phase, Done: done, Total: total})
	}
}

func checkScope(scope models.Scope) error {
	if !scope.Valid() {
		return mirror.ErrMissingScope
	}
	return nil
}

// CheckOnly compares the catalogs without writing anything.
func (e *Engine) CheckOnly(ctx context.Context, scope models.Scope) (*CheckReport, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}

	remote, keys, err := e.snapshotKeys(ctx, scope, OpCheck)
	if err != nil {
		return nil, err
	}

	diff := Diff(remote, keys)
	report := &CheckReport{
		LocalCount:   len(keys),
		RemoteCount:  diff.Distinct(),
		MissingCount: len(diff.Missing),
		Missing:      make([]MissingProduct, 0, len(diff.Missing)),
		Warnings:     diffWarnings(diff),
	}
	for _, p := range diff.Missing {
		local := e.transformer.ToLocal(scope, p)
		report.Missing = append(report.Missing, MissingProduct{
			ExternalID: local.ExternalID,
			Name:       local.Title,
			SKU:        local.SKU,
			Price:      local.Price,
		})
	}

	e.logger.Info("Check %s: %d remote, %d local, %d missing", scope, report.RemoteCount, report.LocalCount, report.MissingCount)
	return report, nil
}

// SyncMissing inserts remote products that have no local row. Existing rows are untouched.
func (e *Engine) SyncMissing(ctx context.Context, scope models.Scope) (*SyncReport, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}

	remote, keys, err := e.snapshotKeys(ctx, scope, OpSyncMissing)
	if err != nil {
		return nil, err
	}

	diff := Diff(remote, keys)
	batch := e.insert(ctx, scope, OpSyncMissing, diff.Missing)

	report := &SyncReport{
		ToolProducts:    len(keys),
		WooProducts:     diff.Distinct(),
		MissingProducts: len(diff.Missing),
		NewlyAdded:      batch.Succeeded,
		Errors:          nonNil(batch.Errors),
	}
	metrics.RecordRows(string(OpSyncMissing), "added", batch.Succeeded)
	metrics.RecordRows(string(OpSyncMissing), "failed", batch.Failed)

	e.logger.Info("Sync missing %s: %d of %d added", scope, report.NewlyAdded, report.MissingProducts)
	return report, nil
}

// UpdateStockOnly rewrites the stock flag of rows whose remote flag differs.
func (e *Engine) UpdateStockOnly(ctx context.Context, scope models.Scope) (*StockUpdateResult, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}
	result := &StockUpdateResult{Errors: []string{}}

	remote, err := e.fetch(ctx, OpStockOnly)
	if err != nil {
		result.Message = "Failed to fetch remote catalog"
		result.Errors = append(result.Errors, err.Error())
		return result, nil
	}

	rows, err := e.store.ListRows(ctx, scope, models.ColumnID, models.ColumnExternalID, models.ColumnOutOfStock)
	if err != nil {
		result.Message = "Failed to read local products"
		result.Errors = append(result.Errors, err.Error())
		return result, nil
	}
	result.BeforeStats = stockStats(rows)

	byKey := remoteByKey(remote)
	type change struct {
		id         string
		outOfStock bool
	}
	var changes []change
	for _, row := range rows {
		p, ok := byKey[row.ExternalID]
		if !ok {
			continue
		}
		if flag := e.transformer.OutOfStock(p); flag != row.OutOfStock {
			changes = append(changes, change{id: row.ID, outOfStock: flag})
		}
	}

	batch := ApplyChunked(ctx, e.phaseWriter(e.writer, OpStockOnly, "update"), "stock update", changes,
		func(ctx context.Context, chunk []change) error {
			for _, c := range chunk {
				err := e.store.UpdateByID(ctx, scope, c.id, map[string]interface{}{models.ColumnOutOfStock: c.outOfStock})
				if err != nil {
					return err
				}
			}
			return nil
		})
	result.Updated = batch.Succeeded
	result.Errors = append(result.Errors, batch.Errors...)
	metrics.RecordRows(string(OpStockOnly), "updated", batch.Succeeded)
	metrics.RecordRows(string(OpStockOnly), "failed", batch.Failed)

	after, err := e.store.ListRows(ctx, scope, models.ColumnID, models.ColumnOutOfStock)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("re-read stock flags: %v", err))
		result.AfterStats = result.BeforeStats
	} else {
		result.AfterStats = stockStats(after)
	}

	result.Success = len(result.Errors) == 0
	if result.Success {
		result.Message = fmt.Sprintf("Updated stock status of %d products", result.Updated)
	} else {
		result.Message = fmt.Sprintf("Updated stock status of %d products with %d errors", result.Updated, len(result.Errors))
	}

	e.logger.Info("Stock update %s: %d changed, %d failed", scope, batch.Succeeded, batch.Failed)
	return result, nil
}

// UpdateAllFields overwrites every mapped column of rows that still exist remotely.
// Rows without a remote counterpart are skipped.
func (e *Engine) UpdateAllFields(ctx context.Context, scope models.Scope) (*FieldUpdateResult, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}
	result := &FieldUpdateResult{Errors: []string{}}

	remote, err := e.fetch(ctx, OpAllFields)
	if err != nil {
		result.Message = "Failed to fetch remote catalog"
		result.Errors = append(result.Errors, err.Error())
		return result, nil
	}

	rows, err := e.store.ListRows(ctx, scope, models.ColumnID, models.ColumnExternalID)
	if err != nil {
		result.Message = "Failed to read local products"
		result.Errors = append(result.Errors, err.Error())
		return result, nil
	}

	targets, skipped := e.refreshTargets(scope, remote, rows)
	batch := e.refresh(ctx, scope, OpAllFields, targets)

	result.Updated = batch.Succeeded
	result.Skipped = skipped
	result.Errors = append(result.Errors, batch.Errors...)
	result.Success = len(result.Errors) == 0
	if result.Success {
		result.Message = fmt.Sprintf("Refreshed %d products", result.Updated)
	} else {
		result.Message = fmt.Sprintf("Refreshed %d products with %d errors", result.Updated, len(result.Errors))
	}
	metrics.RecordRows(string(OpAllFields), "updated", batch.Succeeded)
	metrics.RecordRows(string(OpAllFields), "failed", batch.Failed)

	e.logger.Info("Field refresh %s: %d updated, %d skipped, %d failed", scope, batch.Succeeded, skipped, batch.Failed)
	return result, nil
}

// ComprehensiveSync analyzes both sides, deletes orphans, adds missing products and
// refreshes the survivors, in that order. Deletion is skipped when the remote catalog
// comes back empty while the mirror is not.
func (e *Engine) ComprehensiveSync(ctx context.Context, scope models.Scope) (*ComprehensiveSyncResult, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}
	result := &ComprehensiveSyncResult{Errors: []string{}, Warnings: []string{}}

	// analyze
	remote, err := e.fetch(ctx, OpComprehensive)
	if err != nil {
		result.Message = "Failed to fetch remote catalog"
		result.Errors = append(result.Errors, err.Error())
		result.Stats.Errors = len(result.Errors)
		return result, nil
	}
	rows, err := e.store.ListRows(ctx, scope, models.ColumnID, models.ColumnExternalID)
	if err != nil {
		result.Message = "Failed to read local products"
		result.Errors = append(result.Errors, fmt.Sprintf("analyze: %v", err))
		result.Stats.Errors = len(result.Errors)
		return result, nil
	}
	diff := Diff(remote, rowKeys(rows))
	result.Stats.TotalWooProducts = diff.Distinct()
	result.Stats.TotalToolProducts = len(rows)
	result.Warnings = append(result.Warnings, diffWarnings(diff)...)
	e.logger.Info("Comprehensive sync %s: %d remote, %d local, %d missing", scope, diff.Distinct(), len(rows), len(diff.Missing))

	// delete orphans; a catalog without a single keyed product would orphan every row
	if len(diff.Missing)+len(diff.Existing) == 0 && len(rows) > 0 {
		msg := fmt.Sprintf("Remote catalog has no products with an id while %d local products exist; skipped deleting orphans", len(rows))
		e.logger.Warn("Comprehensive sync %s: %s", scope, msg)
		result.Warnings = append(result.Warnings, msg)
	} else {
		orphans := Orphans(remote, rows)
		deleted, batch := e.deleteOrphans(ctx, scope, orphans)
		result.Stats.ProductsDeleted = deleted
		result.Errors = append(result.Errors, batch.Errors...)
	}

	// add missing
	added := e.insert(ctx, scope, OpComprehensive, diff.Missing)
	result.Stats.NewProductsAdded = added.Succeeded
	result.Errors = append(result.Errors, added.Errors...)

	// refresh survivors
	targets, _ := e.refreshTargets(scope, diff.Existing, rows)
	refreshed := e.refresh(ctx, scope, OpComprehensive, targets)
	result.Stats.ProductsUpdated = refreshed.Succeeded
	result.Errors = append(result.Errors, refreshed.Errors...)

	result.Stats.Errors = len(result.Errors)
	result.Success = len(result.Errors) == 0
	result.Message = fmt.Sprintf("Sync completed: %d added, %d updated, %d deleted",
		result.Stats.NewProductsAdded, result.Stats.ProductsUpdated, result.Stats.ProductsDeleted)
	if !result.Success {
		result.Message += fmt.Sprintf(" (%d errors)", len(result.Errors))
	}

	metrics.RecordRows(string(OpComprehensive), "added", result.Stats.NewProductsAdded)
	metrics.RecordRows(string(OpComprehensive), "updated", result.Stats.ProductsUpdated)
	metrics.RecordRows(string(OpComprehensive), "deleted", result.Stats.ProductsDeleted)
	metrics.RecordRows(string(OpComprehensive), "failed", added.Failed+refreshed.Failed)

	e.logger.Info("Comprehensive sync %s: %s", scope, result.Message)
	return result, nil
}

// BulkUpload inserts already normalized records in large chunks. Records are pinned to
// the scope and given identities before chunking so retried chunks stay idempotent.
func (e *Engine) BulkUpload(ctx context.Context, scope models.Scope, records []models.Product) (*BulkUploadResult, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}

	rows, duplicates := uploadRows(scope, records)

	batch := ApplyChunked(ctx, e.phaseWriter(e.upload, OpBulkUpload, "upload"), "upload", rows,
		func(ctx context.Context, chunk []models.Product) error {
			return e.store.UpsertChunk(ctx, scope, chunk)
		})

	result := &BulkUploadResult{
		Success:  batch.Failed == 0,
		Total:    len(rows),
		Uploaded: batch.Succeeded,
		Failed:   batch.Failed,
		Errors:   nonNil(batch.Errors),
	}
	if duplicates > 0 {
		result.Warnings = []string{fmt.Sprintf("%d records repeated an external id; the last copy was used", duplicates)}
	}
	result.Message = fmt.Sprintf("Uploaded %d of %d products", result.Uploaded, result.Total)
	metrics.RecordRows(string(OpBulkUpload), "added", batch.Succeeded)
	metrics.RecordRows(string(OpBulkUpload), "failed", batch.Failed)

	e.logger.Info("Bulk upload %s: %s", scope, result.Message)
	return result, nil
}

// uploadRows scopes the records and gives each one a fresh internal id. Records sharing an
// external id collapse into the last one, since one upsert cannot write a key twice.
func uploadRows(scope models.Scope, records []models.Product) ([]models.Product, int) {
	rows := make([]models.Product, 0, len(records))
	at := make(map[string]int, len(records))
	duplicates := 0
	for _, r := range records {
		r.ID = ""
		r.ProjectID = scope.ProjectID
		r.ExternalID = strings.TrimSpace(r.ExternalID)
		r.EnsureIdentity()
		if i, ok := at[r.ExternalID]; ok {
			rows[i] = r
			duplicates++
			continue
		}
		at[r.ExternalID] = len(rows)
		rows = append(rows, r)
	}
	return rows, duplicates
}

func (e *Engine) fetch(ctx context.Context, op Operation) ([]woocommerce.Product, error) {
	e.report(op, "fetch", 0, 0)
	remote, err := e.fetcher.FetchAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch remote catalog: %w", err)
	}
	e.report(op, "fetch", len(remote), len(remote))
	return remote, nil
}

func (e *Engine) snapshotKeys(ctx context.Context, scope models.Scope, op Operation) ([]woocommerce.Product, map[string]struct{}, error) {
	remote, err := e.fetch(ctx, op)
	if err != nil {
		return nil, nil, err
	}
	keys, err := e.store.ListKeys(ctx, scope)
	if err != nil {
		return nil, nil, fmt.Errorf("read local keys: %w", err)
	}
	return remote, keys, nil
}

func (e *Engine) insert(ctx context.Context, scope models.Scope, op Operation, products []woocommerce.Product) BatchReport {
	rows := make([]models.Product, 0, len(products))
	for _, p := range products {
		row := e.transformer.ToLocal(scope, p)
		row.EnsureIdentity()
		rows = append(rows, row)
	}

	return ApplyChunked(ctx, e.phaseWriter(e.writer, op, "insert"), "insert", rows,
		func(ctx context.Context, chunk []models.Product) error {
			return e.store.UpsertChunk(ctx, scope, chunk)
		})
}

func (e *Engine) deleteOrphans(ctx context.Context, scope models.Scope, ids []string) (int, BatchReport) {
	deleted := 0
	batch := ApplyChunked(ctx, e.phaseWriter(e.writer, OpComprehensive, "delete"), "delete", ids,
		func(ctx context.Context, chunk []string) error {
			n, err := e.store.DeleteByIDs(ctx, scope, chunk)
			if err != nil {
				return err
			}
			deleted += int(n)
			return nil
		})
	return deleted, batch
}

type refreshTarget struct {
	id     string
	fields map[string]interface{}
}

// refreshTargets pairs local rows with their remote counterpart. It returns the number of
// rows that have none.
func (e *Engine) refreshTargets(scope models.Scope, remote []woocommerce.Product, rows []models.Product) ([]refreshTarget, int) {
	byKey := remoteByKey(remote)
	targets := make([]refreshTarget, 0, len(rows))
	skipped := 0
	for _, row := range rows {
		p, ok := byKey[row.ExternalID]
		if !ok {
			skipped++
			continue
		}
		local := e.transformer.ToLocal(scope, p)
		targets = append(targets, refreshTarget{id: row.ID, fields: local.SyncFields()})
	}
	return targets, skipped
}

func (e *Engine) refresh(ctx context.Context, scope models.Scope, op Operation, targets []refreshTarget) BatchReport {
	return ApplyChunked(ctx, e.phaseWriter(e.writer, op, "refresh"), "refresh", targets,
		func(ctx context.Context, chunk []refreshTarget) error {
			for _, t := range chunk {
				if err := e.store.UpdateByID(ctx, scope, t.id, t.fields); err != nil {
					return err
				}
			}
			return nil
		})
}

func remoteByKey(remote []woocommerce.Product) map[string]woocommerce.Product {
	byKey := make(map[string]woocommerce.Product, len(remote))
	for _, p := range remote {
		if k := p.Key(); k != "" {
			byKey[k] = p
		}
	}
	return byKey
}

func stockStats(rows []models.Product) StockStats {
	var s StockStats
	for _, r := range rows {
		if r.OutOfStock {
			s.OutOfStock++
		} else {
			s.InStock++
		}
	}
	return s
}

func diffWarnings(diff DiffResult) []string {
	var warnings []string
	if len(diff.Unkeyed) > 0 {
		warnings = append(warnings, fmt.Sprintf("%d remote products have no id and were ignored", len(diff.Unkeyed)))
	}
	if diff.Duplicates > 0 {
		warnings = append(warnings, fmt.Sprintf("%d remote products were listed more than once; the last copy was used", diff.Duplicates))
	}
	return warnings
}

func nonNil(errs []string) []string {
	if errs == nil {
		return []string{}
	}
	return errs
}
