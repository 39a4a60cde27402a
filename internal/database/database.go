package database

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"catalogsync/internal/models"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

type Database struct {
	DB *gorm.DB
}

type Options struct {
	// LogQueries turns on gorm's SQL logging.
	LogQueries bool
}

func New(databaseURL string, opts Options) (*Database, error) {
	var db *gorm.DB
	var err error

	level := logger.Warn
	if opts.LogQueries {
		level = logger.Info
	}
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(level),
	}

	if strings.HasPrefix(databaseURL, "sqlite://") {
		// SQLite for development
		dbPath := strings.TrimPrefix(databaseURL, "sqlite://")
		db, err = gorm.Open(sqlite.Open(dbPath), gormConfig)
	} else {
		// PostgreSQL (Supabase) for production
		db, err = gorm.Open(postgres.Open(databaseURL), gormConfig)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if strings.HasPrefix(databaseURL, "sqlite://") {
		// one connection: every :memory: connection would otherwise be its own database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&models.Project{}); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &Database{DB: db}, nil
}

// EnsureProductTable creates a product mirror table and its (project_id, external_id)
// unique index when they do not exist yet.
func EnsureProductTable(db *gorm.DB, table string) error {
	if err := ValidateTableName(table); err != nil {
		return err
	}

	if err := db.Table(table).AutoMigrate(&models.Product{}); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}

	indexSQL := fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (project_id, external_id)",
		pq.QuoteIdentifier("uq_"+table+"_project_external"),
		pq.QuoteIdentifier(table),
	)
	if err := db.Exec(indexSQL).Error; err != nil {
		return fmt.Errorf("failed to create index on %s: %w", table, err)
	}

	return nil
}

// ValidateTableName rejects names that are not plain SQL identifiers.
func ValidateTableName(table string) error {
	if !tableNamePattern.MatchString(table) {
		return fmt.Errorf("invalid table name %q", table)
	}
	return nil
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
