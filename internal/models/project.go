package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Project binds one WooCommerce store to one slice of the product mirror.
type Project struct {
	ID             string        `json:"id" gorm:"type:varchar(36);primaryKey"`
	Name           string        `json:"name" gorm:"not null"`
	StoreURL       string        `json:"store_url" gorm:"not null"`
	ConsumerKey    string        `json:"consumer_key,omitempty"`
	ConsumerSecret string        `json:"consumer_secret,omitempty"`
	ProductsTable  string        `json:"products_table"`
	SyncSchedule   string        `json:"sync_schedule"`
	Status         ProjectStatus `json:"status" gorm:"default:ACTIVE"`
	LastSyncAt     *time.Time    `json:"last_sync_at"`
	LastSyncStatus string        `json:"last_sync_status"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

type ProjectStatus string

const (
	ProjectStatusActive   ProjectStatus = "ACTIVE"
	ProjectStatusInactive ProjectStatus = "INACTIVE"
	ProjectStatusSyncing  ProjectStatus = "SYNCING"
	ProjectStatusError    ProjectStatus = "ERROR"
)

// Scope returns the mirror slice this project writes to. defaultTable is used when the
// project does not name its own table.
func (p *Project) Scope(defaultTable string) Scope {
	table := p.ProductsTable
	if table == "" {
		table = defaultTable
	}
	return Scope{ProjectID: p.ID, Table: table}
}

func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}

// Scope identifies the tenant slice every mirror operation is restricted to.
type Scope struct {
	ProjectID string `json:"project_id"`
	Table     string `json:"table"`
}

// Valid reports whether both parts of the scope are present.
func (s Scope) Valid() bool {
	return s.ProjectID != "" && s.Table != ""
}

func (s Scope) String() string {
	return s.Table + "/" + s.ProjectID
}
