package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"catalogsync/internal/platform"
)

// SyntheticIDPrefix marks external ids generated for records that came without one.
const SyntheticIDPrefix = "manual_"

// Product is one row of a project's product mirror. The table name is chosen per project,
// so callers always go through Scope.Table instead of a TableName method.
type Product struct {
	ID               string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	ProjectID        string    `json:"project_id" gorm:"type:varchar(36);not null"`
	ExternalID       string    `json:"external_id" gorm:"not null"`
	Title            string    `json:"title" gorm:"not null"`
	Price            int64     `json:"price"`
	PromotionalPrice *int64    `json:"promotional_price"`
	SKU              string    `json:"sku"`
	ImageURL         string    `json:"image_url"`
	ExternalURL      string    `json:"external_url"`
	ShopeeLink       string    `json:"shopee_link"`
	ShopeePrice      *int64    `json:"shopee_price"`
	TikTokLink       string    `json:"tiktok_link" gorm:"column:tiktok_link"`
	TikTokPrice      *int64    `json:"tiktok_price" gorm:"column:tiktok_price"`
	LazadaLink       string    `json:"lazada_link"`
	LazadaPrice      *int64    `json:"lazada_price"`
	DMXLink          string    `json:"dmx_link" gorm:"column:dmx_link"`
	DMXPrice         *int64    `json:"dmx_price" gorm:"column:dmx_price"`
	TikiLink         string    `json:"tiki_link"`
	TikiPrice        *int64    `json:"tiki_price"`
	OutOfStock       bool      `json:"out_of_stock"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Column names shared by every store implementation.
const (
	ColumnID         = "id"
	ColumnProjectID  = "project_id"
	ColumnExternalID = "external_id"
	ColumnOutOfStock = "out_of_stock"
	ColumnUpdatedAt  = "updated_at"
)

// SyncColumns are the columns a refresh overwrites. Identity and timestamps are excluded.
var SyncColumns = []string{
	"title", "price", "promotional_price", "sku", "image_url", "external_url",
	"shopee_link", "shopee_price",
	"tiktok_link", "tiktok_price",
	"lazada_link", "lazada_price",
	"dmx_link", "dmx_price",
	"tiki_link", "tiki_price",
	ColumnOutOfStock,
}

// SyncFields returns the refreshable columns of p keyed by column name.
func (p *Product) SyncFields() map[string]interface{} {
	return map[string]interface{}{
		"title":             p.Title,
		"price":             p.Price,
		"promotional_price": p.PromotionalPrice,
		"sku":               p.SKU,
		"image_url":         p.ImageURL,
		"external_url":      p.ExternalURL,
		"shopee_link":       p.ShopeeLink,
		"shopee_price":      p.ShopeePrice,
		"tiktok_link":       p.TikTokLink,
		"tiktok_price":      p.TikTokPrice,
		"lazada_link":       p.LazadaLink,
		"lazada_price":      p.LazadaPrice,
		"dmx_link":          p.DMXLink,
		"dmx_price":         p.DMXPrice,
		"tiki_link":         p.TikiLink,
		"tiki_price":        p.TikiPrice,
		ColumnOutOfStock:    p.OutOfStock,
	}
}

// Record is the full insertable row without server-assigned timestamps.
func (p *Product) Record() map[string]interface{} {
	rec := p.SyncFields()
	if p.ID != "" {
		rec[ColumnID] = p.ID
	}
	rec[ColumnProjectID] = p.ProjectID
	rec[ColumnExternalID] = p.ExternalID
	return rec
}

// SetPlatformData copies extracted marketplace listings into the flattened columns.
// Platforms missing from data are cleared.
func (p *Product) SetPlatformData(data platform.Data) {
	for _, pl := range platform.All {
		link, price := p.platformColumns(pl)
		l := data.Listing(pl)
		*link = l.Link
		*price = l.Price
	}
	p.OutOfStock = data.OutOfStock
}

// Listing reads the flattened columns back for one platform.
func (p *Product) Listing(pl platform.Platform) platform.Listing {
	link, price := p.platformColumns(pl)
	return platform.Listing{Link: *link, Price: *price}
}

func (p *Product) platformColumns(pl platform.Platform) (*string, **int64) {
	switch pl {
	case platform.Shopee:
		return &p.ShopeeLink, &p.ShopeePrice
	case platform.TikTok:
		return &p.TikTokLink, &p.TikTokPrice
	case platform.Lazada:
		return &p.LazadaLink, &p.LazadaPrice
	case platform.DMX:
		return &p.DMXLink, &p.DMXPrice
	case platform.Tiki:
		return &p.TikiLink, &p.TikiPrice
	}
	var link string
	var price *int64
	return &link, &price
}

// EnsureIdentity fills in the internal id and, for records that arrived without one,
// a synthetic external id.
func (p *Product) EnsureIdentity() {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if strings.TrimSpace(p.ExternalID) == "" {
		p.ExternalID = SyntheticIDPrefix + uuid.New().String()
	}
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	p.EnsureIdentity()
	return nil
}
