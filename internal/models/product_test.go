package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalogsync/internal/platform"
)

func TestProduct_SetPlatformData(t *testing.T) {
	price := int64(120000)
	p := &Product{TikiLink: "stale", TikiPrice: &price}

	p.SetPlatformData(platform.Data{
		Listings: map[platform.Platform]platform.Listing{
			platform.Shopee: {Link: "https://shopee.vn/1", Price: &price},
		},
		OutOfStock: true,
	})

	assert.Equal(t, "https://shopee.vn/1", p.ShopeeLink)
	require.NotNil(t, p.ShopeePrice)
	assert.Equal(t, price, *p.ShopeePrice)
	assert.Empty(t, p.TikiLink)
	assert.Nil(t, p.TikiPrice)
	assert.True(t, p.OutOfStock)

	assert.Equal(t, platform.Listing{Link: "https://shopee.vn/1", Price: &price}, p.Listing(platform.Shopee))
}

func TestProduct_SyncFieldsCoverSyncColumns(t *testing.T) {
	p := &Product{}
	fields := p.SyncFields()

	assert.Len(t, fields, len(SyncColumns))
	for _, col := range SyncColumns {
		assert.Contains(t, fields, col)
	}
	assert.NotContains(t, fields, ColumnID)
	assert.NotContains(t, fields, ColumnProjectID)
}

func TestProduct_Record(t *testing.T) {
	p := &Product{ID: "abc", ProjectID: "proj", ExternalID: "42", Title: "Nồi cơm"}
	rec := p.Record()

	assert.Equal(t, "abc", rec[ColumnID])
	assert.Equal(t, "proj", rec[ColumnProjectID])
	assert.Equal(t, "42", rec[ColumnExternalID])
	assert.Equal(t, "Nồi cơm", rec["title"])
}

func TestProduct_EnsureIdentity(t *testing.T) {
	p := &Product{}
	p.EnsureIdentity()

	assert.NotEmpty(t, p.ID)
	assert.True(t, strings.HasPrefix(p.ExternalID, SyntheticIDPrefix))

	kept := &Product{ID: "id-1", ExternalID: "77"}
	kept.EnsureIdentity()
	assert.Equal(t, "id-1", kept.ID)
	assert.Equal(t, "77", kept.ExternalID)
}

func TestProject_Scope(t *testing.T) {
	p := &Project{ID: "p1"}
	assert.Equal(t, Scope{ProjectID: "p1", Table: "products"}, p.Scope("products"))

	p.ProductsTable = "shop_b_products"
	assert.Equal(t, Scope{ProjectID: "p1", Table: "shop_b_products"}, p.Scope("products"))

	assert.False(t, Scope{ProjectID: "p1"}.Valid())
	assert.True(t, p.Scope("x").Valid())
}
