package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalogsync/internal/models"
)

func TestNew_SQLite(t *testing.T) {
	db, err := New("sqlite://:memory:", Options{})
	require.NoError(t, err)
	defer db.Close()

	assert.True(t, db.DB.Migrator().HasTable(&models.Project{}))
}

func TestEnsureProductTable(t *testing.T) {
	db, err := New("sqlite://:memory:", Options{})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, EnsureProductTable(db.DB, "shop_a_products"))
	require.NoError(t, EnsureProductTable(db.DB, "shop_a_products"), "second call is a no-op")
	assert.True(t, db.DB.Migrator().HasTable("shop_a_products"))

	first := models.Product{ProjectID: "p1", ExternalID: "1", Title: "A"}
	require.NoError(t, db.DB.Table("shop_a_products").Create(&first).Error)

	dup := models.Product{ProjectID: "p1", ExternalID: "1", Title: "A again"}
	assert.Error(t, db.DB.Table("shop_a_products").Create(&dup).Error, "unique (project_id, external_id)")

	other := models.Product{ProjectID: "p2", ExternalID: "1", Title: "Other project"}
	assert.NoError(t, db.DB.Table("shop_a_products").Create(&other).Error)
}

func TestValidateTableName(t *testing.T) {
	assert.NoError(t, ValidateTableName("products"))
	assert.NoError(t, ValidateTableName("_shop2_products"))
	assert.Error(t, ValidateTableName(""))
	assert.Error(t, ValidateTableName("products; drop table x"))
	assert.Error(t, ValidateTableName("1products"))
}
