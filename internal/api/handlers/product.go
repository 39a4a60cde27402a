package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"catalogsync/internal/logger"
	"catalogsync/internal/mirror"
	"catalogsync/internal/models"
	"catalogsync/internal/pricing"
	"catalogsync/internal/services/syncrun"
)

const maxBulkUpload = 10000

type ProductHandler struct {
	service *syncrun.Service
	logger  *logger.Logger
}

func NewProductHandler(service *syncrun.Service, logger *logger.Logger) *ProductHandler {
	return &ProductHandler{
		service: service,
		logger:  logger,
	}
}

func (h *ProductHandler) scope(c *gin.Context) (models.Scope, bool) {
	project, err := h.service.Project(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err, "Failed to fetch project")
		return models.Scope{}, false
	}
	scope, err := h.service.Scope(c.Request.Context(), project)
	if err != nil {
		respondError(c, h.logger, err, "Failed to prepare products table")
		return models.Scope{}, false
	}
	return scope, true
}

func (h *ProductHandler) List(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	filter := mirror.PageFilter{
		Search: strings.TrimSpace(c.Query("search")),
		Page:   page,
		Limit:  limit,
	}
	if v := c.Query("out_of_stock"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "out_of_stock must be true or false"})
			return
		}
		filter.OutOfStock = &b
	}

	products, total, err := h.service.Store().Page(c.Request.Context(), scope, filter)
	if err != nil {
		respondError(c, h.logger, err, "Failed to fetch products")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": products,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

func (h *ProductHandler) Get(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}

	product, err := h.service.Store().GetByID(c.Request.Context(), scope, c.Param("productId"))
	if err != nil {
		respondError(c, h.logger, err, "Failed to fetch product")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": product})
}

// Update applies a partial edit of the synced columns. The next refresh from the store
// overwrites manual edits of rows that still exist remotely.
func (h *ProductHandler) Update(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}

	var body map[string]interface{}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	fields, err := editableFields(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := c.Param("productId")
	if err := h.service.Store().UpdateByID(c.Request.Context(), scope, id, fields); err != nil {
		respondError(c, h.logger, err, "Failed to update product")
		return
	}

	product, err := h.service.Store().GetByID(c.Request.Context(), scope, id)
	if err != nil {
		respondError(c, h.logger, err, "Failed to fetch product")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": product})
}

func (h *ProductHandler) Delete(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}

	n, err := h.service.Store().DeleteByIDs(c.Request.Context(), scope, []string{c.Param("productId")})
	if err != nil {
		respondError(c, h.logger, err, "Failed to delete product")
		return
	}
	if n == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}

	c.Status(http.StatusNoContent)
}

type bulkUploadRequest struct {
	Products []models.Product `json:"products" binding:"required"`
}

// BulkUpload stores records that were already normalized by the CSV importer.
func (h *ProductHandler) BulkUpload(c *gin.Context) {
	var req bulkUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Products) > maxBulkUpload {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("at most %d products per upload", maxBulkUpload)})
		return
	}

	if err := validateUpload(req.Products); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.BulkUpload(c.Request.Context(), c.Param("id"), req.Products)
	if err != nil {
		respondError(c, h.logger, err, "Failed to upload products")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// validateUpload rejects records that carry their own internal id or repeat an external id.
func validateUpload(products []models.Product) error {
	seen := make(map[string]int, len(products))
	for i, p := range products {
		if p.ID != "" {
			return fmt.Errorf("products[%d]: id is assigned by the server", i)
		}
		key := strings.TrimSpace(p.ExternalID)
		if key == "" {
			continue
		}
		if first, ok := seen[key]; ok {
			return fmt.Errorf("products[%d]: external_id %q repeats products[%d]", i, key, first)
		}
		seen[key] = i
	}
	return nil
}

var editableColumns = func() map[string]bool {
	cols := make(map[string]bool, len(models.SyncColumns))
	for _, c := range models.SyncColumns {
		cols[c] = true
	}
	return cols
}()

// editableFields validates an edit body and coerces prices. Platform and promotional
// prices of 0 are stored as absent.
func editableFields(body map[string]interface{}) (map[string]interface{}, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("no fields to update")
	}

	fields := make(map[string]interface{}, len(body))
	for key, value := range body {
		if !editableColumns[key] {
			return nil, fmt.Errorf("field %q cannot be edited", key)
		}

		switch {
		case key == "price":
			fields[key] = pricing.ParsePriceValue(value)
		case strings.HasSuffix(key, "_price"):
			if n := pricing.ParsePriceValue(value); n > 0 {
				fields[key] = &n
			} else {
				fields[key] = (*int64)(nil)
			}
		case key == models.ColumnOutOfStock:
			b, ok := value.(bool)
			if !ok {
				return nil, fmt.Errorf("field %q must be a boolean", key)
			}
			fields[key] = b
		default:
			s, ok := value.(string)
			if !ok && value != nil {
				return nil, fmt.Errorf("field %q must be a string", key)
			}
			fields[key] = strings.TrimSpace(s)
		}
	}
	return fields, nil
}
