package woocommerce

import (
	"catalogsync/internal/models"
	"catalogsync/internal/platform"
	"catalogsync/internal/pricing"
)

type Transformer struct{}

func NewTransformer() *Transformer {
	return &Transformer{}
}

// ToLocal maps a store product onto the mirror's row shape for the given scope.
// The internal id is left empty; the store assigns it on insert.
func (t *Transformer) ToLocal(scope models.Scope, p Product) models.Product {
	price := pricing.ParsePrice(p.RegularPrice)
	if price == 0 {
		price = pricing.ParsePrice(p.Price)
	}

	var promo *int64
	if sale := pricing.ParsePrice(p.SalePrice); sale > 0 {
		promo = &sale
	}

	var image string
	if len(p.Images) > 0 {
		image = p.Images[0].Src
	}

	local := models.Product{
		ProjectID:        scope.ProjectID,
		ExternalID:       p.Key(),
		Title:            p.Name,
		Price:            price,
		PromotionalPrice: promo,
		SKU:              p.SKU,
		ImageURL:         image,
		ExternalURL:      p.Permalink,
	}
	local.SetPlatformData(t.PlatformData(p))

	return local
}

// PlatformData runs the metadata extractor over one product.
func (t *Transformer) PlatformData(p Product) platform.Data {
	return platform.Extract(p.MetaEntries())
}

// OutOfStock is the stock flag alone, used by stock-only refreshes.
func (t *Transformer) OutOfStock(p Product) bool {
	return t.PlatformData(p).OutOfStock
}
