package woocommerce

import (
	"strconv"

	"catalogsync/internal/platform"
)

// Product is the subset of the WooCommerce v3 product resource the sync needs.
type Product struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	Slug         string     `json:"slug"`
	Permalink    string     `json:"permalink"`
	Status       string     `json:"status"`
	SKU          string     `json:"sku"`
	Price        string     `json:"price"`
	RegularPrice string     `json:"regular_price"`
	SalePrice    string     `json:"sale_price"`
	StockStatus  string     `json:"stock_status"`
	Images       []Image    `json:"images"`
	Categories   []Category `json:"categories"`
	MetaData     []MetaData `json:"meta_data"`
	DateModified string     `json:"date_modified"`
}

type Image struct {
	ID  int64  `json:"id"`
	Src string `json:"src"`
	Alt string `json:"alt"`
}

type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// MetaData values are whatever the plugin that wrote them stored: strings, numbers, objects.
type MetaData struct {
	ID    int64       `json:"id"`
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

// Key is the product's external identifier in the mirror. Empty when the store sent no id.
func (p Product) Key() string {
	if p.ID <= 0 {
		return ""
	}
	return strconv.FormatInt(p.ID, 10)
}

// MetaEntries converts meta_data into extractor input, preserving order.
func (p Product) MetaEntries() []platform.Entry {
	entries := make([]platform.Entry, 0, len(p.MetaData))
	for _, m := range p.MetaData {
		entries = append(entries, platform.Entry{Key: m.Key, Value: m.Value})
	}
	return entries
}
