// Package platform turns the free-form product metadata kept by the store into typed
// marketplace listings and a stock flag. Raw metadata keys do not leave this package.
package platform

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"catalogsync/internal/pricing"
)

// Platform is one of the marketplaces a product can be listed on.
type Platform string

const (
	Shopee Platform = "shopee"
	TikTok Platform = "tiktok"
	Lazada Platform = "lazada"
	DMX    Platform = "dmx"
	Tiki   Platform = "tiki"
)

// All lists the supported marketplaces in display order.
var All = []Platform{Shopee, TikTok, Lazada, DMX, Tiki}

const (
	linkPrefix  = "link_"
	pricePrefix = "gia_"

	// StockKey is the metadata key carrying the stock text.
	StockKey = "het_hang"
	// OutOfStockText is the only value that marks a product as out of stock.
	OutOfStockText = "Hết hàng"
)

type keyKind int

const (
	kindLink keyKind = iota + 1
	kindPrice
	kindStock
)

type recognizedKey struct {
	kind     keyKind
	platform Platform
}

var keys = func() map[string]recognizedKey {
	m := map[string]recognizedKey{StockKey: {kind: kindStock}}
	for _, p := range All {
		m[linkPrefix+string(p)] = recognizedKey{kind: kindLink, platform: p}
		m[pricePrefix+string(p)] = recognizedKey{kind: kindPrice, platform: p}
	}
	return m
}()

// Entry is a single metadata key/value pair. Values are loosely typed by the store.
type Entry struct {
	Key   string
	Value interface{}
}

// Listing is a product's presence on one marketplace.
type Listing struct {
	Link  string
	Price *int64
}

// Data is what Extract produces for one product.
type Data struct {
	Listings   map[Platform]Listing
	OutOfStock bool
}

// Listing returns the listing for p, zero value when the product has none.
func (d Data) Listing(p Platform) Listing {
	return d.Listings[p]
}

// Extract walks entries once. Unknown keys are ignored, blank links are dropped, prices
// that parse to 0 are treated as absent and the stock flag follows the last stock entry.
// A missing stock entry means in stock.
func Extract(entries []Entry) Data {
	data := Data{Listings: make(map[Platform]Listing, len(All))}

	for _, e := range entries {
		k, ok := keys[e.Key]
		if !ok {
			continue
		}

		switch k.kind {
		case kindLink:
			l := data.Listings[k.platform]
			l.Link = strings.TrimSpace(ValueString(e.Value))
			data.Listings[k.platform] = l
		case kindPrice:
			l := data.Listings[k.platform]
			l.Price = nil
			if n := pricing.ParsePriceValue(e.Value); n > 0 {
				l.Price = &n
			}
			data.Listings[k.platform] = l
		case kindStock:
			data.OutOfStock = IsOutOfStock(ValueString(e.Value))
		}
	}

	for p, l := range data.Listings {
		if l.Link == "" && l.Price == nil {
			delete(data.Listings, p)
		}
	}

	return data
}

// IsOutOfStock applies the stock text rule on its own.
func IsOutOfStock(text string) bool {
	return text == OutOfStockText
}

// ValueString renders a metadata value as text.
func ValueString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case json.Number:
		return val.String()
	case fmt.Stringer:
		return val.String()
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
