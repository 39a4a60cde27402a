package pricing

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePrice(t *testing.T) {
	cases := map[string]int64{
		"":                   0,
		"abc":                0,
		"0":                  0,
		"1.250.000₫":         1250000,
		"1,250,000 VND":      1250000,
		"1 250 000":          1250000,
		"₫ 99.000":           99000,
		"  42  ":             42,
		"0000123":            123,
	}

	for in, want := range cases {
		assert.Equal(t, want, ParsePrice(in), "ParsePrice(%q)", in)
	}

	assert.Equal(t, int64(1250000), ParsePrice("1\u00a0250\u00a0000"))
	assert.Equal(t, int64(0), ParsePrice("1234567890123456789012"), "overflowing input")
}

func TestParsePriceValue(t *testing.T) {
	assert.Equal(t, int64(0), ParsePriceValue(nil))
	assert.Equal(t, int64(150000), ParsePriceValue("150.000"))
	assert.Equal(t, int64(150000), ParsePriceValue(150000))
	assert.Equal(t, int64(150000), ParsePriceValue(float64(150000)))
	assert.Equal(t, int64(0), ParsePriceValue(-5))
	assert.Equal(t, int64(0), ParsePriceValue([]string{"1"}))
	assert.Equal(t, int64(2500), ParsePriceValue(json.Number("2500")))
}

func TestFormatPrice_ZeroAndNegative(t *testing.T) {
	assert.Equal(t, "0", FormatPrice(0))
	assert.Equal(t, "0", FormatPrice(-10))
}

func TestFormatPrice_RoundTrip(t *testing.T) {
	values := []int64{1, 9, 10, 999, 1000, 12345, 999999, 1000000, 1250000, 987654321, 9007199254740991}
	for _, v := range values {
		formatted := FormatPrice(v)
		assert.Equal(t, v, ParsePrice(formatted), "round trip of %d via %q", v, formatted)
	}

	for v := int64(0); v < 5000; v += 37 {
		assert.Equal(t, v, ParsePrice(FormatPrice(v)))
	}
}
