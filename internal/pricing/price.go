// Package pricing converts between locale formatted price strings and integer amounts.
// Amounts are whole units of the store currency (VND has no minor unit).
package pricing

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// maxDigits keeps parsed values inside int64.
const maxDigits = 18

var printer = message.NewPrinter(language.Vietnamese)

// ParsePrice extracts the integer amount from text such as "1.250.000₫", "1,250,000 VND"
// or "1 250 000". Separators and currency glyphs are dropped; text without digits yields 0.
func ParsePrice(text string) int64 {
	var b strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}

	digits := strings.TrimLeft(b.String(), "0")
	if digits == "" || len(digits) > maxDigits {
		return 0
	}

	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// ParsePriceValue accepts the loosely typed values found in remote metadata.
func ParsePriceValue(v interface{}) int64 {
	switch val := v.(type) {
	case nil:
		return 0
	case string:
		return ParsePrice(val)
	case int:
		return nonNegative(int64(val))
	case int64:
		return nonNegative(val)
	case int32:
		return nonNegative(int64(val))
	case float64:
		return floatAmount(val)
	case float32:
		return floatAmount(float64(val))
	case fmtStringer:
		return ParsePrice(val.String())
	default:
		return 0
	}
}

type fmtStringer interface {
	String() string
}

// FormatPrice renders n with Vietnamese thousands grouping ("1.250.000").
func FormatPrice(n int64) string {
	if n <= 0 {
		return "0"
	}
	return printer.Sprintf("%d", n)
}

func floatAmount(f float64) int64 {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 || f >= math.MaxInt64 {
		return 0
	}
	return int64(f)
}

func nonNegative(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}
