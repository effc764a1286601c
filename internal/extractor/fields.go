package extractor

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// stringField returns the first non-empty value among keys. Numbers are
// formatted without exponent; anything else yields nil.
func stringField(payload map[string]interface{}, keys ...string) *string {
	for _, key := range keys {
		raw, ok := payload[key]
		if !ok || raw == nil {
			continue
		}
		var s string
		switch v := raw.(type) {
		case string:
			s = strings.TrimSpace(v)
		case float64:
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			s = strconv.FormatFloat(v, 'f', -1, 64)
		case int:
			s = strconv.Itoa(v)
		case int64:
			s = strconv.FormatInt(v, 10)
		case uint64:
			s = strconv.FormatUint(v, 10)
		default:
			continue
		}
		if s != "" {
			return &s
		}
	}
	return nil
}

// priceField parses a fixed-point price. Negative, non-finite or unparsable
// values yield nil.
func priceField(payload map[string]interface{}, keys ...string) *float64 {
	for _, key := range keys {
		raw, ok := payload[key]
		if !ok || raw == nil {
			continue
		}

		var d decimal.Decimal
		switch v := raw.(type) {
		case string:
			parsed, err := decimal.NewFromString(strings.TrimSpace(v))
			if err != nil {
				continue
			}
			d = parsed
		case float64:
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			d = decimal.NewFromFloat(v)
		case int:
			d = decimal.NewFromInt(int64(v))
		default:
			continue
		}

		if d.IsNegative() {
			continue
		}
		f, _ := d.Round(8).Float64()
		return &f
	}
	return nil
}
