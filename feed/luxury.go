package feed

import (
	"regexp"
	"strconv"
	"strings"
)

// DefaultLuxuryThreshold is the price a listing must exceed to be luxury.
const DefaultLuxuryThreshold int64 = 20_000_000

var (
	fractionSuffix = regexp.MustCompile(`\.\d{1,2}\s*$`)
	nonDigits      = regexp.MustCompile(`\D`)
)

// ParsePrice reads a feed price such as "AED 21,500,000.00". A cents
// suffix is dropped before every non-digit is stripped.
func ParsePrice(s string) (int64, bool) {
	s = fractionSuffix.ReplaceAllString(strings.TrimSpace(s), "")
	digits := nonDigits.ReplaceAllString(s, "")
	if digits == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// IsLuxury reports whether price is strictly above threshold. Unparseable
// prices are never luxury.
func IsLuxury(price string, threshold int64) bool {
	n, ok := ParsePrice(price)
	return ok && n > threshold
}
