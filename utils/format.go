package utils

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatAmount formats money like "12 250 so'm" or "1 200.50 USD".
// If the fractional part is zero, decimals are omitted.
func FormatAmount(value decimal.Decimal, currency string) string {
	s := value.StringFixed(2)
	parts := strings.SplitN(s, ".", 2)
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 && parts[1] != "00" {
		fracPart = parts[1]
	}

	sign := ""
	if strings.HasPrefix(intPart, "-") {
		sign = "-"
		intPart = intPart[1:]
	}

	// Insert spaces every 3 digits in integer part
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}

	out := sign + b.String()
	if fracPart != "" {
		out += "." + fracPart
	}
	if currency == "UZS" {
		return out + " so'm"
	}
	return out + " " + currency
}
