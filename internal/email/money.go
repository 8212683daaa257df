package email

import (
	"strings"

	"github.com/shopspring/decimal"
)

var currencySymbols = map[string]string{
	"usd": "$",
	"cad": "CA$",
	"aud": "A$",
	"nzd": "NZ$",
	"eur": "€",
	"gbp": "£",
	"chf": "CHF ",
	"jpy": "¥",
	"krw": "₩",
	"inr": "₹",
}

// Currencies Stripe charges in whole units.
var zeroDecimalCurrencies = map[string]bool{
	"jpy": true,
	"krw": true,
	"vnd": true,
	"clp": true,
	"isk": true,
}

// FormatMoney renders an amount in minor units, e.g. 123456 usd -> "$1,234.56".
// Unknown currencies are rendered with their upper-cased code as a suffix.
func FormatMoney(amount int64, currency string) string {
	currency = strings.ToLower(currency)

	places := int32(2)
	if zeroDecimalCurrencies[currency] {
		places = 0
	}

	value := decimal.New(amount, -places)
	sign := ""
	if value.IsNegative() {
		sign = "-"
		value = value.Abs()
	}

	number := groupThousands(value.StringFixed(places))

	if symbol, ok := currencySymbols[currency]; ok {
		return sign + symbol + number
	}
	return sign + number + " " + strings.ToUpper(currency)
}

func groupThousands(s string) string {
	whole, frac, hasFrac := strings.Cut(s, ".")
	if len(whole) <= 3 {
		return s
	}

	var b strings.Builder
	lead := len(whole) % 3
	if lead > 0 {
		b.WriteString(whole[:lead])
	}
	for i := lead; i < len(whole); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(whole[i : i+3])
	}
	if hasFrac {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}
