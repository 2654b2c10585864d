package domain

import (
	"fmt"
	"strings"
)

var zeroDecimal = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true,
	"krw": true, "mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true,
	"vuv": true, "xaf": true, "xof": true, "xpf": true,
}

var symbols = map[string]string{
	"usd": "$",
	"eur": "€",
	"gbp": "£",
	"jpy": "¥",
}

// FormatAmount renders a minor-unit amount for receipts, e.g. 2500 usd → "$25.00".
func FormatAmount(amount int64, currency string) string {
	currency = strings.ToLower(strings.TrimSpace(currency))
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}

	var value string
	if zeroDecimal[currency] {
		value = fmt.Sprintf("%d", amount)
	} else {
		value = fmt.Sprintf("%d.%02d", amount/100, amount%100)
	}

	if symbol, ok := symbols[currency]; ok {
		return sign + symbol + value
	}
	return sign + value + " " + strings.ToUpper(currency)
}
