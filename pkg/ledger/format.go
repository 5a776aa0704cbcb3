package ledger

import (
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var displayPrinter = message.NewPrinter(language.BrazilianPortuguese)

// FormatBRL renders an amount as localized Brazilian currency for display.
// Aggregation is integer-exact everywhere; the float conversion here only
// affects presentation.
func FormatBRL(amount AmountCents) string {
	value := float64(amount.Int64()) / 100
	return displayPrinter.Sprint(currency.Symbol(currency.BRL.Amount(value)))
}
