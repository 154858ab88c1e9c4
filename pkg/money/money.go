// Package money 金额展示格式
package money

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var brl = message.NewPrinter(language.BrazilianPortuguese)

// FormatBRL 按巴西格式输出金额，例如 R$ 1.234,50
func FormatBRL(amount decimal.Decimal) string {
	return brl.Sprintf("R$ %.2f", amount.Round(2).InexactFloat64())
}
