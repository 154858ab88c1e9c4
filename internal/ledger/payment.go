package ledger

import "github.com/shopspring/decimal"

// ApplyPayment 校验一笔还款并返回新的已还金额。
// 金额必须为正且不超过剩余应还；已结清的分期不再接受还款。
func ApplyPayment(original, paid, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() || !IsCents(amount) {
		return paid, ErrInvalidAmount
	}
	remaining := Remaining(original, paid)
	if !remaining.IsPositive() {
		return paid, ErrInstallmentSettled
	}
	if amount.GreaterThan(remaining) {
		return paid, ErrPaymentExceedsBalance
	}
	return paid.Add(amount), nil
}
