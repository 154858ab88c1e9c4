package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusPending = "pending"
	StatusPaid    = "paid"
	StatusOverdue = "overdue"
)

// Remaining 剩余应还 = 原始金额 - 已还金额，不会小于 0
func Remaining(original, paid decimal.Decimal) decimal.Decimal {
	r := original.Sub(paid)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// Classify 根据金额和到期日推导分期状态，状态不单独存储
//
//	剩余为 0            -> paid（不论是否过期）
//	剩余 > 0 且到期日 < 今天 -> overdue
//	其余               -> pending（包括今天到期）
func Classify(original, paid decimal.Decimal, dueDate, today time.Time) string {
	if !Remaining(original, paid).IsPositive() {
		return StatusPaid
	}
	if DateOf(dueDate).Before(DateOf(today)) {
		return StatusOverdue
	}
	return StatusPending
}

// DaysOverdue 逾期天数，未逾期返回 0
func DaysOverdue(dueDate, today time.Time) int {
	due := DateOf(dueDate)
	t := DateOf(today)
	if !due.Before(t) {
		return 0
	}
	return int(t.Sub(due).Hours() / 24)
}
