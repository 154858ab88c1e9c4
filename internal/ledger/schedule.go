package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// ScheduleLine 分期计划中的一期
type ScheduleLine struct {
	Number  int
	DueDate time.Time
	Amount  decimal.Decimal
}

// BuildSchedule 把融资金额（总额 - 首付）拆成 count 期，按月到期。
//
// 每期金额按分平均，除不尽的分从第 1 期开始每期多 1 分，保证合计精确等于融资金额。
// 到期日从 firstDue 开始逐月递增，遇到短月取当月最后一天（1月31日 -> 2月28/29日）。
func BuildSchedule(financed decimal.Decimal, count int, firstDue time.Time) ([]ScheduleLine, error) {
	if count < 1 {
		return nil, ErrInvalidInstallmentCount
	}
	if !financed.IsPositive() || !IsCents(financed) {
		return nil, ErrInvalidAmount
	}

	cents := financed.Shift(2).IntPart()
	if cents < int64(count) {
		return nil, ErrInvalidInstallmentCount
	}
	base := cents / int64(count)
	extra := cents % int64(count)

	start := DateOf(firstDue)
	lines := make([]ScheduleLine, 0, count)
	for i := 0; i < count; i++ {
		amount := base
		if int64(i) < extra {
			amount++
		}
		lines = append(lines, ScheduleLine{
			Number:  i + 1,
			DueDate: AddMonths(start, i),
			Amount:  decimal.New(amount, -2),
		})
	}
	return lines, nil
}

// AddMonths 按月偏移，日期超出目标月天数时取月末
func AddMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// CheckScheduleSum 校验 sum(分期原始金额) + 首付 ≈ 总额（误差不超过 tolerance）
func CheckScheduleSum(total, entry decimal.Decimal, amounts []decimal.Decimal, tolerance decimal.Decimal) bool {
	sum := entry
	for _, a := range amounts {
		sum = sum.Add(a)
	}
	return sum.Sub(total).Abs().LessThanOrEqual(tolerance)
}

// ValidateSale 校验销售金额：总额 > 0，首付、折扣非负；分期销售首付必须小于总额
func ValidateSale(total, entry, discount decimal.Decimal, isInstallment bool) error {
	if !total.IsPositive() || !IsCents(total) {
		return ErrInvalidSale
	}
	if entry.IsNegative() || discount.IsNegative() || !IsCents(entry) || !IsCents(discount) {
		return ErrInvalidSale
	}
	if isInstallment {
		if !entry.LessThan(total) {
			return ErrInvalidSale
		}
		return nil
	}
	if entry.GreaterThan(total) {
		return ErrInvalidSale
	}
	return nil
}
