package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Entry 汇总所需的分期字段
type Entry struct {
	Original decimal.Decimal
	Paid     decimal.Decimal
	DueDate  time.Time
}

// Summary 一组分期的汇总
type Summary struct {
	Count         int             `json:"count"`
	PaidCount     int             `json:"paid_count"`
	OverdueCount  int             `json:"overdue_count"`
	Original      decimal.Decimal `json:"original_amount"`
	Paid          decimal.Decimal `json:"paid_amount"`
	Remaining     decimal.Decimal `json:"remaining_amount"`
	OverdueAmount decimal.Decimal `json:"overdue_amount"`
	NextDueDate   *time.Time      `json:"next_due_date,omitempty"`
}

// Summarize 汇总分期，NextDueDate 为最早一期未结清的到期日
func Summarize(entries []Entry, today time.Time) Summary {
	s := Summary{
		Original:      decimal.Zero,
		Paid:          decimal.Zero,
		Remaining:     decimal.Zero,
		OverdueAmount: decimal.Zero,
	}
	for _, e := range entries {
		s.Count++
		s.Original = s.Original.Add(e.Original)
		s.Paid = s.Paid.Add(e.Paid)
		remaining := Remaining(e.Original, e.Paid)
		s.Remaining = s.Remaining.Add(remaining)

		switch Classify(e.Original, e.Paid, e.DueDate, today) {
		case StatusPaid:
			s.PaidCount++
			continue
		case StatusOverdue:
			s.OverdueCount++
			s.OverdueAmount = s.OverdueAmount.Add(remaining)
		}

		due := DateOf(e.DueDate)
		if s.NextDueDate == nil || due.Before(*s.NextDueDate) {
			s.NextDueDate = &due
		}
	}
	return s
}

// Settled 所有分期都已结清
func (s Summary) Settled() bool {
	return s.Count > 0 && s.PaidCount == s.Count
}
