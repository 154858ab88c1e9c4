package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func date(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func TestBuildScheduleEvenSplit(t *testing.T) {
	lines, err := BuildSchedule(d("300"), 3, date(2026, 1, 10))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines got %d", len(lines))
	}
	for i, l := range lines {
		if l.Number != i+1 {
			t.Fatalf("line %d: expected number %d got %d", i, i+1, l.Number)
		}
		if !l.Amount.Equal(d("100")) {
			t.Fatalf("line %d: expected 100 got %s", i, l.Amount)
		}
	}
	if !lines[2].DueDate.Equal(date(2026, 3, 10)) {
		t.Fatalf("unexpected third due date %v", lines[2].DueDate)
	}
}

func TestBuildScheduleRemainderCents(t *testing.T) {
	lines, err := BuildSchedule(d("100"), 3, date(2026, 1, 5))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	want := []string{"33.34", "33.33", "33.33"}
	amounts := make([]decimal.Decimal, 0, len(lines))
	for i, l := range lines {
		if !l.Amount.Equal(d(want[i])) {
			t.Fatalf("line %d: expected %s got %s", i, want[i], l.Amount)
		}
		amounts = append(amounts, l.Amount)
	}
	if !CheckScheduleSum(d("150"), d("50"), amounts, d("0.01")) {
		t.Fatalf("expected schedule sum plus entry to match total")
	}
}

func TestBuildScheduleClampsMonthEnd(t *testing.T) {
	lines, err := BuildSchedule(d("400"), 4, date(2027, 1, 31))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	want := []time.Time{date(2027, 1, 31), date(2027, 2, 28), date(2027, 3, 31), date(2027, 4, 30)}
	for i, l := range lines {
		if !l.DueDate.Equal(want[i]) {
			t.Fatalf("line %d: expected %v got %v", i, want[i], l.DueDate)
		}
	}
}

func TestBuildScheduleRejectsInvalidInput(t *testing.T) {
	cases := []struct {
		name     string
		financed string
		count    int
		want     error
	}{
		{"zero count", "100", 0, ErrInvalidInstallmentCount},
		{"zero amount", "0", 2, ErrInvalidAmount},
		{"fractional cents", "10.005", 2, ErrInvalidAmount},
		{"fewer cents than installments", "0.02", 3, ErrInvalidInstallmentCount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := BuildSchedule(d(tc.financed), tc.count, date(2026, 1, 1))
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v got %v", tc.want, err)
			}
		})
	}
}

func TestApplyPaymentPartialThenFull(t *testing.T) {
	original := d("100")
	paid, err := ApplyPayment(original, decimal.Zero, d("40"))
	if err != nil {
		t.Fatalf("first payment: %v", err)
	}
	if !Remaining(original, paid).Equal(d("60")) {
		t.Fatalf("expected remaining 60 got %s", Remaining(original, paid))
	}
	paid, err = ApplyPayment(original, paid, d("60"))
	if err != nil {
		t.Fatalf("second payment: %v", err)
	}
	if !paid.Equal(d("100")) || !Remaining(original, paid).IsZero() {
		t.Fatalf("expected fully paid, paid=%s", paid)
	}
	if got := Classify(original, paid, date(2020, 1, 1), date(2026, 1, 1)); got != StatusPaid {
		t.Fatalf("expected paid regardless of due date, got %s", got)
	}
}

func TestApplyPaymentRejects(t *testing.T) {
	cases := []struct {
		name   string
		paid   string
		amount string
		want   error
	}{
		{"over remaining", "30", "70.01", ErrPaymentExceedsBalance},
		{"zero", "0", "0", ErrInvalidAmount},
		{"negative", "0", "-1", ErrInvalidAmount},
		{"sub cent", "0", "0.001", ErrInvalidAmount},
		{"already settled", "100", "1", ErrInstallmentSettled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			paid := d(tc.paid)
			got, err := ApplyPayment(d("100"), paid, d(tc.amount))
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v got %v", tc.want, err)
			}
			if !got.Equal(paid) {
				t.Fatalf("paid amount changed on rejection: %s", got)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	today := date(2026, 10, 15)
	cases := []struct {
		name string
		paid string
		due  time.Time
		want string
	}{
		{"past due unpaid", "0", date(2026, 10, 14), StatusOverdue},
		{"past due partial", "50", date(2026, 9, 1), StatusOverdue},
		{"due today", "0", today, StatusPending},
		{"future", "10", date(2026, 11, 15), StatusPending},
		{"paid past due", "100", date(2026, 1, 1), StatusPaid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(d("100"), d(tc.paid), tc.due, today); got != tc.want {
				t.Fatalf("expected %s got %s", tc.want, got)
			}
		})
	}
}

func TestTodayUsesBusinessTimezone(t *testing.T) {
	loc := time.FixedZone("BRT", -3*3600)
	now := time.Date(2026, 10, 16, 1, 30, 0, 0, time.UTC) // BRT 15 日 22:30
	if got := Today(now, loc); !got.Equal(date(2026, 10, 15)) {
		t.Fatalf("expected 2026-10-15 got %v", got)
	}
	// 到期日从数据库以会话时区返回时仍落在同一天
	due := date(2026, 10, 15).In(loc)
	if !DateOf(due).Equal(date(2026, 10, 15)) {
		t.Fatalf("DateOf shifted the due date: %v", DateOf(due))
	}
}

func TestDaysOverdue(t *testing.T) {
	if n := DaysOverdue(date(2026, 10, 1), date(2026, 10, 15)); n != 14 {
		t.Fatalf("expected 14 got %d", n)
	}
	if n := DaysOverdue(date(2026, 10, 15), date(2026, 10, 15)); n != 0 {
		t.Fatalf("expected 0 got %d", n)
	}
}

func TestSummarize(t *testing.T) {
	today := date(2026, 10, 15)
	entries := []Entry{
		{Original: d("100"), Paid: d("100"), DueDate: date(2026, 8, 10)},
		{Original: d("100"), Paid: d("20"), DueDate: date(2026, 9, 10)},
		{Original: d("100"), Paid: decimal.Zero, DueDate: date(2026, 10, 10)},
		{Original: d("100"), Paid: decimal.Zero, DueDate: date(2026, 11, 10)},
	}
	s := Summarize(entries, today)
	if s.Count != 4 || s.PaidCount != 1 || s.OverdueCount != 2 {
		t.Fatalf("unexpected counts: %+v", s)
	}
	if !s.Remaining.Equal(d("280")) || !s.OverdueAmount.Equal(d("180")) || !s.Paid.Equal(d("120")) {
		t.Fatalf("unexpected amounts: %+v", s)
	}
	if s.NextDueDate == nil || !s.NextDueDate.Equal(date(2026, 9, 10)) {
		t.Fatalf("unexpected next due date: %v", s.NextDueDate)
	}
	if s.Settled() {
		t.Fatalf("summary should not be settled")
	}
}

func TestValidateSale(t *testing.T) {
	if err := ValidateSale(d("300"), d("0"), d("0"), true); err != nil {
		t.Fatalf("expected valid sale: %v", err)
	}
	if err := ValidateSale(d("300"), d("300"), d("0"), true); !errors.Is(err, ErrInvalidSale) {
		t.Fatalf("installment sale with entry == total must be rejected, got %v", err)
	}
	if err := ValidateSale(d("300"), d("300"), d("0"), false); err != nil {
		t.Fatalf("cash sale paid in full is valid: %v", err)
	}
	if err := ValidateSale(d("0"), d("0"), d("0"), false); !errors.Is(err, ErrInvalidSale) {
		t.Fatalf("zero total must be rejected, got %v", err)
	}
	if err := ValidateSale(d("100"), d("0"), d("-5"), false); !errors.Is(err, ErrInvalidSale) {
		t.Fatalf("negative discount must be rejected, got %v", err)
	}
}
