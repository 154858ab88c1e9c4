package service

import (
	"context"
	"errors"
	"testing"

	"crediario/internal/model"
	"crediario/internal/repository"
)

func TestReceivables(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// 300 分 3 期：1/10 已逾期，2/10 已逾期，3/10 今天到期
	detail := env.createInstallmentSale(t, "300", 3, day(2025, 1, 10))
	env.pay(t, "r1", detail.Installments[0].ID, "100")

	cashPaid := day(2025, 3, 5)
	if _, err := env.installments.Pay(ctx, &PayRequest{
		RequestID:     "r2",
		InstallmentID: detail.Installments[1].ID,
		Amount:        dec("20"),
		PaidOn:        &cashPaid,
		Method:        model.PaymentMethodCash,
	}); err != nil {
		t.Fatalf("pay: %v", err)
	}

	report, err := env.reports.Receivables(ctx, nil, nil)
	if err != nil {
		t.Fatalf("receivables: %v", err)
	}

	if report.From != "2025-03-01" || report.To != "2025-03-10" {
		t.Fatalf("period = %s..%s", report.From, report.To)
	}
	if !report.Outstanding.Equal(dec("180")) {
		t.Errorf("outstanding = %s, want 180", report.Outstanding)
	}
	if !report.Overdue.Equal(dec("80")) || report.OverdueCount != 1 {
		t.Errorf("overdue = %s (%d), want 80 (1)", report.Overdue, report.OverdueCount)
	}
	if !report.Received.Equal(dec("120")) {
		t.Errorf("received = %s, want 120", report.Received)
	}
	if len(report.ReceivedByMethod) != 2 {
		t.Fatalf("methods = %+v", report.ReceivedByMethod)
	}
	if report.ReceivedByMethod[0].Method != model.PaymentMethodCash || !report.ReceivedByMethod[0].Total.Equal(dec("20")) {
		t.Errorf("cash = %+v", report.ReceivedByMethod[0])
	}
	if report.OpenSales != 1 {
		t.Errorf("open sales = %d, want 1", report.OpenSales)
	}

	// 区间不含还款日
	from, to := day(2025, 2, 1), day(2025, 2, 28)
	february, err := env.reports.Receivables(ctx, &from, &to)
	if err != nil {
		t.Fatalf("receivables: %v", err)
	}
	if !february.Received.IsZero() || len(february.ReceivedByMethod) != 0 {
		t.Errorf("february received = %s", february.Received)
	}

	if _, err := env.reports.Receivables(ctx, &to, &from); !errors.Is(err, ErrInvalidPeriod) {
		t.Errorf("reversed period err = %v", err)
	}
}

func TestCustomerStatement(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	open := env.createInstallmentSale(t, "300", 3, day(2025, 2, 10))
	cancelled := env.createInstallmentSale(t, "999", 1, day(2025, 4, 10))
	if _, err := env.sales.CancelSale(ctx, cancelled.Sale.ID, ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	env.pay(t, "s1", open.Installments[0].ID, "50")

	statement, err := env.reports.CustomerStatement(ctx, open.Sale.CustomerID)
	if err != nil {
		t.Fatalf("statement: %v", err)
	}

	if len(statement.Sales) != 2 {
		t.Fatalf("sales = %d, want 2", len(statement.Sales))
	}
	if !statement.LifetimeValue.Equal(dec("300")) {
		t.Errorf("lifetime value = %s, want 300", statement.LifetimeValue)
	}
	if !statement.Outstanding.Equal(dec("250")) {
		t.Errorf("outstanding = %s, want 250", statement.Outstanding)
	}
	// 2/10 那期剩 50 已逾期，3/10 当天到期不算
	if !statement.Overdue.Equal(dec("50")) {
		t.Errorf("overdue = %s, want 50", statement.Overdue)
	}
	if statement.Sales[0].Summary.OverdueCount != 1 {
		t.Errorf("overdue count = %d, want 1", statement.Sales[0].Summary.OverdueCount)
	}

	if _, err := env.reports.CustomerStatement(ctx, 404); !errors.Is(err, repository.ErrCustomerNotFound) {
		t.Errorf("unknown customer err = %v", err)
	}
}

func TestCreateCustomer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	c, err := env.customers.CreateCustomer(ctx, &CustomerInput{Name: "  Joana  ", Document: "11122233344"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.ID == 0 || c.Name != "Joana" {
		t.Fatalf("customer = %+v", c)
	}

	dup, err := env.customers.CreateCustomer(ctx, &CustomerInput{Name: "Outra", Document: "11122233344"})
	if !errors.Is(err, ErrCustomerExists) || dup.ID != c.ID {
		t.Fatalf("duplicate CPF: err=%v customer=%+v", err, dup)
	}

	if _, err := env.customers.CreateCustomer(ctx, &CustomerInput{Name: " "}); !errors.Is(err, ErrCustomerNameRequired) {
		t.Fatalf("empty name err = %v", err)
	}

	got, err := env.customers.GetCustomer(ctx, c.ID)
	if err != nil || got.Document != "11122233344" {
		t.Fatalf("get: %+v, %v", got, err)
	}
}
