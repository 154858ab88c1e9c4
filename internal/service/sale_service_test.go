package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"crediario/internal/ledger"
	"crediario/internal/model"
	"crediario/internal/repository"

	"github.com/shopspring/decimal"
)

func TestCreateInstallmentSaleBuildsSchedule(t *testing.T) {
	env := newTestEnv(t)

	detail := env.createInstallmentSale(t, "300.00", 3, day(2025, 4, 10))

	if detail.Sale.PaymentStatus != model.SaleStatusPending {
		t.Fatalf("status = %s, want pending", detail.Sale.PaymentStatus)
	}
	if detail.Sale.InstallmentCount != 3 {
		t.Fatalf("installment count = %d, want 3", detail.Sale.InstallmentCount)
	}
	if len(detail.Installments) != 3 {
		t.Fatalf("got %d installments, want 3", len(detail.Installments))
	}

	wantDue := []time.Time{day(2025, 4, 10), day(2025, 5, 10), day(2025, 6, 10)}
	for i, inst := range detail.Installments {
		if inst.Number != i+1 {
			t.Errorf("installment %d number = %d", i, inst.Number)
		}
		if !inst.OriginalAmount.Equal(dec("100")) {
			t.Errorf("installment %d amount = %s, want 100", inst.Number, inst.OriginalAmount)
		}
		if !ledger.DateOf(inst.DueDate).Equal(wantDue[i]) {
			t.Errorf("installment %d due = %s, want %s", inst.Number, inst.DueDate, wantDue[i])
		}
		if inst.Status != ledger.StatusPending {
			t.Errorf("installment %d status = %s, want pending", inst.Number, inst.Status)
		}
	}

	if !detail.Summary.Original.Equal(dec("300")) || !detail.Summary.Remaining.Equal(dec("300")) {
		t.Fatalf("summary = %+v", detail.Summary)
	}
	if n := countOutbox(t, env.db, model.EventSaleCreated); n != 1 {
		t.Fatalf("sale.created events = %d, want 1", n)
	}
}

func TestCreateSaleSpreadsRemainderCents(t *testing.T) {
	env := newTestEnv(t)

	detail := env.createInstallmentSale(t, "100.00", 3, day(2025, 4, 1))

	want := []string{"33.34", "33.33", "33.33"}
	sum := decimal.Zero
	for i, inst := range detail.Installments {
		if !inst.OriginalAmount.Equal(dec(want[i])) {
			t.Errorf("installment %d = %s, want %s", inst.Number, inst.OriginalAmount, want[i])
		}
		sum = sum.Add(inst.OriginalAmount)
	}
	if !sum.Equal(dec("100")) {
		t.Fatalf("sum = %s, want 100", sum)
	}
}

func TestCreateSaleWithEntryPayment(t *testing.T) {
	env := newTestEnv(t)

	detail, err := env.sales.CreateSale(context.Background(), &CreateSaleRequest{
		Customer:         &CustomerInput{Name: "Ana"},
		TotalValue:       dec("500"),
		EntryPayment:     dec("200"),
		IsInstallment:    true,
		InstallmentCount: 2,
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	for _, inst := range detail.Installments {
		if !inst.OriginalAmount.Equal(dec("150")) {
			t.Errorf("installment %d = %s, want 150", inst.Number, inst.OriginalAmount)
		}
	}
	// 未指定首期日期时为一个月后
	if got := ledger.DateOf(detail.Installments[0].DueDate); !got.Equal(day(2025, 4, 10)) {
		t.Fatalf("first due = %s, want 2025-04-10", got)
	}
}

func TestCreateSaleIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	req := func() *CreateSaleRequest {
		return &CreateSaleRequest{
			RequestID:        "sale-req-1",
			Customer:         &CustomerInput{Name: "Ana", Document: "98765432100"},
			TotalValue:       dec("120"),
			IsInstallment:    true,
			InstallmentCount: 2,
		}
	}

	first, err := env.sales.CreateSale(ctx, req())
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	second, err := env.sales.CreateSale(ctx, req())
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if first.Sale.ID != second.Sale.ID {
		t.Fatalf("duplicate request created a second sale: %d vs %d", first.Sale.ID, second.Sale.ID)
	}

	var sales, installments, customers int64
	env.db.Model(&model.Sale{}).Count(&sales)
	env.db.Model(&model.Installment{}).Count(&installments)
	env.db.Model(&model.Customer{}).Count(&customers)
	if sales != 1 || installments != 2 || customers != 1 {
		t.Fatalf("rows: sales=%d installments=%d customers=%d", sales, installments, customers)
	}
}

func TestCreateSaleReusesCustomerByDocument(t *testing.T) {
	env := newTestEnv(t)

	a := env.createInstallmentSale(t, "100", 1, day(2025, 4, 1))
	b := env.createInstallmentSale(t, "200", 2, day(2025, 4, 1))

	if a.Sale.CustomerID != b.Sale.CustomerID {
		t.Fatalf("same CPF produced two customers: %d vs %d", a.Sale.CustomerID, b.Sale.CustomerID)
	}
}

func TestCreateSaleValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	customer := &CustomerInput{Name: "Ana"}

	cases := []struct {
		name string
		req  *CreateSaleRequest
		want error
	}{
		{"no customer", &CreateSaleRequest{TotalValue: dec("100")}, ErrCustomerRequired},
		{"entry equals total", &CreateSaleRequest{Customer: customer, TotalValue: dec("100"), EntryPayment: dec("100"), IsInstallment: true, InstallmentCount: 2}, ledger.ErrInvalidSale},
		{"zero total", &CreateSaleRequest{Customer: customer, TotalValue: decimal.Zero}, ledger.ErrInvalidSale},
		{"too many installments", &CreateSaleRequest{Customer: customer, TotalValue: dec("1000"), IsInstallment: true, InstallmentCount: 30}, ErrTooManyInstallments},
		{"zero installments", &CreateSaleRequest{Customer: customer, TotalValue: dec("100"), IsInstallment: true}, ledger.ErrInvalidInstallmentCount},
		{"bad method", &CreateSaleRequest{Customer: customer, TotalValue: dec("100"), PaymentMethod: "cheque"}, ErrInvalidPaymentMethod},
	}

	for _, tc := range cases {
		if _, err := env.sales.CreateSale(ctx, tc.req); !errors.Is(err, tc.want) {
			t.Errorf("%s: err = %v, want %v", tc.name, err, tc.want)
		}
	}

	var n int64
	env.db.Model(&model.Sale{}).Count(&n)
	if n != 0 {
		t.Fatalf("invalid requests created %d sales", n)
	}
}

func TestCreateSaleUnknownCustomer(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.sales.CreateSale(context.Background(), &CreateSaleRequest{CustomerID: 999, TotalValue: dec("50")})
	if !errors.Is(err, repository.ErrCustomerNotFound) {
		t.Fatalf("err = %v, want ErrCustomerNotFound", err)
	}
}

func TestCancelSale(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	detail := env.createInstallmentSale(t, "200", 2, day(2025, 4, 10))

	sale, err := env.sales.CancelSale(ctx, detail.Sale.ID, "cliente desistiu")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if sale.PaymentStatus != model.SaleStatusCancelled || sale.CancelledAt == nil {
		t.Fatalf("sale after cancel = %+v", sale)
	}

	// 已取消不能再取消
	if _, err := env.sales.CancelSale(ctx, detail.Sale.ID, ""); !errors.Is(err, repository.ErrSaleStatusInvalid) {
		t.Fatalf("second cancel err = %v, want ErrSaleStatusInvalid", err)
	}

	// 已取消的销售不接受还款
	_, err = env.installments.Pay(ctx, &PayRequest{
		RequestID:     "pay-on-cancelled",
		InstallmentID: detail.Installments[0].ID,
		Amount:        dec("10"),
		Method:        model.PaymentMethodCash,
	})
	if !errors.Is(err, ErrSaleNotPayable) {
		t.Fatalf("pay on cancelled err = %v, want ErrSaleNotPayable", err)
	}
	if n := countOutbox(t, env.db, model.EventSaleCancelled); n != 1 {
		t.Fatalf("sale.cancelled events = %d, want 1", n)
	}
}

func TestCancelSaleWithPaymentsIsRejected(t *testing.T) {
	env := newTestEnv(t)

	detail := env.createInstallmentSale(t, "200", 2, day(2025, 4, 10))
	env.pay(t, "p1", detail.Installments[0].ID, "10")

	_, err := env.sales.CancelSale(context.Background(), detail.Sale.ID, "")
	if !errors.Is(err, ErrSaleHasPayments) {
		t.Fatalf("err = %v, want ErrSaleHasPayments", err)
	}
}

func TestMarkSalePaid(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cash, err := env.sales.CreateSale(ctx, &CreateSaleRequest{
		Customer:   &CustomerInput{Name: "Ana"},
		TotalValue: dec("89.90"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(cash.Installments) != 0 {
		t.Fatalf("non-installment sale got %d installments", len(cash.Installments))
	}

	sale, err := env.sales.MarkSalePaid(ctx, cash.Sale.ID, model.PaymentMethodDebitCard)
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if sale.PaymentStatus != model.SaleStatusPaid || sale.PaymentMethod != model.PaymentMethodDebitCard {
		t.Fatalf("sale = %+v", sale)
	}

	if _, err := env.sales.MarkSalePaid(ctx, cash.Sale.ID, ""); !errors.Is(err, repository.ErrSaleStatusInvalid) {
		t.Fatalf("mark paid twice err = %v", err)
	}

	installment := env.createInstallmentSale(t, "100", 2, day(2025, 4, 1))
	if _, err := env.sales.MarkSalePaid(ctx, installment.Sale.ID, ""); !errors.Is(err, ErrInstallmentSale) {
		t.Fatalf("mark installment sale paid err = %v, want ErrInstallmentSale", err)
	}
}

func TestCreateSalePaidInFull(t *testing.T) {
	env := newTestEnv(t)

	detail, err := env.sales.CreateSale(context.Background(), &CreateSaleRequest{
		Customer:      &CustomerInput{Name: "Ana"},
		TotalValue:    dec("150"),
		PaymentMethod: model.PaymentMethodPix,
		PaidInFull:    true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if detail.Sale.PaymentStatus != model.SaleStatusPaid || detail.Sale.PaidAt == nil {
		t.Fatalf("sale = %+v", detail.Sale)
	}
}

func TestListSalesFilters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.createInstallmentSale(t, "100", 1, day(2025, 4, 1))
	env.createInstallmentSale(t, "200", 1, day(2025, 4, 1))
	if _, err := env.sales.CancelSale(ctx, a.Sale.ID, ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	pending, total, err := env.sales.ListSales(ctx, repository.SaleFilter{Status: model.SaleStatusPending}, 1, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || len(pending) != 1 || !pending[0].TotalValue.Equal(dec("200")) {
		t.Fatalf("pending list = %d/%d", len(pending), total)
	}
	if pending[0].Customer == nil || pending[0].Customer.Name != "Maria Silva" {
		t.Fatalf("customer not preloaded: %+v", pending[0].Customer)
	}

	all, total, err := env.sales.ListSales(ctx, repository.SaleFilter{CustomerID: a.Sale.CustomerID}, 1, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 2 || len(all) != 2 {
		t.Fatalf("customer list = %d/%d, want 2", len(all), total)
	}
}

func TestListInstallmentsUnknownSale(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.sales.ListInstallments(context.Background(), 42); !errors.Is(err, repository.ErrSaleNotFound) {
		t.Fatalf("err = %v, want ErrSaleNotFound", err)
	}
}

func TestCancelAndPayNeverLeaveCancelledSaleWithPayments(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for round := 0; round < 8; round++ {
		detail := env.createInstallmentSale(t, "100", 2, day(2025, 4, 10))
		saleID := detail.Sale.ID

		var (
			wg        sync.WaitGroup
			payErr    error
			cancelErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, payErr = env.installments.Pay(ctx, &PayRequest{
				RequestID:     "race-" + detail.Sale.SaleNo,
				InstallmentID: detail.Installments[0].ID,
				Amount:        dec("10"),
				Method:        model.PaymentMethodCash,
			})
		}()
		go func() {
			defer wg.Done()
			_, cancelErr = env.sales.CancelSale(ctx, saleID, "desistência")
		}()
		wg.Wait()

		sale, err := env.sales.saleRepo.GetByID(ctx, nil, saleID)
		if err != nil {
			t.Fatalf("get sale: %v", err)
		}
		payments, err := env.sales.paymentRepo.CountBySale(ctx, nil, saleID)
		if err != nil {
			t.Fatalf("count payments: %v", err)
		}

		switch sale.PaymentStatus {
		case model.SaleStatusCancelled:
			if payments != 0 || cancelErr != nil || !errors.Is(payErr, ErrSaleNotPayable) {
				t.Fatalf("round %d: cancelled with payments=%d payErr=%v cancelErr=%v", round, payments, payErr, cancelErr)
			}
		case model.SaleStatusPending:
			if payments != 1 || payErr != nil || !errors.Is(cancelErr, ErrSaleHasPayments) {
				t.Fatalf("round %d: pending with payments=%d payErr=%v cancelErr=%v", round, payments, payErr, cancelErr)
			}
		default:
			t.Fatalf("round %d: unexpected status %s", round, sale.PaymentStatus)
		}
	}
}
