package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"crediario/internal/config"
	"crediario/internal/infrastructure/database"
	"crediario/internal/infrastructure/lock"
	"crediario/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// 测试统一的"现在"：2025-03-10 12:00 UTC
var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// 每个测试独立的内存库
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), database.GormConfig("silent"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Business.Timezone = "UTC"
	cfg.Auth.JWTSecret = "test-secret"
	return cfg
}

type testEnv struct {
	db           *gorm.DB
	cfg          *config.Config
	sales        *SaleService
	installments *InstallmentService
	reports      *ReportService
	customers    *CustomerService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := setupTestDB(t)
	cfg := testConfig()
	locker := lock.NewLocalLocker()

	sales := NewSaleService(db, locker, cfg)
	installments := NewInstallmentService(db, locker, sales, cfg)
	reports := NewReportService(db, nil, cfg)

	env := &testEnv{
		db:           db,
		cfg:          cfg,
		sales:        sales,
		installments: installments,
		reports:      reports,
		customers:    NewCustomerService(db),
	}
	env.setNow(testNow)
	return env
}

func (e *testEnv) setNow(now time.Time) {
	clock := func() time.Time { return now }
	e.sales.now = clock
	e.installments.now = clock
	e.reports.now = clock
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// createInstallmentSale 总额 total、首付 0、count 期，首期 firstDue
func (e *testEnv) createInstallmentSale(t *testing.T, total string, count int, firstDue time.Time) *SaleDetail {
	t.Helper()
	detail, err := e.sales.CreateSale(context.Background(), &CreateSaleRequest{
		Customer:             &CustomerInput{Name: "Maria Silva", Phone: "11999990000", Document: "12345678900"},
		TotalValue:           dec(total),
		EntryPayment:         decimal.Zero,
		IsInstallment:        true,
		InstallmentCount:     count,
		InstallmentStartDate: &firstDue,
		PaymentMethod:        model.PaymentMethodPix,
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	return detail
}

func (e *testEnv) pay(t *testing.T, requestID string, installmentID int64, amount string) *PayResult {
	t.Helper()
	result, err := e.installments.Pay(context.Background(), &PayRequest{
		RequestID:     requestID,
		InstallmentID: installmentID,
		Amount:        dec(amount),
		Method:        model.PaymentMethodPix,
	})
	if err != nil {
		t.Fatalf("pay %s on installment %d: %v", amount, installmentID, err)
	}
	return result
}

func countOutbox(t *testing.T, db *gorm.DB, eventType string) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&model.OutboxMessage{}).Where("event_type = ?", eventType).Count(&n).Error; err != nil {
		t.Fatalf("count outbox: %v", err)
	}
	return n
}
