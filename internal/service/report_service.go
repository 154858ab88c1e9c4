package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crediario/internal/config"
	"crediario/internal/infrastructure/cache"
	"crediario/internal/ledger"
	"crediario/internal/model"
	"crediario/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var ErrInvalidPeriod = errors.New("统计区间不合法")

type ReportService struct {
	cfg             *config.Config
	cache           *cache.JSONCache
	saleRepo        *repository.SaleRepository
	installmentRepo *repository.InstallmentRepository
	paymentRepo     *repository.PaymentRepository
	customerRepo    *repository.CustomerRepository
	loc             *time.Location
	now             func() time.Time
}

// NewReportService cache 可以为 nil，此时每次都查库
func NewReportService(db *gorm.DB, jsonCache *cache.JSONCache, cfg *config.Config) *ReportService {
	return &ReportService{
		cfg:             cfg,
		cache:           jsonCache,
		saleRepo:        repository.NewSaleRepository(db),
		installmentRepo: repository.NewInstallmentRepository(db),
		paymentRepo:     repository.NewPaymentRepository(db),
		customerRepo:    repository.NewCustomerRepository(db),
		loc:             cfg.Business.Location(),
		now:             time.Now,
	}
}

func (s *ReportService) today() time.Time {
	return ledger.Today(s.now(), s.loc)
}

// Receivables 应收看板
type Receivables struct {
	From             string                   `json:"from"`
	To               string                   `json:"to"`
	Today            string                   `json:"today"`
	Outstanding      decimal.Decimal          `json:"outstanding"`
	Overdue          decimal.Decimal          `json:"overdue"`
	OverdueCount     int64                    `json:"overdue_count"`
	Received         decimal.Decimal          `json:"received"`
	ReceivedByMethod []repository.MethodTotal `json:"received_by_method"`
	OpenSales        int64                    `json:"open_sales"`
}

// Receivables from/to 为空时统计当月（1 日到今天）
func (s *ReportService) Receivables(ctx context.Context, from, to *time.Time) (*Receivables, error) {
	today := s.today()

	start := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := today
	if from != nil {
		start = ledger.DateOf(*from)
	}
	if to != nil {
		end = ledger.DateOf(*to)
	}
	if end.Before(start) {
		return nil, ErrInvalidPeriod
	}

	key := fmt.Sprintf("receivables:%s:%s:%s", formatDate(start), formatDate(end), formatDate(today))
	var cached Receivables
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	outstanding, overdue, overdueCount, err := s.installmentRepo.OutstandingTotals(ctx, today)
	if err != nil {
		return nil, fmt.Errorf("统计应收失败: %w", err)
	}

	byMethod, err := s.paymentRepo.TotalsByMethod(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("统计还款失败: %w", err)
	}
	received := decimal.Zero
	for _, m := range byMethod {
		received = received.Add(m.Total)
	}

	openSales, err := s.saleRepo.CountByStatus(ctx, model.SaleStatusPending)
	if err != nil {
		return nil, fmt.Errorf("统计销售失败: %w", err)
	}

	report := &Receivables{
		From:             formatDate(start),
		To:               formatDate(end),
		Today:            formatDate(today),
		Outstanding:      outstanding,
		Overdue:          overdue,
		OverdueCount:     overdueCount,
		Received:         received,
		ReceivedByMethod: byMethod,
		OpenSales:        openSales,
	}

	ttl := time.Duration(s.cfg.Business.SummaryCacheSeconds) * time.Second
	s.cache.Set(ctx, key, report, ttl)
	return report, nil
}

type StatementSale struct {
	Sale    *model.Sale             `json:"sale"`
	Items   []model.InstallmentView `json:"installments"`
	Summary ledger.Summary          `json:"summary"`
}

// CustomerStatement 客户对账单
type CustomerStatement struct {
	Customer      *model.Customer `json:"customer"`
	Sales         []StatementSale `json:"sales"`
	LifetimeValue decimal.Decimal `json:"lifetime_value"` // 未取消销售的总额
	Outstanding   decimal.Decimal `json:"outstanding"`
	Overdue       decimal.Decimal `json:"overdue"`
}

func (s *ReportService) CustomerStatement(ctx context.Context, customerID int64) (*CustomerStatement, error) {
	customer, err := s.customerRepo.GetByID(ctx, nil, customerID)
	if err != nil {
		return nil, err
	}

	sales, err := s.saleRepo.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("查询客户销售失败: %w", err)
	}

	today := s.today()
	statement := &CustomerStatement{
		Customer:      customer,
		Sales:         make([]StatementSale, 0, len(sales)),
		LifetimeValue: decimal.Zero,
		Outstanding:   decimal.Zero,
		Overdue:       decimal.Zero,
	}

	for _, sale := range sales {
		installments := sale.Installments
		sale.Installments = nil

		views := make([]model.InstallmentView, 0, len(installments))
		for _, inst := range installments {
			views = append(views, model.NewInstallmentView(inst, today))
		}
		summary := ledger.Summarize(model.Entries(installments), today)

		statement.Sales = append(statement.Sales, StatementSale{Sale: sale, Items: views, Summary: summary})

		if sale.PaymentStatus == model.SaleStatusCancelled {
			continue
		}
		statement.LifetimeValue = statement.LifetimeValue.Add(sale.TotalValue)
		statement.Outstanding = statement.Outstanding.Add(summary.Remaining)
		statement.Overdue = statement.Overdue.Add(summary.OverdueAmount)
	}

	return statement, nil
}
