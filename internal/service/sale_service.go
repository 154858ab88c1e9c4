package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"crediario/internal/config"
	"crediario/internal/infrastructure/lock"
	"crediario/internal/ledger"
	"crediario/internal/model"
	"crediario/internal/repository"
	"crediario/pkg/idgen"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrCustomerRequired     = errors.New("必须指定客户")
	ErrTooManyInstallments  = errors.New("分期数超过上限")
	ErrInvalidPaymentMethod = errors.New("支付方式不合法")
	ErrScheduleMismatch     = errors.New("分期合计与销售金额不一致")
	ErrSaleHasPayments      = errors.New("销售已有还款记录，不能取消")
	ErrInstallmentSale      = errors.New("分期销售按期还款，不能整单标记已付")
	ErrSaleNotPayable       = errors.New("销售已取消，不能登记还款")
)

type SaleService struct {
	db              *gorm.DB
	cfg             *config.Config
	locker          lock.Locker
	saleRepo        *repository.SaleRepository
	installmentRepo *repository.InstallmentRepository
	paymentRepo     *repository.PaymentRepository
	customerRepo    *repository.CustomerRepository
	outboxRepo      *repository.OutboxRepository
	loc             *time.Location
	now             func() time.Time
}

func NewSaleService(db *gorm.DB, locker lock.Locker, cfg *config.Config) *SaleService {
	return &SaleService{
		db:              db,
		cfg:             cfg,
		locker:          locker,
		saleRepo:        repository.NewSaleRepository(db),
		installmentRepo: repository.NewInstallmentRepository(db),
		paymentRepo:     repository.NewPaymentRepository(db),
		customerRepo:    repository.NewCustomerRepository(db),
		outboxRepo:      repository.NewOutboxRepository(db),
		loc:             cfg.Business.Location(),
		now:             time.Now,
	}
}

func (s *SaleService) today() time.Time {
	return ledger.Today(s.now(), s.loc)
}

type CustomerInput struct {
	Name     string
	Phone    string
	Email    string
	Document string
}

type CreateSaleRequest struct {
	RequestID            string
	CustomerID           int64
	Customer             *CustomerInput
	OrderRef             string
	TotalValue           decimal.Decimal
	EntryPayment         decimal.Decimal
	DiscountAmount       decimal.Decimal
	IsInstallment        bool
	InstallmentCount     int
	InstallmentStartDate *time.Time
	PaymentMethod        string
	PaidInFull           bool // 非分期销售当场付清
	Notes                string
	CreatedBy            int64
}

// SaleDetail 销售详情，分期附带推导出的剩余金额和状态
type SaleDetail struct {
	Sale         *model.Sale             `json:"sale"`
	Installments []model.InstallmentView `json:"installments"`
	Summary      ledger.Summary          `json:"summary"`
}

// CreateSale 创建销售；分期销售在同一事务内生成分期计划。
// 相同 request_id 重复提交返回第一次创建的销售。
func (s *SaleService) CreateSale(ctx context.Context, req *CreateSaleRequest) (*SaleDetail, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	existing, err := s.saleRepo.GetByRequestID(ctx, req.RequestID)
	if err != nil {
		return nil, fmt.Errorf("查询销售失败: %w", err)
	}
	if existing != nil {
		return s.GetSale(ctx, existing.ID)
	}

	if req.CustomerID == 0 && (req.Customer == nil || strings.TrimSpace(req.Customer.Name) == "") {
		return nil, ErrCustomerRequired
	}
	if req.PaymentMethod != "" && !model.IsValidPaymentMethod(req.PaymentMethod) {
		return nil, ErrInvalidPaymentMethod
	}
	if err := ledger.ValidateSale(req.TotalValue, req.EntryPayment, req.DiscountAmount, req.IsInstallment); err != nil {
		return nil, err
	}

	sale := &model.Sale{
		SaleNo:         idgen.GenerateSaleNo(),
		RequestID:      req.RequestID,
		OrderRef:       req.OrderRef,
		TotalValue:     req.TotalValue,
		EntryPayment:   req.EntryPayment,
		DiscountAmount: req.DiscountAmount,
		IsInstallment:  req.IsInstallment,
		PaymentMethod:  req.PaymentMethod,
		PaymentStatus:  model.SaleStatusPending,
		Notes:          req.Notes,
		CreatedBy:      req.CreatedBy,
	}

	var schedule []ledger.ScheduleLine
	if req.IsInstallment {
		schedule, err = s.buildSchedule(req)
		if err != nil {
			return nil, err
		}
		firstDue := schedule[0].DueDate
		sale.InstallmentCount = len(schedule)
		sale.InstallmentStartDate = &firstDue
	} else if req.PaidInFull {
		now := s.now().UTC()
		sale.PaymentStatus = model.SaleStatusPaid
		sale.PaidAt = &now
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		customerID, err := s.resolveCustomer(ctx, tx, req)
		if err != nil {
			return err
		}
		sale.CustomerID = customerID

		if err := s.saleRepo.Create(ctx, tx, sale); err != nil {
			return err
		}

		installments := make([]*model.Installment, 0, len(schedule))
		for _, line := range schedule {
			installments = append(installments, &model.Installment{
				SaleID:         sale.ID,
				Number:         line.Number,
				DueDate:        line.DueDate,
				OriginalAmount: line.Amount,
				PaidAmount:     decimal.Zero,
			})
		}
		if err := s.installmentRepo.CreateBatch(ctx, tx, installments); err != nil {
			return fmt.Errorf("创建分期失败: %w", err)
		}

		msg, err := model.NewOutboxMessage(s.cfg.Kafka.Topic.SaleEvents, model.EventSaleCreated, sale.SaleNo, map[string]interface{}{
			"sale_id":           sale.ID,
			"sale_no":           sale.SaleNo,
			"customer_id":       sale.CustomerID,
			"total_value":       sale.TotalValue.StringFixed(2),
			"entry_payment":     sale.EntryPayment.StringFixed(2),
			"is_installment":    sale.IsInstallment,
			"installment_count": sale.InstallmentCount,
			"payment_status":    sale.PaymentStatus,
		})
		if err != nil {
			return err
		}
		if err := s.outboxRepo.Create(ctx, tx, msg); err != nil {
			return fmt.Errorf("写入消息失败: %w", err)
		}
		return nil
	})

	if err != nil {
		// 并发重复提交：唯一索引兜底，返回先提交的那一笔
		if errors.Is(err, repository.ErrDuplicateRequest) {
			existing, getErr := s.saleRepo.GetByRequestID(ctx, req.RequestID)
			if getErr == nil && existing != nil {
				return s.GetSale(ctx, existing.ID)
			}
		}
		return nil, err
	}

	log.Printf("销售创建成功: saleNo=%s, customerID=%d, total=%s, installments=%d",
		sale.SaleNo, sale.CustomerID, sale.TotalValue.StringFixed(2), sale.InstallmentCount)

	return s.GetSale(ctx, sale.ID)
}

func (s *SaleService) buildSchedule(req *CreateSaleRequest) ([]ledger.ScheduleLine, error) {
	maxCount := s.cfg.Business.MaxInstallments
	if maxCount > 0 && req.InstallmentCount > maxCount {
		return nil, ErrTooManyInstallments
	}

	firstDue := ledger.AddMonths(s.today(), 1)
	if req.InstallmentStartDate != nil {
		firstDue = ledger.DateOf(*req.InstallmentStartDate)
	}

	financed := req.TotalValue.Sub(req.EntryPayment)
	schedule, err := ledger.BuildSchedule(financed, req.InstallmentCount, firstDue)
	if err != nil {
		return nil, err
	}

	amounts := make([]decimal.Decimal, 0, len(schedule))
	for _, line := range schedule {
		amounts = append(amounts, line.Amount)
	}
	tolerance := decimal.NewFromFloat(s.cfg.Business.RoundingTolerance)
	if !ledger.CheckScheduleSum(req.TotalValue, req.EntryPayment, amounts, tolerance) {
		return nil, ErrScheduleMismatch
	}
	return schedule, nil
}

// resolveCustomer 优先使用 CustomerID；否则按 CPF 复用已有客户，找不到就新建
func (s *SaleService) resolveCustomer(ctx context.Context, tx *gorm.DB, req *CreateSaleRequest) (int64, error) {
	if req.CustomerID > 0 {
		customer, err := s.customerRepo.GetByID(ctx, tx, req.CustomerID)
		if err != nil {
			return 0, err
		}
		return customer.ID, nil
	}

	in := req.Customer
	existing, err := s.customerRepo.FindByDocument(ctx, tx, strings.TrimSpace(in.Document))
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return existing.ID, nil
	}

	customer := &model.Customer{
		Name:     strings.TrimSpace(in.Name),
		Phone:    strings.TrimSpace(in.Phone),
		Email:    strings.TrimSpace(in.Email),
		Document: strings.TrimSpace(in.Document),
	}
	if err := s.customerRepo.Create(ctx, tx, customer); err != nil {
		return 0, fmt.Errorf("创建客户失败: %w", err)
	}
	return customer.ID, nil
}

func (s *SaleService) GetSale(ctx context.Context, id int64) (*SaleDetail, error) {
	sale, err := s.saleRepo.GetDetail(ctx, id)
	if err != nil {
		return nil, err
	}

	today := s.today()
	installments := sale.Installments
	sale.Installments = nil

	views := make([]model.InstallmentView, 0, len(installments))
	for _, inst := range installments {
		views = append(views, model.NewInstallmentView(inst, today))
	}

	return &SaleDetail{
		Sale:         sale,
		Installments: views,
		Summary:      ledger.Summarize(model.Entries(installments), today),
	}, nil
}

func (s *SaleService) ListSales(ctx context.Context, filter repository.SaleFilter, page, pageSize int) ([]*model.Sale, int64, error) {
	return s.saleRepo.List(ctx, filter, page, pageSize)
}

func (s *SaleService) ListInstallments(ctx context.Context, saleID int64) ([]model.InstallmentView, error) {
	if _, err := s.saleRepo.GetByID(ctx, nil, saleID); err != nil {
		return nil, err
	}
	installments, err := s.installmentRepo.ListBySale(ctx, nil, saleID)
	if err != nil {
		return nil, err
	}

	today := s.today()
	views := make([]model.InstallmentView, 0, len(installments))
	for _, inst := range installments {
		views = append(views, model.NewInstallmentView(inst, today))
	}
	return views, nil
}

// CancelSale 只能取消待支付且没有任何还款记录的销售
func (s *SaleService) CancelSale(ctx context.Context, id int64, reason string) (*model.Sale, error) {
	unlock, err := s.locker.Acquire(ctx, lock.SaleLockKey(id), uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer unlock()

	var sale *model.Sale
	err = s.db.Transaction(func(tx *gorm.DB) error {
		sale, err = s.saleRepo.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if sale.PaymentStatus != model.SaleStatusPending {
			return fmt.Errorf("%w: 当前状态 %s", repository.ErrSaleStatusInvalid, sale.PaymentStatus)
		}

		paymentCount, err := s.paymentRepo.CountBySale(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("查询还款记录失败: %w", err)
		}
		if paymentCount > 0 {
			return ErrSaleHasPayments
		}

		if err := s.saleRepo.UpdateStatus(ctx, tx, id, model.SaleStatusPending, model.SaleStatusCancelled); err != nil {
			return err
		}
		sale.PaymentStatus = model.SaleStatusCancelled

		msg, err := model.NewOutboxMessage(s.cfg.Kafka.Topic.SaleEvents, model.EventSaleCancelled, sale.SaleNo, map[string]interface{}{
			"sale_id": sale.ID,
			"sale_no": sale.SaleNo,
			"reason":  reason,
		})
		if err != nil {
			return err
		}
		return s.outboxRepo.Create(ctx, tx, msg)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("销售已取消: saleNo=%s, reason=%s", sale.SaleNo, reason)
	return s.saleRepo.GetByID(ctx, nil, id)
}

// MarkSalePaid 非分期销售整单标记为已付
func (s *SaleService) MarkSalePaid(ctx context.Context, id int64, method string) (*model.Sale, error) {
	if method != "" && !model.IsValidPaymentMethod(method) {
		return nil, ErrInvalidPaymentMethod
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		sale, err := s.saleRepo.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if sale.IsInstallment {
			return ErrInstallmentSale
		}
		if err := s.saleRepo.UpdateStatus(ctx, tx, id, sale.PaymentStatus, model.SaleStatusPaid); err != nil {
			return err
		}
		if method != "" {
			if err := tx.WithContext(ctx).Model(&model.Sale{}).Where("id = ?", id).Update("payment_method", method).Error; err != nil {
				return err
			}
		}

		msg, err := model.NewOutboxMessage(s.cfg.Kafka.Topic.SaleEvents, model.EventSalePaid, sale.SaleNo, map[string]interface{}{
			"sale_id": sale.ID,
			"sale_no": sale.SaleNo,
			"amount":  sale.TotalValue.StringFixed(2),
		})
		if err != nil {
			return err
		}
		return s.outboxRepo.Create(ctx, tx, msg)
	})
	if err != nil {
		return nil, err
	}
	return s.saleRepo.GetByID(ctx, nil, id)
}

// SettleIfComplete 分期全部结清时把销售置为已付，返回是否发生了状态变化。
// tx 为 nil 时自行开启事务（对账任务使用）
func (s *SaleService) SettleIfComplete(ctx context.Context, tx *gorm.DB, saleID int64) (bool, error) {
	if tx == nil {
		var settled bool
		err := s.db.Transaction(func(tx *gorm.DB) error {
			var err error
			settled, err = s.SettleIfComplete(ctx, tx, saleID)
			return err
		})
		return settled, err
	}

	sale, err := s.saleRepo.GetByIDForUpdate(ctx, tx, saleID)
	if err != nil {
		return false, err
	}
	if !sale.IsInstallment || sale.PaymentStatus != model.SaleStatusPending {
		return false, nil
	}

	installments, err := s.installmentRepo.ListBySale(ctx, tx, saleID)
	if err != nil {
		return false, err
	}
	if !ledger.Summarize(model.Entries(installments), s.today()).Settled() {
		return false, nil
	}

	if err := s.saleRepo.UpdateStatus(ctx, tx, saleID, model.SaleStatusPending, model.SaleStatusPaid); err != nil {
		return false, err
	}

	msg, err := model.NewOutboxMessage(s.cfg.Kafka.Topic.SaleEvents, model.EventSalePaid, sale.SaleNo, map[string]interface{}{
		"sale_id": sale.ID,
		"sale_no": sale.SaleNo,
		"amount":  sale.TotalValue.StringFixed(2),
	})
	if err != nil {
		return false, err
	}
	if err := s.outboxRepo.Create(ctx, tx, msg); err != nil {
		return false, err
	}
	return true, nil
}
