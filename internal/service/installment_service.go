package service

import (
	"context"
	"errors"
	"fmt"
	"log"
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
	ErrInvalidPaymentDate = errors.New("还款日期不能晚于今天")
	ErrPaymentConflict    = errors.New("还款并发冲突，请重试")
)

type InstallmentService struct {
	db              *gorm.DB
	cfg             *config.Config
	locker          lock.Locker
	sales           *SaleService
	saleRepo        *repository.SaleRepository
	installmentRepo *repository.InstallmentRepository
	paymentRepo     *repository.PaymentRepository
	outboxRepo      *repository.OutboxRepository
	loc             *time.Location
	now             func() time.Time
}

func NewInstallmentService(db *gorm.DB, locker lock.Locker, sales *SaleService, cfg *config.Config) *InstallmentService {
	return &InstallmentService{
		db:              db,
		cfg:             cfg,
		locker:          locker,
		sales:           sales,
		saleRepo:        repository.NewSaleRepository(db),
		installmentRepo: repository.NewInstallmentRepository(db),
		paymentRepo:     repository.NewPaymentRepository(db),
		outboxRepo:      repository.NewOutboxRepository(db),
		loc:             cfg.Business.Location(),
		now:             time.Now,
	}
}

func (s *InstallmentService) today() time.Time {
	return ledger.Today(s.now(), s.loc)
}

type PayRequest struct {
	RequestID     string
	InstallmentID int64
	Amount        decimal.Decimal
	PaidOn        *time.Time // 为空时取今天
	Method        string
	Notes         string
	RecordedBy    int64
}

type PayResult struct {
	Payment     *model.InstallmentPayment `json:"payment"`
	Installment model.InstallmentView     `json:"installment"`
	SaleStatus  string                    `json:"sale_status"`
	Duplicate   bool                      `json:"duplicate"`
}

// InstallmentDetail 分期及其还款历史
type InstallmentDetail struct {
	Installment model.InstallmentView      `json:"installment"`
	Payments    []model.InstallmentPayment `json:"payments"`
}

// Pay 登记一笔分期还款
//
// 同一 request_id 只入账一次，重复请求返回首次结果并标记 Duplicate。
// 金额不能超过该期剩余金额；该期所在销售的全部分期结清后销售置为已付。
func (s *InstallmentService) Pay(ctx context.Context, req *PayRequest) (*PayResult, error) {
	if !model.IsValidPaymentMethod(req.Method) {
		return nil, ErrInvalidPaymentMethod
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	today := s.today()
	paidOn := today
	if req.PaidOn != nil {
		paidOn = ledger.DateOf(*req.PaidOn)
		if paidOn.After(today) {
			return nil, ErrInvalidPaymentDate
		}
	}

	// 幂等校验
	if result, err := s.duplicateResult(ctx, req.RequestID); err != nil || result != nil {
		return result, err
	}

	unlock, err := s.locker.Acquire(ctx, lock.InstallmentLockKey(req.InstallmentID), req.RequestID)
	if err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer unlock()

	// 获取锁后再次检查幂等
	if result, err := s.duplicateResult(ctx, req.RequestID); err != nil || result != nil {
		return result, err
	}

	var (
		payment    *model.InstallmentPayment
		inst       *model.Installment
		saleStatus string
	)

	err = s.db.Transaction(func(tx *gorm.DB) error {
		inst, err = s.installmentRepo.GetByIDForUpdate(ctx, tx, req.InstallmentID)
		if err != nil {
			return err
		}

		// 锁住销售行，与取消销售互斥
		sale, err := s.saleRepo.GetByIDForUpdate(ctx, tx, inst.SaleID)
		if err != nil {
			return err
		}
		if sale.PaymentStatus == model.SaleStatusCancelled {
			return ErrSaleNotPayable
		}

		newPaid, err := ledger.ApplyPayment(inst.OriginalAmount, inst.PaidAmount, req.Amount)
		if err != nil {
			return err
		}

		if err := s.installmentRepo.UpdatePaidAmount(ctx, tx, inst.ID, newPaid, inst.Version); err != nil {
			if errors.Is(err, repository.ErrOptimisticLock) {
				return ErrPaymentConflict
			}
			return fmt.Errorf("更新已还金额失败: %w", err)
		}
		inst.PaidAmount = newPaid
		inst.Version++

		payment = &model.InstallmentPayment{
			PaymentNo:     idgen.GeneratePaymentNo(),
			RequestID:     req.RequestID,
			InstallmentID: inst.ID,
			SaleID:        inst.SaleID,
			Amount:        ledger.Round2(req.Amount),
			PaidOn:        paidOn,
			Method:        req.Method,
			Notes:         req.Notes,
			RecordedBy:    req.RecordedBy,
		}
		if err := s.paymentRepo.Create(ctx, tx, payment); err != nil {
			return err
		}

		settled, err := s.sales.SettleIfComplete(ctx, tx, inst.SaleID)
		if err != nil {
			return fmt.Errorf("更新销售状态失败: %w", err)
		}
		saleStatus = sale.PaymentStatus
		if settled {
			saleStatus = model.SaleStatusPaid
		}

		msg, err := model.NewOutboxMessage(s.cfg.Kafka.Topic.PaymentRecorded, model.EventInstallmentPaymentDone, payment.PaymentNo, map[string]interface{}{
			"payment_no":       payment.PaymentNo,
			"installment_id":   inst.ID,
			"installment_no":   inst.Number,
			"sale_id":          inst.SaleID,
			"sale_no":          sale.SaleNo,
			"amount":           payment.Amount.StringFixed(2),
			"paid_on":          formatDate(paidOn),
			"method":           payment.Method,
			"remaining_amount": inst.RemainingAmount().StringFixed(2),
			"status":           inst.StatusAt(today),
			"sale_status":      saleStatus,
		})
		if err != nil {
			return err
		}
		return s.outboxRepo.Create(ctx, tx, msg)
	})

	if err != nil {
		if errors.Is(err, repository.ErrDuplicateRequest) {
			if result, getErr := s.duplicateResult(ctx, req.RequestID); getErr == nil && result != nil {
				return result, nil
			}
		}
		log.Printf("还款失败: installmentID=%d, requestID=%s, amount=%s, err=%v",
			req.InstallmentID, req.RequestID, req.Amount.String(), err)
		return nil, err
	}

	log.Printf("还款成功: paymentNo=%s, installmentID=%d, amount=%s, remaining=%s",
		payment.PaymentNo, inst.ID, payment.Amount.StringFixed(2), inst.RemainingAmount().StringFixed(2))

	return &PayResult{
		Payment:     payment,
		Installment: model.NewInstallmentView(*inst, today),
		SaleStatus:  saleStatus,
	}, nil
}

// duplicateResult 按 request_id 查找已入账的还款，没有返回 nil
func (s *InstallmentService) duplicateResult(ctx context.Context, requestID string) (*PayResult, error) {
	payment, err := s.paymentRepo.GetByRequestID(ctx, nil, requestID)
	if err != nil {
		return nil, fmt.Errorf("查询还款记录失败: %w", err)
	}
	if payment == nil {
		return nil, nil
	}

	inst, err := s.installmentRepo.GetByID(ctx, nil, payment.InstallmentID)
	if err != nil {
		return nil, err
	}
	sale, err := s.saleRepo.GetByID(ctx, nil, inst.SaleID)
	if err != nil {
		return nil, err
	}

	return &PayResult{
		Payment:     payment,
		Installment: model.NewInstallmentView(*inst, s.today()),
		SaleStatus:  sale.PaymentStatus,
		Duplicate:   true,
	}, nil
}

func (s *InstallmentService) GetInstallment(ctx context.Context, id int64) (*InstallmentDetail, error) {
	inst, err := s.installmentRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	payments, err := s.paymentRepo.ListByInstallment(ctx, nil, id)
	if err != nil {
		return nil, fmt.Errorf("查询还款记录失败: %w", err)
	}
	if payments == nil {
		payments = []model.InstallmentPayment{}
	}

	return &InstallmentDetail{
		Installment: model.NewInstallmentView(*inst, s.today()),
		Payments:    payments,
	}, nil
}

// ListOverdue 按到期日升序列出逾期分期
func (s *InstallmentService) ListOverdue(ctx context.Context, page, pageSize int) ([]model.InstallmentView, int64, error) {
	today := s.today()
	installments, total, err := s.installmentRepo.ListOverdue(ctx, today, page, pageSize)
	if err != nil {
		return nil, 0, err
	}

	views := make([]model.InstallmentView, 0, len(installments))
	for _, inst := range installments {
		views = append(views, model.NewInstallmentView(inst, today))
	}
	return views, total, nil
}
