package repository

import (
	"context"
	"errors"
	"time"

	"crediario/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MethodTotal 按还款方式汇总
type MethodTotal struct {
	Method string          `json:"method"`
	Total  decimal.Decimal `json:"total"`
	Count  int64           `json:"count"`
}

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create 只追加；request_id 冲突返回 ErrDuplicateRequest
func (r *PaymentRepository) Create(ctx context.Context, tx *gorm.DB, payment *model.InstallmentPayment) error {
	err := pick(r.db, tx).WithContext(ctx).Create(payment).Error
	return translateDuplicate(err)
}

func (r *PaymentRepository) GetByRequestID(ctx context.Context, tx *gorm.DB, requestID string) (*model.InstallmentPayment, error) {
	var payment model.InstallmentPayment
	err := pick(r.db, tx).WithContext(ctx).Where("request_id = ?", requestID).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

func (r *PaymentRepository) ListByInstallment(ctx context.Context, tx *gorm.DB, installmentID int64) ([]model.InstallmentPayment, error) {
	var payments []model.InstallmentPayment
	err := pick(r.db, tx).WithContext(ctx).
		Where("installment_id = ?", installmentID).
		Order("paid_on ASC, id ASC").
		Find(&payments).Error
	return payments, err
}

func (r *PaymentRepository) CountBySale(ctx context.Context, tx *gorm.DB, saleID int64) (int64, error) {
	var n int64
	err := pick(r.db, tx).WithContext(ctx).
		Model(&model.InstallmentPayment{}).
		Where("sale_id = ?", saleID).
		Count(&n).Error
	return n, err
}

// SumByInstallment 在 Go 里逐笔相加，避免不同数据库对 SUM(decimal) 返回类型不一致
func (r *PaymentRepository) SumByInstallment(ctx context.Context, installmentID int64) (decimal.Decimal, error) {
	payments, err := r.ListByInstallment(ctx, nil, installmentID)
	if err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	for _, p := range payments {
		sum = sum.Add(p.Amount)
	}
	return sum, nil
}

// TotalsByMethod 区间 [from, to] 内收到的还款，按方式分组
func (r *PaymentRepository) TotalsByMethod(ctx context.Context, from, to time.Time) ([]MethodTotal, error) {
	var rows []struct {
		Method string
		Total  decimal.NullDecimal
		Count  int64
	}
	err := r.db.WithContext(ctx).
		Model(&model.InstallmentPayment{}).
		Select("method, SUM(amount) AS total, COUNT(*) AS count").
		Where("paid_on >= ? AND paid_on <= ?", from, to).
		Group("method").
		Order("method ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	totals := make([]MethodTotal, 0, len(rows))
	for _, row := range rows {
		totals = append(totals, MethodTotal{
			Method: row.Method,
			Total:  nullToZero(row.Total),
			Count:  row.Count,
		})
	}
	return totals, nil
}
