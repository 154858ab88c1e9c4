package repository

import (
	"context"
	"errors"
	"time"

	"crediario/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrInstallmentNotFound = errors.New("分期不存在")

// openInstallment 未结清且所属销售未取消
const openInstallment = "installments.paid_amount < installments.original_amount AND vendas.payment_status <> ?"

type InstallmentRepository struct {
	db *gorm.DB
}

func NewInstallmentRepository(db *gorm.DB) *InstallmentRepository {
	return &InstallmentRepository{db: db}
}

func (r *InstallmentRepository) CreateBatch(ctx context.Context, tx *gorm.DB, installments []*model.Installment) error {
	if len(installments) == 0 {
		return nil
	}
	err := pick(r.db, tx).WithContext(ctx).Omit("Payments").Create(installments).Error
	return translateDuplicate(err)
}

func (r *InstallmentRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Installment, error) {
	var inst model.Installment
	err := pick(r.db, tx).WithContext(ctx).First(&inst, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInstallmentNotFound
		}
		return nil, err
	}
	return &inst, nil
}

// GetByIDForUpdate 行锁读取（SELECT ... FOR UPDATE），必须在事务内调用
func (r *InstallmentRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*model.Installment, error) {
	var inst model.Installment
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&inst, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInstallmentNotFound
		}
		return nil, err
	}
	return &inst, nil
}

func (r *InstallmentRepository) ListBySale(ctx context.Context, tx *gorm.DB, saleID int64) ([]model.Installment, error) {
	var installments []model.Installment
	err := pick(r.db, tx).WithContext(ctx).
		Where("sale_id = ?", saleID).
		Order("number ASC").
		Find(&installments).Error
	return installments, err
}

// UpdatePaidAmount 乐观锁更新已还金额，version 不匹配返回 ErrOptimisticLock
func (r *InstallmentRepository) UpdatePaidAmount(ctx context.Context, tx *gorm.DB, id int64, paid decimal.Decimal, version int) error {
	result := pick(r.db, tx).WithContext(ctx).
		Model(&model.Installment{}).
		Where("id = ? AND version = ?", id, version).
		Updates(map[string]interface{}{
			"paid_amount": paid,
			"version":     gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrOptimisticLock
	}

	return nil
}

// ListOverdue 逾期分期：到期日早于今天、未结清、销售未取消
func (r *InstallmentRepository) ListOverdue(ctx context.Context, today time.Time, page, pageSize int) ([]model.Installment, int64, error) {
	var installments []model.Installment
	var total int64

	page, pageSize = NormalizePage(page, pageSize)

	query := r.overdueQuery(ctx, today)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := r.overdueQuery(ctx, today).
		Select("installments.*").
		Order("installments.due_date ASC, installments.id ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&installments).Error

	return installments, total, err
}

// ListUnnotifiedOverdue 尚未发送逾期通知的逾期分期
func (r *InstallmentRepository) ListUnnotifiedOverdue(ctx context.Context, today time.Time, limit int) ([]model.Installment, error) {
	var installments []model.Installment
	err := r.overdueQuery(ctx, today).
		Select("installments.*").
		Where("installments.overdue_notified_at IS NULL").
		Order("installments.id ASC").
		Limit(limit).
		Find(&installments).Error
	return installments, err
}

func (r *InstallmentRepository) overdueQuery(ctx context.Context, today time.Time) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&model.Installment{}).
		Joins("JOIN vendas ON vendas.id = installments.sale_id").
		Where("installments.due_date < ?", today).
		Where(openInstallment, model.SaleStatusCancelled)
}

// MarkOverdueNotified 只标记一次，已标记返回 false
func (r *InstallmentRepository) MarkOverdueNotified(ctx context.Context, tx *gorm.DB, id int64, at time.Time) (bool, error) {
	result := pick(r.db, tx).WithContext(ctx).
		Model(&model.Installment{}).
		Where("id = ? AND overdue_notified_at IS NULL", id).
		Update("overdue_notified_at", at)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// OutstandingTotals 未结清分期的剩余总额，以及其中已逾期的部分
func (r *InstallmentRepository) OutstandingTotals(ctx context.Context, today time.Time) (outstanding, overdue decimal.Decimal, overdueCount int64, err error) {
	var row struct {
		Outstanding  decimal.NullDecimal
		Overdue      decimal.NullDecimal
		OverdueCount int64
	}
	err = r.db.WithContext(ctx).
		Model(&model.Installment{}).
		Joins("JOIN vendas ON vendas.id = installments.sale_id").
		Where(openInstallment, model.SaleStatusCancelled).
		Select(`SUM(installments.original_amount - installments.paid_amount) AS outstanding,
			SUM(CASE WHEN installments.due_date < ? THEN installments.original_amount - installments.paid_amount ELSE 0 END) AS overdue,
			COALESCE(SUM(CASE WHEN installments.due_date < ? THEN 1 ELSE 0 END), 0) AS overdue_count`, today, today).
		Scan(&row).Error
	if err != nil {
		return decimal.Zero, decimal.Zero, 0, err
	}
	return nullToZero(row.Outstanding), nullToZero(row.Overdue), row.OverdueCount, nil
}

// ListAfterID 按 id 游标遍历，对账任务使用
func (r *InstallmentRepository) ListAfterID(ctx context.Context, afterID int64, limit int) ([]model.Installment, error) {
	var installments []model.Installment
	err := r.db.WithContext(ctx).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&installments).Error
	return installments, err
}

func nullToZero(d decimal.NullDecimal) decimal.Decimal {
	if !d.Valid {
		return decimal.Zero
	}
	return d.Decimal.Round(2)
}
