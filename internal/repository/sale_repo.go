package repository

import (
	"context"
	"errors"
	"time"

	"crediario/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrSaleNotFound      = errors.New("销售不存在")
	ErrSaleStatusInvalid = errors.New("销售状态不合法")
)

type SaleFilter struct {
	CustomerID int64
	Status     string
}

type SaleRepository struct {
	db *gorm.DB
}

func NewSaleRepository(db *gorm.DB) *SaleRepository {
	return &SaleRepository{db: db}
}

func (r *SaleRepository) Create(ctx context.Context, tx *gorm.DB, sale *model.Sale) error {
	err := pick(r.db, tx).WithContext(ctx).Omit("Customer", "Installments").Create(sale).Error
	return translateDuplicate(err)
}

func (r *SaleRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Sale, error) {
	var sale model.Sale
	err := pick(r.db, tx).WithContext(ctx).First(&sale, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSaleNotFound
		}
		return nil, err
	}
	return &sale, nil
}

// GetByIDForUpdate 行锁读取销售，还款、取消、结清在销售行上串行，必须在事务内调用
func (r *SaleRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*model.Sale, error) {
	var sale model.Sale
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&sale, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSaleNotFound
		}
		return nil, err
	}
	return &sale, nil
}

// GetDetail 带客户和分期
func (r *SaleRepository) GetDetail(ctx context.Context, id int64) (*model.Sale, error) {
	var sale model.Sale
	err := r.db.WithContext(ctx).
		Preload("Customer").
		Preload("Installments", func(db *gorm.DB) *gorm.DB {
			return db.Order("number ASC")
		}).
		First(&sale, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSaleNotFound
		}
		return nil, err
	}
	return &sale, nil
}

func (r *SaleRepository) GetByRequestID(ctx context.Context, requestID string) (*model.Sale, error) {
	var sale model.Sale
	err := r.db.WithContext(ctx).Where("request_id = ?", requestID).First(&sale).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sale, nil
}

// UpdateStatus 条件更新（WHERE status = from），并发下只有一个请求能成功
func (r *SaleRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, id int64, fromStatus, toStatus string) error {
	if !model.CanTransitionTo(fromStatus, toStatus) {
		return ErrSaleStatusInvalid
	}

	updates := map[string]interface{}{
		"payment_status": toStatus,
	}

	now := time.Now().UTC()
	switch toStatus {
	case model.SaleStatusPaid:
		updates["paid_at"] = &now
	case model.SaleStatusCancelled:
		updates["cancelled_at"] = &now
	}

	result := pick(r.db, tx).WithContext(ctx).
		Model(&model.Sale{}).
		Where("id = ? AND payment_status = ?", id, fromStatus).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrSaleStatusInvalid
	}

	return nil
}

func (r *SaleRepository) List(ctx context.Context, filter SaleFilter, page, pageSize int) ([]*model.Sale, int64, error) {
	var sales []*model.Sale
	var total int64

	page, pageSize = NormalizePage(page, pageSize)

	query := r.db.WithContext(ctx).Model(&model.Sale{})
	if filter.CustomerID > 0 {
		query = query.Where("customer_id = ?", filter.CustomerID)
	}
	if filter.Status != "" {
		query = query.Where("payment_status = ?", filter.Status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Preload("Customer").
		Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&sales).Error

	return sales, total, err
}

// ListByCustomer 客户全部销售（含分期），用于对账单
func (r *SaleRepository) ListByCustomer(ctx context.Context, customerID int64) ([]*model.Sale, error) {
	var sales []*model.Sale
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Preload("Installments", func(db *gorm.DB) *gorm.DB {
			return db.Order("number ASC")
		}).
		Order("created_at ASC, id ASC").
		Find(&sales).Error
	return sales, err
}

// ListPendingInstallmentSales 待结清的分期销售，按 id 游标分批
func (r *SaleRepository) ListPendingInstallmentSales(ctx context.Context, afterID int64, limit int) ([]*model.Sale, error) {
	var sales []*model.Sale
	err := r.db.WithContext(ctx).
		Where("is_installment = ? AND payment_status = ? AND id > ?", true, model.SaleStatusPending, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&sales).Error
	return sales, err
}

func (r *SaleRepository) CountByStatus(ctx context.Context, status string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Sale{}).Where("payment_status = ?", status).Count(&n).Error
	return n, err
}
