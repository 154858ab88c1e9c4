package repository

import (
	"context"
	"errors"

	"crediario/internal/model"

	"gorm.io/gorm"
)

var ErrCustomerNotFound = errors.New("客户不存在")

type CustomerRepository struct {
	db *gorm.DB
}

func NewCustomerRepository(db *gorm.DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

func (r *CustomerRepository) Create(ctx context.Context, tx *gorm.DB, customer *model.Customer) error {
	return pick(r.db, tx).WithContext(ctx).Create(customer).Error
}

func (r *CustomerRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Customer, error) {
	var customer model.Customer
	err := pick(r.db, tx).WithContext(ctx).First(&customer, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCustomerNotFound
		}
		return nil, err
	}
	return &customer, nil
}

// FindByDocument 按 CPF 查找，不存在返回 nil, nil
func (r *CustomerRepository) FindByDocument(ctx context.Context, tx *gorm.DB, document string) (*model.Customer, error) {
	if document == "" {
		return nil, nil
	}
	var customer model.Customer
	err := pick(r.db, tx).WithContext(ctx).Where("document = ?", document).First(&customer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &customer, nil
}
