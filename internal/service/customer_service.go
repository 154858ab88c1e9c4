package service

import (
	"context"
	"errors"
	"strings"

	"crediario/internal/model"
	"crediario/internal/repository"

	"gorm.io/gorm"
)

var (
	ErrCustomerNameRequired = errors.New("客户姓名不能为空")
	ErrCustomerExists       = errors.New("该 CPF 已登记客户")
)

type CustomerService struct {
	customerRepo *repository.CustomerRepository
}

func NewCustomerService(db *gorm.DB) *CustomerService {
	return &CustomerService{customerRepo: repository.NewCustomerRepository(db)}
}

// CreateCustomer 登记客户，CPF 不能重复
func (s *CustomerService) CreateCustomer(ctx context.Context, in *CustomerInput) (*model.Customer, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ErrCustomerNameRequired
	}

	document := strings.TrimSpace(in.Document)
	if document != "" {
		existing, err := s.customerRepo.FindByDocument(ctx, nil, document)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, ErrCustomerExists
		}
	}

	customer := &model.Customer{
		Name:     name,
		Phone:    strings.TrimSpace(in.Phone),
		Email:    strings.TrimSpace(in.Email),
		Document: document,
	}
	if err := s.customerRepo.Create(ctx, nil, customer); err != nil {
		return nil, err
	}
	return customer, nil
}

func (s *CustomerService) GetCustomer(ctx context.Context, id int64) (*model.Customer, error) {
	return s.customerRepo.GetByID(ctx, nil, id)
}
