package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	SaleStatusPending   = "pending"
	SaleStatusPaid      = "paid"
	SaleStatusCancelled = "cancelled"
)

var ValidSaleStatusTransitions = map[string][]string{
	SaleStatusPending: {SaleStatusPaid, SaleStatusCancelled},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidSaleStatusTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// Sale 销售（vendas）
//
// TotalValue 为折扣后的应收总额，DiscountAmount 仅作记录。
// 分期销售满足 sum(分期原始金额) + EntryPayment = TotalValue。
type Sale struct {
	ID                   int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	SaleNo               string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"sale_no"`
	RequestID            string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"request_id"`
	CustomerID           int64           `gorm:"index;not null" json:"customer_id"`
	OrderRef             string          `gorm:"type:varchar(64);index" json:"order_ref"` // 店面订单/malinha 编号
	TotalValue           decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total_value"`
	EntryPayment         decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"entry_payment"`
	DiscountAmount       decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"discount_amount"`
	IsInstallment        bool            `gorm:"not null;default:false" json:"is_installment"`
	InstallmentCount     int             `gorm:"not null;default:0" json:"installment_count"`
	InstallmentStartDate *time.Time      `gorm:"type:date" json:"installment_start_date,omitempty"`
	PaymentMethod        string          `gorm:"type:varchar(20)" json:"payment_method"`
	PaymentStatus        string          `gorm:"type:varchar(20);index;not null" json:"payment_status"`
	Notes                string          `gorm:"type:varchar(500)" json:"notes"`
	CreatedBy            int64           `gorm:"not null;default:0" json:"created_by"`
	PaidAt               *time.Time      `json:"paid_at,omitempty"`
	CancelledAt          *time.Time      `json:"cancelled_at,omitempty"`
	CreatedAt            time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	Customer     *Customer     `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	Installments []Installment `gorm:"foreignKey:SaleID" json:"installments,omitempty"`
}

func (Sale) TableName() string {
	return "vendas"
}

// FinancedAmount 分期部分金额
func (s *Sale) FinancedAmount() decimal.Decimal {
	return s.TotalValue.Sub(s.EntryPayment)
}
