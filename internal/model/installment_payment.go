package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PaymentMethodPix        = "pix"
	PaymentMethodCash       = "cash"
	PaymentMethodCreditCard = "credit_card"
	PaymentMethodDebitCard  = "debit_card"
	PaymentMethodTransfer   = "transfer"
	PaymentMethodOther      = "other"
)

var validPaymentMethods = map[string]bool{
	PaymentMethodPix:        true,
	PaymentMethodCash:       true,
	PaymentMethodCreditCard: true,
	PaymentMethodDebitCard:  true,
	PaymentMethodTransfer:   true,
	PaymentMethodOther:      true,
}

func IsValidPaymentMethod(method string) bool {
	return validPaymentMethods[method]
}

// InstallmentPayment 分期还款记录
//
// 只追加，不修改，不删除。同一期可以有多笔部分还款，
// 所有还款之和即该期的 PaidAmount（对账任务以此为准）。
type InstallmentPayment struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	PaymentNo     string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"payment_no"`
	RequestID     string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"request_id"`
	InstallmentID int64           `gorm:"index;not null" json:"installment_id"`
	SaleID        int64           `gorm:"index;not null" json:"sale_id"`
	Amount        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	PaidOn        time.Time       `gorm:"type:date;not null;index" json:"paid_on"`
	Method        string          `gorm:"type:varchar(20);not null" json:"method"`
	Notes         string          `gorm:"type:varchar(500)" json:"notes"`
	RecordedBy    int64           `gorm:"not null;default:0" json:"recorded_by"`
	CreatedAt     time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (InstallmentPayment) TableName() string {
	return "installment_payments"
}
