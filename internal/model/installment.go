package model

import (
	"time"

	"crediario/internal/ledger"

	"github.com/shopspring/decimal"
)

// Installment 分期（crediário 的一期）
//
// 不存储状态字段：状态由 OriginalAmount、PaidAmount、DueDate 推导，
// 见 ledger.Classify。PaidAmount 只增不减，Version 用于乐观锁。
type Installment struct {
	ID                int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	SaleID            int64           `gorm:"not null;uniqueIndex:ux_installment_sale_number" json:"sale_id"`
	Number            int             `gorm:"not null;uniqueIndex:ux_installment_sale_number" json:"number"`
	DueDate           time.Time       `gorm:"type:date;not null;index" json:"due_date"`
	OriginalAmount    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"original_amount"`
	PaidAmount        decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"paid_amount"`
	Version           int             `gorm:"not null;default:0" json:"version"`
	OverdueNotifiedAt *time.Time      `json:"overdue_notified_at,omitempty"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	Payments []InstallmentPayment `gorm:"foreignKey:InstallmentID" json:"payments,omitempty"`
}

func (Installment) TableName() string {
	return "installments"
}

func (i *Installment) RemainingAmount() decimal.Decimal {
	return ledger.Remaining(i.OriginalAmount, i.PaidAmount)
}

func (i *Installment) StatusAt(today time.Time) string {
	return ledger.Classify(i.OriginalAmount, i.PaidAmount, i.DueDate, today)
}

func (i *Installment) Entry() ledger.Entry {
	return ledger.Entry{Original: i.OriginalAmount, Paid: i.PaidAmount, DueDate: i.DueDate}
}

// InstallmentView 对外返回的分期，附带推导字段
type InstallmentView struct {
	Installment
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	Status          string          `json:"status"`
	DaysOverdue     int             `json:"days_overdue"`
}

func NewInstallmentView(inst Installment, today time.Time) InstallmentView {
	return InstallmentView{
		Installment:     inst,
		RemainingAmount: inst.RemainingAmount(),
		Status:          inst.StatusAt(today),
		DaysOverdue:     overdueDays(&inst, today),
	}
}

func overdueDays(inst *Installment, today time.Time) int {
	if inst.StatusAt(today) != ledger.StatusOverdue {
		return 0
	}
	return ledger.DaysOverdue(inst.DueDate, today)
}

func Entries(installments []Installment) []ledger.Entry {
	entries := make([]ledger.Entry, 0, len(installments))
	for i := range installments {
		entries = append(entries, installments[i].Entry())
	}
	return entries
}
