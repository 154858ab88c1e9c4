package model

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

const (
	EventSaleCreated            = "sale.created"
	EventSaleCancelled          = "sale.cancelled"
	EventSalePaid               = "sale.paid"
	EventInstallmentPaymentDone = "installment.payment_recorded"
	EventInstallmentOverdue     = "installment.overdue"
)

// OutboxMessage 事务性发件箱，与业务数据同一事务写入，由 OutboxSender 投递到 Kafka
type OutboxMessage struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageKey string    `gorm:"type:varchar(64);not null" json:"message_key"`
	Topic      string    `gorm:"type:varchar(64);not null" json:"topic"`
	EventType  string    `gorm:"type:varchar(64);not null" json:"event_type"`
	Payload    string    `gorm:"type:text;not null" json:"payload"`
	Status     string    `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	RetryCount int       `gorm:"not null;default:0" json:"retry_count"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (OutboxMessage) TableName() string {
	return "outbox_message"
}

// NewOutboxMessage 事件统一带上 event 和 occurred_at 字段，payload 按 JSON 序列化
func NewOutboxMessage(topic, eventType, key string, payload map[string]interface{}) (*OutboxMessage, error) {
	payload["event"] = eventType
	payload["occurred_at"] = time.Now().UTC().Format(time.RFC3339)

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("序列化事件失败: %w", err)
	}

	return &OutboxMessage{
		MessageKey: key,
		Topic:      topic,
		EventType:  eventType,
		Payload:    string(payloadBytes),
		Status:     OutboxStatusPending,
	}, nil
}

// AllModels 参与 AutoMigrate 的全部表
func AllModels() []interface{} {
	return []interface{}{
		&Customer{},
		&Sale{},
		&Installment{},
		&InstallmentPayment{},
		&Admin{},
		&OutboxMessage{},
	}
}
