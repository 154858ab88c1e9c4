package model

import "time"

type Customer struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"type:varchar(120);not null" json:"name"`
	Phone     string    `gorm:"type:varchar(32);index" json:"phone"`
	Email     string    `gorm:"type:varchar(120)" json:"email"`
	Document  string    `gorm:"type:varchar(20);index" json:"document"` // CPF
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Customer) TableName() string {
	return "customers"
}
