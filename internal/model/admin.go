package model

import "time"

// Admin 后台管理员
type Admin struct {
	ID           int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Email        string     `gorm:"type:varchar(120);uniqueIndex;not null" json:"email"`
	Name         string     `gorm:"type:varchar(120)" json:"name"`
	PasswordHash string     `gorm:"type:varchar(100);not null" json:"-"`
	Active       bool       `gorm:"not null;default:true" json:"active"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Admin) TableName() string {
	return "admins"
}
