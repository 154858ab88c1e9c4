package repository

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrDuplicateRequest = errors.New("重复请求")
	ErrOptimisticLock   = errors.New("乐观锁冲突，请重试")
)

// pick 有事务用事务，否则用仓储自己的连接
func pick(db, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return db
}

func translateDuplicate(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateRequest
	}
	return err
}

// NormalizePage 页码从 1 开始，每页 1~100 条
func NormalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}
