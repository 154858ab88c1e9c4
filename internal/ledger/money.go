// Package ledger 分期账本的纯领域逻辑：分期计划、还款校验、状态推导和汇总。
// 不做任何 I/O，所有金额以 decimal 表示，精度为分（2 位小数）。
package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount           = errors.New("金额必须大于0且最多两位小数")
	ErrInvalidInstallmentCount = errors.New("分期数不合法")
	ErrInvalidSale             = errors.New("销售金额不合法")
	ErrPaymentExceedsBalance   = errors.New("还款金额超过剩余应还金额")
	ErrInstallmentSettled      = errors.New("该期已结清")
)

// Round2 四舍五入到分
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// IsCents 判断金额是否最多两位小数
func IsCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}

// Today 返回 now 在业务时区下的日历日期，统一表示为 UTC 零点
func Today(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateOf 截取日期部分。到期日按 UTC 零点存储，先转回 UTC 再取日期，
// 避免数据库驱动按会话时区返回时跨天
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
