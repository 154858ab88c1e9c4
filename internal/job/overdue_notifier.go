package job

import (
	"context"
	"fmt"
	"log"
	"time"

	"crediario/internal/config"
	"crediario/internal/ledger"
	"crediario/internal/model"
	"crediario/internal/repository"
	"crediario/pkg/money"

	"gorm.io/gorm"
)

// OverdueNotifier 扫描逾期未还的分期，每期只发一次 installment.overdue 事件
type OverdueNotifier struct {
	db              *gorm.DB
	installmentRepo *repository.InstallmentRepository
	outboxRepo      *repository.OutboxRepository
	cfg             *config.Config
	loc             *time.Location
	now             func() time.Time
	stopCh          chan struct{}
	interval        time.Duration
	batchSize       int
}

func NewOverdueNotifier(db *gorm.DB, cfg *config.Config) *OverdueNotifier {
	interval := time.Duration(cfg.Business.OverdueScanSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &OverdueNotifier{
		db:              db,
		installmentRepo: repository.NewInstallmentRepository(db),
		outboxRepo:      repository.NewOutboxRepository(db),
		cfg:             cfg,
		loc:             cfg.Business.Location(),
		now:             time.Now,
		stopCh:          make(chan struct{}),
		interval:        interval,
		batchSize:       100,
	}
}

func (j *OverdueNotifier) Start(ctx context.Context) {
	log.Println("[OverdueNotifier] 逾期通知任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[OverdueNotifier] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[OverdueNotifier] 任务停止")
			return
		case <-ticker.C:
			j.notifyOverdue(ctx)
		}
	}
}

func (j *OverdueNotifier) Stop() {
	close(j.stopCh)
}

// notifyOverdue 返回本轮发出的通知数
func (j *OverdueNotifier) notifyOverdue(ctx context.Context) int {
	today := ledger.Today(j.now(), j.loc)

	installments, err := j.installmentRepo.ListUnnotifiedOverdue(ctx, today, j.batchSize)
	if err != nil {
		log.Printf("[OverdueNotifier] 查询逾期分期失败: %v", err)
		return 0
	}

	if len(installments) == 0 {
		return 0
	}

	log.Printf("[OverdueNotifier] 发现 %d 期新逾期分期", len(installments))

	notified := 0
	for i := range installments {
		if err := j.notify(ctx, &installments[i], today); err != nil {
			log.Printf("[OverdueNotifier] 发送逾期通知失败: installmentID=%d, err=%v", installments[i].ID, err)
			continue
		}
		notified++
	}

	log.Printf("[OverdueNotifier] 本次通知 %d 期逾期分期", notified)
	return notified
}

func (j *OverdueNotifier) notify(ctx context.Context, inst *model.Installment, today time.Time) error {
	remaining := inst.RemainingAmount()

	return j.db.Transaction(func(tx *gorm.DB) error {
		marked, err := j.installmentRepo.MarkOverdueNotified(ctx, tx, inst.ID, j.now().UTC())
		if err != nil {
			return err
		}
		// 已被其他实例处理
		if !marked {
			return nil
		}

		msg, err := model.NewOutboxMessage(j.cfg.Kafka.Topic.InstallmentOverdue, model.EventInstallmentOverdue,
			fmt.Sprintf("installment-%d", inst.ID), map[string]interface{}{
				"installment_id":   inst.ID,
				"sale_id":          inst.SaleID,
				"installment_no":   inst.Number,
				"due_date":         inst.DueDate.Format("2006-01-02"),
				"remaining_amount": remaining.StringFixed(2),
				"remaining_brl":    money.FormatBRL(remaining),
				"days_overdue":     ledger.DaysOverdue(inst.DueDate, today),
			})
		if err != nil {
			return err
		}
		return j.outboxRepo.Create(ctx, tx, msg)
	})
}
