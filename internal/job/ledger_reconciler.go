package job

import (
	"context"
	"log"
	"time"

	"crediario/internal/config"
	"crediario/internal/infrastructure/lock"
	"crediario/internal/model"
	"crediario/internal/repository"
	"crediario/internal/service"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LedgerReconciler 以还款流水为准校正分期已还金额，并补齐漏掉的销售结清
type LedgerReconciler struct {
	db              *gorm.DB
	locker          lock.Locker
	sales           *service.SaleService
	saleRepo        *repository.SaleRepository
	installmentRepo *repository.InstallmentRepository
	paymentRepo     *repository.PaymentRepository
	cfg             *config.Config
	stopCh          chan struct{}
	interval        time.Duration
	batchSize       int
}

func NewLedgerReconciler(db *gorm.DB, locker lock.Locker, sales *service.SaleService, cfg *config.Config) *LedgerReconciler {
	interval := time.Duration(cfg.Business.ReconcileSeconds) * time.Second
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &LedgerReconciler{
		db:              db,
		locker:          locker,
		sales:           sales,
		saleRepo:        repository.NewSaleRepository(db),
		installmentRepo: repository.NewInstallmentRepository(db),
		paymentRepo:     repository.NewPaymentRepository(db),
		cfg:             cfg,
		stopCh:          make(chan struct{}),
		interval:        interval,
		batchSize:       200,
	}
}

func (j *LedgerReconciler) Start(ctx context.Context) {
	log.Println("[LedgerReconciler] 对账任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[LedgerReconciler] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[LedgerReconciler] 任务停止")
			return
		case <-ticker.C:
			j.reconcile(ctx)
		}
	}
}

func (j *LedgerReconciler) Stop() {
	close(j.stopCh)
}

// reconcile 返回校正的分期数和补结清的销售数
func (j *LedgerReconciler) reconcile(ctx context.Context) (repaired, settled int) {
	var afterID int64
	for {
		installments, err := j.installmentRepo.ListAfterID(ctx, afterID, j.batchSize)
		if err != nil {
			log.Printf("[LedgerReconciler] 查询分期失败: %v", err)
			return
		}
		if len(installments) == 0 {
			break
		}
		for i := range installments {
			if j.repairInstallment(ctx, &installments[i]) {
				repaired++
			}
		}
		afterID = installments[len(installments)-1].ID
	}

	afterID = 0
	for {
		sales, err := j.saleRepo.ListPendingInstallmentSales(ctx, afterID, j.batchSize)
		if err != nil {
			log.Printf("[LedgerReconciler] 查询待结清销售失败: %v", err)
			return
		}
		if len(sales) == 0 {
			break
		}
		for _, sale := range sales {
			ok, err := j.sales.SettleIfComplete(ctx, nil, sale.ID)
			if err != nil {
				log.Printf("[LedgerReconciler] 结清销售失败: saleNo=%s, err=%v", sale.SaleNo, err)
				continue
			}
			if ok {
				settled++
				log.Printf("[LedgerReconciler] 补偿成功，销售已结清: saleNo=%s", sale.SaleNo)
			}
		}
		afterID = sales[len(sales)-1].ID
	}

	if repaired > 0 || settled > 0 {
		log.Printf("[LedgerReconciler] 本次校正 %d 期分期，结清 %d 笔销售", repaired, settled)
	}
	return repaired, settled
}

func (j *LedgerReconciler) repairInstallment(ctx context.Context, inst *model.Installment) bool {
	sum, err := j.paymentRepo.SumByInstallment(ctx, inst.ID)
	if err != nil {
		log.Printf("[LedgerReconciler] 汇总还款失败: installmentID=%d, err=%v", inst.ID, err)
		return false
	}
	if sum.Equal(inst.PaidAmount) {
		return false
	}

	// 与还款登记互斥，避免把正在入账的金额改回去
	unlock, err := j.locker.Acquire(ctx, lock.InstallmentLockKey(inst.ID), uuid.NewString())
	if err != nil {
		log.Printf("[LedgerReconciler] 获取锁失败: installmentID=%d, err=%v", inst.ID, err)
		return false
	}
	defer unlock()

	current, err := j.installmentRepo.GetByID(ctx, nil, inst.ID)
	if err != nil {
		log.Printf("[LedgerReconciler] 查询分期失败: installmentID=%d, err=%v", inst.ID, err)
		return false
	}
	sum, err = j.paymentRepo.SumByInstallment(ctx, inst.ID)
	if err != nil {
		return false
	}
	if sum.Equal(current.PaidAmount) {
		return false
	}

	log.Printf("[LedgerReconciler] 发现已还金额与流水不一致: installmentID=%d, recorded=%s, payments=%s",
		inst.ID, current.PaidAmount.StringFixed(2), sum.StringFixed(2))

	if err := j.installmentRepo.UpdatePaidAmount(ctx, nil, inst.ID, sum, current.Version); err != nil {
		log.Printf("[LedgerReconciler] 校正已还金额失败: installmentID=%d, err=%v", inst.ID, err)
		return false
	}
	return true
}
