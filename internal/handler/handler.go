package handler

import (
	"errors"
	"log"
	"strconv"
	"strings"
	"time"

	"crediario/internal/config"
	"crediario/internal/infrastructure/cache"
	"crediario/internal/infrastructure/lock"
	"crediario/internal/ledger"
	"crediario/internal/repository"
	"crediario/internal/service"
	"crediario/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const dateLayout = "2006-01-02"

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	authService        *service.AuthService
	customerService    *service.CustomerService
	saleService        *service.SaleService
	installmentService *service.InstallmentService
	reportService      *service.ReportService
	outboxRepo         *repository.OutboxRepository
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, locker lock.Locker, reportCache *cache.JSONCache, cfg *config.Config) *Handler {
	sales := service.NewSaleService(db, locker, cfg)
	return &Handler{
		authService:        service.NewAuthService(db, &cfg.Auth),
		customerService:    service.NewCustomerService(db),
		saleService:        sales,
		installmentService: service.NewInstallmentService(db, locker, sales, cfg),
		reportService:      service.NewReportService(db, reportCache, cfg),
		outboxRepo:         repository.NewOutboxRepository(db),
	}
}

// ============================================================
// 登录
// ============================================================

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login 管理员登录
// POST /api/v1/auth/login
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, result)
}

// ============================================================
// 客户
// ============================================================

type CustomerRequest struct {
	Name     string `json:"name" binding:"required"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Document string `json:"document"`
}

func (r *CustomerRequest) toInput() *service.CustomerInput {
	return &service.CustomerInput{Name: r.Name, Phone: r.Phone, Email: r.Email, Document: r.Document}
}

// CreateCustomer 登记客户
// POST /api/v1/customers
func (h *Handler) CreateCustomer(c *gin.Context) {
	var req CustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	customer, err := h.customerService.CreateCustomer(c.Request.Context(), req.toInput())
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, customer)
}

// GetCustomer 查询客户
// GET /api/v1/customers/:id
func (h *Handler) GetCustomer(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	customer, err := h.customerService.GetCustomer(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, customer)
}

// GetCustomerStatement 客户对账单
// GET /api/v1/customers/:id/statement
func (h *Handler) GetCustomerStatement(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	statement, err := h.reportService.CustomerStatement(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, statement)
}

// ============================================================
// 销售
// ============================================================

// CreateSaleRequest 创建销售请求，金额可以传数字或字符串
type CreateSaleRequest struct {
	RequestID            string           `json:"request_id"` // 幂等ID
	CustomerID           int64            `json:"customer_id"`
	Customer             *CustomerRequest `json:"customer"`
	OrderRef             string           `json:"order_ref"`
	TotalValue           decimal.Decimal  `json:"total_value"`
	EntryPayment         decimal.Decimal  `json:"entry_payment"`
	DiscountAmount       decimal.Decimal  `json:"discount_amount"`
	IsInstallment        bool             `json:"is_installment"`
	InstallmentCount     int              `json:"installment_count"`
	InstallmentStartDate string           `json:"installment_start_date"` // YYYY-MM-DD
	PaymentMethod        string           `json:"payment_method"`
	PaidInFull           bool             `json:"paid_in_full"`
	Notes                string           `json:"notes"`
}

// CreateSale 创建销售（分期销售同时生成分期计划）
// POST /api/v1/sales
func (h *Handler) CreateSale(c *gin.Context) {
	var req CreateSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	startDate, err := parseDate(req.InstallmentStartDate)
	if err != nil {
		response.ParamError(c, "installment_start_date 格式应为 YYYY-MM-DD")
		return
	}

	serviceReq := &service.CreateSaleRequest{
		RequestID:            strings.TrimSpace(req.RequestID),
		CustomerID:           req.CustomerID,
		OrderRef:             req.OrderRef,
		TotalValue:           req.TotalValue,
		EntryPayment:         req.EntryPayment,
		DiscountAmount:       req.DiscountAmount,
		IsInstallment:        req.IsInstallment,
		InstallmentCount:     req.InstallmentCount,
		InstallmentStartDate: startDate,
		PaymentMethod:        req.PaymentMethod,
		PaidInFull:           req.PaidInFull,
		Notes:                req.Notes,
		CreatedBy:            adminID(c),
	}
	if req.Customer != nil {
		serviceReq.Customer = req.Customer.toInput()
	}

	detail, err := h.saleService.CreateSale(c.Request.Context(), serviceReq)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, detail)
}

// GetSale 销售详情
// GET /api/v1/sales/:id
func (h *Handler) GetSale(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	detail, err := h.saleService.GetSale(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, detail)
}

// ListSales 销售列表
// GET /api/v1/sales?customer_id=&status=&page=1&page_size=10
func (h *Handler) ListSales(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	customerID, _ := strconv.ParseInt(c.Query("customer_id"), 10, 64)

	filter := repository.SaleFilter{CustomerID: customerID, Status: c.Query("status")}
	sales, total, err := h.saleService.ListSales(c.Request.Context(), filter, page, pageSize)
	if err != nil {
		h.fail(c, err)
		return
	}

	page, pageSize = repository.NormalizePage(page, pageSize)
	response.Success(c, gin.H{
		"list":      sales,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

type CancelSaleRequest struct {
	Reason string `json:"reason"`
}

// CancelSale 取消销售
// POST /api/v1/sales/:id/cancel
func (h *Handler) CancelSale(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req CancelSaleRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ParamError(c, "参数错误: "+err.Error())
			return
		}
	}

	sale, err := h.saleService.CancelSale(c.Request.Context(), id, req.Reason)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, sale)
}

type MarkSalePaidRequest struct {
	PaymentMethod string `json:"payment_method"`
}

// MarkSalePaid 非分期销售整单标记已付
// POST /api/v1/sales/:id/pay
func (h *Handler) MarkSalePaid(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req MarkSalePaidRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ParamError(c, "参数错误: "+err.Error())
			return
		}
	}

	sale, err := h.saleService.MarkSalePaid(c.Request.Context(), id, req.PaymentMethod)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, sale)
}

// ListSaleInstallments 销售的分期列表
// GET /api/v1/sales/:id/installments
func (h *Handler) ListSaleInstallments(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	views, err := h.saleService.ListInstallments(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, views)
}

// ============================================================
// 分期与还款
// ============================================================

// ListOverdueInstallments 逾期分期
// GET /api/v1/installments/overdue?page=1&page_size=10
func (h *Handler) ListOverdueInstallments(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	views, total, err := h.installmentService.ListOverdue(c.Request.Context(), page, pageSize)
	if err != nil {
		h.fail(c, err)
		return
	}

	page, pageSize = repository.NormalizePage(page, pageSize)
	response.Success(c, gin.H{
		"list":      views,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// GetInstallment 分期详情及还款历史
// GET /api/v1/installments/:id
func (h *Handler) GetInstallment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	detail, err := h.installmentService.GetInstallment(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, detail)
}

// PayInstallmentRequest 登记还款请求
type PayInstallmentRequest struct {
	RequestID string          `json:"request_id" binding:"required"` // 幂等ID
	Amount    decimal.Decimal `json:"amount"`
	PaidOn    string          `json:"paid_on"` // YYYY-MM-DD，默认今天
	Method    string          `json:"method" binding:"required"`
	Notes     string          `json:"notes"`
}

// PayInstallment 登记分期还款（支持部分还款）
// POST /api/v1/installments/:id/payments
func (h *Handler) PayInstallment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req PayInstallmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	paidOn, err := parseDate(req.PaidOn)
	if err != nil {
		response.ParamError(c, "paid_on 格式应为 YYYY-MM-DD")
		return
	}

	result, err := h.installmentService.Pay(c.Request.Context(), &service.PayRequest{
		RequestID:     strings.TrimSpace(req.RequestID),
		InstallmentID: id,
		Amount:        req.Amount,
		PaidOn:        paidOn,
		Method:        req.Method,
		Notes:         req.Notes,
		RecordedBy:    adminID(c),
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, result)
}

// ============================================================
// 看板
// ============================================================

// GetReceivables 应收看板
// GET /api/v1/dashboard/receivables?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *Handler) GetReceivables(c *gin.Context) {
	from, err := parseDate(c.Query("from"))
	if err != nil {
		response.ParamError(c, "from 格式应为 YYYY-MM-DD")
		return
	}
	to, err := parseDate(c.Query("to"))
	if err != nil {
		response.ParamError(c, "to 格式应为 YYYY-MM-DD")
		return
	}

	report, err := h.reportService.Receivables(c.Request.Context(), from, to)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, report)
}

// ============================================================
// 发件箱
// ============================================================

// ListFailedMessages 投递失败的消息
// GET /api/v1/outbox/failed?limit=50
func (h *Handler) ListFailedMessages(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	messages, err := h.outboxRepo.GetFailedMessages(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, messages)
}

// RequeueMessage 失败消息重新投递
// POST /api/v1/outbox/:id/requeue
func (h *Handler) RequeueMessage(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	n, err := h.outboxRepo.Requeue(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if n == 0 {
		response.NotFound(c, "消息不存在或不是失败状态")
		return
	}

	log.Printf("[Outbox] 消息已重新入队: id=%d, adminID=%d", id, adminID(c))
	response.Success(c, gin.H{"message": "已重新入队"})
}

// ============================================================
// 工具函数
// ============================================================

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, "id 参数错误")
		return 0, false
	}
	return id, true
}

// parseDate 空串返回 nil
func parseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// fail 把各层的哨兵错误映射为业务码
func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidInstallmentCount),
		errors.Is(err, ledger.ErrInvalidSale),
		errors.Is(err, service.ErrCustomerRequired),
		errors.Is(err, service.ErrCustomerNameRequired),
		errors.Is(err, service.ErrTooManyInstallments),
		errors.Is(err, service.ErrInvalidPaymentMethod),
		errors.Is(err, service.ErrInvalidPaymentDate),
		errors.Is(err, service.ErrInvalidPeriod):
		response.ParamError(c, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidToken):
		response.Error(c, response.CodeUnauthorized, err.Error())
	case errors.Is(err, service.ErrScheduleMismatch):
		response.BusinessError(c, response.CodeInvalidSchedule, err.Error())
	case errors.Is(err, repository.ErrSaleNotFound):
		response.BusinessError(c, response.CodeSaleNotFound, err.Error())
	case errors.Is(err, repository.ErrInstallmentNotFound):
		response.BusinessError(c, response.CodeInstallmentNotFound, err.Error())
	case errors.Is(err, repository.ErrCustomerNotFound):
		response.BusinessError(c, response.CodeCustomerNotFound, err.Error())
	case errors.Is(err, repository.ErrSaleStatusInvalid),
		errors.Is(err, service.ErrSaleHasPayments),
		errors.Is(err, service.ErrInstallmentSale):
		response.BusinessError(c, response.CodeSaleStatusInvalid, err.Error())
	case errors.Is(err, ledger.ErrPaymentExceedsBalance):
		response.BusinessError(c, response.CodePaymentExceedsBalance, err.Error())
	case errors.Is(err, ledger.ErrInstallmentSettled):
		response.BusinessError(c, response.CodeInstallmentSettled, err.Error())
	case errors.Is(err, service.ErrSaleNotPayable):
		response.BusinessError(c, response.CodeSaleNotPayable, err.Error())
	case errors.Is(err, service.ErrCustomerExists):
		response.Error(c, response.CodeConflict, err.Error())
	case errors.Is(err, service.ErrPaymentConflict),
		errors.Is(err, lock.ErrLockFailed):
		response.BusinessError(c, response.CodeBusy, "系统繁忙，请稍后重试")
	default:
		log.Printf("[Handler] 请求处理失败: rid=%s, path=%s, err=%v",
			c.GetString(ctxRequestID), c.Request.URL.Path, err)
		response.ServerError(c, "服务器内部错误")
	}
}
