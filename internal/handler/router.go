package handler

import (
	"crediario/internal/config"
	"crediario/internal/infrastructure/cache"
	"crediario/internal/infrastructure/lock"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, locker lock.Locker, reportCache *cache.JSONCache, cfg *config.Config) *gin.Engine {
	// 设置 gin 为发布模式（减少日志输出）
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 注册中间件
	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())

	// 创建处理器
	h := NewHandler(db, locker, reportCache, cfg)

	// API 路由组
	api := r.Group("/api/v1")
	{
		api.POST("/auth/login", h.Login)

		authed := api.Group("", AuthMiddleware(h.authService))

		// 客户
		customers := authed.Group("/customers")
		{
			customers.POST("", h.CreateCustomer)
			customers.GET("/:id", h.GetCustomer)
			customers.GET("/:id/statement", h.GetCustomerStatement)
		}

		// 销售
		sales := authed.Group("/sales")
		{
			sales.POST("", h.CreateSale)
			sales.GET("", h.ListSales)
			sales.GET("/:id", h.GetSale)
			sales.POST("/:id/cancel", h.CancelSale)
			sales.POST("/:id/pay", h.MarkSalePaid)
			sales.GET("/:id/installments", h.ListSaleInstallments)
		}

		// 分期与还款
		installments := authed.Group("/installments")
		{
			installments.GET("/overdue", h.ListOverdueInstallments)
			installments.GET("/:id", h.GetInstallment)
			installments.POST("/:id/payments", h.PayInstallment)
		}

		authed.GET("/dashboard/receivables", h.GetReceivables)

		// 发件箱运维
		outbox := authed.Group("/outbox")
		{
			outbox.GET("/failed", h.ListFailedMessages)
			outbox.POST("/:id/requeue", h.RequeueMessage)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
