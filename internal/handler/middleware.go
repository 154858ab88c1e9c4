package handler

import (
	"log"
	"net/http"
	"strings"
	"time"

	"crediario/internal/service"
	"crediario/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/cors"
)

const (
	ctxRequestID = "request_id"
	ctxAdminID   = "admin_id"

	headerRequestID = "X-Request-ID"
)

// LoggerMiddleware 日志中间件
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		// 处理请求
		c.Next()

		// 记录日志
		latency := time.Since(start)
		status := c.Writer.Status()

		if query != "" {
			path = path + "?" + query
		}

		log.Printf("[HTTP] %d | %13v | %15s | %-7s %s | rid=%s",
			status,
			latency,
			c.ClientIP(),
			c.Request.Method,
			path,
			c.GetString(ctxRequestID),
		)
	}
}

// RecoveryMiddleware 恢复中间件，防止 panic 导致服务崩溃
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("[PANIC] rid=%s %v", c.GetString(ctxRequestID), err)
				c.AbortWithStatusJSON(500, gin.H{
					"code":    500,
					"message": "服务器内部错误",
				})
			}
		}()
		c.Next()
	}
}

// RequestIDMiddleware 沿用调用方的 X-Request-ID，没有则生成一个
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := strings.TrimSpace(c.GetHeader(headerRequestID))
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(ctxRequestID, rid)
		c.Header(headerRequestID, rid)
		c.Next()
	}
}

// AuthMiddleware 校验 Bearer 令牌，管理员 ID 写入上下文
func AuthMiddleware(auth *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			response.Unauthorized(c, "未登录")
			return
		}

		adminID, err := auth.ParseToken(token)
		if err != nil {
			response.Unauthorized(c, err.Error())
			return
		}

		c.Set(ctxAdminID, adminID)
		c.Next()
	}
}

// WithCORS 跨域处理包在 gin 引擎外层，预检请求不进入路由
func WithCORS(h http.Handler, allowedOrigins []string) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Authorization", headerRequestID},
		ExposedHeaders:   []string{headerRequestID},
		AllowCredentials: false,
	}).Handler(h)
}

func adminID(c *gin.Context) int64 {
	return c.GetInt64(ctxAdminID)
}
