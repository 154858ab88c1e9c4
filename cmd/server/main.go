package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crediario/internal/config"
	"crediario/internal/handler"
	"crediario/internal/infrastructure/cache"
	"crediario/internal/infrastructure/database"
	"crediario/internal/infrastructure/lock"
	"crediario/internal/infrastructure/mq"
	"crediario/internal/job"
	"crediario/internal/service"
	"crediario/pkg/idgen"
)

var (
	configPath      = flag.String("config", "config/config.yaml", "配置文件路径")
	migrateOnlyFlag = flag.Bool("migrate-only", false, "只执行表结构迁移后退出")
	nodeID          = flag.Int64("node", 1, "snowflake 节点号，多实例部署时各不相同")
)

func main() {
	flag.Parse()

	// 加载配置
	cfg := config.LoadConfig(*configPath)

	// 初始化数据库（含自动迁移）
	db := database.InitDB(&cfg.Database)
	if *migrateOnlyFlag {
		log.Println("表结构迁移完成，退出")
		return
	}

	// 初始化 ID 生成器
	idgen.Init(*nodeID)

	// 锁和缓存：启用 Redis 时跨实例互斥，否则退回进程内锁
	var locker lock.Locker = lock.NewLocalLocker()
	var reportCache *cache.JSONCache
	if cfg.Redis.Enabled {
		redisClient := cache.InitRedis(&cfg.Redis)
		defer redisClient.Close()
		locker = lock.NewRedisLocker(redisClient)
		reportCache = cache.NewJSONCache(redisClient, "closet:report:")
	}

	// 初始化 Kafka
	var publisher mq.Publisher = mq.LogPublisher{}
	if cfg.Kafka.Enabled {
		publisher = mq.InitKafka(&cfg.Kafka)
	}
	defer publisher.Close()

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	authService := service.NewAuthService(db, &cfg.Auth)
	if err := authService.EnsureBootstrapAdmin(ctx); err != nil {
		log.Fatalf("创建初始管理员失败: %v", err)
	}

	// 启动后台任务
	outboxSender := job.NewOutboxSender(db, publisher, cfg)
	go outboxSender.Start(ctx)

	overdueNotifier := job.NewOverdueNotifier(db, cfg)
	go overdueNotifier.Start(ctx)

	reconciler := job.NewLedgerReconciler(db, locker, service.NewSaleService(db, locker, cfg), cfg)
	go reconciler.Start(ctx)

	// 设置路由
	router := handler.SetupRouter(db, locker, reportCache, cfg)

	// 启动 HTTP 服务
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler.WithCORS(router, cfg.Server.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 在 goroutine 中启动服务器
	go func() {
		log.Printf("服务启动，监听端口: %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("服务启动失败: %v", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在关闭服务...")

	// 取消上下文，停止后台任务
	cancel()

	// 关闭 HTTP 服务（等待最多5秒）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("服务关闭异常: %v", err)
	}

	log.Println("服务已关闭")
}
