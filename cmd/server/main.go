// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-dumper-go/internal/config"
	"chat-dumper-go/internal/handler"
	"chat-dumper-go/internal/hub"
	"chat-dumper-go/internal/middleware"
	"chat-dumper-go/internal/repository"
	"chat-dumper-go/internal/service"
	"chat-dumper-go/pkg/database"
	"chat-dumper-go/pkg/kafka"
	"chat-dumper-go/pkg/log"
	"chat-dumper-go/pkg/storage"
	"chat-dumper-go/pkg/token"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	configPath := os.Getenv("CHATDUMP_CONFIG")
	if configPath == "" {
		configPath = "./configs/config.yaml"
	}
	config.Init(configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 后台组件 (WebSocket hub、Kafka 消费者) 共用的生命周期
	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	// 3. 初始化响应缓存
	var cache repository.PayloadCacheRepository
	switch cfg.Cache.Backend {
	case "redis":
		rdb := database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
		defer rdb.Close()
		cache = repository.NewRedisPayloadCache(rdb, cfg.Cache.TTL)
	default:
		cache = repository.NewMemoryPayloadCache(cfg.Cache.TTL)
	}
	log.Infof("响应缓存后端: %s, TTL: %s", cfg.Cache.Backend, cfg.Cache.TTL)

	// 4. 初始化导出存储
	var store storage.ArtifactStore
	switch cfg.Export.Store {
	case "minio":
		store = storage.InitMinIO(cfg.MinIO)
	default:
		local, err := storage.NewLocalStore(cfg.Export.LocalDir)
		if err != nil {
			log.Fatal("初始化本地导出目录失败", err)
		}
		store = local
	}

	// 5. 初始化 Service (依赖注入)
	wsHub := hub.NewHub()
	go wsHub.Run(bgCtx)

	exportOpts := service.ExportOptions{Delay: cfg.Export.Delay, Notifier: wsHub}
	if cfg.Export.Audit {
		db := database.InitMySQL(cfg.Database.MySQL.DSN)
		exportOpts.Audit = repository.NewExportRecordRepository(db)
	}

	var publisher service.TaskPublisher
	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		producer = kafka.InitProducer(cfg.Kafka)
		publisher = producer
		exportOpts.Events = producer
	}

	exportService := service.NewExportService(cache, store, exportOpts)
	interceptService := service.NewInterceptService(cfg.Intercept, cache, exportService, publisher)
	jwtManager := token.NewJWTManager(cfg.Session.Secret, cfg.Session.ExpireHours)

	// 6. 启动后台 Kafka 消费者
	consumerDone := make(chan struct{})
	if cfg.Intercept.Mode == "kafka" {
		go func() {
			defer close(consumerDone)
			kafka.StartConsumer(bgCtx, cfg.Kafka, interceptService)
		}()
	} else {
		close(consumerDone)
	}

	// 7. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery(), middleware.CORS(cfg.Server.AllowedOrigins))

	// 8. 注册路由
	handler.RegisterRoutes(r, jwtManager, handler.Handlers{
		Session:   handler.NewSessionHandler(jwtManager, exportService, cfg.Server.PublicURL),
		Intercept: handler.NewInterceptHandler(interceptService),
		Export:    handler.NewExportHandler(exportService, wsHub),
		Shim:      handler.NewShimHandler(cfg.Server.PublicURL, cfg.Intercept, cfg.Export),
	})

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	// 停止 hub 与 Kafka 消费者，等待消费者提交完最后一条消息
	stopBackground()
	select {
	case <-consumerDone:
	case <-ctx.Done():
		log.Warnf("等待 Kafka 消费者退出超时")
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Errorf("关闭 Kafka 生产者失败: %v", err)
		}
	}
	log.Info("服务已优雅关闭")
}
