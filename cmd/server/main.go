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

	"docuchat-go/internal/chunker"
	"docuchat-go/internal/config"
	"docuchat-go/internal/handler"
	"docuchat-go/internal/middleware"
	"docuchat-go/internal/notify"
	"docuchat-go/internal/pipeline"
	"docuchat-go/internal/repository"
	"docuchat-go/internal/service"
	"docuchat-go/internal/vectorstore/es"
	"docuchat-go/pkg/database"
	"docuchat-go/pkg/embedding"
	"docuchat-go/pkg/kafka"
	"docuchat-go/pkg/llm"
	"docuchat-go/pkg/log"
	"docuchat-go/pkg/storage"
	"docuchat-go/pkg/tika"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis、对象存储与向量索引
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	store, err := es.New(cfg.Elasticsearch, cfg.Embedding.Dimensions)
	if err != nil {
		log.Fatalf("向量索引初始化失败: %v", err)
	}
	kafka.InitProducer(cfg.Kafka)

	// 4. 初始化 Repository
	docRepo := repository.NewDocumentRepository(database.DB)
	conversationRepo := repository.NewConversationRepository(database.RDB)

	// 5. 初始化外部服务客户端与分块器
	tikaClient := tika.NewClient(cfg.Tika.ServerURL)
	embeddingClient := embedding.NewClient(cfg.Embedding)
	llmClient := llm.NewClient(cfg.LLM)
	ck, err := chunker.New(cfg.Ingest.ChunkSize)
	if err != nil {
		log.Fatalf("分块器初始化失败: %v", err)
	}

	// 6. 初始化事件总线与输入状态跟踪器
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := notify.NewBus()
	tracker := notify.NewTypingTracker(bus, 3*time.Second)
	tracker.Start(rootCtx, time.Second)

	// 7. 初始化摄取管道与 Service (依赖注入)
	blobs := storage.NewBlobs(cfg.MinIO.BucketName)
	processor := pipeline.NewProcessor(tikaClient, ck, embeddingClient, store, blobs, docRepo)
	documentService := service.NewDocumentService(processor, docRepo, bus, cfg.MinIO)
	chatService := service.NewChatService(
		embeddingClient,
		store,
		llmClient,
		conversationRepo,
		cfg.LLM.SystemPrompt,
		cfg.Retrieval.TopK,
	)

	// 8. 启动后台 Kafka 消费者，重放重建索引任务
	go kafka.StartConsumer(rootCtx, cfg.Kafka, documentService)

	// 9. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 10. 注册路由
	documentHandler := handler.NewDocumentHandler(documentService)
	chatHandler := handler.NewChatHandler(chatService, tracker)
	eventsHandler := handler.NewEventsHandler(bus, tracker)

	apiV1 := r.Group("/api/v1")
	{
		documents := apiV1.Group("/documents")
		{
			documents.POST("/upload", documentHandler.Upload)
			documents.GET("", documentHandler.List)
			documents.GET("/status", documentHandler.Status)
			documents.GET("/download", documentHandler.Download)
			documents.POST("/:fileName/reindex", documentHandler.Reindex)
		}

		chat := apiV1.Group("/chat")
		{
			chat.POST("/message", chatHandler.SendMessage)
			chat.GET("/history", chatHandler.History)
			chat.POST("/typing", chatHandler.Typing)
		}
	}

	// 事件推送 (WebSocket)
	r.GET("/ws/events", eventsHandler.Handle)

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

	// 先取消根上下文，让 Kafka 消费者和清扫任务退出
	cancel()

	ctx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}
