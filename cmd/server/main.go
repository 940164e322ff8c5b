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

	"gongtu-rag-go/internal/answer"
	"gongtu-rag-go/internal/assemble"
	"gongtu-rag-go/internal/citation"
	"gongtu-rag-go/internal/config"
	"gongtu-rag-go/internal/handler"
	"gongtu-rag-go/internal/index"
	"gongtu-rag-go/internal/middleware"
	"gongtu-rag-go/internal/model"
	"gongtu-rag-go/internal/pipeline"
	"gongtu-rag-go/internal/query"
	"gongtu-rag-go/internal/repository"
	"gongtu-rag-go/internal/service"
	"gongtu-rag-go/pkg/database"
	"gongtu-rag-go/pkg/embedding"
	"gongtu-rag-go/pkg/kafka"
	"gongtu-rag-go/pkg/llm"
	"gongtu-rag-go/pkg/log"
	"gongtu-rag-go/pkg/storage"
	"gongtu-rag-go/pkg/tika"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis、对象存储与消息队列
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	kafka.InitProducer(cfg.Kafka)

	if err := database.DB.AutoMigrate(
		&model.Project{}, &model.Document{},
		&model.Chunk{}, &model.Callout{}, &model.VisualFinding{},
		&model.Chat{}, &model.Message{},
	); err != nil {
		log.Fatal("数据库迁移失败", err)
	}

	// 4. 初始化 Repository
	chunkRepo := repository.NewChunkRepository(database.DB)
	findingRepo := repository.NewVisualFindingRepository(database.DB)
	documentRepo := repository.NewDocumentRepository(database.DB)
	chatRepo := repository.NewChatRepository(database.DB)
	conversationCache := repository.NewConversationCache(database.RDB)

	// 5. 初始化外部客户端与核心组件
	tikaClient := tika.NewClient(cfg.Tika)
	embeddingClient := embedding.NewClient(cfg.Embedding)
	providers := map[string]llm.Client{
		answer.ProviderOpenAI:    llm.NewOpenAIClient(cfg.LLM.OpenAI),
		answer.ProviderAnthropic: llm.NewAnthropicClient(cfg.LLM.Anthropic),
	}

	embeddingIndex := index.NewEmbeddingIndex(
		embeddingClient, chunkRepo, findingRepo,
		cfg.Embedding.BatchSize,
		time.Duration(cfg.Embedding.BatchDelayMs)*time.Millisecond,
	)
	defaultModel := cfg.LLM.DefaultModel
	if defaultModel == "" {
		defaultModel = answer.DefaultModelID()
	}
	expanderClient := providers[expanderProvider(defaultModel)]
	expander := query.NewExpander(expanderClient, defaultModel)
	assembler := assemble.NewAssembler(chunkRepo, documentRepo)
	generator := answer.NewGenerator(providers, defaultModel)
	resolver := citation.NewResolver(chunkRepo, documentRepo)

	// 6. 初始化 Service (依赖注入)
	documentService := service.NewDocumentService(documentRepo, cfg.MinIO.BucketName)
	findingService := service.NewFindingService(findingRepo, documentRepo)
	searchService := service.NewSearchService(embeddingIndex)
	chatService := service.NewChatService(
		chatRepo, chunkRepo, findingRepo, conversationCache,
		embeddingIndex, expander, assembler, generator, resolver,
	)

	// 7. 初始化文档处理管道并启动后台 Kafka 消费者
	processor := pipeline.NewProcessor(tikaClient, chunkRepo, documentRepo, embeddingIndex, cfg.MinIO.BucketName)
	go kafka.StartConsumer(cfg.Kafka, processor)

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 9. 注册路由
	projectHandler := handler.NewProjectHandler(documentService)
	documentHandler := handler.NewDocumentHandler(documentService)
	findingHandler := handler.NewFindingHandler(findingService)
	searchHandler := handler.NewSearchHandler(searchService)
	chatHandler := handler.NewChatHandler(chatService)

	apiV1 := r.Group("/api/v1")
	{
		projects := apiV1.Group("/projects")
		{
			projects.POST("", projectHandler.CreateProject)
			projects.GET("", projectHandler.ListProjects)
			projects.GET("/:projectId", projectHandler.GetProject)

			projects.POST("/:projectId/documents", documentHandler.Upload)
			projects.GET("/:projectId/documents", documentHandler.List)

			projects.GET("/:projectId/search", searchHandler.Search)
			projects.POST("/:projectId/embeddings", searchHandler.RunEmbedding)

			projects.POST("/:projectId/chats", chatHandler.CreateChat)
			projects.GET("/:projectId/chats", chatHandler.ListChats)
		}

		documents := apiV1.Group("/documents")
		{
			documents.POST("/:documentId/reprocess", documentHandler.Reprocess)
			documents.POST("/:documentId/findings", findingHandler.Ingest)
		}

		chats := apiV1.Group("/chats")
		{
			chats.GET("/:chatId/messages", chatHandler.ListMessages)
			chats.POST("/:chatId/messages", chatHandler.Ask)
		}

		apiV1.GET("/models", chatHandler.ListModels)
	}
	// Chat 路由 (WebSocket)
	r.GET("/chat/:chatId", chatHandler.Handle)

	// 10. 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("服务启动失败", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("收到退出信号，正在优雅停机...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("服务停机失败", err)
	}
	log.Info("服务已退出")
}

// expanderProvider 返回查询扩展所用默认模型对应的提供方。
func expanderProvider(modelID string) string {
	if spec, ok := answer.Lookup(modelID); ok {
		return spec.Provider
	}
	return answer.ProviderOpenAI
}
