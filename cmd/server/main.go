// Package main is the application entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/internal/config"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/internal/handler"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/internal/middleware"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/internal/model"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/internal/pipeline"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/internal/prompt"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/internal/repository"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/internal/service"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/pkg/database"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/pkg/embedding"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/pkg/es"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/pkg/kafka"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/pkg/llm"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/pkg/log"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/pkg/storage"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/pkg/tika"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/pkg/token"
	"github.com/gin-gonic/gin"
)

func main() {
	// 1. Configuration and logging.
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("logger initialized")

	// 2. Backing stores.
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	if err := es.InitES(cfg.Elasticsearch); err != nil {
		log.Errorf("elasticsearch initialization failed: %s", err)
		return
	}
	kafka.InitProducer(cfg.Kafka)

	if err := database.DB.AutoMigrate(
		&model.User{},
		&model.Session{},
		&model.Message{},
		&model.LawDocument{},
		&model.LawPassage{},
	); err != nil {
		log.Fatalf("database migration failed: %v", err)
	}

	// 3. Repositories.
	userRepo := repository.NewUserRepository(database.DB)
	sessionRepo := repository.NewSessionRepository(database.DB)
	messageRepo := repository.NewMessageRepository(database.DB)
	passageRepo := repository.NewPassageRepository(database.DB)
	docRepo := repository.NewDocumentRepository(database.DB)

	// 4. Services.
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	tikaClient := tika.NewClient(cfg.Tika)
	embeddingClient := embedding.NewClient(cfg.Embedding)
	llmClient := llm.NewClient(cfg.LLM)
	assembler := prompt.NewAssembler(cfg.RAG.Rules, cfg.RAG.Sentinel)

	userService := service.NewUserService(userRepo, jwtManager)
	sessionService := service.NewSessionService(sessionRepo, messageRepo, llmClient)
	retrievalService := service.NewRetrievalService(embeddingClient, es.ESClient, cfg.Elasticsearch.IndexName)
	chatService := service.NewChatService(sessionService, messageRepo, retrievalService, llmClient, assembler, cfg.RAG)
	ingestService := service.NewIngestService(docRepo, cfg.MinIO)

	// 5. Ingestion pipeline consumer.
	processor := pipeline.NewProcessor(
		tikaClient,
		embeddingClient,
		cfg.Elasticsearch,
		cfg.MinIO,
		cfg.Embedding,
		passageRepo,
		docRepo,
	)
	go kafka.StartConsumer(cfg.Kafka, processor)

	// 6. Seed corpus import, idempotent by content hash.
	seedCtx, cancelSeed := context.WithCancel(context.Background())
	defer cancelSeed()
	go seedLawDocuments(seedCtx, "lawcorpus", userRepo, ingestService)

	// 7. Router.
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	userHandler := handler.NewUserHandler(userService)
	authHandler := handler.NewAuthHandler(userService)
	sessionHandler := handler.NewSessionHandler(sessionService)
	chatHandler := handler.NewChatHandler(chatService, userService, jwtManager)
	ingestHandler := handler.NewIngestHandler(ingestService)

	apiV1 := r.Group("/api/v1")
	{
		auth := apiV1.Group("/auth")
		{
			auth.POST("/refreshToken", authHandler.RefreshToken)
		}

		users := apiV1.Group("/users")
		{
			users.POST("/register", userHandler.Register)
			users.POST("/login", userHandler.Login)

			authed := users.Group("/")
			authed.Use(middleware.AuthMiddleware(jwtManager, userService))
			{
				authed.GET("/me", userHandler.GetProfile)
				authed.POST("/logout", userHandler.Logout)
			}
		}

		sessions := apiV1.Group("/sessions")
		sessions.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			sessions.POST("", sessionHandler.Create)
			sessions.GET("", sessionHandler.List)
			sessions.GET("/:id", sessionHandler.Get)
			sessions.PUT("/:id/title", sessionHandler.Rename)
			sessions.DELETE("/:id", sessionHandler.Delete)
			sessions.GET("/:id/messages", sessionHandler.History)
		}

		chatGroup := apiV1.Group("/chat")
		chatGroup.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			chatGroup.GET("/stop-token", chatHandler.GetStopToken)
		}

		admin := apiV1.Group("/admin")
		admin.Use(middleware.AuthMiddleware(jwtManager, userService), middleware.AdminAuthMiddleware())
		{
			admin.POST("/documents", ingestHandler.Upload)
			admin.GET("/documents", ingestHandler.List)
		}
	}
	// The WebSocket endpoint authenticates via its path token, not the header.
	r.GET("/chat/:token", chatHandler.Handle)

	// 8. HTTP server with graceful shutdown.
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server failed: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutdown signal received, stopping server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("http server shutdown failed: %v", err)
	}
	log.Info("server stopped")
}

// seedLawDocuments imports every file under dir through the regular ingestion
// flow. Already-indexed content is skipped, so restarts do not duplicate work.
func seedLawDocuments(ctx context.Context, dir string, userRepo repository.UserRepository, ingestSvc service.IngestService) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		log.Infof("seedLawDocuments: directory '%s' not available, skipping seed import", dir)
		return
	}

	admin, err := userRepo.FindByUsername("admin")
	if err != nil {
		log.Warnf("seedLawDocuments: no admin account, skipping seed import")
		return
	}

	walkErr := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f, err := os.Open(path)
		if err != nil {
			log.Warnf("seedLawDocuments: failed to open %s: %v", path, err)
			return nil
		}
		defer f.Close()

		// Category is taken from the immediate parent directory name.
		category := filepath.Base(filepath.Dir(path))
		if category == dir {
			category = ""
		}

		_, err = ingestSvc.Upload(ctx, info.Name(), info.Name(), category, f, admin.ID)
		switch {
		case err == nil:
			log.Infof("seedLawDocuments: queued %s", info.Name())
		case err == service.ErrDuplicateDocument:
			log.Infof("seedLawDocuments: already indexed, skipping %s", info.Name())
		default:
			log.Warnf("seedLawDocuments: failed to import %s: %v", path, err)
		}
		return nil
	})
	if walkErr != nil {
		log.Warnf("seedLawDocuments: directory walk failed: %v", walkErr)
	}
}
