package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"conversa-backend/internal/config"
	"conversa-backend/internal/handlers"
	"conversa-backend/internal/logger"
	"conversa-backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg := config.Load()
	logger.Init(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	mongoService, err := services.NewMongoService(connectCtx, cfg.Mongo.URI, cfg.Mongo.DBName)
	cancel()
	if err != nil {
		logger.Fatal("Failed to connect to MongoDB: ", err)
	}

	redisService := services.NewRedisService(ctx, cfg.Redis.URL, cfg.RateLimit.PerMinute)
	openaiService := services.NewOpenAIService(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.TitleModel)

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(cfg.CORSOrigins))
	router.MaxMultipartMemory = cfg.MaxFileSizeBytes()

	chatHandler := handlers.NewChatHandler(mongoService, redisService, openaiService, cfg.Upload.MaxFileSizeMB)
	conversationsHandler := handlers.NewConversationsHandler(mongoService)
	filesHandler := handlers.NewFilesHandler(mongoService, redisService)
	healthHandler := handlers.NewHealthHandler(cfg.AppName, mongoService, redisService)

	router.GET("/", healthHandler.Root)
	router.GET("/health", healthHandler.Health)

	api := router.Group("/api")
	{
		chat := api.Group("/chat")
		chat.POST("/send", chatHandler.SendMessage)
		chat.POST("/send-simple", chatHandler.SendSimple)

		conversations := api.Group("/conversations")
		conversations.GET("", conversationsHandler.List)
		conversations.GET("/:id", conversationsHandler.Get)
		conversations.GET("/:id/messages", conversationsHandler.GetMessages)
		conversations.PATCH("/:id", conversationsHandler.UpdateTitle)
		conversations.DELETE("/:id", conversationsHandler.Delete)

		files := api.Group("/files")
		files.GET("/:id", filesHandler.Get)
		files.GET("/:id/download", filesHandler.Download)
		files.GET("/:id/text", filesHandler.GetText)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("🚀 " + cfg.AppName + " listening on port " + cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server: ", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown: ", err)
	}
	if err := redisService.Close(); err != nil {
		logger.Error("Redis close: ", err)
	}
	if err := mongoService.Close(shutdownCtx); err != nil {
		logger.Error("MongoDB close: ", err)
	}
}

// corsMiddleware allows the configured origins; "*" in the list allows any.
func corsMiddleware(origins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(origins))
	allowAll := false
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowAll || allowed[origin]) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
