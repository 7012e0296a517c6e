package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"SR_rewards_bot/internal/api"
	"SR_rewards_bot/internal/bot"
	"SR_rewards_bot/internal/repository"
	"SR_rewards_bot/internal/service"
	"SR_rewards_bot/internal/settlement"
	"SR_rewards_bot/pkg/auth"
	"SR_rewards_bot/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading environment variables directly")
	}

	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	err = logger.Initialize(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	zapLogger := logger.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := repository.New(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to initialize repository", zap.Error(err))
	}
	defer repo.Close()

	if err := repo.Migrate(); err != nil {
		zapLogger.Fatal("Failed to apply migrations", zap.Error(err))
	}
	if err := repo.SeedAdmins(ctx, cfg.Admins); err != nil {
		zapLogger.Fatal("Failed to seed admins", zap.Error(err))
	}

	settler, err := settlement.NewClient(cfg.Settlement, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to initialize settlement client", zap.Error(err))
	}
	defer settler.Close()

	botAPI, err := bot.NewBotAPI(cfg.Telegram)
	if err != nil {
		zapLogger.Fatal("Failed to initialize telegram bot", zap.Error(err))
	}

	feed := api.NewFeedHub(zapLogger)
	defer feed.Close()

	svc := service.NewService(service.Dependencies{
		Accounts:   repo,
		Tasks:      repo,
		Admins:     repo,
		Settlement: settler,
		Notifier:   bot.NewNotifier(botAPI),
		Publisher:  feed,
		Rules:      cfg.Rewards,
		Logger:     zapLogger,
	})

	scheduler, err := svc.StartScheduler(ctx, cfg.Scheduler, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to start scheduler", zap.Error(err))
	}

	telegramAuth := auth.NewTelegramAuth(cfg.Telegram.BotToken, cfg.Auth.Debug)

	router := gin.New()
	router.Use(gin.Recovery())

	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowMethods = []string{
		http.MethodHead,
		http.MethodGet,
		http.MethodPost,
		http.MethodPut,
		http.MethodPatch,
		http.MethodDelete,
	}
	config.AllowHeaders = []string{"*"}
	config.AllowCredentials = true
	config.MaxAge = 12 * time.Hour

	router.Use(cors.New(config))

	if cfg.Server.MetricsEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		zapLogger.Info("Metrics enabled", zap.String("path", "/metrics"))
	}

	a := router.Group("/api/v1")
	api.NewUserRoutes(a, svc, telegramAuth)
	api.NewTaskRoutes(a, svc, telegramAuth)
	api.NewAdminRoutes(a, svc, telegramAuth, feed)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		zapLogger.Info("Starting server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Error("Server stopped", zap.Error(err))
			stop()
		}
	}()
	go func() {
		defer wg.Done()
		zapLogger.Info("Starting telegram bot", zap.String("username", botAPI.Self.UserName))
		bot.New(botAPI, cfg.Telegram, svc, cfg.Rewards, zapLogger).Run(ctx)
	}()

	<-ctx.Done()
	zapLogger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Failed to shut down server", zap.Error(err))
	}
	if err := scheduler.Shutdown(); err != nil {
		zapLogger.Error("Failed to shut down scheduler", zap.Error(err))
	}

	wg.Wait()
	svc.WaitNotifications()
}
