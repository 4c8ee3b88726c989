package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/marketplace-backend/internal/config"
	"github.com/ignatzorin/marketplace-backend/internal/db"
	"github.com/ignatzorin/marketplace-backend/internal/goroutine"
	httpHandlers "github.com/ignatzorin/marketplace-backend/internal/http/handlers"
	httpRouter "github.com/ignatzorin/marketplace-backend/internal/http/router"
	"github.com/ignatzorin/marketplace-backend/internal/logger"
	"github.com/ignatzorin/marketplace-backend/internal/repository"
	"github.com/ignatzorin/marketplace-backend/internal/scheduler"
	"github.com/ignatzorin/marketplace-backend/internal/service"
	"github.com/ignatzorin/marketplace-backend/internal/storage"
	"github.com/ignatzorin/marketplace-backend/internal/webhook"
	"github.com/ignatzorin/marketplace-backend/internal/ws"
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	// Инициализация логгера
	logLevel := "info"
	if cfg.Env == "development" {
		logLevel = "debug"
		logger.Init(logLevel)
		logger.SetTextFormatter()
	} else {
		logger.Init(logLevel)
	}

	// Подключение к базе и миграции.
	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("main: ошибка подключения к базе: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		log.Fatalf("main: ошибка миграций: %v", err)
	}

	// Инициализируем вспомогательные сервисы.
	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.RefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	fileStorage, err := storage.NewFileStorage(cfg.FileStoragePath, cfg.MaxUploadSizeMB)
	if err != nil {
		log.Fatalf("main: не удалось подготовить файловое хранилище: %v", err)
	}

	// Репозитории.
	userRepo := repository.NewUserRepository(dbConn)
	walletRepo := repository.NewWalletRepository(dbConn)
	orderRepo := repository.NewOrderRepository(dbConn)

	// Сервисы.
	authService := service.NewAuthService(userRepo, tokenManager)
	walletService := service.NewWalletService(walletRepo)
	orderService := service.NewOrderService(orderRepo, cfg.AcceptanceWindow, cfg.ReviewPeriod, cfg.AutoRelease)

	// Вебсокеты.
	hub := ws.NewHub()
	go hub.Run()
	orderService.SetHub(hub)

	// Внешние события.
	if cfg.WebhookURL != "" {
		orderService.SetWebhooks(webhook.NewNotifier(cfg.WebhookURL))
	}

	// Планировщик дедлайнов: отмена непринятых заказов и автозавершение.
	sweeper := scheduler.NewSweeper(orderService, cfg.SweepInterval)
	goroutine.SafeGoWithContext(ctx, sweeper.Run)

	// HTTP хэндлеры.
	authHandler := httpHandlers.NewAuthHandler(authService)
	walletHandler := httpHandlers.NewWalletHandler(walletService)
	orderHandler := httpHandlers.NewOrderHandler(orderService, fileStorage)
	disputeHandler := httpHandlers.NewDisputeHandler(orderService)
	wsHandler := httpHandlers.NewWSHandler(hub, tokenManager)
	healthHandler := httpHandlers.NewHealthHandler(dbConn)

	// Роутер.
	engine := httpRouter.SetupRouter(cfg, authHandler, walletHandler, orderHandler, disputeHandler, wsHandler, healthHandler, tokenManager)

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: engine,
	}

	// Завершаем сервер при получении сигнала.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("main: ошибка остановки http сервера: %v", err)
		}
	}()

	log.Printf("main: HTTP сервер запущен на порту %s", cfg.HTTPPort)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("main: сервер завершился с ошибкой: %v", err)
	}
}

// safeClose закрывает соединение с базой.
func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		log.Printf("main: ошибка закрытия базы: %v", err)
	}
}
