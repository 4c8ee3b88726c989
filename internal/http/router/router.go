package router

import (
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/marketplace-backend/internal/config"
	"github.com/ignatzorin/marketplace-backend/internal/http/handlers"
	"github.com/ignatzorin/marketplace-backend/internal/http/middleware"
	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/service"
)

// SetupRouter собирает маршруты приложения.
func SetupRouter(
	cfg *config.Config,
	authHandler *handlers.AuthHandler,
	walletHandler *handlers.WalletHandler,
	orderHandler *handlers.OrderHandler,
	disputeHandler *handlers.DisputeHandler,
	wsHandler *handlers.WSHandler,
	healthHandler *handlers.HealthHandler,
	tokenManager *service.TokenManager,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", healthHandler.Health)

	api := r.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimitMiddleware(5, cfg.RateLimitPeriod))
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
	}

	api.GET("/ws", wsHandler.Handle)

	// Защищённые маршруты
	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(tokenManager))
	protected.Use(middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod))
	{
		protected.GET("/wallet/balance", walletHandler.Balance)
		protected.POST("/wallet/deposit", walletHandler.Deposit)
		protected.POST("/wallet/withdraw", walletHandler.Withdraw)
		protected.GET("/wallet/transactions", walletHandler.Transactions)

		protected.POST("/orders", orderHandler.Create)
		protected.GET("/orders/my", orderHandler.My)
		protected.GET("/orders/:id", middleware.UUIDValidator("id"), orderHandler.Get)
		protected.POST("/orders/:id/accept", middleware.UUIDValidator("id"), orderHandler.Accept)
		protected.POST("/orders/:id/decline", middleware.UUIDValidator("id"), orderHandler.Decline)
		protected.POST("/orders/:id/cancel", middleware.UUIDValidator("id"), orderHandler.Cancel)
		protected.POST("/orders/:id/start", middleware.UUIDValidator("id"), orderHandler.Start)
		protected.POST("/orders/:id/delivery", middleware.UUIDValidator("id"), orderHandler.SubmitDelivery)
		protected.POST("/orders/:id/files", middleware.UUIDValidator("id"), orderHandler.UploadDeliveryFile)
		protected.POST("/orders/:id/release", middleware.UUIDValidator("id"), orderHandler.Release)
		protected.PATCH("/orders/:id/requirements", middleware.UUIDValidator("id"), orderHandler.UpdateRequirements)
		protected.GET("/orders/:id/messages", middleware.UUIDValidator("id"), orderHandler.ListMessages)
		protected.POST("/orders/:id/messages", middleware.UUIDValidator("id"), orderHandler.PostMessage)

		protected.POST("/orders/:id/dispute", middleware.UUIDValidator("id"), disputeHandler.Open)
		protected.GET("/orders/:id/dispute", middleware.UUIDValidator("id"), disputeHandler.Get)
		protected.POST("/orders/:id/dispute/evidence", middleware.UUIDValidator("id"), disputeHandler.AddEvidence)
	}

	// Администраторские маршруты
	admin := api.Group("/admin")
	admin.Use(middleware.AuthMiddleware(tokenManager))
	admin.Use(middleware.RequireRole(models.RoleAdmin))
	{
		admin.GET("/orders", orderHandler.AdminList)
		admin.GET("/disputes", disputeHandler.AdminList)
		admin.POST("/disputes/:id/resolve", middleware.UUIDValidator("id"), disputeHandler.Resolve)
	}

	return r
}
