// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"cobranza/internal/domain/allocation"
	"cobranza/internal/domain/ledger"
	"cobranza/internal/domain/receipt"
	"cobranza/internal/infrastructure/http/v1/handlers"
	"cobranza/internal/infrastructure/http/v1/middleware"
	"cobranza/internal/infrastructure/storage/postgres"
	"cobranza/pkg/logger"
)

// RouterConfig holds everything the router wires together.
type RouterConfig struct {
	Pool   *postgres.Pool
	Logger *logger.Logger

	LedgerService *ledger.Service
	LedgerQuery   *ledger.QueryService
	Engine        *allocation.Engine
	Receipts      *receipt.Service
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.Pool)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	ledgerHandler := handlers.NewLedgerHandler(cfg.LedgerService, cfg.LedgerQuery)
	allocationHandler := handlers.NewAllocationHandler(cfg.Engine)
	receiptHandler := handlers.NewReceiptHandler(cfg.Receipts)

	api := router.Group("/api/v1")
	{
		ledgerGroup := api.Group("/ledger")
		{
			ledgerGroup.PUT("/mirrors", ledgerHandler.UpsertMirror)
			ledgerGroup.POST("/mirrors/void", ledgerHandler.VoidMirror)
			ledgerGroup.GET("/documents", ledgerHandler.List)
			ledgerGroup.GET("/documents/:id", ledgerHandler.Get)
			ledgerGroup.GET("/parties/:type/:id/balance", ledgerHandler.Balance)
			ledgerGroup.GET("/parties/:type/:id/selectables", ledgerHandler.Selectables)
			ledgerGroup.GET("/parties/:type/:id/credits", ledgerHandler.AvailableCredits)
		}

		allocationGroup := api.Group("/allocations")
		{
			allocationGroup.POST("", allocationHandler.Allocate)
			allocationGroup.DELETE("/:id", allocationHandler.Deallocate)
			allocationGroup.GET("/document/:id", allocationHandler.ListByDocument)
			allocationGroup.POST("/preview", allocationHandler.Preview)
			allocationGroup.POST("/execute", allocationHandler.Execute)
			allocationGroup.POST("/cover", allocationHandler.Cover)
			allocationGroup.POST("/apply-credits", allocationHandler.ApplyCredits)
			allocationGroup.GET("/batches/:id", allocationHandler.GetBatch)
		}

		receiptGroup := api.Group("/receipts")
		{
			receiptGroup.POST("", receiptHandler.Create)
			receiptGroup.GET("", receiptHandler.List)
			receiptGroup.GET("/:id", receiptHandler.Get)
			receiptGroup.POST("/:id/void", receiptHandler.Void)
			receiptGroup.POST("/:id/allocations", receiptHandler.Allocate)
			receiptGroup.DELETE("/allocations/:allocId", receiptHandler.Deallocate)
		}
	}

	return router
}
