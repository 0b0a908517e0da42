package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/triarb/triarb-api/internal/auth"
	"github.com/triarb/triarb-api/internal/config"
	"github.com/triarb/triarb-api/internal/database"
	"github.com/triarb/triarb-api/internal/engine"
	"github.com/triarb/triarb-api/internal/events"
	"github.com/triarb/triarb-api/internal/exchange"
	"github.com/triarb/triarb-api/internal/rules"
	"github.com/triarb/triarb-api/internal/scanner"
	"github.com/triarb/triarb-api/internal/types"
	"github.com/triarb/triarb-api/internal/wallet"
	"github.com/triarb/triarb-api/internal/ws"
	"github.com/triarb/triarb-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the arbitrage API server with graceful shutdown
// support. It sets up the database, simulated exchange gateways, all services
// and the API routes.
func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Event bus feeding the websocket hub
	bus := events.NewBus()

	// Register simulated exchange gateways, each seeded with its own quote set
	registry := exchange.NewRegistry()
	for _, name := range cfg.Exchange.Names {
		gw := exchange.NewSimulated(exchange.SimulatedConfig{
			Name:            name,
			MinLatency:      cfg.Exchange.MinLatencyMS,
			MaxLatency:      cfg.Exchange.MaxLatencyMS,
			SuccessRate:     cfg.Exchange.SuccessRate,
			LiquidityFactor: cfg.Exchange.LiquidityFactor,
			FeeRate:         cfg.Exchange.FeeRate,
		}, seedTickers(name))
		registry.Register(gw)
	}

	// Initialize services and handlers
	walletService := wallet.NewService(db, bus)
	walletHandlers := wallet.NewGinHandlers(walletService)

	authService := auth.NewService(db, cfg.Auth.JWTSecret, walletService)
	authHandlers := auth.NewGinHandlers(authService)

	catalog, err := rules.NewCatalog(db)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize pair rule catalog")
	}
	rulesHandlers := rules.NewGinHandlers(catalog)

	defaultStartAmount, err := decimal.NewFromString(cfg.Trading.DefaultStartAmount)
	if err != nil {
		zlog.Fatal().Err(err).Str("value", cfg.Trading.DefaultStartAmount).Msg("Invalid default start amount")
	}

	scannerService := scanner.NewService(registry)
	scannerHandlers := scanner.NewGinHandlers(scannerService, cfg.Trading.BaseCoin, defaultStartAmount)

	tradingEngine := engine.NewEngine(db, catalog, registry, walletService, bus, engine.Config{
		DepthLimit:        cfg.Trading.DepthLimit,
		SlippageTolerance: decimal.RequireFromString(cfg.Trading.SlippageTolerance),
		CommissionRate:    decimal.RequireFromString(cfg.Trading.CommissionRate),
	})
	engineHandlers := engine.NewGinHandlers(tradingEngine)

	// Background workers
	processorCtx, processorCancel := context.WithCancel(context.Background())
	defer processorCancel()

	depositProcessor := wallet.NewProcessor(walletService)
	go depositProcessor.Start(processorCtx)

	hub := ws.NewHub(bus)
	go hub.Run(processorCtx)

	// Initialize router
	router := gin.Default()
	router.Use(middleware.RateLimit())

	setupRoutes(router, cfg.Auth.JWTSecret, authHandlers, scannerHandlers, engineHandlers, walletHandlers, rulesHandlers, hub)

	// Create server
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers
// It groups routes by functionality and applies appropriate middleware:
// - Auth routes: Public endpoints for registration and token issuance
// - Scan and trade routes: Protected by JWT authentication
// - Wallet routes: Protected by JWT authentication
// - Internal routes: Deposit confirmation and rule management for operators
func setupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authHandlers *auth.GinHandlers,
	scannerHandlers *scanner.GinHandlers,
	engineHandlers *engine.GinHandlers,
	walletHandlers *wallet.GinHandlers,
	rulesHandlers *rules.GinHandlers,
	hub *ws.Hub,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandlers.RegisterHandler())
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Opportunity scanning
		scan := v1.Group("/scan")
		scan.Use(middleware.JWTAuth(jwtSecret))
		{
			scan.GET("", scannerHandlers.ScanHandler())
		}

		// Trade execution and history
		trades := v1.Group("/trades")
		trades.Use(middleware.JWTAuth(jwtSecret))
		{
			trades.POST("", engineHandlers.ExecuteTradeHandler())
			trades.GET("", engineHandlers.ListAttemptsHandler())
			trades.GET("/:attempt_id", engineHandlers.GetAttemptHandler())
		}

		// Wallet and deposits
		walletGroup := v1.Group("/wallet")
		walletGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			walletGroup.GET("", walletHandlers.GetWalletHandler())
			walletGroup.GET("/transactions", walletHandlers.GetTransactionsHandler())
			walletGroup.POST("/deposits", walletHandlers.CreateDepositHandler())
			walletGroup.GET("/deposits", walletHandlers.ListDepositsHandler())
			walletGroup.POST("/deposits/:deposit_id/sent", walletHandlers.MarkDepositSentHandler())
		}

		// Event stream
		stream := v1.Group("/ws")
		stream.Use(middleware.JWTAuth(jwtSecret))
		{
			stream.GET("", hub.HandleWS)
		}

		// Internal routes (should be protected by internal network)
		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth(jwtSecret))
		{
			internal.POST("/deposits/:deposit_id/confirm", walletHandlers.ConfirmDepositHandler())
			internal.POST("/deposits/:deposit_id/reject", walletHandlers.RejectDepositHandler())
			internal.PUT("/rules/:exchange", rulesHandlers.ReplaceRulesHandler())
			internal.GET("/rules/:exchange/:pair", rulesHandlers.GetRuleHandler())
		}
	}
}

// seedTickers returns the startup quote set for a simulated exchange. Each
// exchange gets slightly different prices so cross-exchange scans surface
// different cycles; the bybit set is skewed to leave a small triangular edge.
func seedTickers(name string) types.TickerSnapshot {
	quote := func(symbol, bid, ask string) types.TickerQuote {
		return types.TickerQuote{
			Symbol: symbol,
			Bid:    decimal.RequireFromString(bid),
			Ask:    decimal.RequireFromString(ask),
		}
	}

	switch name {
	case "bybit":
		return types.TickerSnapshot{
			"BTCUSDT": quote("BTCUSDT", "30010.00", "30012.00"),
			"ETHUSDT": quote("ETHUSDT", "2077.00", "2077.50"),
			"ETHBTC":  quote("ETHBTC", "0.06890", "0.06895"),
			"SOLUSDT": quote("SOLUSDT", "98.40", "98.45"),
			"SOLBTC":  quote("SOLBTC", "0.003275", "0.003278"),
		}
	default:
		return types.TickerSnapshot{
			"BTCUSDT": quote("BTCUSDT", "30000.00", "30001.00"),
			"ETHUSDT": quote("ETHUSDT", "2070.00", "2071.00"),
			"ETHBTC":  quote("ETHBTC", "0.06900", "0.06910"),
			"SOLUSDT": quote("SOLUSDT", "98.50", "98.55"),
			"SOLBTC":  quote("SOLBTC", "0.003280", "0.003283"),
		}
	}
}
