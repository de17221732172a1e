package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"nihao-carbon/carbon-trading/trading-backend/internal/activity"
	"nihao-carbon/carbon-trading/trading-backend/internal/admin"
	"nihao-carbon/carbon-trading/trading-backend/internal/auth"
	"nihao-carbon/carbon-trading/trading-backend/internal/config"
	"nihao-carbon/carbon-trading/trading-backend/internal/kyc"
	"nihao-carbon/carbon-trading/trading-backend/internal/market"
	"nihao-carbon/carbon-trading/trading-backend/internal/portfolio"
	"nihao-carbon/carbon-trading/trading-backend/internal/pricefeed"
	"nihao-carbon/carbon-trading/trading-backend/internal/reports"
	"nihao-carbon/carbon-trading/trading-backend/internal/stats"
	"nihao-carbon/carbon-trading/trading-backend/internal/ticker"
	"nihao-carbon/carbon-trading/trading-backend/pkg/storage"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	cfg, err := config.LoadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.GetDatabaseURL()), &gorm.Config{})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := db.AutoMigrate(
		&kyc.User{},
		&kyc.Workflow{},
		&kyc.Document{},
		&activity.Entry{},
		&admin.AccessRequest{},
	); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	if err := portfolio.Migrate(db); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	// ---------------- DOCUMENT STORAGE ----------------
	var files storage.S3Client
	if cfg.Documents.UseLocal {
		files = storage.NewLocalS3Client()
	} else {
		files, err = storage.NewS3Client(context.Background())
		if err != nil {
			logger.Fatal("Failed to initialize S3 client", zap.Error(err))
		}
	}

	// ---------------- PRICE FEED ----------------
	ceaClient := pricefeed.NewClient(pricefeed.SpecCEA, cfg.PriceFeed.BaseURL, logger)
	euaClient := pricefeed.NewClient(pricefeed.SpecEUA, cfg.PriceFeed.BaseURL, logger)
	poller := pricefeed.NewPoller(ceaClient, euaClient, cfg.PriceFeed.MaxRetries, cfg.PriceFeed.RetryDelay, logger)

	// ---------------- MARKET ----------------
	store := market.NewStore()
	marketService := market.NewService(store, poller, logger)
	scheduler := market.NewScheduler(marketService, logger)

	// ---------------- WEBSOCKET TICKER ----------------
	hub := ticker.NewHub(logger)

	poller.AddListener(func(instrument pricefeed.Instrument, quote pricefeed.Quote) {
		marketService.ReconcileNow()
		hub.Publish(ticker.PriceUpdate{
			Instrument: string(instrument),
			Price:      quote.Price,
			Change24h:  quote.Change24h,
			Timestamp:  quote.Timestamp,
		})
	})

	if err := poller.Start(cfg.PriceFeed.PollInterval); err != nil {
		logger.Fatal("Failed to start price poller", zap.Error(err))
	}
	defer poller.Stop()

	if err := scheduler.Start(cfg.Market.ReconcileInterval, cfg.Market.LivelinessInterval); err != nil {
		logger.Fatal("Failed to start market scheduler", zap.Error(err))
	}
	defer scheduler.Stop()

	// ---------------- ACTIVITY ----------------
	activityRepo := activity.NewRepository(db)
	activityService := activity.NewService(activityRepo, logger)
	activityHandler := activity.NewHandler(activityService)

	// ---------------- PORTFOLIO ----------------
	portfolioRepo := portfolio.NewRepository(db)
	portfolioService := portfolio.NewService(portfolioRepo, store, activityService, logger)
	portfolioHandler := portfolio.NewHandler(portfolioService)
	if err := portfolioService.StartScanner(cfg.Market.ConversionInterval); err != nil {
		logger.Fatal("Failed to start conversion scanner", zap.Error(err))
	}
	defer portfolioService.StopScanner()

	// ---------------- KYC ----------------
	kycRepo := kyc.NewRepository(db)
	kycService := kyc.NewService(kycRepo, files, cfg.Documents.Bucket, logger)
	kycHandler := kyc.NewHandler(kycService)

	// ---------------- STATISTICS ----------------
	aggregator := stats.NewAggregator(store, portfolioService, logger)
	defer aggregator.Stop()
	statsHandler := stats.NewHandler(aggregator)

	// ---------------- REPORTS ----------------
	reportsService := reports.NewService(portfolioService, logger)
	reportsHandler := reports.NewHandler(reportsService, logger)

	// ---------------- AUTH ----------------
	authService, err := auth.NewService(
		envOr("SEED_USERNAME", "Victor"),
		envOr("SEED_PASSWORD", "VictorVic"),
		cfg.Security.JWTSecret,
		true,
		logger,
	)
	if err != nil {
		logger.Fatal("Failed to initialize auth service", zap.Error(err))
	}
	authHandler := auth.NewHandler(authService)
	adminUserID := auth.DeriveUserID(envOr("SEED_USERNAME", "Victor"))

	// ---------------- ADMIN ----------------
	adminRepo := admin.NewRepository(db)
	adminService := admin.NewService(adminRepo, kycRepo, poller, admin.PlatformConfig{
		PlatformName:     envOr("PLATFORM_NAME", "Nihao Carbon Certificates"),
		ContactEmail:     envOr("CONTACT_EMAIL", "contact@nihao.com"),
		CacheDuration:    120,
		RateLimitPerDay:  200,
		RateLimitPerHour: 50,
	}, logger)
	adminHandler := admin.NewHandler(adminService, logger)

	// ---------------- ROUTER ----------------
	router := gin.Default()
	router.Use(corsMiddleware())

	auth.RegisterRoutes(router, authHandler)

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})

	ws := router.Group("/ws")
	ticker.RegisterRoutes(ws, ticker.NewHandler(hub, logger))

	api := router.Group("/api")
	api.Use(auth.Identity(authService))
	{
		marketGroup := api.Group("/market")
		market.RegisterRoutes(marketGroup, market.NewHandler(marketService))
		marketGroup.POST("/purchase", portfolioHandler.Purchase)

		pricefeed.RegisterRoutes(api.Group("/prices"), pricefeed.NewHandler(poller))
		portfolio.RegisterRoutes(api.Group("/portfolio"), portfolioHandler)
		activity.RegisterRoutes(api.Group("/activity"), activityHandler)
		kyc.RegisterRoutes(api.Group("/kyc"), kycHandler)
		stats.RegisterRoutes(api.Group("/stats"), statsHandler)
		reports.RegisterRoutes(api.Group("/reports"), reportsHandler)
		admin.RegisterPublicRoutes(api, adminHandler)

		adminGroup := api.Group("/admin")
		adminGroup.Use(auth.RequireAdmin(adminUserID))
		admin.RegisterAdminRoutes(adminGroup, adminHandler)
	}

	// ---------------- SERVER ----------------
	srv := &http.Server{
		Addr:         cfg.Server.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down")

	hub.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Forced shutdown", zap.Error(err))
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Authorization, X-User-ID, X-Admin-ID, Accept, Origin, Cache-Control")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
