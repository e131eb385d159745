package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"hydrogen-ledger/credit-portal/credit-portal-backend/internal/anchor"
	"hydrogen-ledger/credit-portal/credit-portal-backend/internal/auth"
	"hydrogen-ledger/credit-portal/credit-portal-backend/internal/certificates"
	"hydrogen-ledger/credit-portal/credit-portal-backend/internal/config"
	"hydrogen-ledger/credit-portal/credit-portal-backend/internal/credits"
	"hydrogen-ledger/credit-portal/credit-portal-backend/internal/marketplace"
	"hydrogen-ledger/credit-portal/credit-portal-backend/internal/notifications"
	"hydrogen-ledger/credit-portal/credit-portal-backend/internal/notifications/websocket"
	"hydrogen-ledger/credit-portal/credit-portal-backend/internal/reports"
	"hydrogen-ledger/credit-portal/credit-portal-backend/internal/settings"
	"hydrogen-ledger/credit-portal/credit-portal-backend/pkg/storage"
)

func main() {
	// Local overrides; absent in deployed environments.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	logger := newLogger(cfg.Logging.Level)
	defer logger.Sync()

	// Connect to database
	dbURL := cfg.Database.GetDatabaseURL()
	db, err := sqlx.Connect("postgres", dbURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.MaxConnections > 0 {
		db.SetMaxOpenConns(cfg.Database.MaxConnections)
	}
	if cfg.Database.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	}
	if cfg.Database.MaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.Database.MaxLifetime)
	}

	// gorm shares the connection pool; it owns user accounts and schema
	// migration for the gorm-tagged models.
	gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		logger.Fatal("Failed to initialize ORM", zap.Error(err))
	}
	if err := gormDB.AutoMigrate(&auth.User{}, &credits.Credit{}, &credits.Transaction{}, &settings.Preferences{}); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Storage for retirement certificates
	var storageClient storage.Client
	if cfg.Storage.Bucket != "" {
		storageClient, err = storage.NewS3Client(context.Background(), cfg.Storage.Bucket, cfg.Storage.Region)
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	} else {
		logger.Warn("No storage bucket configured, certificates kept in memory")
		storageClient = storage.NewMemoryClient(cfg.Storage.PublicURL)
	}

	// Wire services
	wsManager := websocket.NewManager(logger)
	defer wsManager.Close()

	publisher := notifications.NewService(wsManager, logger)
	store := credits.NewPostgresStore(db)
	anchorClient := anchor.NewClient(cfg.Anchor, logger)
	certGenerator := certificates.NewGenerator(storageClient, logger)

	creditsService := credits.NewService(store, anchorClient, publisher, logger)
	marketplaceService := marketplace.NewService(store, publisher, certGenerator, logger, marketplace.Options{
		Privileged:   true,
		StoreTimeout: cfg.Database.StoreTimeout,
	})
	reportsService := reports.NewService(store, logger)

	userRepo := auth.NewGormUserRepository(gormDB)
	authService := auth.NewService(userRepo, cfg.Security.JWTSecret, cfg.Security.TokenTTL, logger)

	// Setup router
	router := gin.Default()
	router.Use(corsMiddleware())

	auth.NewHandler(authService).RegisterRoutes(router)

	api := router.Group("/api/v1")
	api.Use(authService.RequireAuth())
	{
		credits.NewHandler(creditsService).RegisterRoutes(api, authService.RequireCapability)
		marketplace.NewHandler(marketplaceService).RegisterRoutes(api, authService.RequireCapability)
		reports.NewHandler(reportsService).RegisterRoutes(api, authService.RequireCapability)
		settings.NewHandler(settings.NewService(gormDB)).RegisterRoutes(api)
	}

	router.GET("/ws", authService.RequireAuth(), func(c *gin.Context) {
		userID, _ := auth.UserID(c)
		if _, err := wsManager.HandleConnection(c.Writer, c.Request, userID.String()); err != nil {
			logger.Warn("Websocket upgrade failed", zap.Error(err))
		}
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "healthy",
			"connections": wsManager.ConnectionCount(),
			"timestamp":   time.Now(),
		})
	})

	// Start server
	srv := &http.Server{
		Addr:         cfg.Server.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("addr", srv.Addr))

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exiting")
}

func newLogger(level string) *zap.Logger {
	var cfg zap.Config
	if os.Getenv("GIN_MODE") == "release" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	if parsed, err := zap.ParseAtomicLevel(level); err == nil {
		cfg.Level = parsed
	}
	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
