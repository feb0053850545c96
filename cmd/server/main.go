package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/tourlink/marketplace-backend/internal/catalog"
	"github.com/tourlink/marketplace-backend/internal/config"
	"github.com/tourlink/marketplace-backend/internal/database"
	"github.com/tourlink/marketplace-backend/internal/handlers"
	"github.com/tourlink/marketplace-backend/internal/metrics"
	"github.com/tourlink/marketplace-backend/internal/middleware"
	"github.com/tourlink/marketplace-backend/internal/models"
	"github.com/tourlink/marketplace-backend/internal/services"
	"github.com/tourlink/marketplace-backend/pkg/events"
	"github.com/tourlink/marketplace-backend/pkg/jwt"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting tour marketplace backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Connect to database
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	// Repositories
	tourRepo := database.NewTourRepository(db.DB)
	bookingRepo := database.NewBookingRepository(db.DB)
	agencyRepo := database.NewAgencyRepository(db.DB)
	ledgerRepo := database.NewPaymentLedgerRepository(db.DB, logger)
	auditRepo := database.NewPaymentAuditRepository(db.DB, logger)

	var plans services.PlanCatalog = database.NewPlanRepository(db.DB)
	if cfg.Catalog.PlanFile != "" {
		fileCatalog, err := catalog.LoadFile(cfg.Catalog.PlanFile)
		if err != nil {
			logger.Fatalf("Failed to load plan catalog: %v", err)
		}
		plans = fileCatalog
		logger.WithField("file", cfg.Catalog.PlanFile).Info("Using plan catalog file")
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(registry)

	// Domain events
	var publisher events.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher, err := events.NewKafkaPublisher(events.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			Compression:  cfg.Kafka.Compression,
			BatchTimeout: cfg.Kafka.BatchTimeout,
			MaxAttempts:  cfg.Kafka.MaxAttempts,
		}, logger)
		if err != nil {
			logger.Fatalf("Failed to create Kafka publisher: %v", err)
		}
		publisher = kafkaPublisher
		logger.WithField("topic", cfg.Kafka.Topic).Info("Publishing domain events to Kafka")
	} else {
		publisher = events.NewLogPublisher(logger)
		logger.Info("KAFKA_BROKERS not set, domain events are only logged")
	}
	defer publisher.Close()

	// Idempotency cache
	var idempotencyStore middleware.IdempotencyStore
	if cfg.Redis.URL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		redisStore, err := middleware.NewRedisIdempotencyStore(ctx, cfg.Redis.URL)
		cancel()
		if err != nil {
			logger.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisStore.Close()
		idempotencyStore = redisStore
		logger.Info("Idempotency keys stored in Redis")
	} else {
		idempotencyStore = middleware.NewMemoryIdempotencyStore()
		logger.Warn("REDIS_URL not set, idempotency keys are kept in memory (single instance only)")
	}

	// Services
	logger.Info("Initializing services...")
	clock := services.SystemClock
	bookingService := services.NewBookingService(tourRepo, bookingRepo, agencyRepo, publisher, m, clock,
		services.BookingServiceConfig{
			MaxPartySize: cfg.Booking.MaxPartySize,
			Location:     cfg.Location(),
		}, logger)
	paymentService := services.NewPaymentService(bookingRepo, tourRepo, agencyRepo, plans, ledgerRepo, auditRepo,
		services.NewStaticRateProvider(cfg.Payment.ExchangeRates), publisher, m, clock,
		services.PaymentServiceConfig{AmountTolerance: cfg.Payment.AmountTolerance}, logger)
	listingService := services.NewListingService(tourRepo, plans, clock, logger)

	cronService := services.NewCronService(cfg.Cron.ReconciliationSchedule, auditRepo, m, logger)
	if err := cronService.Start(); err != nil {
		logger.Fatalf("Failed to start cron service: %v", err)
	}
	logger.Info("Services initialized")

	// Handlers
	if err := handlers.RegisterValidators(); err != nil {
		logger.Fatalf("Failed to register validators: %v", err)
	}
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)
	bookingHandler := handlers.NewBookingHandler(bookingService, logger)
	paymentHandler := handlers.NewPaymentHandler(paymentService, logger)
	listingHandler := handlers.NewListingHandler(listingService, logger)
	adminHandler := handlers.NewAdminHandler(paymentService, logger)

	// Initialize Gin router
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger, m))

	// CORS configuration
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length", "Idempotent-Replayed"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	// Health check and metrics
	router.GET("/health", healthCheckHandler(db))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	idempotent := middleware.Idempotency(idempotencyStore, cfg.Redis.IdempotencyTTL, logger)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Public catalog
		v1.GET("/tours", listingHandler.ListTours)
		v1.GET("/plans", listingHandler.ListPlans)

		authenticated := v1.Group("")
		authenticated.Use(middleware.AuthMiddleware(jwtService))

		bookings := authenticated.Group("/bookings")
		{
			bookings.POST("", middleware.RequireRole(models.RoleUser, models.RoleAdmin), idempotent, bookingHandler.CreateBooking)
			bookings.GET("/:id", bookingHandler.GetBooking)
			bookings.GET("/:id/history", bookingHandler.GetHistory)
			bookings.PATCH("/:id/status", middleware.RequireRole(models.RoleAgency, models.RoleAdmin), bookingHandler.UpdateStatus)
			bookings.PATCH("/:id/payment-status", middleware.RequireRole(models.RoleAgency, models.RoleAdmin), bookingHandler.UpdatePaymentStatus)
			bookings.PUT("/:id/receipt", middleware.RequireRole(models.RoleUser), bookingHandler.AttachReceipt)
		}

		payments := authenticated.Group("/payments")
		{
			payments.POST("/verify", idempotent, paymentHandler.VerifyPayment)
		}

		admin := authenticated.Group("/admin")
		admin.Use(middleware.RequireRole(models.RoleAdmin))
		{
			admin.GET("/payments/mismatches", adminHandler.ListMismatches)
			admin.POST("/payments/mismatches/:id/resolve", adminHandler.ResolveMismatch)
			admin.GET("/jobs", func(c *gin.Context) {
				c.JSON(http.StatusOK, cronService.GetJobStatus())
			})
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	cronService.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}

// requestLogger logs every request and records its latency
func requestLogger(logger *logrus.Logger, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, route, fmt.Sprint(status)).Observe(latency.Seconds())

		fields := logrus.Fields{
			"method":     c.Request.Method,
			"path":       path,
			"query":      query,
			"status":     status,
			"latency_ms": latency.Milliseconds(),
			"client_ip":  c.ClientIP(),
		}
		if actor, ok := middleware.GetActor(c); ok {
			fields["user_id"] = actor.UserID
			fields["role"] = actor.Role
		}

		entry := logger.WithFields(fields)
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}
		switch {
		case status >= 500:
			entry.Error("Request completed with server error")
		case status >= 400:
			entry.Warn("Request completed with client error")
		default:
			entry.Info("Request completed successfully")
		}
	}
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(db database.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  "healthy",
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}
