package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/medflow/payroll-backend/internal/payroll/client"
	"github.com/medflow/payroll-backend/internal/payroll/consumers"
	"github.com/medflow/payroll-backend/internal/payroll/events"
	"github.com/medflow/payroll-backend/internal/payroll/handler"
	"github.com/medflow/payroll-backend/internal/payroll/repository"
	"github.com/medflow/payroll-backend/internal/payroll/service"
	"github.com/medflow/payroll-backend/pkg/auth"
	"github.com/medflow/payroll-backend/pkg/clock"
	"github.com/medflow/payroll-backend/pkg/config"
	"github.com/medflow/payroll-backend/pkg/database"
	"github.com/medflow/payroll-backend/pkg/httputil"
	"github.com/medflow/payroll-backend/pkg/logger"
	"github.com/medflow/payroll-backend/pkg/messaging"
)

const serviceName = "payroll-service"

func main() {
	// Load configuration
	cfg, err := config.LoadWithValidation(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(serviceName, cfg.Server.Environment, cfg.Log.Level)
	log.Info().Msg("starting Payroll Service")

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	db.SetMaxRetries(cfg.Payroll.TxMaxRetries)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Database.AutoMigrate {
		if _, err := db.ExecContext(ctx, repository.Schema); err != nil {
			log.Fatal().Err(err).Msg("failed to apply schema")
		}
	}

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	if err := rmq.DeclareDeadLetterQueue(serviceName); err != nil {
		log.Fatal().Err(err).Msg("failed to declare dead letter queue")
	}

	// Initialize event publisher
	publisher, err := events.NewPayrollEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}

	// Initialize repositories
	advanceRepo := repository.NewAdvanceRepository(db)
	repaymentRepo := repository.NewRepaymentRepository(db)
	payslipRepo := repository.NewPayslipRepository(db)
	bonusRepo := repository.NewBonusRepository(db)

	staffClient := client.NewStaffClient(cfg.Services.StaffServiceURL, cfg.Services.Timeout, log)
	clk := clock.Real{}

	// Initialize services
	ledger := service.NewLedger(db, advanceRepo, repaymentRepo, publisher, clk, log)
	advanceService := service.NewAdvanceService(
		db, advanceRepo, repaymentRepo, staffClient, publisher, clk,
		service.AdvancePolicy{
			CapRatio:           cfg.Payroll.CapRatio(),
			MaxRepaymentMonths: cfg.Payroll.MaxRepaymentMonths,
		},
		log,
	)
	payslipService := service.NewPayslipService(
		db, payslipRepo, bonusRepo, advanceRepo, ledger, staffClient, publisher, clk, log,
	)

	// Initialize handlers
	advanceHandler := handler.NewAdvanceHandler(advanceService, ledger, log)
	payslipHandler := handler.NewPayslipHandler(payslipService, log)

	// Start bonus event consumer
	bonusConsumer, err := consumers.NewBonusEventConsumer(rmq, bonusRepo, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create bonus event consumer")
	}
	if err := bonusConsumer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start bonus event consumer")
	}

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  serviceName,
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	// API routes
	r.Route("/api/v1/payroll", func(r chi.Router) {
		r.Use(httputil.Authenticate(auth.NewValidator(&cfg.JWT), cfg.Server.TrustGateway))
		handler.Routes(r, advanceHandler, payslipHandler)
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Cancel context to stop consumers
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
