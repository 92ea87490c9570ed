package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/panjf2000/ants/v2"

	"github.com/pesabridge/payment-broker/internal/api"
	"github.com/pesabridge/payment-broker/internal/api/service"
	"github.com/pesabridge/payment-broker/internal/config"
	"github.com/pesabridge/payment-broker/internal/data/memory"
	"github.com/pesabridge/payment-broker/internal/data/mongo"
	"github.com/pesabridge/payment-broker/internal/data/postgres"
	"github.com/pesabridge/payment-broker/internal/domain/transaction"
	"github.com/pesabridge/payment-broker/internal/gateway"
	"github.com/pesabridge/payment-broker/internal/logger"
	"github.com/pesabridge/payment-broker/internal/platform/messaging/producers"
	"github.com/pesabridge/payment-broker/internal/platform/persistence"
	"github.com/pesabridge/payment-broker/internal/reconciler"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("broker")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	log.Info("Starting Payment Broker",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
		"store_driver", cfg.Store.Driver,
	)

	// Initialize the transaction store
	var store transaction.Store
	var postgresDB *persistence.PostgresDB
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		postgresDB, err = persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
		if err != nil {
			log.Error("Failed to initialize PostgreSQL", "error", err)
			os.Exit(1)
		}
		store = postgres.NewTransactionStore(log, postgresDB.Pool())
	default:
		log.Warn("Using in-memory transaction store, records are lost on restart")
		store = memory.NewTransactionStore()
	}

	// Initialize the audit archive when configured
	var mongoDB *persistence.MongoDB
	var auditRepo transaction.AuditRepository
	if cfg.MongoDB.URI != "" {
		mongoDB, err = persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
		if err != nil {
			log.Error("Failed to initialize MongoDB", "error", err)
			os.Exit(1)
		}
		auditRepo = mongo.NewAuditRepository(log, mongoDB.Database())
	}

	// Initialize the unmatched-webhook producer. It is nil when no topic is
	// configured; the interface stays nil too so the engine's nil check holds.
	unmatchedProducer, err := producers.NewUnmatchedWebhookProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize unmatched-webhook Kafka producer", "error", err)
		os.Exit(1)
	}
	var unmatchedPublisher producers.UnmatchedPublisher
	if unmatchedProducer != nil {
		unmatchedPublisher = unmatchedProducer
	}

	// Initialize the gateway client and the status-query worker pool
	gatewayClient := gateway.NewClient(log, &cfg.Gateway)

	workerPool, err := ants.NewPool(cfg.WorkerPool.Size)
	if err != nil {
		log.Error("Failed to initialize worker pool", "error", err)
		os.Exit(1)
	}

	// Initialize reconciliation components
	engine := reconciler.NewEngine(log, store, auditRepo, unmatchedPublisher)
	poller := reconciler.NewPoller(log, &cfg.Reconciler, store, gatewayClient, engine, workerPool)
	sweeper := reconciler.NewSweeper(log, &cfg.Reconciler, store, engine)

	// Initialize the payment service and REST server
	paymentService := service.NewPaymentService(log, &cfg.Gateway, store, auditRepo, gatewayClient, poller, engine)
	server := api.NewServer(log, cfg, paymentService)

	// Create error channel for server errors
	errChan := make(chan error, 1)

	// Create wait group for the background workers
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Start(appCtx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Start(appCtx)
	}()

	// Start server in goroutine
	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	// Cancel the application context so the poller and sweeper stop
	cancelAppCtx()

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	// Graceful shutdown sequence
	log.Info("Starting graceful shutdown...")

	// Shutdown HTTP server first so no new work arrives
	if err = server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
	}

	// Wait for the poller and sweeper to drain
	wgChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(wgChan)
	}()

	select {
	case <-wgChan:
		log.Info("Background workers stopped")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout reached, forcing exit")
	}

	workerPool.Release()

	// unmatchedProducer can be nil when no topic was configured
	if unmatchedProducer != nil {
		if err = unmatchedProducer.Close(); err != nil {
			log.Error("Error closing unmatched-webhook Kafka producer", "error", err)
		}
	}

	// Shutdown postgres connection pool
	if postgresDB != nil {
		postgresDB.Close()
	}

	// Close MongoDB connection
	if mongoDB != nil {
		if err = mongoDB.Close(shutdownCtx); err != nil {
			log.Error("Error closing MongoDB connection", "error", err)
		}
	}

	// Final status
	if serverErr != nil {
		log.Error("Payment Broker shutdown with errors", "error", serverErr)
	}
	if err != nil {
		log.Error("Payment Broker shutdown completed with errors")
	} else {
		log.Info("Payment Broker shutdown completed successfully")
	}
}
