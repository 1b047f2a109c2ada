package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openlots/gatekeeper/internal/config"
	"github.com/openlots/gatekeeper/internal/db"
	"github.com/openlots/gatekeeper/internal/gatekeeper/authority"
	"github.com/openlots/gatekeeper/internal/gatekeeper/service"
	"github.com/openlots/gatekeeper/internal/gatekeeper/store/sqlite"
	"github.com/openlots/gatekeeper/internal/httpapi"
)

func main() {
	cfg := config.FromEnv()
	logger := log.New(os.Stdout, "gatekeeper-server ", log.LstdFlags|log.LUTC)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(ctx, db.Config{Path: cfg.DBPath, Env: cfg.Env})
	if err != nil {
		logger.Fatalf("db open: %v", err)
	}
	defer conn.Close()

	if cfg.Env == "dev" {
		if err := db.SeedDev(ctx, conn, db.SeedDevOptions{
			LotID:      cfg.LotID,
			KnownGates: cfg.KnownGates,
		}); err != nil {
			logger.Fatalf("dev seed: %v", err)
		}
	}

	writer := db.NewWriter(conn)
	defer writer.Close()

	// Stores
	gateStore := sqlite.NewGateStore(conn, writer)
	eventStore := sqlite.NewGateEventStore(conn, writer)
	heartbeatStore := sqlite.NewHeartbeatStore(conn, writer)

	// Authority clients
	httpClient := &http.Client{}
	subs := authority.NewSubscriptionClient(cfg.SubscriptionURL, cfg.AuthorityTimeout, httpClient)
	payments := authority.NewPaymentClient(cfg.PaymentURL, cfg.AuthorityTimeout, httpClient)
	spaces := authority.NewSpaceClient(cfg.SpaceURL, cfg.AuthorityTimeout, httpClient)

	var eventLog authority.EventLogger
	if cfg.EventLogURL != "" {
		eventLog = authority.NewEventLogClient(cfg.EventLogURL, cfg.AuthorityTimeout, httpClient)
	}

	// Services
	tickets, err := service.NewTicketIssuer(cfg.NodeID)
	if err != nil {
		logger.Fatalf("ticket issuer: %v", err)
	}
	registry := service.NewGateRegistry(gateStore)
	engine := service.NewEngine(tickets)

	orchestrator := service.NewOrchestrator(service.OrchestratorDeps{
		Registry:      registry,
		Engine:        engine,
		Subscriptions: subs,
		Payments:      payments,
		Spaces:        spaces,
		EventLog:      eventLog,
		Events:        eventStore,
		Actuator:      &service.LogActuator{Logger: logger},
		LotID:         cfg.LotID,
		Deadline:      cfg.DecisionDeadline,
		Logger:        logger,
	})

	heartbeatSvc := service.NewHeartbeatService(heartbeatStore, registry)

	pruner := service.NewHeartbeatPruner(heartbeatStore, service.PrunerConfig{
		RetentionDays: cfg.HeartbeatRetentionDays,
		IntervalHours: cfg.PruneIntervalHours,
	}, logger)
	pruner.Start(ctx)
	defer pruner.Stop()

	// HTTP
	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:           logger,
		Addr:             cfg.HTTPAddr,
		Orchestrator:     orchestrator,
		HeartbeatService: heartbeatSvc,
		Events:           eventStore,
	})

	go func() {
		logger.Printf("listening on %s", cfg.HTTPAddr)
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Printf("server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
