package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"callfence/internal/audit"
	"callfence/internal/auth/jwttoken"
	"callfence/internal/credential"
	"callfence/internal/decision"
	decisionmetrics "callfence/internal/decision/metrics"
	"callfence/internal/geofence"
	"callfence/internal/location"
	locationhandler "callfence/internal/location/handler"
	"callfence/internal/monitor"
	monitorhandler "callfence/internal/monitor/handler"
	"callfence/internal/platform/config"
	"callfence/internal/platform/httpserver"
	"callfence/internal/platform/logger"
	platformredis "callfence/internal/platform/redis"
	httptransport "callfence/internal/transport/http"
	"callfence/internal/xsi"
)

// main wires dependencies and owns the process lifecycle. Business logic
// lives in the internal packages.
func main() {
	log := logger.New()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	boundary, err := geofence.NewBoundary(cfg.LatMin, cfg.LatMax, cfg.LonMin, cfg.LonMax)
	if err != nil {
		log.Error("invalid geofence boundary", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		log.Info("redis connected")
	}

	var auditStore audit.Store = audit.NewInMemoryStore()
	if cfg.PostgresDSN != "" {
		pgStore, err := audit.OpenPostgres(cfg.PostgresDSN)
		if err != nil {
			log.Error("postgres audit store unavailable", "error", err)
			os.Exit(1)
		}
		defer pgStore.Close()
		auditStore = pgStore
		log.Info("postgres audit store connected")
	}

	sinkCapacity := 0
	if len(cfg.KafkaBrokers) > 0 {
		sinkCapacity = 256
	}
	auditor := audit.NewPublisher(auditStore, log, sinkCapacity)

	if len(cfg.KafkaBrokers) > 0 {
		sink, err := audit.NewKafkaSink(ctx, cfg.KafkaBrokers, cfg.KafkaAuditTopic)
		if err != nil {
			log.Error("kafka audit sink unavailable", "error", err)
			os.Exit(1)
		}
		defer sink.Close()
		worker := audit.NewWorker(sink, auditor.Outbox(), log)
		go func() {
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("audit worker stopped", "error", err)
			}
		}()
		log.Info("kafka audit sink connected", "topic", cfg.KafkaAuditTopic)
	}

	var locationStore location.Store = location.NewInMemoryStore()
	var credentialStore credential.Store = credential.NewInMemoryStore()
	if redisClient != nil {
		locationStore = location.NewRedisStore(redisClient.Client)
		credentialStore = credential.NewRedisStore(redisClient.Client)
	}

	locationService := location.NewService(locationStore, boundary, cfg.MaxReportAge, auditor, log)

	refresher := credential.NewOAuthRefresher(cfg.TokenURL, cfg.ClientID, cfg.ClientSecret)
	supplier := credential.NewSupplier(credentialStore, refresher, log)

	xsiClient := xsi.NewClient(cfg.XSIActionsURL, supplier, log)
	listener := xsi.NewListener(cfg.XSIEventsURL, supplier, cfg.QueueCapacity, cfg.ReconnectMinBackoff, cfg.ReconnectMaxBackoff, log)

	engine := decision.NewEngine(listener.Events(), xsiClient, locationService, auditor, log, decisionmetrics.New(), cfg.DecisionWorkers)
	locationService.OnTransition(engine.NotifyTransition)

	sessions := monitor.NewManager(listener, engine, supplier, auditor, log, cfg.StopGracePeriod)
	sessions.AutoStart(ctx)

	tokens := jwttoken.NewService(cfg.JWTSigningKey, "callfence")

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Location:    locationhandler.New(locationService, log),
		Monitoring:  monitorhandler.New(sessions, log),
		Tokens:      tokens,
		AdminUserID: cfg.AdminUserID,
		Logger:      log,
	})

	srv := httpserver.New(cfg.Addr, router)

	go func() {
		log.Info("starting callfence", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := sessions.Stop(shutdownCtx); err != nil {
		log.Warn("monitoring session stop", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}
