package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/opendesk-io/opendesk/pkg/api"
	"github.com/opendesk-io/opendesk/pkg/audit"
	"github.com/opendesk-io/opendesk/pkg/auth"
	"github.com/opendesk-io/opendesk/pkg/cache"
	"github.com/opendesk-io/opendesk/pkg/config"
	"github.com/opendesk-io/opendesk/pkg/directory"
	"github.com/opendesk-io/opendesk/pkg/observability"
	"github.com/opendesk-io/opendesk/pkg/rbac"
	"github.com/opendesk-io/opendesk/pkg/tickets"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).
			WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	log := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	if err := run(cfg, log); err != nil {
		log.WithError(err).Error("server exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *observability.Logger) error {
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	// PostgreSQL holds users, roles, teams, and tickets.
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return err
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnLifetime)
	if err := db.Ping(); err != nil {
		return err
	}
	log.WithField("max_conns", cfg.Database.MaxOpenConns).Info("database connected")

	// Redis holds sessions so restarts do not log everyone out.
	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return err
	}
	if cfg.Redis.Password != "" {
		redisOpts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB >= 0 {
		redisOpts.DB = cfg.Redis.DB
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		return err
	}
	log.Info("redis connected")

	permCache := cache.New(cache.Config{
		UserTTL:             cfg.Cache.UserTTL,
		UserCapacity:        cfg.Cache.UserCapacity,
		SessionTTL:          cfg.Cache.SessionTTL,
		SessionCapacity:     cfg.Cache.SessionCapacity,
		SessionMinRemaining: cfg.Cache.SessionMinRemaining,
		CleanupInterval:     cfg.Cache.CleanupInterval,
	})
	if metrics != nil {
		permCache = permCache.WithMetrics(metrics)
	}
	if err := permCache.Start(); err != nil {
		return err
	}
	defer permCache.Stop()

	auditor := audit.NewSlogLogger(log)

	dirStore := directory.NewStore(db)
	ticketStore := tickets.NewStore(db)
	if metrics != nil {
		dirStore = dirStore.WithMetrics(metrics)
		ticketStore = ticketStore.WithMetrics(metrics)
	}

	engine := rbac.NewEngine(dirStore,
		rbac.WithCache(permCache),
		rbac.WithAuditLogger(auditor),
		rbac.WithMetrics(metrics),
	)

	sessions := auth.NewSessionManager(auth.NewRedisSessionStore(redisClient), dirStore, permCache, auditor)

	ticketService := tickets.NewService(ticketStore, engine)
	if metrics != nil {
		ticketService = ticketService.WithMetrics(metrics)
	}

	server := api.NewServer(api.Deps{
		Logger:         log,
		Metrics:        metrics,
		Cache:          permCache,
		Engine:         engine,
		SessionManager: sessions,
		Directory:      dirStore,
		DirectoryAdmin: directory.NewService(dirStore, permCache, auditor, log),
		Tickets:        ticketService,
	})

	apiServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	var metricsServer *http.Server
	if metrics != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{Addr: cfg.Server.MetricsAddr(), Handler: mux}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.WithField("addr", apiServer.Addr).Info("api server listening")
		if err := apiServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if metricsServer != nil {
		g.Go(func() error {
			log.WithField("addr", metricsServer.Addr).Info("metrics server listening")
			if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		var shutdownErr error
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			shutdownErr = err
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil && shutdownErr == nil {
				shutdownErr = err
			}
		}
		return shutdownErr
	})

	return g.Wait()
}
