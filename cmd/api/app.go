package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/imrishuroy/go-draftsync/internal/autosave"
	"github.com/imrishuroy/go-draftsync/internal/aws"
	"github.com/imrishuroy/go-draftsync/internal/config"
	"github.com/imrishuroy/go-draftsync/internal/drafts"
	"github.com/imrishuroy/go-draftsync/internal/handlers"
	"github.com/imrishuroy/go-draftsync/internal/metrics"
	"github.com/imrishuroy/go-draftsync/internal/sessions"
)

// app wires the configured store, metrics and session registry.
type app struct {
	cfg       config.Config
	log       zerolog.Logger
	store     drafts.Store
	registry  *sessions.Registry
	publisher *aws.Publisher
	cw        *metrics.CloudWatchRecorder
	closers   []func() error
}

func newApp(ctx context.Context, cfg config.Config, log zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	var clients *aws.AWSClients
	if cfg.StoreBackend == config.BackendDynamoDB || (cfg.Local && (cfg.CleanupQueueURL != "" || cfg.MetricsEnabled)) {
		var err error
		clients, err = aws.NewAWSClients(ctx)
		if err != nil {
			return nil, fmt.Errorf("init aws clients: %w", err)
		}
	}

	store, err := a.openStore(ctx, clients)
	if err != nil {
		return nil, err
	}
	a.store = store

	if !cfg.Local {
		// Lambda freezes the process between invocations and spreads requests
		// across instances; debounce timers and sessions cannot live there.
		log.Info().Msg("session routes disabled outside local mode")
		return a, nil
	}

	var recorder metrics.Recorder = metrics.Nop{}
	if cfg.MetricsEnabled {
		a.cw = metrics.NewCloudWatchRecorder(clients.CloudWatch, cfg.MetricsNamespace, log)
		recorder = a.cw
	}
	if cfg.CleanupQueueURL != "" {
		a.publisher = aws.NewPublisher(clients.SQS, cfg.CleanupQueueURL)
	}

	var retry autosave.RetryPolicy = autosave.NoRetry{}
	if cfg.RetryAttempts > 0 {
		retry = autosave.BoundedRetry{Attempts: cfg.RetryAttempts, Base: cfg.RetryBase, Max: cfg.RetryMax}
	}
	ctrlLog := log.With().Str("component", "autosave").Logger()
	a.registry = sessions.NewRegistry(func() *autosave.Controller {
		return autosave.New(store,
			autosave.WithDebounce(cfg.Debounce),
			autosave.WithWriteTimeout(cfg.WriteTimeout),
			autosave.WithLogger(ctrlLog),
			autosave.WithRetry(retry),
			autosave.WithRecorder(recorder),
		)
	}, cfg.SessionIdleTimeout, log.With().Str("component", "sessions").Logger())

	return a, nil
}

func (a *app) openStore(ctx context.Context, clients *aws.AWSClients) (drafts.Store, error) {
	switch a.cfg.StoreBackend {
	case config.BackendDynamoDB:
		return drafts.NewDynamoStore(clients.DynamoDB, a.cfg.DynamoTable, a.cfg.Retention), nil
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{Addr: a.cfg.RedisAddr, DB: a.cfg.RedisDB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			// the controller tolerates store outages; keep serving
			a.log.Warn().Err(err).Str("addr", a.cfg.RedisAddr).Msg("redis not reachable at startup")
		}
		a.closers = append(a.closers, rdb.Close)
		return drafts.NewRedisStore(rdb, a.cfg.Retention), nil
	case config.BackendSQLite:
		s, err := drafts.OpenSQLiteStore(a.cfg.SQLitePath, a.log)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	case config.BackendMemory:
		return drafts.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", a.cfg.StoreBackend)
}

// startBackground runs the session sweeper and metrics flusher until ctx is
// done. The returned channel closes once both have stopped.
func (a *app) startBackground(ctx context.Context) <-chan struct{} {
	var wg sync.WaitGroup
	if a.registry != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.registry.RunSweeper(ctx, a.cfg.SweepInterval)
		}()
	}
	if a.cw != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.cw.Run(ctx, a.cfg.MetricsFlushInterval)
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

func (a *app) handlerConfig() handlers.HandlerConfig {
	return handlers.HandlerConfig{
		Store:     a.store,
		Registry:  a.registry,
		Publisher: a.publisher,
		Logger:    a.log,
	}
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.log.Warn().Err(err).Msg("close")
		}
	}
}

func setupRouter(cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterDraftRoutes(r, cfg)

	return r
}
