// Package main 是云函数引擎守护进程的入口点。
// 它负责装配配置、存储、事件总线、执行引擎与 HTTP API，并以优雅关闭收尾。
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/halofn/halo/internal/api"
	"github.com/halofn/halo/internal/auth"
	"github.com/halofn/halo/internal/cloud"
	"github.com/halofn/halo/internal/config"
	"github.com/halofn/halo/internal/domain"
	"github.com/halofn/halo/internal/engine"
	"github.com/halofn/halo/internal/events"
	"github.com/halofn/halo/internal/faas"
	"github.com/halofn/halo/internal/metrics"
	"github.com/halofn/halo/internal/shared"
	"github.com/halofn/halo/internal/store"
	"github.com/halofn/halo/internal/telemetry"
	"github.com/halofn/halo/internal/trigger"
)

func main() {
	configPath := flag.String("config", "/etc/halo/config.yaml", "Path to config file")
	localMode := flag.Bool("local", false, "Run with in-memory storage, no external services")
	flag.Parse()

	// 配置文件缺失时回退到默认配置，便于本地试用
	cfg, err := config.Load(*configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg = config.Default()
		} else {
			logrus.WithError(err).Fatal("Failed to load config")
		}
	}

	logger := telemetry.NewLogger(cfg.Logging)
	logger.WithFields(logrus.Fields{
		"engine_mode": cfg.Engine.Mode,
		"local":       *localMode,
	}).Info("Starting Halo engine")

	// 遥测初始化失败不影响主服务运行，仅记录警告
	if cfg.Telemetry.Enabled {
		tel, err := telemetry.New(context.Background(), cfg.Telemetry)
		if err != nil {
			logger.WithError(err).Warn("Failed to initialize telemetry, continuing without tracing")
		} else {
			defer tel.Shutdown(context.Background())
			logger.WithFields(logrus.Fields{
				"endpoint":    cfg.Telemetry.Endpoint,
				"sample_rate": cfg.Telemetry.SampleRate,
			}).Info("Telemetry initialized")
		}
	}

	// 存储：默认使用 PostgreSQL，本地模式（或未配置数据库）退化为内存存储
	var (
		docDB   store.DocumentDB
		repo    domain.FunctionRepository
		logRepo domain.FunctionLogRepository
		pinger  api.Pinger
	)
	if *localMode || cfg.Storage.Postgres.Host == "" {
		ms := store.NewMemoryStore()
		docDB, repo, logRepo, pinger = ms, ms, ms, ms
		logger.Info("Using in-memory storage")
	} else {
		pg, err := store.NewPostgresStore(cfg.Storage.Postgres, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to PostgreSQL")
		}
		defer pg.Close()
		docDB, repo, logRepo, pinger = pg, pg, pg, pg
	}

	// Redis 读缓存包装函数仓库；缓存只加速定义查找，文档库直连底层存储
	if cfg.Storage.Redis.Enabled {
		cached, err := store.NewCachedStore(repo, cfg.Storage.Redis, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer cached.Close()
		repo = cached
	}

	// 事件总线：NATS JetStream 或进程内空实现
	var bus events.Bus
	if cfg.Events.Enabled && !*localMode {
		natsBus, err := events.NewNATSBus(cfg.Events.NatsURL, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to NATS")
		}
		bus = natsBus
	} else {
		bus = events.NewMemoryBus()
	}
	defer bus.Close()

	m := metrics.NewMetrics(cfg.Metrics.Namespace)
	jwt := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiration)
	prefs := shared.NewPreferences()

	factory := cloud.NewFactory(docDB, cfg.Storage.BlobRoot, cfg.Engine.Namespace, bus,
		jwt, prefs, telemetry.InstrumentedHTTPClient(), logger)
	if pg, ok := docDB.(*store.PostgresStore); ok {
		factory.BindRawDB(pg.RawDB())
	}

	var runtime engine.Runtime
	switch cfg.Engine.Mode {
	case "wasm":
		runtime = engine.NewWasmRuntime(logger)
	default:
		runtime = engine.NewGojaRuntime(logger)
	}
	logger.WithField("runtime", runtime.Name()).Info("Execution runtime ready")

	svc := faas.NewService(runtime, factory, repo, logRepo, bus, m, logger,
		engine.Options{Timeout: cfg.Engine.Timeout, MaxLogLines: cfg.Engine.MaxLogLines},
		cfg.Engine.MaxDepth)

	cronMgr := trigger.NewCronManager(repo, svc, logger)
	if err := cronMgr.Start(); err != nil {
		logger.WithError(err).Error("Failed to start cron triggers")
	}
	defer cronMgr.Stop()

	// 后台刷新函数总数指标
	metricsCtx, metricsCancel := context.WithCancel(context.Background())
	defer metricsCancel()
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-metricsCtx.Done():
				return
			case <-ticker.C:
				if _, total, err := repo.List(0, 1); err == nil {
					m.UpdateFunctionsTotal(total)
				}
				m.UpdateSharedEntries(prefs.Len())
			}
		}
	}()

	handler := api.NewHandler(repo, logRepo, pinger, svc, cronMgr, bus, jwt, m, logger)
	router := api.NewRouter(handler)

	// 指标端口独立于主端口时单独起一个指标服务器
	var metricsServer *http.Server
	if cfg.Metrics.Enabled && cfg.Server.MetricsPort != cfg.Server.HTTPPort {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Server.MetricsPort),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			logger.WithField("port", cfg.Server.MetricsPort).Info("Starting metrics server")
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Fatal("Metrics server failed")
			}
		}()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.WithField("port", cfg.Server.HTTPPort).Info("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server shutdown error")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			logger.WithError(err).Error("Metrics server shutdown error")
		}
	}

	logger.Info("Server stopped")
}
