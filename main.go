package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/MihanikMike/ecommerce-price-tracker-sub002/pricewatch"
	"github.com/MihanikMike/ecommerce-price-tracker-sub002/pricewatch/alerts"
	"github.com/MihanikMike/ecommerce-price-tracker-sub002/pricewatch/config"
	"github.com/MihanikMike/ecommerce-price-tracker-sub002/pricewatch/database"
	"github.com/MihanikMike/ecommerce-price-tracker-sub002/pricewatch/database/repositories"
	"github.com/MihanikMike/ecommerce-price-tracker-sub002/pricewatch/health"
	"github.com/MihanikMike/ecommerce-price-tracker-sub002/pricewatch/logger"
	"github.com/MihanikMike/ecommerce-price-tracker-sub002/pricewatch/metrics"
	"github.com/MihanikMike/ecommerce-price-tracker-sub002/pricewatch/monitor"
	"github.com/MihanikMike/ecommerce-price-tracker-sub002/pricewatch/retention"
	"github.com/MihanikMike/ecommerce-price-tracker-sub002/pricewatch/scraper"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	shouldSyncSchema := flag.Bool("sync-schema", true, "Whether to create missing tables and indexes on startup")
	path := flag.String("config", "config.toml", "path to config")
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := pricewatch.LoadConfig(*path)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(-1)
	}

	setupLogger(cfg.Log)
	slog.Info("Starting pricewatch",
		slog.String("version", version),
		slog.String("commit", commit))

	// Workers run on their own context so a signal does not abort the
	// in-flight cycle; shutdown cancels it only after the drain window.
	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	slog.Info("Initializing database connection...")
	dbStartTime := time.Now()

	db, err := database.New(runCtx, cfg.DB)
	if err != nil {
		slog.Error("Failed to initialize database", slog.Any("error", err))
		os.Exit(-1)
	}
	defer db.Close()

	slog.Info("Database connection established",
		slog.String("type", "db"),
		slog.Duration("took", time.Since(dbStartTime)))

	if *shouldSyncSchema {
		if err := db.InitializeSchema(runCtx); err != nil {
			slog.Error("Failed to initialize schema", slog.Any("error", err))
			os.Exit(-1)
		}
	}

	products := repositories.NewProductRepository(db.BunDB())
	tracked := repositories.NewTrackedProductRepository(db.BunDB())

	m := metrics.New()
	clock := monitor.NewClock()
	tracker := health.NewTracker()
	registry := scraper.NewRegistry(cfg.Scraper.UserAgent, cfg.Scraper.Headless)
	validator := monitor.NewValidator(cfg.Scraper.AllowedDomains)

	limiter := monitor.NewRateLimiter(clock)
	for site, d := range cfg.Scraper.Delays {
		limiter.SetInterval(site, d.Min.Std(), d.Max.Std())
	}

	detectorCfg := monitor.DefaultDetectorConfig()
	detectorCfg.SignificantChangePct = cfg.Monitor.SignificantChangePct
	detector := monitor.NewDetector(products, detectorCfg)

	emailSender, err := alerts.NewEmailSenderFromEnv()
	if err != nil {
		slog.Error("Failed to configure email sender", slog.Any("error", err))
		os.Exit(-1)
	}
	pipeline := alerts.NewPipeline(alerts.ConfigFromEnv(), emailSender)

	scheduler := monitor.NewScheduler(tracked, monitor.SchedulerConfig{
		SitePerCap: cfg.Monitor.SitePerCap,
	})

	mon := monitor.New(
		products, tracked, scheduler, registry, validator,
		limiter, tracker, detector, pipeline, m, clock,
		monitor.Config{
			CheckInterval: cfg.Monitor.CheckInterval.Std(),
			MaxConcurrent: cfg.Monitor.MaxConcurrent,
			SitePerCap:    cfg.Monitor.SitePerCap,
			ScrapeTimeout: cfg.Monitor.ScrapeTimeout.Std(),
			CycleTimeout:  cfg.Monitor.CycleTimeout.Std(),
		},
	)

	retainer := retention.NewWorker(db.BunDB(), retention.ConfigFromEnv(), m)

	var metricsSrv *http.Server
	if cfg.Monitor.MetricsAddr != "" {
		metricsSrv = serveMetrics(cfg.Monitor.MetricsAddr, m)
	}

	go retainer.Start(runCtx)
	go mon.Start(runCtx)

	slog.Info("Pricewatch is now running. Press CTRL-C to exit.")
	<-sigCtx.Done()

	shutdown(mon, metricsSrv, cancelRun)
}

func setupLogger(cfg pricewatch.LogConfig) {
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:     cfg.Level,
			AddSource: cfg.AddSource,
		})
	} else {
		handler = logger.NewHandler(cfg.Level)
	}
	slog.SetDefault(slog.New(handler))
}

func serveMetrics(addr string, m *metrics.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		slog.Info("Metrics listener started", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Metrics listener failed", slog.Any("error", err))
		}
	}()
	return srv
}

// shutdown stops new cycles, lets the in-flight one drain within the grace
// period, then cancels the worker context to force out whatever remains.
func shutdown(mon *monitor.Monitor, metricsSrv *http.Server, cancelRun context.CancelFunc) {
	slog.Info("Shutting down pricewatch...")
	mon.Stop()

	drainCtx, drainCancel := context.WithTimeout(context.Background(), config.DrainGracePeriod)
	defer drainCancel()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
drain:
	for mon.State() != monitor.StateIdle {
		select {
		case <-drainCtx.Done():
			slog.Warn("Drain grace period elapsed; cancelling in-flight cycle")
			break drain
		case <-ticker.C:
		}
	}
	cancelRun()

	if metricsSrv != nil {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		_ = metricsSrv.Shutdown(closeCtx)
	}
	slog.Info("Shutdown complete")
}
