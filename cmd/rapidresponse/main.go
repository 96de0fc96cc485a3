package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"rapidresponse/internal/api"
	appaws "rapidresponse/internal/common/aws"
	"rapidresponse/internal/common/config"
	"rapidresponse/internal/common/database"
	"rapidresponse/internal/common/logger"
	"rapidresponse/internal/common/observability"
	"rapidresponse/internal/emergency"
	"rapidresponse/internal/enrichment"
	"rapidresponse/internal/intake"
	"rapidresponse/internal/models"
	"rapidresponse/internal/notification"
	"rapidresponse/internal/providers"

	us "rapidresponse/internal/workers/emergency/update-status"
	pr "rapidresponse/internal/workers/intake/process-report"
	pe "rapidresponse/internal/workers/notification/publish-event"
)

// retryWithBackoff runs operation until it succeeds, doubling the delay between attempts.
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logger.New("info", "console")
		boot.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting rapidresponse...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.App.Name, cfg.Observability.JaegerEndpoint, log)
	defer obs.Shutdown(context.Background())

	ctx := context.Background()

	// --- PostgreSQL (required) ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()

	if err := pg.Migrate(ctx); err != nil {
		zapLog.Fatal("schema migration failed", zap.Error(err))
	}
	zapLog.Info("PostgreSQL connected successfully")

	// --- Redis (optional, enrichment cache) ---
	var rdb redis.Cmdable
	if cfg.Database.Redis.Address != "" {
		var rc *database.RedisClient
		err = retryWithBackoff(func() error {
			var err error
			rc, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return rc.Ping(ctx)
		}, 5, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			zapLog.Warn("redis unavailable, enrichment cache disabled", zap.Error(err))
		} else {
			defer rc.Close()
			rdb = rc.Client
			zapLog.Info("Redis connected successfully")
		}
	}

	// --- Elasticsearch (optional, facility search) ---
	var esClient *database.ElasticsearchClient
	if cfg.Database.Elasticsearch.GetURL() != "" {
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping(ctx)
		}, 5, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Warn("elasticsearch unavailable, facility lookup disabled", zap.Error(err))
			esClient = nil
		} else {
			zapLog.Info("Elasticsearch connected successfully")
		}
	}

	// --- Notification engine ---
	hub := notification.NewHub(cfg.Live, log)
	defer hub.Close()

	adapters := buildAdapters(ctx, cfg.Notifications, hub, zapLog)
	notifications := notification.NewEngine(
		notification.NewPostgresRepository(pg.DB),
		adapters,
		hub,
		cfg.Notifications,
		log,
	)

	// --- Emergency lifecycle ---
	availability := emergency.NewAvailabilityStore(pg.DB)
	store := emergency.NewPostgresStore(pg.DB)
	emergencies := emergency.NewService(store, notifications, log)

	// --- Intake ---
	orchestrator := intake.NewOrchestrator(intake.Dependencies{
		Transcriber:  providers.NewSpeechClient(cfg.Providers.Speech),
		Translator:   providers.NewTranslationClient(cfg.Providers.Translation),
		Classifier:   providers.NewClassificationClient(cfg.Providers.Classification),
		Enricher:     buildEnricher(cfg.Enrichment, rdb, esClient, log),
		Store:        store,
		Availability: availability,
		Publisher:    notifications,
		Obs:          obs,
	}, cfg, log)

	// --- HTTP API ---
	server := api.NewServer(api.Dependencies{
		Intake:        orchestrator,
		Emergencies:   emergencies,
		Availability:  availability,
		Notifications: notifications,
	}, cfg, log)

	httpServer := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      server.Handler(),
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}
	go func() {
		zapLog.Info("API server listening", zap.String("address", cfg.Server.Address))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Fatal("API server failed", zap.Error(err))
		}
	}()

	// --- Zeebe workers (optional) ---
	var zeebeClient zbc.Client
	if cfg.Camunda.BrokerAddress != "" {
		err = retryWithBackoff(func() error {
			var err error
			zeebeClient, err = zbc.NewClient(&zbc.ClientConfig{
				GatewayAddress:         cfg.Camunda.BrokerAddress,
				UsePlaintextConnection: true,
			})
			return err
		}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		zapLog.Info("Zeebe client connected successfully")

		if wcfg := cfg.Workers[pr.TaskType]; wcfg.Enabled {
			handler := pr.NewHandler(pr.LoadConfig(wcfg), orchestrator, log)
			startWorker(zeebeClient, pr.TaskType, wcfg, handler.Handle, zapLog)
		}
		if wcfg := cfg.Workers[us.TaskType]; wcfg.Enabled {
			handler := us.NewHandler(us.LoadConfig(wcfg), emergencies, log)
			startWorker(zeebeClient, us.TaskType, wcfg, handler.Handle, zapLog)
		}
		if wcfg := cfg.Workers[pe.TaskType]; wcfg.Enabled {
			handler := pe.NewHandler(pe.LoadConfig(wcfg), notifications, log)
			startWorker(zeebeClient, pe.TaskType, wcfg, handler.Handle, zapLog)
		}
	} else {
		zapLog.Info("no broker address configured, job workers disabled")
	}

	// --- Health & Metrics Server ---
	metricsServer := &http.Server{Addr: cfg.Server.MetricsAddress, Handler: healthMux(pg)}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Server.MetricsAddress))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownGrace))
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("API server shutdown failed", zap.Error(err))
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Health/Metrics server shutdown failed", zap.Error(err))
	}
	if zeebeClient != nil {
		if err := zeebeClient.Close(); err != nil {
			zapLog.Error("Error closing Zeebe client", zap.Error(err))
		}
	}

	zapLog.Info("rapidresponse stopped gracefully")
}

// buildAdapters creates the outbound channel adapters that are enabled. Channels left
// out of the map fail their notifications as not configured.
func buildAdapters(ctx context.Context, cfg config.NotificationConfig, hub *notification.Hub, log *zap.Logger) map[models.Channel]notification.ChannelAdapter {
	adapters := map[models.Channel]notification.ChannelAdapter{
		models.ChannelLive: notification.NewLiveAdapter(hub),
	}

	if cfg.Email.Enabled {
		client, err := appaws.NewSESClient(ctx, cfg.AWS)
		if err != nil {
			log.Error("SES client init failed, email disabled", zap.Error(err))
		} else {
			adapters[models.ChannelEmail] = notification.NewEmailAdapter(client, cfg.Email.FromEmail)
		}
	}

	if cfg.SMS.Enabled || cfg.Push.Enabled {
		client, err := appaws.NewSNSClient(ctx, cfg.AWS)
		if err != nil {
			log.Error("SNS client init failed, sms and push disabled", zap.Error(err))
			return adapters
		}
		if cfg.SMS.Enabled {
			adapters[models.ChannelSMS] = notification.NewSMSAdapter(client, cfg.SMS.SenderID)
		}
		if cfg.Push.Enabled {
			adapters[models.ChannelPush] = notification.NewPushAdapter(client)
		}
	}

	for ch := range adapters {
		log.Info("notification channel enabled", zap.String("channel", string(ch)))
	}
	return adapters
}

// buildEnricher wires the context sources. Sources whose backing service is absent are
// left nil and reported as degraded on every enrichment.
func buildEnricher(cfg config.EnrichmentConfig, rdb redis.Cmdable, es *database.ElasticsearchClient, log logger.Logger) *enrichment.Enricher {
	var (
		weather    enrichment.WeatherSource = enrichment.NewHTTPWeatherSource(cfg.Weather)
		traffic    enrichment.TrafficSource = enrichment.NewHTTPTrafficSource(cfg.Traffic, cfg.TrafficRadius)
		facilities enrichment.FacilitySource
	)
	if es != nil {
		facilities = enrichment.NewElasticFacilitySource(es.Client, cfg.FacilityIndex, cfg.FacilityRadiusKm, cfg.FacilityLimit)
	}

	if rdb != nil {
		weather = enrichment.NewCachedWeatherSource(weather, rdb, config.GetSeconds(cfg.Cache.Weather), log)
		traffic = enrichment.NewCachedTrafficSource(traffic, rdb, config.GetSeconds(cfg.Cache.Traffic), log)
		if facilities != nil {
			facilities = enrichment.NewCachedFacilitySource(facilities, rdb, config.GetSeconds(cfg.Cache.Facilities), log)
		}
	}

	return enrichment.NewEnricher(weather, traffic, facilities, config.GetDuration(cfg.SubQueryTimeout), log)
}

func healthMux(pg *database.PostgresClient) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "healthy")
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := pg.Ping(r.Context()); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
		writeStatus(w, http.StatusOK, "ready")
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": status,
		"time":   time.Now().Format(time.RFC3339),
	})
}

func startWorker(client zbc.Client, taskType string, wcfg config.WorkerConfig, handlerFunc func(worker.JobClient, entities.Job), log *zap.Logger) {
	client.NewJobWorker().
		JobType(taskType).
		Handler(handlerFunc).
		MaxJobsActive(wcfg.MaxJobsActive).
		Timeout(config.GetDuration(wcfg.Timeout)).
		Open()

	log.Info("worker started",
		zap.String("taskType", taskType),
		zap.Int("maxJobsActive", wcfg.MaxJobsActive),
		zap.Int("timeout_ms", wcfg.Timeout),
	)
}
