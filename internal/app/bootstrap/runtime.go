package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/Opizontas-Studio/dc-license-bot/internal/adapters/discord"
	eventadapter "github.com/Opizontas-Studio/dc-license-bot/internal/adapters/events"
	grpcadapter "github.com/Opizontas-Studio/dc-license-bot/internal/adapters/grpc"
	httpadapter "github.com/Opizontas-Studio/dc-license-bot/internal/adapters/http"
	"github.com/Opizontas-Studio/dc-license-bot/internal/adapters/metrics"
	"github.com/Opizontas-Studio/dc-license-bot/internal/adapters/notifier"
	"github.com/Opizontas-Studio/dc-license-bot/internal/adapters/scheduler"
	"github.com/Opizontas-Studio/dc-license-bot/internal/adapters/security"
	"github.com/Opizontas-Studio/dc-license-bot/internal/allowlist"
	"github.com/Opizontas-Studio/dc-license-bot/internal/application"
	"github.com/Opizontas-Studio/dc-license-bot/internal/ports"
	"github.com/Opizontas-Studio/dc-license-bot/internal/relay"
	"github.com/Opizontas-Studio/dc-license-bot/internal/syslicense"
	"google.golang.org/grpc"
)

type worker interface {
	Run(ctx context.Context) error
}

type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	service    *application.Service
	httpServer *http.Server
	grpcServer *grpc.Server
	grpcLis    net.Listener
	relay      *relay.Relay
	workers    map[string]worker
	cleanupFn  func()
}

func NewLogger(cfg ServiceConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})).With("service", cfg.Name)
	slog.SetDefault(logger)
	return logger
}

func NewRuntime(ctx context.Context, cfg Config) (*Runtime, error) {
	logger := NewLogger(cfg.Service)

	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}
	fail := func(err error) (*Runtime, error) {
		cleanup()
		return nil, err
	}

	verifier, err := security.NewJWTSigner(cfg.Auth.Issuer, cfg.Auth.Secret)
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}
	platform, err := discord.NewClient(discord.Config{
		BaseURL:        cfg.Platform.BaseURL,
		Token:          cfg.Platform.Token,
		RequestTimeout: cfg.Platform.RequestTimeout,
		RatePerSecond:  cfg.Platform.RatePerSecond,
		Burst:          cfg.Platform.Burst,
		UserAgent:      cfg.Service.Name,
	})
	if err != nil {
		return nil, fmt.Errorf("platform: %w", err)
	}

	storage, err := OpenStorage(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, err
	}
	closers = append(closers, storage.Close)

	stores, err := openEphemeral(ctx, cfg.Redis, logger)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, stores.close)

	registry := metrics.NewRegistry()
	licenses := syslicense.New(syslicense.FileSource{Path: cfg.Licenses.Path})
	if snap, err := licenses.Reload(ctx); err != nil {
		logger.WarnContext(ctx, "system licenses not loaded at startup",
			"module", "bootstrap", "layer", "platform", "operation", "load_licenses", "outcome", "failure",
			"path", cfg.Licenses.Path, "error", err,
		)
		registry.ObserveReload("failure")
	} else {
		logger.InfoContext(ctx, "system licenses loaded",
			"module", "bootstrap", "layer", "platform", "operation", "load_licenses", "outcome", "success",
			"path", cfg.Licenses.Path, "licenses", snap.Len(),
		)
	}

	var notificationRelay *relay.Relay
	if cfg.Notifier.Enabled {
		sender, err := notifier.NewHTTPSender(notifier.Config{
			Endpoint: cfg.Notifier.Endpoint,
			Token:    cfg.Notifier.Token,
			Timeout:  cfg.Notifier.Timeout,
		})
		if err != nil {
			return fail(fmt.Errorf("notifier: %w", err))
		}
		notificationRelay = relay.New(relay.Config{
			QueueSize:      cfg.Relay.QueueSize,
			Workers:        cfg.Relay.Workers,
			MaxAttempts:    cfg.Relay.MaxAttempts,
			BaseBackoff:    cfg.Relay.BaseBackoff,
			MaxBackoff:     cfg.Relay.MaxBackoff,
			AttemptTimeout: cfg.Relay.AttemptTimeout,
		}, sender, relay.WithLogger(logger), relay.WithMetrics(registry))
	}

	channels, err := openForumAllowlist(cfg.AutoPublish)
	if err != nil {
		return fail(err)
	}

	deps := application.Dependencies{
		Config: application.Config{
			ServiceName:          cfg.Service.Name,
			AdminIDs:             cfg.Admins,
			MaxTemplatesPerOwner: cfg.Publish.MaxTemplatesPerOwner,
			PlatformTimeout:      cfg.Publish.PlatformTimeout,
			LockTimeout:          cfg.Publish.LockTimeout,
			ThreadEventDedupTTL:  cfg.AutoPublish.DedupTTL,
			ConfirmationTimeout:  cfg.AutoPublish.ConfirmationTimeout,
			AllowedChannelIDs:    cfg.AutoPublish.AllowedChannelIDs,
			NotifyBackupChanges:  cfg.Publish.NotifyBackupChanges,
		},
		Templates:    storage.Templates,
		Settings:     storage.Settings,
		Publications: storage.Publications,
		Platform:     platform,
		Licenses:     licenses,
		Channels:     channels,
		Dedup:        stores.dedup,
		Pending:      stores.pending,
		Telemetry:    registry,
		Logger:       logger,
	}
	if notificationRelay != nil {
		deps.Relay = notificationRelay
	}
	service := application.NewService(deps)

	handler := httpadapter.NewHandler(service, verifier, httpadapter.Options{
		WebhookSecret: cfg.Auth.WebhookSecret,
		Metrics:       registry.Handler(),
	})
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           httpadapter.NewRouter(handler),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}

	grpcServer := grpc.NewServer()
	healthReporter := grpcadapter.NewHealthReporter(service, cfg.GRPC.HealthInterval, logger)
	grpcadapter.Register(grpcServer, healthReporter)
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPC.Port))
	if err != nil {
		return fail(err)
	}

	workers := map[string]worker{
		"grpc_health":          healthReporter,
		"confirmation_sweeper": scheduler.NewConfirmationSweeper(logger, service, cfg.AutoPublish.SweepInterval, 50),
	}

	publisher := ports.EventPublisher(eventadapter.NewLoggingPublisher(logger))
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher, pubErr := eventadapter.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.TopicPostEvents, nil)
		if pubErr != nil {
			logger.WarnContext(ctx, "kafka publisher disabled, using logging publisher",
				"module", "bootstrap", "layer", "platform", "operation", "kafka_publisher", "outcome", "degraded", "error", pubErr,
			)
		} else {
			publisher = kafkaPublisher
			closers = append(closers, kafkaPublisher.Close)
		}

		kafkaConsumer, conErr := eventadapter.NewKafkaConsumer(
			cfg.Kafka.Brokers,
			cfg.Kafka.ConsumerGroup,
			[]string{cfg.Kafka.TopicThreadCreated, cfg.Kafka.TopicThreadDeleted},
		)
		if conErr != nil {
			logger.WarnContext(ctx, "kafka consumer disabled, platform events arrive by webhook only",
				"module", "bootstrap", "layer", "platform", "operation", "kafka_consumer", "outcome", "degraded", "error", conErr,
			)
		} else {
			closers = append(closers, kafkaConsumer.Close)
			workers["platform_events"] = eventadapter.NewConsumerWorker(logger, kafkaConsumer, service, map[string]ports.PlatformEventType{
				cfg.Kafka.TopicThreadCreated: ports.EventThreadCreated,
				cfg.Kafka.TopicThreadDeleted: ports.EventThreadDeleted,
			}, cfg.Kafka.PollInterval, cfg.Kafka.HandleTimeout)
		}
	}
	if storage.Outbox != nil {
		workers["outbox"] = eventadapter.NewOutboxWorker(logger, storage.Outbox, publisher, cfg.Service.Name, cfg.Outbox.PollInterval, cfg.Outbox.BatchSize)
	}
	if cfg.Status.Enabled {
		reporter, err := scheduler.NewStatusReporter(logger, service, platform, scheduler.StatusReporterConfig{
			Cron:      cfg.Status.Cron,
			ChannelID: cfg.Status.ChannelID,
			MessageID: cfg.Status.MessageID,
			Timeout:   cfg.Platform.RequestTimeout,
		})
		if err != nil {
			_ = lis.Close()
			return fail(err)
		}
		workers["status_reporter"] = reporter
	}

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		service:    service,
		httpServer: httpServer,
		grpcServer: grpcServer,
		grpcLis:    lis,
		relay:      notificationRelay,
		workers:    workers,
		cleanupFn:  cleanup,
	}, nil
}

// Run serves until ctx ends or SIGINT/SIGTERM arrives. HTTP drains first so
// in-flight transitions finish, then workers stop and the relay gets its
// grace period to flush notifications.
func (r *Runtime) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if r.relay != nil {
		r.relay.Start()
	}
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	errCh := make(chan error, 2+len(r.workers))
	go func() {
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		if err := r.grpcServer.Serve(r.grpcLis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	var wg sync.WaitGroup
	for name, w := range r.workers {
		wg.Add(1)
		go func(name string, w worker) {
			defer wg.Done()
			if err := w.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("%s worker: %w", name, err)
			}
		}(name, w)
	}
	r.logger.InfoContext(ctx, "runtime started",
		"module", "bootstrap", "layer", "platform", "operation", "run", "outcome", "success",
		"http_addr", r.httpServer.Addr, "grpc_addr", r.grpcLis.Addr().String(), "workers", workerNames(r.workers),
	)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		r.logger.ErrorContext(ctx, "runtime failure",
			"module", "bootstrap", "layer", "platform", "operation", "run", "outcome", "failure", "error", runErr,
		)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), r.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	_ = r.httpServer.Shutdown(shutdownCtx)
	r.grpcServer.GracefulStop()
	cancelWorkers()
	wg.Wait()

	if r.relay != nil {
		graceCtx, cancelGrace := context.WithTimeout(context.Background(), r.cfg.Relay.ShutdownGrace)
		if err := r.relay.Shutdown(graceCtx); err != nil {
			r.logger.WarnContext(graceCtx, "relay abandoned pending notifications",
				"module", "bootstrap", "layer", "platform", "operation", "shutdown", "outcome", "degraded", "error", err,
			)
		}
		cancelGrace()
	}
	r.cleanupFn()
	return runErr
}

func workerNames(workers map[string]worker) string {
	names := make([]string, 0, len(workers))
	for name := range workers {
		names = append(names, name)
	}
	return strings.Join(names, ",")
}

// Close releases resources for a runtime that never ran.
func (r *Runtime) Close() error {
	_ = r.grpcLis.Close()
	r.cleanupFn()
	return nil
}

// openForumAllowlist prefers the admin-managed file once it exists; until then
// the config list seeds it.
func openForumAllowlist(cfg AutoPublishConfig) (*allowlist.List, error) {
	if cfg.AllowlistPath == "" {
		return allowlist.New(cfg.AllowedChannelIDs, nil), nil
	}
	store := allowlist.FileStore{Path: cfg.AllowlistPath}
	ids, found, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("forum allowlist: %w", err)
	}
	if !found {
		ids = cfg.AllowedChannelIDs
	}
	return allowlist.New(ids, store), nil
}
