// Package queryreporter observes query execution inside a GORM based
// application, flags statements exceeding a latency threshold, enriches them
// with a call stack, sanitized parameters and an optional execution plan, and
// ships them to a monitoring endpoint through a rate limited delivery queue.
//
// The host application installs the reporter as a GORM logger:
//
//	rep := queryreporter.New(nil, &entity.DBConnection{
//		Provider:  entity.ProviderPostgres,
//		Dialector: postgres.Open(dsn),
//	})
//	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
//		Logger: rep.GormLogger(nil),
//	})
//
// Reporting is best effort: no failure on this path ever reaches the host.
package queryreporter

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rahmatrdn/go-query-reporter/entity"
	"github.com/rahmatrdn/go-query-reporter/internal/config"
	"github.com/rahmatrdn/go-query-reporter/internal/logger"
	"github.com/rahmatrdn/go-query-reporter/internal/queue"
	"github.com/rahmatrdn/go-query-reporter/internal/repository/explain"
	"github.com/rahmatrdn/go-query-reporter/internal/transport"
	"github.com/rahmatrdn/go-query-reporter/internal/usecase"
)

// Reporter owns the capture, enrichment and delivery pipeline.
type Reporter struct {
	cfg        config.Config
	log        *zap.Logger
	usecase    usecase.ReporterUsecase
	dispatcher *queue.Dispatcher
	planRepo   explain.PlanRepository

	closeOnce sync.Once
}

// Option customizes reporter construction.
type Option func(*options)

type options struct {
	log *zap.Logger
}

// WithLogger replaces the reporter's own zap logger, typically to reuse the
// host application's logging setup.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}

// New builds a reporter from the environment plus the given overrides. It
// never fails: when the resolved configuration is invalid the error is logged
// and the reporter degrades to a no-op delivery path, so the host application
// keeps running unchanged. conn may be nil when execution plan capture is not
// wanted.
func New(override *config.Override, conn *entity.DBConnection, opts ...Option) *Reporter {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfg, err := config.Load(override)
	if err != nil {
		cfg = config.Config{}
	}

	log := o.log
	if log == nil {
		log = logger.New(cfg.LogLevel)
	}
	if err != nil {
		log.Error("configuration could not be resolved, reporting disabled", zap.Error(err))
	}

	validationErr := cfg.Validate()
	if validationErr != nil {
		log.Error("invalid reporter configuration, delivery disabled", zap.Error(validationErr))
	}

	var sender transport.Sender
	if validationErr != nil || err != nil {
		sender = transport.NewNoopSender(log)
	} else {
		sender = transport.NewWebhookSender(
			cfg.APIEndpoint,
			cfg.APIKey,
			cfg.ProjectID,
			time.Duration(cfg.TimeoutMs)*time.Millisecond,
			log,
		)
	}

	dispatcher := queue.NewDispatcher(sender, queue.Options{
		Concurrency: cfg.QueueConcurrency,
		IntervalCap: cfg.QueueIntervalCap,
		Interval:    time.Duration(cfg.QueueIntervalInMs) * time.Millisecond,
	}, log)

	var planRepo explain.PlanRepository
	if conn != nil && cfg.ExecutionPlanEnabled {
		planRepo = explain.NewPlanRepository(conn, log)
	}

	return &Reporter{
		cfg:        cfg,
		log:        log,
		usecase:    usecase.NewReporterUsecase(cfg, planRepo, dispatcher, sender, log),
		dispatcher: dispatcher,
		planRepo:   planRepo,
	}
}

// OnQuery is the raw slow query hook for hosts that are not wired through
// GORM's logger. durationMs is the statement's execution time; params are the
// bound parameters, if available.
func (r *Reporter) OnQuery(ctx context.Context, durationMs float64, query string, params []any) {
	r.usecase.OnQuery(ctx, durationMs, query, params)
}

// Close drains in-flight report builds, stops the delivery queue and tears
// down the execution plan side connection. Idempotent.
func (r *Reporter) Close() error {
	var err error
	r.closeOnce.Do(func() {
		r.usecase.Wait()
		r.dispatcher.Stop()
		if r.planRepo != nil {
			err = r.planRepo.Close()
		}
	})
	return err
}
