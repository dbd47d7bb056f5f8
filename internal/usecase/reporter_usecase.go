package usecase

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/rahmatrdn/go-query-reporter/entity"
	"github.com/rahmatrdn/go-query-reporter/internal/config"
	"github.com/rahmatrdn/go-query-reporter/internal/repository/explain"
	"github.com/rahmatrdn/go-query-reporter/internal/sanitizer"
	"github.com/rahmatrdn/go-query-reporter/internal/stacktrace"
	"github.com/rahmatrdn/go-query-reporter/internal/transport"
)

// Dispatcher accepts a payload for asynchronous delivery.
type Dispatcher interface {
	Enqueue(payload *entity.ReportPayload) error
}

type ReporterUsecase interface {
	// OnQuery is the slow query hook. It never blocks beyond local logging
	// and never lets an error escape into the host call stack.
	OnQuery(ctx context.Context, durationMs float64, query string, params []any)
	// Wait blocks until all in-flight report builds have finished.
	Wait()
}

type reporterUsecase struct {
	cfg        config.Config
	planRepo   explain.PlanRepository
	dispatcher Dispatcher
	fallback   transport.Sender
	log        *zap.Logger

	envEnabled bool
	wg         sync.WaitGroup
}

func NewReporterUsecase(
	cfg config.Config,
	planRepo explain.PlanRepository,
	dispatcher Dispatcher,
	fallback transport.Sender,
	log *zap.Logger,
) ReporterUsecase {
	return &reporterUsecase{
		cfg:        cfg,
		planRepo:   planRepo,
		dispatcher: dispatcher,
		fallback:   fallback,
		log:        log,
		envEnabled: environmentEnabled(cfg),
	}
}

// environmentEnabled resolves the activation gate once at construction.
// Unrecognized environments are treated like development.
func environmentEnabled(cfg config.Config) bool {
	switch strings.ToLower(cfg.Environment) {
	case "production", "prod":
		return cfg.EnableProd
	case "development", "dev":
		return cfg.EnableDev
	default:
		return cfg.EnableDev
	}
}

func (u *reporterUsecase) OnQuery(ctx context.Context, durationMs float64, query string, params []any) {
	if durationMs < float64(u.cfg.ThresholdMs) {
		return
	}

	// Detection is always logged, independent of whether the report is
	// forwarded anywhere.
	u.log.Warn("slow query detected",
		zap.Float64("duration_ms", durationMs),
		zap.Int("threshold_ms", u.cfg.ThresholdMs),
		zap.Bool("reporting", u.envEnabled),
		zap.String("query", query))

	if !u.envEnabled {
		return
	}

	// The snapshot has to happen on the caller's goroutine; once the report
	// detaches, the call path that hit the threshold is gone. It reflects
	// the handling path, not the path that originally issued the statement.
	var stack []string
	if u.cfg.CaptureStack {
		stack = stacktrace.Capture(u.cfg.MaxStack)
	}

	u.wg.Add(1)
	go u.report(durationMs, query, params, stack)
}

func (u *reporterUsecase) Wait() {
	u.wg.Wait()
}

// report enriches and delivers one payload. It runs detached from the
// originating query call; whatever goes wrong here is logged and swallowed.
func (u *reporterUsecase) report(durationMs float64, query string, params []any, stack []string) {
	defer u.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			u.log.Error("slow query reporting failed", zap.Any("panic", r))
		}
	}()

	// The originating request context may already be cancelled; enrichment
	// and delivery run on their own context.
	ctx := context.Background()

	plan := entity.DefaultExecutionPlan()
	if u.cfg.ExecutionPlanEnabled && u.planRepo != nil {
		captured, err := u.planRepo.CapturePlan(ctx, query)
		switch {
		case err != nil:
			u.log.Warn("execution plan capture failed", zap.Error(err))
		case captured != nil:
			plan = *captured
		}
	}

	payload := u.buildPayload(durationMs, query, sanitizer.Sanitize(params), stack, plan)

	if err := u.dispatcher.Enqueue(payload); err != nil {
		u.log.Error("queueing report failed, sending directly",
			zap.String("query_id", payload.QueryID),
			zap.Error(err))
		_ = u.fallback.Send(ctx, payload)
	}
}
