// Package transport contains the delivery strategies for slow query report
// payloads. Strategies are selected at construction time behind the Sender
// interface: queued dispatch wraps a WebhookSender, while a NoopSender serves
// as the degraded path when configuration is unusable.
package transport

import (
	"context"

	"go.uber.org/zap"

	"github.com/rahmatrdn/go-query-reporter/entity"
)

// Sender delivers one payload. Implementations log every outcome themselves;
// the returned error exists for composition and tests, it is never retried.
type Sender interface {
	Send(ctx context.Context, payload *entity.ReportPayload) error
}

// NoopSender drops every payload. Used when the configuration failed
// validation so the host application keeps running with reporting disabled.
type NoopSender struct {
	log *zap.Logger
}

func NewNoopSender(log *zap.Logger) *NoopSender {
	return &NoopSender{log: log}
}

func (s *NoopSender) Send(_ context.Context, payload *entity.ReportPayload) error {
	s.log.Debug("report dropped, delivery disabled", zap.String("query_id", payload.QueryID))
	return nil
}
