package usecase

import (
	"time"

	"github.com/google/uuid"

	"github.com/rahmatrdn/go-query-reporter/entity"
)

const truncationMarker = "... [TRUNCATED]"

// buildPayload composes the immutable report record. A fresh queryId is
// generated per payload, never reused across sends.
func (u *reporterUsecase) buildPayload(
	durationMs float64,
	query string,
	params map[string]any,
	stack []string,
	plan entity.ExecutionPlan,
) *entity.ReportPayload {
	if stack == nil {
		stack = []string{}
	}
	return &entity.ReportPayload{
		QueryID:         uuid.NewString(),
		RawQuery:        truncateQuery(query, u.cfg.MaxQuery),
		Parameters:      params,
		ExecutionTimeMs: durationMs,
		StackTrace:      stack,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		ContextType:     u.cfg.ContextType,
		Environment:     u.cfg.Environment,
		ApplicationName: u.cfg.ApplicationName,
		Version:         u.cfg.Version,
		ExecutionPlan:   plan,
	}
}

// truncateQuery cuts the raw query at max characters and appends the marker;
// the marker does not count toward the limit.
func truncateQuery(query string, max int) string {
	if max <= 0 || len(query) <= max {
		return query
	}
	return query[:max] + truncationMarker
}
