package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/rahmatrdn/go-query-reporter/entity"
)

const userAgent = "go-query-reporter/1.0"

// WebhookSender posts one payload per call to the monitoring endpoint. Every
// attempt is terminal: timeouts, HTTP failures and network errors are logged
// with a distinguishing cause and never retried.
type WebhookSender struct {
	endpoint  string
	apiKey    string
	projectID string
	client    *http.Client
	log       *zap.Logger
}

func NewWebhookSender(endpoint, apiKey, projectID string, timeout time.Duration, log *zap.Logger) *WebhookSender {
	return &WebhookSender{
		endpoint:  endpoint,
		apiKey:    apiKey,
		projectID: projectID,
		client:    &http.Client{Timeout: timeout},
		log:       log,
	}
}

func (s *WebhookSender) Send(ctx context.Context, payload *entity.ReportPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		s.log.Error("report delivery failed",
			zap.String("cause", "encode"),
			zap.String("query_id", payload.QueryID),
			zap.Error(err))
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		s.log.Error("report delivery failed",
			zap.String("cause", "request"),
			zap.String("query_id", payload.QueryID),
			zap.Error(err))
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Project-Id", s.projectID)

	resp, err := s.client.Do(req)
	if err != nil {
		switch {
		case isTimeout(err):
			s.log.Error("report delivery timed out",
				zap.String("cause", "timeout"),
				zap.String("query_id", payload.QueryID),
				zap.Error(err))
		case isNetworkError(err):
			s.log.Error("report delivery failed, no response",
				zap.String("cause", "network"),
				zap.String("query_id", payload.QueryID),
				zap.Error(err))
		default:
			s.log.Error("report delivery failed",
				zap.String("cause", "unexpected"),
				zap.String("query_id", payload.QueryID),
				zap.Error(err))
		}
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		s.log.Error("report rejected by endpoint",
			zap.String("cause", "http_status"),
			zap.Int("status", resp.StatusCode),
			zap.String("query_id", payload.QueryID))
		return errors.New("webhook returned status " + resp.Status)
	}

	s.log.Debug("report delivered",
		zap.String("query_id", payload.QueryID),
		zap.Int("status", resp.StatusCode))
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isNetworkError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
