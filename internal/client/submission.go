package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harsh-BH/sentinel-judge/internal/domain"
)

// RetryPolicy bounds how hard a client retries transient failures.
type RetryPolicy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// BackOff builds a capped exponential backoff bound to ctx.
func (p RetryPolicy) BackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialBackoff
	b.MaxInterval = p.MaxBackoff
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.MaxRetries)), ctx)
}

// SubmissionClient delivers status updates to the submission record store.
type SubmissionClient struct {
	baseURL string
	token   string
	http    *http.Client
	retry   RetryPolicy
	logger  *zap.Logger
}

// NewSubmissionClient creates a client for the status-update contract.
// token is sent as a bearer credential on every call.
func NewSubmissionClient(baseURL, token string, httpClient *http.Client, retry RetryPolicy, logger *zap.Logger) *SubmissionClient {
	return &SubmissionClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
		retry:   retry,
		logger:  logger,
	}
}

// Deliver sends status and verdicts for a submission. Server errors and
// transport failures are retried; client errors are not. A 409 means the
// submission is already terminal and yields ErrStatusConflict.
func (c *SubmissionClient) Deliver(ctx context.Context, id uuid.UUID, status domain.SubmissionStatus, verdicts domain.VerdictMap) error {
	if verdicts == nil {
		verdicts = domain.VerdictMap{}
	}
	body, err := json.Marshal(domain.StatusUpdateRequest{Status: status, Verdicts: verdicts})
	if err != nil {
		return fmt.Errorf("client: marshal status: %w", err)
	}
	url := fmt.Sprintf("%s/submissions/%s/status", c.baseURL, id)

	attempt := 0
	op := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.token)

		resp, err := c.http.Do(req)
		if err != nil {
			c.logger.Warn("status delivery failed",
				zap.String("submission_id", id.String()),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return err
		}
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode == http.StatusConflict:
			return backoff.Permanent(fmt.Errorf("%w: %s", domain.ErrStatusConflict, strings.TrimSpace(string(msg))))
		case resp.StatusCode >= 500:
			c.logger.Warn("status delivery rejected by server",
				zap.String("submission_id", id.String()),
				zap.Int("attempt", attempt),
				zap.Int("http_status", resp.StatusCode),
			)
			return fmt.Errorf("submission service returned %d", resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("%w: %d: %s", domain.ErrDeliveryRejected, resp.StatusCode, strings.TrimSpace(string(msg))))
		}
	}

	if err := backoff.Retry(op, c.retry.BackOff(ctx)); err != nil {
		if errors.Is(err, domain.ErrStatusConflict) {
			return err
		}
		return fmt.Errorf("client: deliver %s status: %w", status, err)
	}
	return nil
}
