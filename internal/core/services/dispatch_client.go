package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/adscript/backend/internal/config"
	"github.com/adscript/backend/internal/domain"
	"github.com/adscript/backend/internal/infrastructure/logger"
	"github.com/google/uuid"
)

// maxResponseBody bounds how much of a workflow response is read for diagnostics.
const maxResponseBody = 64 << 10

// Outcome is the result of delivering one task to the workflow, after retries.
type Outcome struct {
	Success    bool
	Attempts   int
	StatusCode int
	Err        *DispatchError
}

// webhookPayload is the body posted to the rewrite workflow.
type webhookPayload struct {
	TaskID             uint   `json:"task_id"`
	ReferenceScript    string `json:"reference_script"`
	OutcomeDescription string `json:"outcome_description"`
	CorrelationID      string `json:"correlation_id"`
	CallbackURL        string `json:"callback_url,omitempty"`
}

// DispatchClient delivers tasks to the external rewrite workflow.
type DispatchClient struct {
	cfg    config.WebhookConfig
	app    config.AppConfig
	client *http.Client
	logger *logger.Logger

	// sleep waits between attempts; swapped in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewDispatchClient(cfg config.WebhookConfig, app config.AppConfig, log *logger.Logger) *DispatchClient {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &DispatchClient{
		cfg:    cfg,
		app:    app,
		client: &http.Client{},
		logger: log,
		sleep:  sleepContext,
	}
}

// CorrelationID is stable for a task across retries and restarts.
func CorrelationID(taskID uint) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("ad-script-task:%d", taskID))).String()
}

// Send posts task to the workflow, retrying transient failures up to
// webhook.max_attempts. It never panics.
func (c *DispatchClient) Send(ctx context.Context, task *domain.AdScriptTask) (out Outcome) {
	if task == nil {
		return Outcome{Err: newPermanentError(0, "no task to dispatch", nil)}
	}

	id := task.ID
	defer func() {
		if r := recover(); r != nil {
			c.logger.Errorw("dispatch_send_panic", "id", id, "panic", r, "stack", string(debug.Stack()))
			out.Success = false
			out.Err = newPermanentError(0, fmt.Sprintf("dispatch panicked: %v", r), nil)
		}
	}()

	correlationID := CorrelationID(task.ID)
	body, err := json.Marshal(webhookPayload{
		TaskID:             task.ID,
		ReferenceScript:    task.ReferenceScript,
		OutcomeDescription: task.OutcomeDescription,
		CorrelationID:      correlationID,
		CallbackURL:        c.app.CallbackURL(task.ID),
	})
	if err != nil {
		return Outcome{Err: newPermanentError(0, "failed to encode payload", err)}
	}

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		out.Attempts = attempt

		statusCode, derr := c.attempt(ctx, body, correlationID)
		out.StatusCode = statusCode
		if derr == nil {
			c.logger.Infow("dispatch_attempt_ok", "id", task.ID, "attempt", attempt, "status_code", statusCode)
			out.Success = true
			out.Err = nil
			return out
		}

		out.Err = derr
		c.logger.Warnw("dispatch_attempt_failed",
			"id", task.ID,
			"attempt", attempt,
			"max_attempts", c.cfg.MaxAttempts,
			"kind", derr.Kind,
			"status_code", statusCode,
			"error", derr.Error(),
		)

		if !derr.Retryable() || attempt == c.cfg.MaxAttempts {
			break
		}
		if err := c.sleep(ctx, c.backoff()); err != nil {
			break
		}
	}

	return out
}

func (c *DispatchClient) attempt(ctx context.Context, body []byte, correlationID string) (int, *DispatchError) {
	reqCtx := ctx
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.cfg.URL(), bytes.NewReader(body))
	if err != nil {
		return 0, newPermanentError(0, "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.cfg.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.BearerToken)
	}
	if c.cfg.SendRequestID {
		req.Header.Set("X-Request-ID", correlationID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, newTransientError(0, "request timed out", err)
		}
		return 0, newTransientError(0, "failed to send request", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return resp.StatusCode, nil
	case resp.StatusCode >= 500:
		return resp.StatusCode, newTransientError(resp.StatusCode, statusMessage(resp.StatusCode, respBody), nil)
	default:
		return resp.StatusCode, newPermanentError(resp.StatusCode, statusMessage(resp.StatusCode, respBody), nil)
	}
}

func (c *DispatchClient) backoff() time.Duration {
	d := c.cfg.RetryDelay
	if c.cfg.RetryJitter > 0 {
		d += time.Duration(rand.Int63n(int64(c.cfg.RetryJitter)))
	}
	return d
}

func statusMessage(code int, body []byte) string {
	msg := fmt.Sprintf("HTTP %d", code)
	if b := strings.TrimSpace(string(body)); b != "" {
		msg += ": " + b
	}
	return TruncateDetail(msg)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
