package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/adscript/backend/internal/config"
	"github.com/adscript/backend/internal/core/ports"
	"github.com/adscript/backend/internal/domain"
	"github.com/adscript/backend/internal/infrastructure/logger"
)

// failureAlert is posted to the alert endpoint when a dispatch gives up.
type failureAlert struct {
	Connection string `json:"connection"`
	Queue      string `json:"queue"`
	Job        string `json:"job"`
	Exception  string `json:"exception"`
}

// FailureNotifier reports permanently failed dispatches to an external
// endpoint. It never returns or propagates an error.
type FailureNotifier struct {
	cfg      config.AlertsConfig
	dispatch config.DispatchConfig
	client   *http.Client
	logger   *logger.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

var _ ports.TransitionObserver = (*FailureNotifier)(nil)

func NewFailureNotifier(cfg config.AlertsConfig, dispatch config.DispatchConfig, log *logger.Logger) *FailureNotifier {
	return &FailureNotifier{
		cfg:      cfg,
		dispatch: dispatch,
		client:   &http.Client{Timeout: cfg.Timeout},
		logger:   log,
		sleep:    sleepContext,
	}
}

// JobName identifies a task's dispatch job in alerts.
func JobName(taskID uint) string {
	return fmt.Sprintf("SendAdScriptWebhook#%d", taskID)
}

func (n *FailureNotifier) OnTransition(ctx context.Context, result domain.TransitionResult) {
	if n.cfg.URL == "" || !result.Applied || result.Event != domain.EventDispatchFailed || result.Task == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			n.logger.Errorw("failure_alert_panic", "id", result.Task.ID, "panic", r, "stack", string(debug.Stack()))
		}
	}()

	exception := ""
	if result.Task.ErrorDetail != nil {
		exception = *result.Task.ErrorDetail
	}
	body, err := json.Marshal(failureAlert{
		Connection: n.dispatch.Connection,
		Queue:      n.dispatch.Queue,
		Job:        JobName(result.Task.ID),
		Exception:  TruncateDetail(exception),
	})
	if err != nil {
		n.logger.Errorw("failure_alert_encode_failed", "id", result.Task.ID, "error", err)
		return
	}

	// Alerts outlive the request or job that failed the task.
	alertCtx := context.WithoutCancel(ctx)

	err = n.post(alertCtx, body)
	if err == nil {
		n.logger.Infow("failure_alert_sent", "id", result.Task.ID)
		return
	}
	n.logger.Warnw("failure_alert_attempt_failed", "id", result.Task.ID, "attempt", 1, "error", err)

	if err := n.sleep(alertCtx, n.cfg.RetryDelay); err != nil {
		return
	}
	if err := n.post(alertCtx, body); err != nil {
		n.logger.Errorw("failure_alert_failed", "id", result.Task.ID, "attempt", 2, "error", err)
		return
	}
	n.logger.Infow("failure_alert_sent", "id", result.Task.ID, "attempt", 2)
}

func (n *FailureNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("alert endpoint returned HTTP %d", resp.StatusCode)
	}
	return nil
}
