package services

import (
	"context"
	"errors"
	"testing"

	"github.com/adscript/backend/internal/core/ports"
	"github.com/adscript/backend/internal/domain"
	"github.com/adscript/backend/internal/infrastructure/logger"
)

func TestCallbackAuthRejection(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		token  string
	}{
		{"wrong token", testToken, "nope"},
		{"missing token", testToken, ""},
		{"empty secret rejects everything", "", ""},
		{"empty secret rejects any token", "", "anything"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			svc := NewCallbackService(env.repo, env.lifecycle, tt.secret, logger.NewNop())
			task := env.createPending(t)

			_, err := svc.Receive(context.Background(), callbackInput(task.ID, tt.token, "X", "Y"))
			if !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("expected ErrUnauthorized, got %v", err)
			}
			if got := env.get(t, task.ID); got.Status != domain.TaskStatusPending {
				t.Fatalf("task changed on rejected callback: %s", got.Status)
			}
		})
	}
}

func TestCallbackAuthComesFirst(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.callback.Receive(context.Background(), ports.CallbackInput{PathID: 999, BearerToken: "bad"})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized before validation, got %v", err)
	}
}

func TestCallbackValidation(t *testing.T) {
	other := int64(8)
	negative := int64(-1)

	tests := []struct {
		name      string
		mutate    func(in *ports.CallbackInput)
		wantField string
		wantMsg   string
	}{
		{"missing task id", func(in *ports.CallbackInput) { in.TaskID = nil }, "task_id", "The task id field is required."},
		{"non-integer task id", func(in *ports.CallbackInput) { in.TaskID = nil; in.TaskIDInvalid = true }, "task_id", "The task id field must be an integer."},
		{"mismatched task id", func(in *ports.CallbackInput) { in.TaskID = &other }, "task_id", "The selected task id is invalid."},
		{"negative task id", func(in *ports.CallbackInput) { in.TaskID = &negative }, "task_id", "The selected task id is invalid."},
		{"missing new script", func(in *ports.CallbackInput) { in.NewScript = "  " }, "new_script", "The new script field is required."},
		{"missing analysis", func(in *ports.CallbackInput) { in.Analysis = "" }, "analysis", "The analysis field is required."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			task := env.createPending(t)

			in := callbackInput(task.ID, testToken, "X", "Y")
			tt.mutate(&in)

			_, err := env.callback.Receive(context.Background(), in)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			msgs := verr.Fields[tt.wantField]
			if len(msgs) != 1 || msgs[0] != tt.wantMsg {
				t.Fatalf("expected %s: %q, got %v", tt.wantField, tt.wantMsg, verr.Fields)
			}
			if got := env.get(t, task.ID); got.Status != domain.TaskStatusPending {
				t.Fatalf("task changed on invalid callback: %s", got.Status)
			}
		})
	}
}

func TestCallbackUnknownTask(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.callback.Receive(context.Background(), callbackInput(42, testToken, "X", "Y"))
	if !errors.Is(err, domain.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestCallbackIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	task := env.createPending(t)

	res, err := env.callback.Receive(ctx, callbackInput(task.ID, testToken, "X", "Y"))
	if err != nil {
		t.Fatalf("first callback: %v", err)
	}
	if !res.Applied || res.Task.Status != domain.TaskStatusCompleted {
		t.Fatalf("unexpected first result: %+v", res)
	}

	res, err = env.callback.Receive(ctx, callbackInput(task.ID, testToken, "X2", "Y2"))
	if err != nil {
		t.Fatalf("replayed callback: %v", err)
	}
	if res.Applied {
		t.Fatal("replayed callback was applied")
	}

	got := env.get(t, task.ID)
	if got.Status != domain.TaskStatusCompleted || deref(got.NewScript) != "X" || deref(got.Analysis) != "Y" {
		t.Fatalf("completed task changed: %+v", got)
	}
}

func TestLateCallbackLeavesFailedTask(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	task := env.createPending(t)

	if _, err := env.lifecycle.Fail(ctx, task.ID, "HTTP 500: down", domain.TransitionMeta{}); err != nil {
		t.Fatalf("fail: %v", err)
	}

	res, err := env.callback.Receive(ctx, callbackInput(task.ID, testToken, "X", "Y"))
	if err != nil {
		t.Fatalf("late callback: %v", err)
	}
	if res.Applied {
		t.Fatal("late callback rescued a failed task")
	}

	got := env.get(t, task.ID)
	if got.Status != domain.TaskStatusFailed || got.NewScript != nil || deref(got.ErrorDetail) != "HTTP 500: down" {
		t.Fatalf("failed task changed: %+v", got)
	}
}
