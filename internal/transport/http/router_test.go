package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/adscript/backend/internal/config"
	"github.com/adscript/backend/internal/core/services"
	"github.com/adscript/backend/internal/domain"
	"github.com/adscript/backend/internal/infrastructure/db"
	"github.com/adscript/backend/internal/infrastructure/logger"
	httpmw "github.com/adscript/backend/internal/transport/http/middleware"
	"github.com/gofiber/fiber/v2"
)

const callbackToken = "cb-secret"

type stubSender struct{}

func (stubSender) Send(ctx context.Context, task *domain.AdScriptTask) services.Outcome {
	return services.Outcome{Success: true, Attempts: 1, StatusCode: 200}
}

type testServer struct {
	app  *fiber.App
	repo *db.MemoryTaskRepository
}

func newTestServer(t *testing.T, adminKey string) *testServer {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg.Auth.AdminAPIKey = adminKey
	cfg.Auth.CallbackToken = callbackToken
	cfg.Dispatch.Workers = 1

	log := logger.NewNop()
	repo := db.NewMemoryTaskRepository(log)

	app := fiber.New()
	app.Use(httpmw.RequestID(cfg.Features.RequestIDHeader))
	runtime := SetupRoutes(app, RouterConfig{
		TaskRepo:  repo,
		EventRepo: db.NewMemoryTaskEventRepository(),
		Logger:    log,
		Config:    cfg,
		Sender:    stubSender{},
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = runtime.Pool.StopWait(ctx)
	})

	return &testServer{app: app, repo: repo}
}

func (s *testServer) do(t *testing.T, method, path, body string, headers map[string]string) (int, map[string]any, map[string]string) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var decoded map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
	}
	hdrs := map[string]string{"X-Request-ID": resp.Header.Get("X-Request-ID")}
	return resp.StatusCode, decoded, hdrs
}

func (s *testServer) create(t *testing.T) uint {
	t.Helper()
	code, body, _ := s.do(t, "POST", "/api/ad-scripts",
		`{"reference_script":"AAAAAAAAAAAAAAAAAAAAAAAAA","outcome_description":"valid outcome text"}`, nil)
	if code != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d (%v)", code, body)
	}
	return uint(body["id"].(float64))
}

func (s *testServer) waitForStatus(t *testing.T, id uint, want domain.TaskStatus) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		task, err := s.repo.GetByID(context.Background(), id)
		if err == nil && task.Status == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %d never reached %s", id, want)
}

func TestCreateTask(t *testing.T) {
	s := newTestServer(t, "")

	code, body, hdrs := s.do(t, "POST", "/api/ad-scripts",
		`{"reference_script":"AAAAAAAAAAAAAAAAAAAAAAAAA","outcome_description":"valid outcome text"}`,
		map[string]string{"X-Request-ID": "req-42"})
	if code != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d (%v)", code, body)
	}
	if body["status"] != "pending" || body["id"] == nil {
		t.Fatalf("unexpected body: %v", body)
	}
	if hdrs["X-Request-ID"] != "req-42" {
		t.Fatalf("request id not echoed: %v", hdrs)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	s := newTestServer(t, "")

	code, body, _ := s.do(t, "POST", "/api/ad-scripts", `{"reference_script":"too short","outcome_description":""}`, nil)
	if code != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", code)
	}
	errs, ok := body["errors"].(map[string]any)
	if !ok || errs["reference_script"] == nil || errs["outcome_description"] == nil {
		t.Fatalf("expected field errors, got %v", body)
	}
	if body["message"] == nil {
		t.Fatalf("expected message, got %v", body)
	}
}

func TestCallbackFlow(t *testing.T) {
	s := newTestServer(t, "")
	id := s.create(t)
	s.waitForStatus(t, id, domain.TaskStatusProcessing)
	path := "/api/ad-scripts/" + itoa(id) + "/result"
	auth := map[string]string{"Authorization": "Bearer " + callbackToken}

	tests := []struct {
		name    string
		body    string
		headers map[string]string
		want    int
	}{
		{"missing token", `{"task_id":` + itoa(id) + `,"new_script":"X","analysis":"Y"}`, nil, fiber.StatusUnauthorized},
		{"wrong token", `{"task_id":` + itoa(id) + `,"new_script":"X","analysis":"Y"}`, map[string]string{"Authorization": "Bearer nope"}, fiber.StatusUnauthorized},
		{"mismatched id", `{"task_id":999,"new_script":"X","analysis":"Y"}`, auth, fiber.StatusUnprocessableEntity},
		{"non-integer id", `{"task_id":"abc","new_script":"X","analysis":"Y"}`, auth, fiber.StatusUnprocessableEntity},
		{"missing fields", `{"task_id":` + itoa(id) + `}`, auth, fiber.StatusUnprocessableEntity},
		{"valid", `{"task_id":` + itoa(id) + `,"new_script":"X","analysis":"Y"}`, auth, fiber.StatusOK},
		{"replay", `{"task_id":"` + itoa(id) + `","new_script":"X2","analysis":"Y2"}`, auth, fiber.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body, _ := s.do(t, "POST", path, tt.body, tt.headers)
			if code != tt.want {
				t.Fatalf("expected %d, got %d (%v)", tt.want, code, body)
			}
			if code == fiber.StatusUnauthorized && body["error"] != "unauthorized" {
				t.Fatalf("unexpected 401 body: %v", body)
			}
			if code == fiber.StatusOK && body["ok"] != true {
				t.Fatalf("unexpected 200 body: %v", body)
			}
		})
	}

	code, body, _ := s.do(t, "GET", "/api/ad-scripts/"+itoa(id), "", nil)
	if code != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if body["status"] != "completed" || body["new_script"] != "X" || body["analysis"] != "Y" {
		t.Fatalf("unexpected task: %v", body)
	}
}

func TestCallbackUnknownTask(t *testing.T) {
	s := newTestServer(t, "")
	code, _, _ := s.do(t, "POST", "/api/ad-scripts/77/result",
		`{"task_id":77,"new_script":"X","analysis":"Y"}`,
		map[string]string{"Authorization": "Bearer " + callbackToken})
	if code != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
}

func TestListGetDeleteAndEvents(t *testing.T) {
	s := newTestServer(t, "")
	first := s.create(t)
	s.create(t)

	code, body, _ := s.do(t, "GET", "/api/ad-scripts?per_page=1", "", nil)
	if code != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	meta := body["meta"].(map[string]any)
	if meta["total"].(float64) != 2 || meta["per_page"].(float64) != 1 || len(body["data"].([]any)) != 1 {
		t.Fatalf("unexpected listing: %v", body)
	}

	s.waitForStatus(t, first, domain.TaskStatusProcessing)
	req := httptest.NewRequest("GET", "/api/ad-scripts/"+itoa(first)+"/events", nil)
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	var events []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	resp.Body.Close()
	if len(events) < 2 || events[len(events)-1]["event"] != "created" {
		t.Fatalf("unexpected events: %v", events)
	}

	if code, _, _ := s.do(t, "DELETE", "/api/ad-scripts/"+itoa(first), "", nil); code != fiber.StatusNoContent {
		t.Fatalf("expected 204, got %d", code)
	}
	if code, _, _ := s.do(t, "GET", "/api/ad-scripts/"+itoa(first), "", nil); code != fiber.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", code)
	}
	if code, _, _ := s.do(t, "GET", "/api/ad-scripts/abc", "", nil); code != fiber.StatusNotFound {
		t.Fatalf("expected 404 for bad id, got %d", code)
	}
}

func TestAdminAuth(t *testing.T) {
	s := newTestServer(t, "admin-key")

	if code, _, _ := s.do(t, "GET", "/api/ad-scripts", "", nil); code != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", code)
	}
	if code, _, _ := s.do(t, "GET", "/api/ad-scripts", "", map[string]string{"X-Admin-Token": "admin-key"}); code != fiber.StatusOK {
		t.Fatalf("expected 200 with key, got %d", code)
	}

	// The callback is guarded by its own token, not the admin key.
	code, _, _ := s.do(t, "POST", "/api/ad-scripts/1/result",
		`{"task_id":1,"new_script":"X","analysis":"Y"}`,
		map[string]string{"Authorization": "Bearer " + callbackToken})
	if code != fiber.StatusNotFound {
		t.Fatalf("expected 404 from callback, got %d", code)
	}
}

func TestWebsocketRequiresUpgrade(t *testing.T) {
	s := newTestServer(t, "")
	if code, _, _ := s.do(t, "GET", "/ws/ad-scripts", "", nil); code != fiber.StatusUpgradeRequired {
		t.Fatalf("expected 426, got %d", code)
	}
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func TestPruneEvents(t *testing.T) {
	s := newTestServer(t, "")
	id := s.create(t)
	s.waitForStatus(t, id, domain.TaskStatusProcessing)
	time.Sleep(10 * time.Millisecond)

	cases := []struct {
		name string
		body string
		want int
	}{
		{"purge without confirmation", `{"all":true}`, fiber.StatusBadRequest},
		{"bad duration", `{"older_than":"soon"}`, fiber.StatusBadRequest},
		{"negative duration", `{"older_than":"-1h"}`, fiber.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if code, body, _ := s.do(t, "POST", "/api/admin/events/cleanup", tc.body, nil); code != tc.want {
				t.Fatalf("expected %d, got %d (%v)", tc.want, code, body)
			}
		})
	}

	code, body, _ := s.do(t, "POST", "/api/admin/events/cleanup", "", nil)
	if code != fiber.StatusOK || body["deleted"].(float64) != 0 || body["older_than"] != "720h0m0s" {
		t.Fatalf("retention prune: %d %v", code, body)
	}

	code, body, _ = s.do(t, "POST", "/api/admin/events/cleanup", `{"all":true,"confirm_text":"PURGE EVENTS"}`, nil)
	if code != fiber.StatusOK || body["deleted"].(float64) < 1 {
		t.Fatalf("purge: %d %v", code, body)
	}
}
