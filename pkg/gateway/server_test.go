package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/restwell/sleepagent/pkg/agent"
	"github.com/restwell/sleepagent/pkg/bus"
	"github.com/restwell/sleepagent/pkg/config"
	"github.com/restwell/sleepagent/pkg/memory"
	"github.com/restwell/sleepagent/pkg/task"
)

// newTestServer wires a real pipeline behind the HTTP handler with a single
// worker draining the bus.
func newTestServer(t *testing.T) (*httptest.Server, memory.Store) {
	t.Helper()

	cfg := config.DefaultConfig()
	store, err := memory.NewSQLiteStore(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}

	taskBus := bus.NewTaskBus(10)
	service := agent.NewService(taskBus, agent.NewPipeline(cfg, store), 1)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = service.Run(ctx) }()

	srv := httptest.NewServer(NewServer(cfg, taskBus, store).Handler())
	t.Cleanup(func() {
		srv.Close()
		service.Stop()
		cancel()
		_ = store.Close()
	})
	return srv, store
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, into interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestTaskEndpointRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/task", map[string]interface{}{
		"task_id": "task-1",
		"user_id": "alice",
		"payload": map[string]interface{}{
			"sleep_sessions": []map[string]interface{}{
				{"session_date": "2025-06-14", "bedtime": "23:00", "waketime": "07:00", "duration_hours": 8},
			},
		},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var result task.Result
	decodeBody(t, resp, &result)
	if result.Status != task.StatusCompleted || result.Result == nil {
		t.Fatalf("result = %+v", result)
	}
	if result.Result.SleepScore == 0 {
		t.Fatal("expected a nonzero sleep score")
	}
}

func TestTaskEndpointGeneratesTaskID(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/task", map[string]interface{}{
		"user_id": "bob",
		"payload": map[string]interface{}{"sleep_sessions": []interface{}{}},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var result task.Result
	decodeBody(t, resp, &result)
	if result.TaskID == "" {
		t.Fatal("task_id should be generated when omitted")
	}
}

func TestTaskEndpointRejectsMalformedJSON(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/task", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}

	var body map[string]interface{}
	decodeBody(t, resp, &body)
	if body["code"] != "INVALID_REQUEST" {
		t.Fatalf("code = %v", body["code"])
	}
}

func TestTaskEndpointInvalidEnvelopeIs400(t *testing.T) {
	srv, _ := newTestServer(t)

	// Missing user_id is the caller's fault: rejected at the boundary, never
	// submitted to the workers.
	resp := postJSON(t, srv.URL+"/task", map[string]interface{}{
		"task_id": "task-bad",
		"payload": map[string]interface{}{"sleep_sessions": []interface{}{}},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}

	var body map[string]interface{}
	decodeBody(t, resp, &body)
	if body["code"] != "VALIDATION_ERROR" {
		t.Fatalf("code = %v", body["code"])
	}
	if body["error"] != "user_id must be a non-empty string" {
		t.Fatalf("error = %v", body["error"])
	}
}

func TestTaskEndpointPipelineErrorIs500(t *testing.T) {
	srv, _ := newTestServer(t)

	// Range checks beyond the envelope shape run inside the pipeline and come
	// back as an error result.
	resp := postJSON(t, srv.URL+"/task", map[string]interface{}{
		"task_id": "task-range",
		"user_id": "erin",
		"payload": map[string]interface{}{
			"sleep_sessions": []map[string]interface{}{
				{
					"session_date":     "2025-06-14",
					"bedtime":          "23:00",
					"waketime":         "07:00",
					"duration_hours":   8,
					"efficiency_score": 150,
				},
			},
		},
	})
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}

	var result task.Result
	decodeBody(t, resp, &result)
	if result.Status != task.StatusError || !strings.Contains(result.Error, "efficiency_score") {
		t.Fatalf("result = %+v", result)
	}
}

func TestMemoryEndpointRequiresUserID(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/memory")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	var body map[string]interface{}
	decodeBody(t, resp, &body)
	if body["code"] != "MISSING_PARAMETER" {
		t.Fatalf("code = %v", body["code"])
	}
}

func TestMemoryEndpointRejectsDefaultUser(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/memory?user_id=default_user")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	var body map[string]interface{}
	decodeBody(t, resp, &body)
	if body["code"] != "INVALID_USER_ID" {
		t.Fatalf("code = %v", body["code"])
	}
}

func TestMemoryEndpointReflectsProcessedTask(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/task", map[string]interface{}{
		"task_id": "task-m",
		"user_id": "carol",
		"payload": map[string]interface{}{
			"sleep_sessions": []map[string]interface{}{
				{"session_date": "2025-06-14", "bedtime": "23:00", "waketime": "07:00", "duration_hours": 8},
			},
		},
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("task status = %d", resp.StatusCode)
	}

	resp, err := http.Get(srv.URL + "/memory?user_id=carol")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	var view memoryView
	decodeBody(t, resp, &view)
	if view.STM.Count != 1 {
		t.Fatalf("stm count = %d, want 1", view.STM.Count)
	}
	if !view.LTM.Available {
		t.Fatal("ltm should be available after a processed task")
	}
}

func TestMemoryClearEndpoint(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()

	stm := memory.NewShortTermMemory(store, 7)
	if err := stm.Save(ctx, "dana", []memory.Session{
		{SessionID: "d1", SessionDate: "2025-06-14", DurationHours: 8},
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/memory?user_id=dana", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]interface{}
	decodeBody(t, resp, &body)
	if body["stm_deleted"] != true {
		t.Fatalf("stm_deleted = %v", body["stm_deleted"])
	}

	sessions, err := stm.Sessions(ctx, "dana")
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("sessions remain after clear: %d", len(sessions))
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]interface{}
	decodeBody(t, resp, &body)
	if body["status"] != "healthy" {
		t.Fatalf("status = %v", body["status"])
	}
	if body["agent_id"] != "sleep-optimizer-agent-001" {
		t.Fatalf("agent_id = %v", body["agent_id"])
	}
	if body["storage_healthy"] != true {
		t.Fatalf("storage_healthy = %v", body["storage_healthy"])
	}
}

func TestReadyEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/ready")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	var body map[string]interface{}
	decodeBody(t, resp, &body)
	if body["ready"] != true {
		t.Fatalf("ready = %v", body["ready"])
	}
}

func TestRegisterEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/register", map[string]interface{}{})
	var body map[string]interface{}
	decodeBody(t, resp, &body)
	if body["agent_id"] != "sleep-optimizer-agent-001" {
		t.Fatalf("agent_id = %v", body["agent_id"])
	}
	caps, ok := body["capabilities"].([]interface{})
	if !ok || len(caps) == 0 {
		t.Fatalf("capabilities = %v", body["capabilities"])
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t)

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/task", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("CORS header missing")
	}
}
