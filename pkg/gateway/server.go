package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/restwell/sleepagent/pkg/bus"
	"github.com/restwell/sleepagent/pkg/config"
	"github.com/restwell/sleepagent/pkg/logger"
	"github.com/restwell/sleepagent/pkg/memory"
	"github.com/restwell/sleepagent/pkg/task"
)

// Server is the HTTP boundary of the worker agent. The supervisor submits
// tasks on /task; /memory exposes the stored tiers for inspection and reset.
type Server struct {
	cfg       *config.Config
	bus       *bus.TaskBus
	store     memory.Store
	stm       *memory.ShortTermMemory
	ltm       *memory.LongTermMemory
	limits    task.Limits
	startTime time.Time
	httpSrv   *http.Server
}

func NewServer(cfg *config.Config, taskBus *bus.TaskBus, store memory.Store) *Server {
	s := &Server{
		cfg:       cfg,
		bus:       taskBus,
		store:     store,
		stm: memory.NewShortTermMemory(store, cfg.Memory.STMRetentionDays),
		ltm: memory.NewLongTermMemory(store),
		limits: task.Limits{
			MaxSessions: cfg.Task.MaxSessions,
			MinDuration: cfg.Analysis.MinDuration,
			MaxDuration: cfg.Analysis.MaxDuration,
		},
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /task", s.handleTask)
	mux.HandleFunc("GET /memory", s.handleGetMemory)
	mux.HandleFunc("DELETE /memory", s.handleClearMemory)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.HandleFunc("POST /register", s.handleRegister)

	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port),
		Handler:           corsMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	logger.InfoCF("gateway", "HTTP server listening", map[string]interface{}{
		"addr": s.httpSrv.Addr,
	})
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gateway server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// Handler exposes the routed handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type errorBody struct {
	Error   string      `json:"error"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, msg string, details interface{}) {
	writeJSON(w, status, errorBody{Error: msg, Code: code, Details: details})
}

// requireUserID rejects missing, blank and the placeholder default_user id
// that unauthenticated frontends send.
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_PARAMETER",
			"Missing required parameter", map[string]string{"parameter": "user_id"})
		return "", false
	}
	if userID == "default_user" || strings.TrimSpace(userID) == "" {
		logger.WarnCF("gateway", "Invalid user_id attempted", map[string]interface{}{
			"user_id": userID,
			"path":    r.URL.Path,
		})
		writeError(w, http.StatusBadRequest, "INVALID_USER_ID",
			"Invalid user_id. Please login through supervisor agent.", nil)
		return "", false
	}
	return userID, true
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	var req task.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST",
			"Invalid request", "Request body must be valid JSON")
		return
	}
	if req.TaskID == "" {
		req.TaskID = uuid.NewString()
	}

	// Envelope failures are the caller's fault and never reach the workers.
	if err := task.ValidateRequest(&req, s.limits); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR",
			err.Error(), map[string]interface{}{})
		return
	}

	logger.InfoCF("gateway", fmt.Sprintf("Processing task %s", req.TaskID), map[string]interface{}{
		"task_id": req.TaskID,
		"user_id": req.UserID,
	})

	result, err := s.bus.Submit(r.Context(), req)
	if err != nil {
		logger.ErrorCF("gateway", "Task submission failed", map[string]interface{}{
			"task_id": req.TaskID,
			"error":   err.Error(),
		})
		writeError(w, http.StatusServiceUnavailable, "SUBMIT_FAILED",
			"Task could not be processed", map[string]string{"message": err.Error()})
		return
	}

	if result.Status == task.StatusError {
		writeJSON(w, http.StatusInternalServerError, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type memoryView struct {
	UserID string  `json:"user_id"`
	STM    stmView `json:"stm"`
	LTM    ltmView `json:"ltm"`
}

type stmView struct {
	Sessions []memory.Session `json:"sessions"`
	Count    int              `json:"count"`
}

type ltmView struct {
	Trends      memory.Trends      `json:"trends"`
	Patterns    []memory.Pattern   `json:"patterns"`
	Preferences memory.Preferences `json:"preferences"`
	Available   bool               `json:"available"`
}

func (s *Server) handleGetMemory(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	sessions, err := s.stm.Sessions(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"Internal server error", map[string]string{"message": err.Error()})
		return
	}
	record, found, err := s.ltm.Record(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"Internal server error", map[string]string{"message": err.Error()})
		return
	}
	if sessions == nil {
		sessions = []memory.Session{}
	}
	if record.Patterns == nil {
		record.Patterns = []memory.Pattern{}
	}

	writeJSON(w, http.StatusOK, memoryView{
		UserID: userID,
		STM:    stmView{Sessions: sessions, Count: len(sessions)},
		LTM: ltmView{
			Trends:      record.Trends,
			Patterns:    record.Patterns,
			Preferences: record.Preferences,
			Available:   found,
		},
	})
}

func (s *Server) handleClearMemory(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	stmDeleted, err := s.store.Delete(r.Context(), userID, memory.KindSTM)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"Internal server error", map[string]string{"message": err.Error()})
		return
	}
	ltmDeleted, err := s.store.Delete(r.Context(), userID, memory.KindLTM)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"Internal server error", map[string]string{"message": err.Error()})
		return
	}

	logger.InfoCF("gateway", "Memory cleared", map[string]interface{}{
		"user_id":     userID,
		"stm_deleted": stmDeleted,
		"ltm_deleted": ltmDeleted,
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":     userID,
		"stm_deleted": stmDeleted,
		"ltm_deleted": ltmDeleted,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(s.startTime).Seconds()

	storageHealthy := true
	userCount := 0
	if users, err := s.store.ListUsers(r.Context()); err != nil {
		storageHealthy = false
	} else {
		userCount = len(users)
	}

	status := http.StatusOK
	state := "healthy"
	if !storageHealthy {
		status = http.StatusServiceUnavailable
		state = "unhealthy"
	}

	writeJSON(w, status, map[string]interface{}{
		"status":          state,
		"agent":           s.cfg.Agent.Name,
		"agent_id":        s.cfg.Agent.ID,
		"version":         s.cfg.Agent.Version,
		"uptime_seconds":  float64(int(uptime*100)) / 100,
		"storage_healthy": storageHealthy,
		"user_count":      userCount,
		"queue_depth":     s.bus.Depth(),
		"tasks_dropped":   s.bus.Dropped(),
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ready":     true,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleRegister answers the supervisor's capability probe with the agent's
// metadata and supported data formats.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"agent_id":          s.cfg.Agent.ID,
		"agent_name":        s.cfg.Agent.Name,
		"agent_description": s.cfg.Agent.Description,
		"version":           s.cfg.Agent.Version,
		"capabilities": []string{
			"sleep_analysis",
			"sleep_scoring",
			"recommendation_generation",
			"memory_management",
			"trend_analysis",
			"personalized_planning",
		},
		"endpoints": map[string]string{
			"task":   "/task",
			"health": "/health",
			"memory": "/memory",
		},
		"supported_data_formats": map[string][]string{
			"sleep_sessions": {
				"bedtime", "waketime", "duration_hours",
				"efficiency_score", "interruptions", "morning_mood",
			},
			"profile": {
				"age", "work_schedule", "caffeine_intake",
				"screen_time", "exercise", "stress_level",
			},
		},
		"features": map[string]interface{}{
			"memory_system":      true,
			"stm_retention_days": s.cfg.Memory.STMRetentionDays,
			"ltm_retention_days": s.cfg.Memory.LTMRetentionDays,
		},
	})
}
