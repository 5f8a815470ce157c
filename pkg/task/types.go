package task

import (
	"github.com/restwell/sleepagent/pkg/memory"
)

// Task lifecycle statuses. Error is terminal and only reachable from
// validation; everything downstream degrades instead of failing.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// Request is the task envelope consumed from the gateway or CLI.
type Request struct {
	TaskID  string   `json:"task_id"`
	UserID  string   `json:"user_id"`
	Payload *Payload `json:"payload"`
}

// Payload carries the new data a task brings in. Both fields are optional; a
// task with neither still runs against stored memory.
type Payload struct {
	SleepSessions []memory.Session `json:"sleep_sessions,omitempty"`
	Profile       *Profile         `json:"profile,omitempty"`
}

// Empty reports whether the payload carries nothing new.
func (p *Payload) Empty() bool {
	return p == nil || (len(p.SleepSessions) == 0 && p.Profile == nil)
}

// Profile is user-supplied lifestyle context. It is read-only input to
// analysis and recommendations and is never persisted directly.
type Profile struct {
	Age              *int     `json:"age,omitempty"`
	WorkSchedule     string   `json:"work_schedule,omitempty"`
	CaffeineIntake   string   `json:"caffeine_intake,omitempty"`
	CaffeineAfter8PM bool     `json:"caffeine_after_8pm,omitempty"`
	ScreenTimeHours  float64  `json:"screen_time,omitempty"`
	Exercise         string   `json:"exercise,omitempty"`
	StressLevel      *int     `json:"stress_level,omitempty"`
	AvgSleepDuration *float64 `json:"avg_sleep_duration,omitempty"`
}

// ResultBody is the success payload of a completed task.
type ResultBody struct {
	Summary          string                  `json:"summary"`
	Issues           []string                `json:"issues"`
	Recommendations  *memory.Recommendations `json:"recommendations,omitempty"`
	SleepScore       int                     `json:"sleep_score"`
	Confidence       float64                 `json:"confidence"`
	PersonalizedTips []string                `json:"personalized_tips"`
}

// Result is the response envelope. Exactly one of Result/Error is set,
// keyed by Status.
type Result struct {
	TaskID string      `json:"task_id"`
	Status string      `json:"status"`
	Result *ResultBody `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}
