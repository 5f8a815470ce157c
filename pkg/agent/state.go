package agent

import (
	"github.com/restwell/sleepagent/pkg/analyzer"
	"github.com/restwell/sleepagent/pkg/memory"
	"github.com/restwell/sleepagent/pkg/task"
)

// Stage names the pipeline's state machine states. The error stage is
// terminal and only reachable from validation; failures later in the
// pipeline degrade or accumulate instead of aborting.
type Stage string

const (
	StageValidation  Stage = "validation"
	StageMemoryFetch Stage = "memory_fetch"
	StageReasoning   Stage = "reasoning"
	StageFanOut      Stage = "fan_out"
	StageMemoryWrite Stage = "memory_write"
	StageFormatting  Stage = "formatting"
	StageDone        Stage = "done"
	StageError       Stage = "error"
)

// State is the single working record a task carries through the pipeline.
// Ownership transfers stage to stage; only the fan-out stage has two
// simultaneous writers, and they return disjoint patches instead of writing
// here directly.
type State struct {
	TaskID  string
	UserID  string
	Payload *task.Payload

	STMSessions []memory.Session
	LTM         memory.LTMRecord
	LTMFound    bool

	Analysis *analyzer.Analysis

	SleepScore       int
	Confidence       float64
	Recommendations  *memory.Recommendations
	PersonalizedTips []string

	Summary string
	Issues  []string

	Errors []string
	Status string
}

func newState(req task.Request) *State {
	return &State{
		TaskID:  req.TaskID,
		UserID:  req.UserID,
		Payload: req.Payload,
		Status:  task.StatusPending,
	}
}

func (s *State) addError(msg string) {
	s.Errors = append(s.Errors, msg)
}

// payloadSessions returns the new sessions this task brought in.
func (s *State) payloadSessions() []memory.Session {
	if s.Payload == nil {
		return nil
	}
	return s.Payload.SleepSessions
}

func (s *State) profile() *task.Profile {
	if s.Payload == nil {
		return nil
	}
	return s.Payload.Profile
}

// combinedSessions is the analysis ordering: stored history first, then the
// new payload sessions.
func (s *State) combinedSessions() []memory.Session {
	return append(append([]memory.Session{}, s.STMSessions...), s.payloadSessions()...)
}

// scoringSessions is the scoring ordering: payload first, then stored
// history. Order only affects presentation, not the formulas.
func (s *State) scoringSessions() []memory.Session {
	return append(append([]memory.Session{}, s.payloadSessions()...), s.STMSessions...)
}

// scorePatch and recommendPatch are the disjoint field sets the two fan-out
// branches produce. The orchestrator merges them; neither branch touches the
// shared state.
type scorePatch struct {
	sleepScore int
	confidence float64
}

type recommendPatch struct {
	recommendations *memory.Recommendations
	tips            []string
}
