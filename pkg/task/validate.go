package task

import (
	"fmt"
	"strings"

	"github.com/restwell/sleepagent/pkg/memory"
)

// Limits are the validation bounds, taken from configuration at startup.
type Limits struct {
	MaxSessions int
	MinDuration float64
	MaxDuration float64
}

// ValidateRequest checks the envelope and the structural shape of each
// session. The first failure is fatal; requests failing here never reach the
// memory tier.
func ValidateRequest(req *Request, limits Limits) error {
	if req == nil {
		return fmt.Errorf("request must be a JSON object")
	}
	if strings.TrimSpace(req.TaskID) == "" {
		return fmt.Errorf("task_id must be a non-empty string")
	}
	if strings.TrimSpace(req.UserID) == "" {
		return fmt.Errorf("user_id must be a non-empty string")
	}
	if req.Payload == nil {
		return fmt.Errorf("missing required field: payload")
	}

	sessions := req.Payload.SleepSessions
	if limits.MaxSessions > 0 && len(sessions) > limits.MaxSessions {
		return fmt.Errorf("too many sleep sessions (max: %d)", limits.MaxSessions)
	}
	for i, s := range sessions {
		if s.Bedtime == "" {
			return fmt.Errorf("sleep_sessions[%d] missing required field: bedtime", i)
		}
		if s.Waketime == "" {
			return fmt.Errorf("sleep_sessions[%d] missing required field: waketime", i)
		}
		if s.DurationHours == 0 {
			return fmt.Errorf("sleep_sessions[%d] missing required field: duration_hours", i)
		}
		if s.DurationHours < limits.MinDuration || s.DurationHours > limits.MaxDuration {
			return fmt.Errorf("sleep_sessions[%d] has invalid duration: %g", i, s.DurationHours)
		}
	}
	return nil
}

// ValidateSession checks per-session value ranges. These are secondary
// checks: each failure is recorded as a non-fatal error entry rather than
// aborting the request outright.
func ValidateSession(s memory.Session) error {
	if s.DurationHours == 0 {
		return fmt.Errorf("missing required field: duration_hours")
	}
	if s.EfficiencyScore != nil {
		if *s.EfficiencyScore < 0 || *s.EfficiencyScore > 100 {
			return fmt.Errorf("efficiency_score must be between 0 and 100")
		}
	}
	if s.MorningMood != nil {
		if *s.MorningMood < 1 || *s.MorningMood > 10 {
			return fmt.Errorf("morning_mood must be between 1 and 10")
		}
	}
	return nil
}

// ValidateProfile checks the optional profile ranges.
func ValidateProfile(p *Profile) error {
	if p == nil {
		return nil
	}
	if p.Age != nil && (*p.Age < 1 || *p.Age > 120) {
		return fmt.Errorf("age must be between 1 and 120")
	}
	if p.StressLevel != nil && (*p.StressLevel < 1 || *p.StressLevel > 5) {
		return fmt.Errorf("stress_level must be between 1 and 5")
	}
	return nil
}
