package memory

import (
	"encoding/json"
	"time"
)

// Kind selects which per-user memory document a record lives in.
type Kind string

const (
	KindSTM Kind = "stm"
	KindLTM Kind = "ltm"
)

// Session is one recorded sleep episode. SessionDate, Bedtime and Waketime
// form the identity key for deduplication and are part of the stored wire
// contract; sessions are never edited in place, only added or expired.
type Session struct {
	SessionID       string   `json:"session_id,omitempty"`
	SessionDate     string   `json:"session_date"`
	Bedtime         string   `json:"bedtime"`
	Waketime        string   `json:"waketime"`
	DurationHours   float64  `json:"duration_hours"`
	EfficiencyScore *float64 `json:"efficiency_score,omitempty"`
	Interruptions   []string `json:"interruptions,omitempty"`
	MorningMood     *int     `json:"morning_mood,omitempty"`
}

// IdentityKey returns the explicit session id, or the composite
// date_bedtime_waketime key when none was supplied.
func (s Session) IdentityKey() string {
	if s.SessionID != "" {
		return s.SessionID
	}
	return s.SessionDate + "_" + s.Bedtime + "_" + s.Waketime
}

// Date parses the session date. Accepted forms: RFC 3339 timestamps,
// timezone-naive ISO datetimes (with T or space separator, treated as UTC),
// and plain YYYY-MM-DD dates.
func (s Session) Date() (time.Time, bool) {
	if s.SessionDate == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s.SessionDate); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Efficiency reports the session's efficiency score. Zero is treated as
// unset, matching the stored data this agent has always produced.
func (s Session) Efficiency() (float64, bool) {
	if s.EfficiencyScore == nil || *s.EfficiencyScore == 0 {
		return 0, false
	}
	return *s.EfficiencyScore, true
}

// STMRecord is the short-term memory document for one user.
type STMRecord struct {
	Sessions    []Session `json:"sessions"`
	LastUpdated time.Time `json:"last_updated"`
	Count       int       `json:"count"`
}

// Trends holds rolling numeric aggregates. Fields are pointers so a merge can
// tell "not recalculated this pass" from a real zero; nil fields never
// overwrite stored values.
type Trends struct {
	AvgDuration         *float64 `json:"avg_duration,omitempty"`
	MinDuration         *float64 `json:"min_duration,omitempty"`
	MaxDuration         *float64 `json:"max_duration,omitempty"`
	DurationConsistency *float64 `json:"duration_consistency,omitempty"`
	AvgEfficiency       *float64 `json:"avg_efficiency,omitempty"`
	MinEfficiency       *float64 `json:"min_efficiency,omitempty"`
	MaxEfficiency       *float64 `json:"max_efficiency,omitempty"`
	AvgMorningMood      *float64 `json:"avg_morning_mood,omitempty"`
	WeeklyAvgDuration   *float64 `json:"weekly_avg_duration,omitempty"`
	AvgSleepScore       *float64 `json:"avg_sleep_score,omitempty"`
	Confidence          *float64 `json:"confidence,omitempty"`
}

// Merge overwrites only the fields the incoming trends actually carry.
func (t *Trends) Merge(in Trends) {
	if in.AvgDuration != nil {
		t.AvgDuration = in.AvgDuration
	}
	if in.MinDuration != nil {
		t.MinDuration = in.MinDuration
	}
	if in.MaxDuration != nil {
		t.MaxDuration = in.MaxDuration
	}
	if in.DurationConsistency != nil {
		t.DurationConsistency = in.DurationConsistency
	}
	if in.AvgEfficiency != nil {
		t.AvgEfficiency = in.AvgEfficiency
	}
	if in.MinEfficiency != nil {
		t.MinEfficiency = in.MinEfficiency
	}
	if in.MaxEfficiency != nil {
		t.MaxEfficiency = in.MaxEfficiency
	}
	if in.AvgMorningMood != nil {
		t.AvgMorningMood = in.AvgMorningMood
	}
	if in.WeeklyAvgDuration != nil {
		t.WeeklyAvgDuration = in.WeeklyAvgDuration
	}
	if in.AvgSleepScore != nil {
		t.AvgSleepScore = in.AvgSleepScore
	}
	if in.Confidence != nil {
		t.Confidence = in.Confidence
	}
}

// Pattern is a named, confidence-scored qualitative observation about the
// session history.
type Pattern struct {
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
}

const (
	PatternConsistentBedtime = "consistent_bedtime"
	PatternSufficientData    = "sufficient_data"
)

// Preferences are derived persistent defaults for a user. Extra carries
// preference keys set outside trend computation; they survive every merge.
type Preferences struct {
	PreferredDuration *float64
	PreferredBedtime  *string
	Extra             map[string]any
}

// MarshalJSON flattens Extra into the top-level object so externally written
// preference keys keep their stored shape.
func (p Preferences) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Extra)+2)
	for k, v := range p.Extra {
		out[k] = v
	}
	if p.PreferredDuration != nil {
		out["preferred_duration"] = *p.PreferredDuration
	}
	if p.PreferredBedtime != nil {
		out["preferred_bedtime"] = *p.PreferredBedtime
	}
	return json.Marshal(out)
}

func (p *Preferences) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = Preferences{}
	for k, v := range raw {
		switch k {
		case "preferred_duration":
			if f, ok := v.(float64); ok {
				p.PreferredDuration = &f
				continue
			}
		case "preferred_bedtime":
			if s, ok := v.(string); ok {
				p.PreferredBedtime = &s
				continue
			}
		}
		if p.Extra == nil {
			p.Extra = map[string]any{}
		}
		p.Extra[k] = v
	}
	return nil
}

// Merge keeps existing preference keys unless the incoming value is set.
func (p *Preferences) Merge(in Preferences) {
	if in.PreferredDuration != nil {
		p.PreferredDuration = in.PreferredDuration
	}
	if in.PreferredBedtime != nil {
		p.PreferredBedtime = in.PreferredBedtime
	}
	for k, v := range in.Extra {
		if p.Extra == nil {
			p.Extra = map[string]any{}
		}
		p.Extra[k] = v
	}
}

// SleepWindow is the recommended bedtime/waketime pair.
type SleepWindow struct {
	RecommendedBedtime  string  `json:"recommended_bedtime"`
	RecommendedWaketime string  `json:"recommended_waketime"`
	TargetDurationHours float64 `json:"target_duration_hours"`
	Rationale           string  `json:"rationale"`
}

// CaffeineCutoff is the recommended last caffeine time for the day.
type CaffeineCutoff struct {
	CutoffTime     string `json:"cutoff_time"`
	Recommendation string `json:"recommendation"`
	CurrentIntake  string `json:"current_intake,omitempty"`
}

// WeeklyPlan is a one-week improvement plan derived from the detected issues.
type WeeklyPlan struct {
	WeekGoal      string   `json:"week_goal"`
	DailyBedtime  string   `json:"daily_bedtime"`
	DailyWaketime string   `json:"daily_waketime"`
	WeeklyTasks   []string `json:"weekly_tasks"`
}

// Recommendations is the full advice set produced for a user. It is both a
// task result field and part of the persisted LTM document.
type Recommendations struct {
	IdealSleepWindow        SleepWindow    `json:"ideal_sleep_window"`
	CaffeineCutoff          CaffeineCutoff `json:"caffeine_cutoff"`
	LightExposureManagement []string       `json:"light_exposure_management"`
	BedroomEnvironment      []string       `json:"bedroom_environment"`
	WindDownRoutine         []string       `json:"wind_down_routine"`
	WeeklySleepPlan         WeeklyPlan     `json:"weekly_sleep_plan"`
	PersonalizedTips        []string       `json:"personalized_tips"`
}

// LTMRecord is the long-term memory document for one user. Updates to it are
// merges: fields not recalculated by the current write keep their stored
// values.
type LTMRecord struct {
	Trends                Trends           `json:"trends"`
	Patterns              []Pattern        `json:"patterns"`
	Preferences           Preferences      `json:"preferences"`
	Recommendations       *Recommendations `json:"recommendations,omitempty"`
	SleepScore            int              `json:"sleep_score"`
	Confidence            float64          `json:"confidence"`
	PersonalizedTips      []string         `json:"personalized_tips,omitempty"`
	Issues                []string         `json:"issues,omitempty"`
	TotalSessionsAnalyzed int              `json:"total_sessions_analyzed"`
	LastUpdated           time.Time        `json:"last_updated"`
}
