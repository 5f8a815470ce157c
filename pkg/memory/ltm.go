package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/restwell/sleepagent/pkg/logger"
)

// LongTermMemory keeps aggregated trends, detected patterns, derived
// preferences and the last computed outputs per user.
type LongTermMemory struct {
	store Store
	now   func() time.Time
}

func NewLongTermMemory(store Store) *LongTermMemory {
	return &LongTermMemory{store: store, now: time.Now}
}

// Record returns the stored LTM document. A missing document is a valid
// empty state.
func (m *LongTermMemory) Record(ctx context.Context, userID string) (LTMRecord, bool, error) {
	payload, found, err := m.store.Get(ctx, userID, KindLTM)
	if err != nil {
		return LTMRecord{}, false, err
	}
	if !found {
		return LTMRecord{}, false, nil
	}

	var record LTMRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return LTMRecord{}, false, fmt.Errorf("decode ltm record: %w", err)
	}
	return record, true, nil
}

// Trends returns the stored trends, empty when no record exists.
func (m *LongTermMemory) Trends(ctx context.Context, userID string) (Trends, error) {
	record, _, err := m.Record(ctx, userID)
	return record.Trends, err
}

// Patterns returns the stored patterns, empty when no record exists.
func (m *LongTermMemory) Patterns(ctx context.Context, userID string) ([]Pattern, error) {
	record, _, err := m.Record(ctx, userID)
	return record.Patterns, err
}

// Preferences returns the stored preferences, empty when no record exists.
func (m *LongTermMemory) Preferences(ctx context.Context, userID string) (Preferences, error) {
	record, _, err := m.Record(ctx, userID)
	return record.Preferences, err
}

// UpdateTrends recomputes trends, patterns and preferences from the full
// session history and merges them into the stored record. Trend fields not
// recalculated this pass and preference keys outside this computation
// survive; last recommendations/score/confidence are untouched.
func (m *LongTermMemory) UpdateTrends(ctx context.Context, userID string, sessions []Session) error {
	record, _, err := m.Record(ctx, userID)
	if err != nil {
		return err
	}

	record.Trends.Merge(calculateTrends(sessions))
	record.Patterns = identifyPatterns(sessions)
	record.Preferences.Merge(extractPreferences(sessions))
	record.TotalSessionsAnalyzed += len(sessions)
	record.LastUpdated = m.now().UTC()

	if err := m.save(ctx, userID, record); err != nil {
		return err
	}
	logger.DebugCF("memory", "LTM trends updated", map[string]interface{}{
		"user_id":  userID,
		"sessions": len(sessions),
		"patterns": len(record.Patterns),
	})
	return nil
}

// UpdateOutputs stores the last computed recommendations, score, confidence,
// tips and issues, preserving everything else in the record. A nil issues
// slice leaves the stored issues alone.
func (m *LongTermMemory) UpdateOutputs(ctx context.Context, userID string, recs *Recommendations, score int, confidence float64, tips []string, issues []string) error {
	record, _, err := m.Record(ctx, userID)
	if err != nil {
		return err
	}

	if recs == nil {
		recs = &Recommendations{}
	}
	record.Recommendations = recs
	record.SleepScore = score
	record.Confidence = confidence
	record.PersonalizedTips = tips
	if issues != nil {
		record.Issues = issues
	}
	scoreF := float64(score)
	record.Trends.AvgSleepScore = &scoreF
	record.Trends.Confidence = &confidence
	record.LastUpdated = m.now().UTC()

	return m.save(ctx, userID, record)
}

// Clear removes the stored LTM document.
func (m *LongTermMemory) Clear(ctx context.Context, userID string) (bool, error) {
	return m.store.Delete(ctx, userID, KindLTM)
}

func (m *LongTermMemory) save(ctx context.Context, userID string, record LTMRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode ltm record: %w", err)
	}
	return m.store.Upsert(ctx, userID, KindLTM, payload)
}

func calculateTrends(sessions []Session) Trends {
	var trends Trends
	if len(sessions) == 0 {
		return trends
	}

	var durations, efficiencies, moods []float64
	for _, s := range sessions {
		if s.DurationHours != 0 {
			durations = append(durations, s.DurationHours)
		}
		if eff, ok := s.Efficiency(); ok {
			efficiencies = append(efficiencies, eff)
		}
		if s.MorningMood != nil && *s.MorningMood != 0 {
			moods = append(moods, float64(*s.MorningMood))
		}
	}

	if len(durations) > 0 {
		trends.AvgDuration = ptr(mean(durations))
		trends.MinDuration = ptr(minOf(durations))
		trends.MaxDuration = ptr(maxOf(durations))
		consistency := 0.0
		if max := maxOf(durations); max > 0 {
			consistency = 1.0 - (max-minOf(durations))/max
		}
		trends.DurationConsistency = &consistency
	}

	if len(efficiencies) > 0 {
		trends.AvgEfficiency = ptr(mean(efficiencies))
		trends.MinEfficiency = ptr(minOf(efficiencies))
		trends.MaxEfficiency = ptr(maxOf(efficiencies))
	}

	if len(moods) > 0 {
		trends.AvgMorningMood = ptr(mean(moods))
	}

	// Rolling weekly view over the most recent 7 sessions. Callers pass the
	// history newest-first.
	if len(sessions) >= 7 {
		var recent []float64
		for _, s := range sessions[:7] {
			if s.DurationHours != 0 {
				recent = append(recent, s.DurationHours)
			}
		}
		if len(recent) > 0 {
			trends.WeeklyAvgDuration = ptr(mean(recent))
		}
	}

	return trends
}

func identifyPatterns(sessions []Session) []Pattern {
	var patterns []Pattern
	if len(sessions) < 3 {
		return patterns
	}

	distinct := map[string]struct{}{}
	hasBedtime := false
	for _, s := range sessions {
		if s.Bedtime != "" {
			hasBedtime = true
			distinct[s.Bedtime] = struct{}{}
		}
	}
	if hasBedtime && len(distinct) <= 2 {
		patterns = append(patterns, Pattern{
			Type:        PatternConsistentBedtime,
			Description: "Maintains consistent bedtime",
			Confidence:  0.8,
		})
	}

	if len(sessions) >= 7 {
		patterns = append(patterns, Pattern{
			Type:        PatternSufficientData,
			Description: "Has sufficient data for pattern analysis",
			Confidence:  0.7,
		})
	}

	return patterns
}

func extractPreferences(sessions []Session) Preferences {
	var prefs Preferences

	var durations []float64
	for _, s := range sessions {
		if s.DurationHours != 0 {
			durations = append(durations, s.DurationHours)
		}
	}
	if len(durations) > 0 {
		prefs.PreferredDuration = ptr(math.Round(mean(durations)*10) / 10)
	}

	// Most frequent bedtime, ties broken by first-encountered order.
	counts := map[string]int{}
	var best string
	bestCount := 0
	for _, s := range sessions {
		if s.Bedtime == "" {
			continue
		}
		counts[s.Bedtime]++
		if counts[s.Bedtime] > bestCount {
			best = s.Bedtime
			bestCount = counts[s.Bedtime]
		}
	}
	if bestCount > 0 {
		prefs.PreferredBedtime = &best
	}

	return prefs
}

func ptr(f float64) *float64 { return &f }

func mean(vals []float64) float64 {
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func minOf(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
