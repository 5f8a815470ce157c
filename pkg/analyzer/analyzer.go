// Package analyzer computes descriptive statistics and issue flags over a
// combined sleep session history.
package analyzer

import (
	"fmt"
	"math"
	"strings"

	"github.com/restwell/sleepagent/pkg/memory"
	"github.com/restwell/sleepagent/pkg/task"
)

// Analysis is the per-request derived snapshot. Sub-analyses are nil when the
// input carried no data for them; downstream consumers must tolerate that.
type Analysis struct {
	Duration     *DurationAnalysis     `json:"duration_analysis,omitempty"`
	Consistency  *ConsistencyAnalysis  `json:"consistency_analysis,omitempty"`
	Efficiency   *EfficiencyAnalysis   `json:"efficiency_analysis,omitempty"`
	Interruption *InterruptionAnalysis `json:"interruption_analysis,omitempty"`
	Caffeine     *CaffeineAnalysis     `json:"caffeine_analysis,omitempty"`
	ScreenTime   *ScreenTimeAnalysis   `json:"screen_time_analysis,omitempty"`
	Exercise     *ExerciseAnalysis     `json:"exercise_analysis,omitempty"`
	LTMPatterns  []memory.Pattern      `json:"ltm_patterns,omitempty"`
	Issues       []string              `json:"issues"`
	Summary      string                `json:"summary"`
}

type DurationAnalysis struct {
	Average       float64  `json:"average"`
	Minimum       float64  `json:"minimum"`
	Maximum       float64  `json:"maximum"`
	OptimalCount  int      `json:"optimal_count"`
	TooShortCount int      `json:"too_short_count"`
	TooLongCount  int      `json:"too_long_count"`
	TotalSessions int      `json:"total_sessions"`
	IsOptimal     bool     `json:"is_optimal"`
	LTMAverage    *float64 `json:"ltm_average,omitempty"`
}

type ConsistencyAnalysis struct {
	BedtimeConsistency  float64 `json:"bedtime_consistency"`
	WaketimeConsistency float64 `json:"waketime_consistency"`
	OverallConsistency  float64 `json:"overall_consistency"`
	UniqueBedtimes      int     `json:"unique_bedtimes"`
	UniqueWaketimes     int     `json:"unique_waketimes"`
}

type EfficiencyAnalysis struct {
	Average        float64  `json:"average"`
	Minimum        float64  `json:"minimum"`
	Maximum        float64  `json:"maximum"`
	ExcellentCount int      `json:"excellent_count"`
	GoodCount      int      `json:"good_count"`
	FairCount      int      `json:"fair_count"`
	PoorCount      int      `json:"poor_count"`
	IsEfficient    bool     `json:"is_efficient"`
	LTMAverage     *float64 `json:"ltm_average,omitempty"`
}

type InterruptionAnalysis struct {
	TotalInterruptions        int     `json:"total_interruptions"`
	SessionsWithInterruptions int     `json:"sessions_with_interruptions"`
	AveragePerSession         float64 `json:"average_per_session"`
	InterruptionRate          float64 `json:"interruption_rate"`
}

type CaffeineAnalysis struct {
	CaffeineIntake     string   `json:"caffeine_intake"`
	CaffeineAfter8PM   bool     `json:"caffeine_after_8pm"`
	AvgSleepEfficiency *float64 `json:"avg_sleep_efficiency,omitempty"`
	PotentialImpact    bool     `json:"potential_impact"`
}

type ScreenTimeAnalysis struct {
	ScreenTimeHours    float64  `json:"screen_time_hours"`
	AvgSleepEfficiency *float64 `json:"avg_sleep_efficiency,omitempty"`
	PotentialImpact    bool     `json:"potential_impact"`
	Recommendation     string   `json:"recommendation,omitempty"`
}

type ExerciseAnalysis struct {
	ExerciseFrequency  string `json:"exercise_frequency"`
	HasRegularExercise bool   `json:"has_regular_exercise"`
	Recommendation     string `json:"recommendation"`
}

// Analyzer holds the tunable thresholds; everything else is pure computation
// over the session set.
type Analyzer struct {
	optimalMin     float64
	optimalMax     float64
	screenTimeWarn float64
}

func New(optimalMin, optimalMax, screenTimeWarnHours float64) *Analyzer {
	return &Analyzer{
		optimalMin:     optimalMin,
		optimalMax:     optimalMax,
		screenTimeWarn: screenTimeWarnHours,
	}
}

// Analyze produces the full analysis snapshot. An empty session set
// short-circuits to a fixed "no data" result without touching the per-field
// computations.
func (a *Analyzer) Analyze(sessions []memory.Session, profile *task.Profile) *Analysis {
	if len(sessions) == 0 {
		return &Analysis{
			Issues:  []string{"No sleep data available"},
			Summary: "No sleep sessions found for analysis",
		}
	}

	analysis := &Analysis{
		Duration:     a.analyzeDuration(sessions),
		Consistency:  analyzeConsistency(sessions),
		Efficiency:   analyzeEfficiency(sessions),
		Interruption: analyzeInterruptions(sessions),
		Caffeine:     analyzeCaffeine(sessions, profile),
		ScreenTime:   a.analyzeScreenTime(sessions, profile),
		Exercise:     analyzeExercise(profile),
	}
	analysis.Issues = a.identifyIssues(analysis)
	analysis.Summary = generateSummary(analysis)
	return analysis
}

func (a *Analyzer) analyzeDuration(sessions []memory.Session) *DurationAnalysis {
	var durations []float64
	for _, s := range sessions {
		if s.DurationHours != 0 {
			durations = append(durations, s.DurationHours)
		}
	}
	if len(durations) == 0 {
		return nil
	}

	sum, min, max := 0.0, durations[0], durations[0]
	optimal, short, long := 0, 0, 0
	for _, d := range durations {
		sum += d
		if d < min {
			min = d
		}
		if d > max {
			max = d
		}
		switch {
		case d < a.optimalMin:
			short++
		case d > a.optimalMax:
			long++
		default:
			optimal++
		}
	}
	avg := sum / float64(len(durations))

	return &DurationAnalysis{
		Average:       round2(avg),
		Minimum:       round2(min),
		Maximum:       round2(max),
		OptimalCount:  optimal,
		TooShortCount: short,
		TooLongCount:  long,
		TotalSessions: len(durations),
		IsOptimal:     avg >= a.optimalMin && avg <= a.optimalMax,
	}
}

// valueConsistency is 1 − (unique − 1)/total, clamped to [0,1]. A single
// observation counts as perfectly consistent.
func valueConsistency(values []string) float64 {
	if len(values) <= 1 {
		return 1.0
	}
	unique := map[string]struct{}{}
	for _, v := range values {
		unique[v] = struct{}{}
	}
	c := 1.0 - float64(len(unique)-1)/float64(len(values))
	if c < 0 {
		c = 0
	}
	return c
}

func analyzeConsistency(sessions []memory.Session) *ConsistencyAnalysis {
	var bedtimes, waketimes []string
	for _, s := range sessions {
		if s.Bedtime != "" {
			bedtimes = append(bedtimes, s.Bedtime)
		}
		if s.Waketime != "" {
			waketimes = append(waketimes, s.Waketime)
		}
	}

	bed, wake := 0.0, 0.0
	if len(bedtimes) > 0 {
		bed = valueConsistency(bedtimes)
	}
	if len(waketimes) > 0 {
		wake = valueConsistency(waketimes)
	}

	overall := 0.0
	if len(bedtimes) > 0 && len(waketimes) > 0 {
		overall = (bed + wake) / 2
	}

	return &ConsistencyAnalysis{
		BedtimeConsistency:  round2(bed),
		WaketimeConsistency: round2(wake),
		OverallConsistency:  round2(overall),
		UniqueBedtimes:      distinctCount(bedtimes),
		UniqueWaketimes:     distinctCount(waketimes),
	}
}

func analyzeEfficiency(sessions []memory.Session) *EfficiencyAnalysis {
	scores := efficiencyScores(sessions)
	if len(scores) == 0 {
		return nil
	}

	sum, min, max := 0.0, scores[0], scores[0]
	var excellent, good, fair, poor int
	for _, e := range scores {
		sum += e
		if e < min {
			min = e
		}
		if e > max {
			max = e
		}
		switch {
		case e >= 85:
			excellent++
		case e >= 70:
			good++
		case e >= 50:
			fair++
		default:
			poor++
		}
	}
	avg := sum / float64(len(scores))

	return &EfficiencyAnalysis{
		Average:        round2(avg),
		Minimum:        round2(min),
		Maximum:        round2(max),
		ExcellentCount: excellent,
		GoodCount:      good,
		FairCount:      fair,
		PoorCount:      poor,
		IsEfficient:    avg >= 70,
	}
}

func analyzeInterruptions(sessions []memory.Session) *InterruptionAnalysis {
	total, withAny := 0, 0
	for _, s := range sessions {
		n := len(s.Interruptions)
		total += n
		if n > 0 {
			withAny++
		}
	}

	return &InterruptionAnalysis{
		TotalInterruptions:        total,
		SessionsWithInterruptions: withAny,
		AveragePerSession:         round2(float64(total) / float64(len(sessions))),
		InterruptionRate:          round2(float64(withAny) / float64(len(sessions))),
	}
}

func analyzeCaffeine(sessions []memory.Session, profile *task.Profile) *CaffeineAnalysis {
	if profile == nil {
		return nil
	}

	intake := profile.CaffeineIntake
	if intake == "" {
		intake = "none"
	}

	result := &CaffeineAnalysis{
		CaffeineIntake:   intake,
		CaffeineAfter8PM: profile.CaffeineAfter8PM,
	}
	if profile.CaffeineAfter8PM || intake == "medium" || intake == "high" {
		if scores := efficiencyScores(sessions); len(scores) > 0 {
			avg := round2(mean(scores))
			result.AvgSleepEfficiency = &avg
			result.PotentialImpact = avg < 75
		}
	}
	return result
}

func (a *Analyzer) analyzeScreenTime(sessions []memory.Session, profile *task.Profile) *ScreenTimeAnalysis {
	if profile == nil {
		return nil
	}

	result := &ScreenTimeAnalysis{ScreenTimeHours: profile.ScreenTimeHours}
	if profile.ScreenTimeHours > a.screenTimeWarn {
		if scores := efficiencyScores(sessions); len(scores) > 0 {
			avg := round2(mean(scores))
			result.AvgSleepEfficiency = &avg
			result.PotentialImpact = avg < 75
			result.Recommendation = fmt.Sprintf("Reduce screen time before bed (currently %g hours)", profile.ScreenTimeHours)
		}
	}
	return result
}

func analyzeExercise(profile *task.Profile) *ExerciseAnalysis {
	if profile == nil {
		return nil
	}

	exercise := profile.Exercise
	if exercise == "" {
		exercise = "rarely"
	}

	recommendation := "Maintain exercise routine"
	if exercise == "rarely" {
		recommendation = "Incorporate regular exercise"
	}
	return &ExerciseAnalysis{
		ExerciseFrequency:  exercise,
		HasRegularExercise: exercise == "daily" || exercise == "3-4-times",
		Recommendation:     recommendation,
	}
}

// identifyIssues emits human-readable issue strings in a fixed priority
// order: duration, consistency, efficiency, interruptions, caffeine, screen
// time.
func (a *Analyzer) identifyIssues(analysis *Analysis) []string {
	issues := []string{}

	if d := analysis.Duration; d != nil {
		if d.Average < a.optimalMin {
			issues = append(issues, fmt.Sprintf("Average sleep duration is too short (%.1f hours). Aim for 7-9 hours.", d.Average))
		} else if d.Average > a.optimalMax {
			issues = append(issues, fmt.Sprintf("Average sleep duration is too long (%.1f hours). Consider if you need this much sleep.", d.Average))
		}
	}

	if c := analysis.Consistency; c != nil && c.OverallConsistency < 0.6 {
		issues = append(issues, "Sleep schedule is inconsistent. Try maintaining the same bedtime and wake time.")
	}

	if e := analysis.Efficiency; e != nil && e.Average < 70 {
		issues = append(issues, fmt.Sprintf("Sleep efficiency is low (%.0f%%). Focus on improving sleep quality.", e.Average))
	}

	if i := analysis.Interruption; i != nil && i.InterruptionRate > 0.5 {
		issues = append(issues, "Frequent sleep interruptions detected. Consider optimizing your sleep environment.")
	}

	if c := analysis.Caffeine; c != nil && c.PotentialImpact {
		issues = append(issues, "Caffeine intake may be affecting sleep quality. Avoid caffeine after 8 PM.")
	}

	if s := analysis.ScreenTime; s != nil && s.PotentialImpact {
		rec := s.Recommendation
		if rec == "" {
			rec = "Reduce screen time before bed."
		}
		issues = append(issues, rec)
	}

	return issues
}

func generateSummary(analysis *Analysis) string {
	var parts []string

	if d := analysis.Duration; d != nil && d.Average != 0 {
		parts = append(parts, fmt.Sprintf("Average sleep duration: %.1f hours", d.Average))
	}
	if e := analysis.Efficiency; e != nil && e.Average != 0 {
		parts = append(parts, fmt.Sprintf("Average efficiency: %.0f%%", e.Average))
	}
	if c := analysis.Consistency; c != nil && c.OverallConsistency != 0 {
		parts = append(parts, fmt.Sprintf("Schedule consistency: %.0f%%", c.OverallConsistency*100))
	}

	if len(parts) == 0 {
		return "Sleep analysis completed."
	}
	return strings.Join(parts, ". ") + "."
}

func efficiencyScores(sessions []memory.Session) []float64 {
	var scores []float64
	for _, s := range sessions {
		if eff, ok := s.Efficiency(); ok {
			scores = append(scores, eff)
		}
	}
	return scores
}

func distinctCount(values []string) int {
	unique := map[string]struct{}{}
	for _, v := range values {
		unique[v] = struct{}{}
	}
	return len(unique)
}

func mean(vals []float64) float64 {
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
