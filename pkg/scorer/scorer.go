// Package scorer derives a 0-100 sleep quality score and a 0.0-1.0
// confidence from a session set. It can reuse a precomputed analysis or
// recompute the minimal stats itself so it runs independently of the
// analyzer.
package scorer

import (
	"math"

	"github.com/restwell/sleepagent/pkg/analyzer"
	"github.com/restwell/sleepagent/pkg/memory"
)

// Weights of the four sub-scores in the overall score.
const (
	weightDuration      = 0.3
	weightConsistency   = 0.25
	weightEfficiency    = 0.3
	weightInterruptions = 0.15
)

// Score is the scoring result. Breakdown carries the four sub-scores for
// presentation.
type Score struct {
	SleepScore int       `json:"sleep_score"`
	Confidence float64   `json:"confidence"`
	Breakdown  Breakdown `json:"breakdown"`
}

type Breakdown struct {
	DurationScore     float64 `json:"duration_score"`
	ConsistencyScore  float64 `json:"consistency_score"`
	EfficiencyScore   float64 `json:"efficiency_score"`
	InterruptionScore float64 `json:"interruption_score"`
}

// Scorer holds the duration band used by the duration sub-score.
type Scorer struct {
	optimalMin  float64
	optimalMax  float64
	maxDuration float64
}

func New(optimalMin, optimalMax, maxDuration float64) *Scorer {
	return &Scorer{
		optimalMin:  optimalMin,
		optimalMax:  optimalMax,
		maxDuration: maxDuration,
	}
}

// Calculate produces the overall score and confidence. An empty session set
// scores zero with zero confidence. analysis may be nil.
func (s *Scorer) Calculate(sessions []memory.Session, analysis *analyzer.Analysis) Score {
	if len(sessions) == 0 {
		return Score{}
	}

	duration := s.scoreDuration(sessions, analysis)
	consistency := scoreConsistency(sessions, analysis)
	efficiency := scoreEfficiency(sessions, analysis)
	interruptions := scoreInterruptions(sessions, analysis)

	overall := duration*weightDuration +
		consistency*weightConsistency +
		efficiency*weightEfficiency +
		interruptions*weightInterruptions

	return Score{
		SleepScore: int(math.Round(overall)),
		Confidence: round2(confidence(sessions)),
		Breakdown: Breakdown{
			DurationScore:     round1(duration),
			ConsistencyScore:  round1(consistency),
			EfficiencyScore:   round1(efficiency),
			InterruptionScore: round1(interruptions),
		},
	}
}

// scoreDuration is 100 inside the optimal band, ramping linearly to 0 at
// duration 0 below it and at the configured maximum above it.
func (s *Scorer) scoreDuration(sessions []memory.Session, analysis *analyzer.Analysis) float64 {
	var avg float64
	if analysis != nil && analysis.Duration != nil {
		avg = analysis.Duration.Average
	} else {
		var durations []float64
		for _, sess := range sessions {
			if sess.DurationHours != 0 {
				durations = append(durations, sess.DurationHours)
			}
		}
		if len(durations) == 0 {
			return 0
		}
		avg = mean(durations)
	}

	switch {
	case avg >= s.optimalMin && avg <= s.optimalMax:
		return 100
	case avg < s.optimalMin:
		return math.Max(0, avg/s.optimalMin*100)
	default:
		maxExcess := s.maxDuration - s.optimalMax
		if maxExcess <= 0 {
			return 0
		}
		ratio := 1.0 - (avg-s.optimalMax)/maxExcess
		return math.Max(0, ratio*100)
	}
}

// scoreConsistency is the overall consistency fraction scaled to 100, with a
// neutral 50 when no timing data exists.
func scoreConsistency(sessions []memory.Session, analysis *analyzer.Analysis) float64 {
	if analysis != nil && analysis.Consistency != nil {
		return analysis.Consistency.OverallConsistency * 100
	}

	var bedtimes, waketimes []string
	for _, s := range sessions {
		if s.Bedtime != "" {
			bedtimes = append(bedtimes, s.Bedtime)
		}
		if s.Waketime != "" {
			waketimes = append(waketimes, s.Waketime)
		}
	}
	if len(bedtimes) == 0 || len(waketimes) == 0 {
		return 50
	}

	return (consistency(bedtimes) + consistency(waketimes)) / 2 * 100
}

// scoreEfficiency is the mean efficiency, with a neutral 50 when no session
// carries a score.
func scoreEfficiency(sessions []memory.Session, analysis *analyzer.Analysis) float64 {
	if analysis != nil && analysis.Efficiency != nil {
		return analysis.Efficiency.Average
	}

	var scores []float64
	for _, s := range sessions {
		if eff, ok := s.Efficiency(); ok {
			scores = append(scores, eff)
		}
	}
	if len(scores) == 0 {
		return 50
	}
	return mean(scores)
}

// scoreInterruptions steps down through fixed bands by mean interruptions
// per session, decaying linearly past three.
func scoreInterruptions(sessions []memory.Session, analysis *analyzer.Analysis) float64 {
	var avg float64
	if analysis != nil && analysis.Interruption != nil {
		avg = analysis.Interruption.AveragePerSession
	} else {
		total := 0
		for _, s := range sessions {
			total += len(s.Interruptions)
		}
		avg = float64(total) / float64(len(sessions))
	}

	switch {
	case avg == 0:
		return 100
	case avg <= 1:
		return 80
	case avg <= 2:
		return 60
	case avg <= 3:
		return 40
	default:
		return math.Max(0, 100-avg*20)
	}
}

// confidence blends session-count adequacy (saturating at 7 sessions), core
// field completeness, and efficiency coverage.
func confidence(sessions []memory.Session) float64 {
	if len(sessions) == 0 {
		return 0
	}

	countConfidence := math.Min(1.0, float64(len(sessions))/7.0)

	complete, withEfficiency := 0, 0
	for _, s := range sessions {
		if s.DurationHours != 0 && s.Bedtime != "" && s.Waketime != "" {
			complete++
		}
		if _, ok := s.Efficiency(); ok {
			withEfficiency++
		}
	}
	completeness := float64(complete) / float64(len(sessions))
	efficiencyCoverage := float64(withEfficiency) / float64(len(sessions))

	c := countConfidence*0.4 + completeness*0.4 + efficiencyCoverage*0.2
	return math.Min(1.0, math.Max(0.0, c))
}

func consistency(values []string) float64 {
	if len(values) <= 1 {
		return 1.0
	}
	unique := map[string]struct{}{}
	for _, v := range values {
		unique[v] = struct{}{}
	}
	c := 1.0 - float64(len(unique)-1)/float64(len(values))
	return math.Max(0, c)
}

func mean(vals []float64) float64 {
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
