package recommender

import (
	"strings"
	"testing"

	"github.com/restwell/sleepagent/pkg/analyzer"
	"github.com/restwell/sleepagent/pkg/memory"
	"github.com/restwell/sleepagent/pkg/task"
)

func newTestRecommender() *Recommender {
	return New(7.0, 8, 2.0)
}

func TestIdealSleepWindowBySchedule(t *testing.T) {
	r := newTestRecommender()
	tests := []struct {
		schedule string
		wantWake string
	}{
		{"9am-5pm", "06:30"},
		{"night-shift", "16:00"},
		{"flexible", "07:00"},
		{"rotating", "06:00"},
	}
	for _, tt := range tests {
		t.Run(tt.schedule, func(t *testing.T) {
			w := r.idealSleepWindow(nil, &task.Profile{WorkSchedule: tt.schedule})
			if w.RecommendedWaketime != tt.wantWake {
				t.Fatalf("waketime = %s, want %s", w.RecommendedWaketime, tt.wantWake)
			}
		})
	}
}

func TestIdealSleepWindowDefaults(t *testing.T) {
	w := newTestRecommender().idealSleepWindow(nil, nil)

	// Default profile: 9am-5pm, 30 years, 8h target. 06:30 wake, 22:30 bed.
	if w.RecommendedWaketime != "06:30" || w.RecommendedBedtime != "22:30" {
		t.Fatalf("window = %s-%s", w.RecommendedBedtime, w.RecommendedWaketime)
	}
	if w.TargetDurationHours != 8.0 {
		t.Fatalf("target duration = %v", w.TargetDurationHours)
	}
	if w.Rationale != "Based on 9am-5pm schedule and 30 years old" {
		t.Fatalf("rationale = %q", w.Rationale)
	}
}

func TestIdealSleepWindowAgeAdjustment(t *testing.T) {
	r := newTestRecommender()

	young := 22
	w := r.idealSleepWindow(nil, &task.Profile{Age: &young})
	if w.RecommendedWaketime != "07:30" {
		t.Fatalf("young waketime = %s, want 07:30", w.RecommendedWaketime)
	}

	older := 55
	w = r.idealSleepWindow(nil, &task.Profile{Age: &older})
	if w.RecommendedWaketime != "05:30" {
		t.Fatalf("older waketime = %s, want 05:30", w.RecommendedWaketime)
	}
}

func TestIdealSleepWindowPrefersAnalyzedDuration(t *testing.T) {
	stated := 6.0
	analysis := &analyzer.Analysis{Duration: &analyzer.DurationAnalysis{Average: 7.5}}
	w := newTestRecommender().idealSleepWindow(analysis, &task.Profile{AvgSleepDuration: &stated})

	if w.TargetDurationHours != 7.5 {
		t.Fatalf("target duration = %v, want analyzed 7.5", w.TargetDurationHours)
	}
	// 06:30 wake minus 7.5h = 23:00 bedtime.
	if w.RecommendedBedtime != "23:00" {
		t.Fatalf("bedtime = %s, want 23:00", w.RecommendedBedtime)
	}
}

func TestCaffeineCutoffTiers(t *testing.T) {
	r := newTestRecommender()

	c := r.caffeineCutoffAdvice(nil)
	if c.CutoffTime != "14:00" {
		t.Fatalf("no-profile cutoff = %s", c.CutoffTime)
	}

	// Default window puts bedtime at 22:30; cutoff is bedtime hour minus 8.
	c = r.caffeineCutoffAdvice(&task.Profile{CaffeineIntake: "high"})
	if c.CutoffTime != "14:00" {
		t.Fatalf("cutoff = %s, want 14:00", c.CutoffTime)
	}
	if !strings.Contains(c.Recommendation, "Reduce caffeine intake significantly") {
		t.Fatalf("high tier phrasing missing: %q", c.Recommendation)
	}
	if c.CurrentIntake != "high" {
		t.Fatalf("current intake = %q", c.CurrentIntake)
	}

	c = r.caffeineCutoffAdvice(&task.Profile{CaffeineIntake: "none"})
	if c.Recommendation != "Great job avoiding caffeine! Continue this habit." {
		t.Fatalf("none tier phrasing = %q", c.Recommendation)
	}
}

func TestCaffeineCutoffWrapsPastMidnight(t *testing.T) {
	// Night shift with a 10h target sleeps 06:00-16:00; counting 8 hours back
	// from the 06:00 bedtime wraps around midnight to 22:00.
	long := 10.0
	c := newTestRecommender().caffeineCutoffAdvice(&task.Profile{
		WorkSchedule:     "night-shift",
		CaffeineIntake:   "low",
		AvgSleepDuration: &long,
	})
	if c.CutoffTime != "22:00" {
		t.Fatalf("cutoff = %s, want wrapped 22:00", c.CutoffTime)
	}
}

func TestEnvironmentRecommendationsGatedOnInterruptions(t *testing.T) {
	calm := &analyzer.Analysis{Interruption: &analyzer.InterruptionAnalysis{InterruptionRate: 0.1}}
	recs := environmentRecommendations(calm)
	if recs[0] != "Your sleep environment seems good. Maintain current conditions." {
		t.Fatalf("calm environment advice = %q", recs[0])
	}

	noisy := &analyzer.Analysis{Interruption: &analyzer.InterruptionAnalysis{InterruptionRate: 0.6}}
	recs = environmentRecommendations(noisy)
	if len(recs) != 6 {
		t.Fatalf("noisy environment should expand advice, got %d items", len(recs))
	}
}

func TestWindDownRoutineStressAndConsistency(t *testing.T) {
	stressed := 5
	analysis := &analyzer.Analysis{Consistency: &analyzer.ConsistencyAnalysis{OverallConsistency: 0.5}}
	recs := windDownRoutine(&task.Profile{StressLevel: &stressed}, analysis)

	joined := strings.Join(recs, "\n")
	if !strings.Contains(joined, "relaxation techniques") {
		t.Fatal("high stress should add relaxation advice")
	}
	if !strings.Contains(joined, "fixed bedtime routine") {
		t.Fatal("low consistency should add fixed-routine advice")
	}
}

func TestWeeklyPlanFromIssueKeywords(t *testing.T) {
	analysis := &analyzer.Analysis{
		Issues: []string{
			"Average sleep duration is too short (5.0 hours). Aim for 7-9 hours.",
			"Sleep schedule is inconsistent. Try maintaining the same bedtime and wake time.",
			"Caffeine intake may be affecting sleep quality. Avoid caffeine after 8 PM.",
			"Reduce screen time before bed (currently 4 hours)",
		},
	}
	plan := newTestRecommender().weeklyPlan(analysis, nil)

	want := []string{
		"Gradually adjust sleep duration to reach 7-9 hours",
		"Maintain same bedtime and wake time every day, including weekends",
		"Reduce caffeine intake and observe sleep quality improvements",
		"Reduce screen time 2 hours before bed",
	}
	if len(plan.WeeklyTasks) != len(want) {
		t.Fatalf("tasks = %v", plan.WeeklyTasks)
	}
	for i := range want {
		if plan.WeeklyTasks[i] != want[i] {
			t.Fatalf("task[%d] = %q, want %q", i, plan.WeeklyTasks[i], want[i])
		}
	}
}

func TestWeeklyPlanMaintenanceFallback(t *testing.T) {
	plan := newTestRecommender().weeklyPlan(&analyzer.Analysis{}, nil)
	if len(plan.WeeklyTasks) != 1 || plan.WeeklyTasks[0] != "Maintain current sleep habits and track improvements" {
		t.Fatalf("fallback tasks = %v", plan.WeeklyTasks)
	}
}

func TestPersonalizedTipsComposition(t *testing.T) {
	r := newTestRecommender()

	analysis := &analyzer.Analysis{
		Issues: []string{"issue one", "issue two", "issue three", "issue four"},
	}
	shortAvg := 5.5
	trends := memory.Trends{AvgDuration: &shortAvg}
	tips := r.personalizedTips(analysis, &task.Profile{Exercise: "daily"}, trends)

	if len(tips) > 6 {
		t.Fatalf("tips exceed cap: %d", len(tips))
	}
	// Top three issues first; the fourth must be dropped.
	for i, want := range []string{"issue one", "issue two", "issue three"} {
		if tips[i] != want {
			t.Fatalf("tips[%d] = %q, want %q", i, tips[i], want)
		}
	}
	joined := strings.Join(tips, "\n")
	if strings.Contains(joined, "issue four") {
		t.Fatal("fourth issue should be dropped")
	}
	if !strings.Contains(joined, "Great job with daily exercise!") {
		t.Fatal("exercise tip missing")
	}
	if !strings.Contains(joined, "Your average sleep duration is 5.5 hours.") {
		t.Fatal("trend tip missing")
	}
}

func TestPersonalizedTipsPaddedWithGenerics(t *testing.T) {
	tips := newTestRecommender().personalizedTips(&analyzer.Analysis{}, nil, memory.Trends{})

	if len(tips) != 3 {
		t.Fatalf("got %d tips, want 3 generics", len(tips))
	}
	if tips[0] != "Maintain a consistent sleep schedule, even on weekends." {
		t.Fatalf("tips[0] = %q", tips[0])
	}
}

func TestGenerateFullSet(t *testing.T) {
	analysis := &analyzer.Analysis{
		Duration:     &analyzer.DurationAnalysis{Average: 6.5},
		Consistency:  &analyzer.ConsistencyAnalysis{OverallConsistency: 0.9},
		Interruption: &analyzer.InterruptionAnalysis{InterruptionRate: 0.2},
		Issues:       []string{"Average sleep duration is too short (6.5 hours). Aim for 7-9 hours."},
	}
	recs := newTestRecommender().Generate(analysis, &task.Profile{CaffeineIntake: "low"}, memory.Trends{})

	if recs.IdealSleepWindow.TargetDurationHours != 6.5 {
		t.Fatalf("target duration = %v", recs.IdealSleepWindow.TargetDurationHours)
	}
	if len(recs.LightExposureManagement) == 0 || len(recs.BedroomEnvironment) == 0 || len(recs.WindDownRoutine) == 0 {
		t.Fatal("advice lists should never be empty")
	}
	if len(recs.WeeklySleepPlan.WeeklyTasks) == 0 {
		t.Fatal("weekly plan tasks missing")
	}
	if len(recs.PersonalizedTips) == 0 {
		t.Fatal("personalized tips missing")
	}
}
