// Package recommender derives structured sleep advice from analysis,
// profile, and long-term trends.
package recommender

import (
	"fmt"
	"math"
	"strings"

	"github.com/restwell/sleepagent/pkg/analyzer"
	"github.com/restwell/sleepagent/pkg/memory"
	"github.com/restwell/sleepagent/pkg/task"
)

const maxTips = 6

// Recommender holds the thresholds shared with the analyzer.
type Recommender struct {
	optimalMin     float64
	caffeineCutoff int
	screenTimeWarn float64
}

func New(optimalMin float64, caffeineCutoffHours int, screenTimeWarnHours float64) *Recommender {
	return &Recommender{
		optimalMin:     optimalMin,
		caffeineCutoff: caffeineCutoffHours,
		screenTimeWarn: screenTimeWarnHours,
	}
}

// Generate produces the full advice set. analysis and profile may be nil;
// trends may be empty.
func (r *Recommender) Generate(analysis *analyzer.Analysis, profile *task.Profile, trends memory.Trends) *memory.Recommendations {
	return &memory.Recommendations{
		IdealSleepWindow:        r.idealSleepWindow(analysis, profile),
		CaffeineCutoff:          r.caffeineCutoffAdvice(profile),
		LightExposureManagement: r.lightRecommendations(profile),
		BedroomEnvironment:      environmentRecommendations(analysis),
		WindDownRoutine:         windDownRoutine(profile, analysis),
		WeeklySleepPlan:         r.weeklyPlan(analysis, profile),
		PersonalizedTips:        r.personalizedTips(analysis, profile, trends),
	}
}

// idealSleepWindow derives the recommended window from the work schedule,
// age, and the observed (or stated) average duration.
func (r *Recommender) idealSleepWindow(analysis *analyzer.Analysis, profile *task.Profile) memory.SleepWindow {
	workSchedule := "9am-5pm"
	age := 30
	duration := 8.0
	if profile != nil {
		if profile.WorkSchedule != "" {
			workSchedule = profile.WorkSchedule
		}
		if profile.Age != nil {
			age = *profile.Age
		}
		if profile.AvgSleepDuration != nil {
			duration = *profile.AvgSleepDuration
		}
	}
	if analysis != nil && analysis.Duration != nil && analysis.Duration.Average != 0 {
		duration = analysis.Duration.Average
	}

	var wakeHour, wakeMinute int
	switch workSchedule {
	case "9am-5pm":
		wakeHour, wakeMinute = 6, 30
	case "night-shift":
		wakeHour, wakeMinute = 16, 0
	case "flexible":
		wakeHour, wakeMinute = 7, 0
	default: // rotating
		wakeHour, wakeMinute = 6, 0
	}

	if age < 25 {
		wakeHour++
	} else if age > 50 {
		wakeHour--
	}

	wakeSeconds := wakeHour*3600 + wakeMinute*60
	bedSeconds := wakeSeconds - int(math.Round(duration*3600))
	for bedSeconds < 0 {
		bedSeconds += 24 * 3600
	}

	return memory.SleepWindow{
		RecommendedBedtime:  fmt.Sprintf("%02d:%02d", bedSeconds/3600, bedSeconds%3600/60),
		RecommendedWaketime: fmt.Sprintf("%02d:%02d", wakeHour, wakeMinute),
		TargetDurationHours: math.Round(duration*10) / 10,
		Rationale:           fmt.Sprintf("Based on %s schedule and %d years old", workSchedule, age),
	}
}

func (r *Recommender) caffeineCutoffAdvice(profile *task.Profile) memory.CaffeineCutoff {
	if profile == nil {
		return memory.CaffeineCutoff{
			CutoffTime:     "14:00",
			Recommendation: "Avoid caffeine after 2 PM for optimal sleep",
		}
	}

	intake := profile.CaffeineIntake
	if intake == "" {
		intake = "none"
	}

	// Cutoff counts back from the profile-only recommended bedtime.
	window := r.idealSleepWindow(nil, profile)
	bedtimeHour := 22
	if _, err := fmt.Sscanf(window.RecommendedBedtime, "%d:", &bedtimeHour); err != nil {
		bedtimeHour = 22
	}
	cutoffHour := bedtimeHour - r.caffeineCutoff
	if cutoffHour < 0 {
		cutoffHour += 24
	}
	cutoff := fmt.Sprintf("%02d:00", cutoffHour)

	var recommendation string
	switch intake {
	case "none":
		recommendation = "Great job avoiding caffeine! Continue this habit."
	case "low":
		recommendation = fmt.Sprintf("Avoid caffeine after %s to improve sleep quality.", cutoff)
	case "medium":
		recommendation = fmt.Sprintf("Limit caffeine intake and avoid after %s. Consider reducing to 1-2 cups per day.", cutoff)
	default: // high
		recommendation = fmt.Sprintf("Reduce caffeine intake significantly. Stop consuming caffeine after %s.", cutoff)
	}

	return memory.CaffeineCutoff{
		CutoffTime:     cutoff,
		Recommendation: recommendation,
		CurrentIntake:  intake,
	}
}

func (r *Recommender) lightRecommendations(profile *task.Profile) []string {
	var recs []string

	screenTime := 0.0
	if profile != nil {
		screenTime = profile.ScreenTimeHours
	}

	if screenTime > r.screenTimeWarn {
		recs = append(recs,
			fmt.Sprintf("Reduce screen time before bed (currently %g hours). Use blue light filters or reading mode.", screenTime),
			"Dim lights 1-2 hours before bedtime to signal your body for sleep.")
	} else {
		recs = append(recs, "Maintain low light exposure before bed. Consider using dimmable lights.")
	}

	recs = append(recs,
		"Get natural sunlight exposure in the morning to regulate circadian rhythm.",
		"Use blackout curtains or eye mask if your bedroom is not dark enough.")
	return recs
}

func environmentRecommendations(analysis *analyzer.Analysis) []string {
	var recs []string

	interruptionRate := 0.0
	if analysis != nil && analysis.Interruption != nil {
		interruptionRate = analysis.Interruption.InterruptionRate
	}

	if interruptionRate > 0.3 {
		recs = append(recs,
			"Keep bedroom temperature between 65-68°F (18-20°C) for optimal sleep.",
			"Use white noise machine or earplugs to block disruptive sounds.",
			"Ensure your mattress and pillows are comfortable and supportive.",
			"Remove electronic devices from bedroom or use airplane mode.")
	} else {
		recs = append(recs, "Your sleep environment seems good. Maintain current conditions.")
	}

	recs = append(recs,
		"Keep bedroom dark, quiet, and cool.",
		"Reserve bedroom only for sleep and intimacy (no work or screens).")
	return recs
}

func windDownRoutine(profile *task.Profile, analysis *analyzer.Analysis) []string {
	stressLevel := 3
	if profile != nil && profile.StressLevel != nil {
		stressLevel = *profile.StressLevel
	}

	recs := []string{"Start wind-down routine 1 hour before bedtime."}

	if stressLevel >= 4 {
		recs = append(recs,
			"Practice relaxation techniques: meditation, deep breathing, or progressive muscle relaxation.",
			"Try journaling to clear your mind before bed.")
	} else {
		recs = append(recs, "Maintain a consistent pre-sleep routine (reading, light stretching, or calming music).")
	}

	recs = append(recs,
		"Take a warm bath or shower 1-2 hours before bed (body temperature drop promotes sleep).",
		"Avoid stimulating activities, work, or intense exercise close to bedtime.")

	if analysis != nil && analysis.Consistency != nil && analysis.Consistency.OverallConsistency < 0.7 {
		recs = append(recs, "Establish a fixed bedtime routine to signal your body it's time to sleep.")
	}
	return recs
}

// weeklyPlan scans the issue strings for keywords and emits one action item
// per matched concern.
func (r *Recommender) weeklyPlan(analysis *analyzer.Analysis, profile *task.Profile) memory.WeeklyPlan {
	window := r.idealSleepWindow(analysis, profile)

	plan := memory.WeeklyPlan{
		WeekGoal:      "Establish consistent sleep schedule",
		DailyBedtime:  window.RecommendedBedtime,
		DailyWaketime: window.RecommendedWaketime,
	}

	var issues []string
	if analysis != nil {
		issues = analysis.Issues
	}
	if anyContains(issues, "duration") {
		plan.WeeklyTasks = append(plan.WeeklyTasks, "Gradually adjust sleep duration to reach 7-9 hours")
	}
	if anyContains(issues, "consistent") {
		plan.WeeklyTasks = append(plan.WeeklyTasks, "Maintain same bedtime and wake time every day, including weekends")
	}
	if anyContains(issues, "caffeine") {
		plan.WeeklyTasks = append(plan.WeeklyTasks, "Reduce caffeine intake and observe sleep quality improvements")
	}
	if anyContains(issues, "screen") {
		plan.WeeklyTasks = append(plan.WeeklyTasks, "Reduce screen time 2 hours before bed")
	}
	if len(plan.WeeklyTasks) == 0 {
		plan.WeeklyTasks = append(plan.WeeklyTasks, "Maintain current sleep habits and track improvements")
	}

	return plan
}

// personalizedTips builds up to six tips: the top three issues, an exercise
// tip, a trend tip, padded with generics when fewer than three accumulated.
func (r *Recommender) personalizedTips(analysis *analyzer.Analysis, profile *task.Profile, trends memory.Trends) []string {
	var tips []string

	if analysis != nil {
		issues := analysis.Issues
		if len(issues) > 3 {
			issues = issues[:3]
		}
		tips = append(tips, issues...)
	}

	if profile != nil {
		switch profile.Exercise {
		case "rarely", "":
			tips = append(tips, "Incorporate regular exercise into your routine (3-4 times per week) for better sleep.")
		case "daily":
			tips = append(tips, "Great job with daily exercise! Avoid intense workouts within 3 hours of bedtime.")
		}
	}

	if trends.AvgDuration != nil && *trends.AvgDuration != 0 && *trends.AvgDuration < r.optimalMin {
		tips = append(tips, fmt.Sprintf("Your average sleep duration is %.1f hours. Gradually increase to 7-9 hours for optimal rest.", *trends.AvgDuration))
	}

	if len(tips) < 3 {
		tips = append(tips,
			"Maintain a consistent sleep schedule, even on weekends.",
			"Create a relaxing bedtime routine to signal your body for sleep.",
			"Avoid large meals and alcohol close to bedtime.")
	}

	if len(tips) > maxTips {
		tips = tips[:maxTips]
	}
	return tips
}

func anyContains(issues []string, keyword string) bool {
	for _, issue := range issues {
		if strings.Contains(strings.ToLower(issue), keyword) {
			return true
		}
	}
	return false
}
