package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/restwell/sleepagent/pkg/analyzer"
	"github.com/restwell/sleepagent/pkg/config"
	"github.com/restwell/sleepagent/pkg/logger"
	"github.com/restwell/sleepagent/pkg/memory"
	"github.com/restwell/sleepagent/pkg/recommender"
	"github.com/restwell/sleepagent/pkg/scorer"
	"github.com/restwell/sleepagent/pkg/task"
)

// Pipeline runs one task through the analysis state machine:
//
//	validation → memory_fetch → reasoning → {recommendation ∥ scoring} →
//	memory_write → formatting → done
//
// with error terminal from validation only.
type Pipeline struct {
	stm         *memory.ShortTermMemory
	ltm         *memory.LongTermMemory
	analyzer    *analyzer.Analyzer
	scorer      *scorer.Scorer
	recommender *recommender.Recommender
	limits      task.Limits
	timeout     time.Duration
}

func NewPipeline(cfg *config.Config, store memory.Store) *Pipeline {
	a := cfg.Analysis
	return &Pipeline{
		stm:         memory.NewShortTermMemory(store, cfg.Memory.STMRetentionDays),
		ltm:         memory.NewLongTermMemory(store),
		analyzer:    analyzer.New(a.OptimalDurationMin, a.OptimalDurationMax, a.ScreenTimeWarningHours),
		scorer:      scorer.New(a.OptimalDurationMin, a.OptimalDurationMax, a.MaxDuration),
		recommender: recommender.New(a.OptimalDurationMin, a.CaffeineCutoffHours, a.ScreenTimeWarningHours),
		limits: task.Limits{
			MaxSessions: cfg.Task.MaxSessions,
			MinDuration: a.MinDuration,
			MaxDuration: a.MaxDuration,
		},
		timeout: cfg.TaskTimeout(),
	}
}

// Process runs the full state machine for one request and always returns a
// result envelope. Unexpected panics anywhere inside become a generic error
// result; the caller never sees a stage trace.
func (p *Pipeline) Process(ctx context.Context, req task.Request) (result task.Result) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("agent", "Pipeline panic recovered", map[string]interface{}{
				"task_id": req.TaskID,
				"panic":   fmt.Sprintf("%v", r),
			})
			result = task.Result{
				TaskID: req.TaskID,
				Status: task.StatusError,
				Error:  "Workflow execution failed: internal error",
			}
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	state := newState(req)
	stage := StageValidation

	for stage != StageDone && stage != StageError {
		// Cancellation granularity is "before next stage": a running stage
		// finishes, the next one does not start.
		if err := ctx.Err(); err != nil {
			return task.Result{
				TaskID: state.TaskID,
				Status: task.StatusError,
				Error:  fmt.Sprintf("Task aborted at %s: %v", stage, err),
			}
		}

		switch stage {
		case StageValidation:
			p.runValidation(state)
		case StageMemoryFetch:
			p.runMemoryFetch(ctx, state)
		case StageReasoning:
			p.runReasoning(state)
		case StageFanOut:
			p.runFanOut(state)
		case StageMemoryWrite:
			p.runMemoryWrite(ctx, state)
		case StageFormatting:
			p.runFormatting(state)
		}

		stage = nextStage(stage, state)
	}

	return finalResult(state)
}

// nextStage applies the transition rule. Only validation can take the abort
// edge; every other edge is unconditional.
func nextStage(current Stage, state *State) Stage {
	switch current {
	case StageValidation:
		if state.Status == task.StatusError || len(state.Errors) > 0 {
			return StageError
		}
		return StageMemoryFetch
	case StageMemoryFetch:
		return StageReasoning
	case StageReasoning:
		return StageFanOut
	case StageFanOut:
		return StageMemoryWrite
	case StageMemoryWrite:
		return StageFormatting
	case StageFormatting:
		return StageDone
	default:
		return StageDone
	}
}

func (p *Pipeline) runValidation(state *State) {
	logger.InfoCF("agent", "Validating task", map[string]interface{}{
		"task_id": state.TaskID,
		"user_id": state.UserID,
	})

	req := task.Request{TaskID: state.TaskID, UserID: state.UserID, Payload: state.Payload}
	if err := task.ValidateRequest(&req, p.limits); err != nil {
		state.addError(fmt.Sprintf("Validation error: %v", err))
		state.Status = task.StatusError
		return
	}

	// Secondary per-session range checks accumulate instead of aborting on
	// the first bad session.
	for i, s := range state.payloadSessions() {
		if err := task.ValidateSession(s); err != nil {
			state.addError(fmt.Sprintf("Session %d validation error: %v", i, err))
		}
	}
	// Profile range violations degrade rather than abort: the heuristics run
	// with the stated values and the profile stays advisory.
	if err := task.ValidateProfile(state.profile()); err != nil {
		logger.WarnCF("agent", "Profile failed validation", map[string]interface{}{
			"task_id": state.TaskID,
			"user_id": state.UserID,
			"error":   err.Error(),
		})
	}

	if len(state.Errors) > 0 {
		state.Status = task.StatusError
	} else {
		state.Status = task.StatusProcessing
	}
}

// runMemoryFetch loads both memory tiers. Absence is a valid empty state; a
// store failure is recorded but does not abort the pipeline.
func (p *Pipeline) runMemoryFetch(ctx context.Context, state *State) {
	sessions, err := p.stm.Sessions(ctx, state.UserID)
	if err != nil {
		state.addError(fmt.Sprintf("Memory fetch error: %v", err))
		logger.ErrorCF("agent", "STM fetch failed", map[string]interface{}{
			"task_id": state.TaskID,
			"user_id": state.UserID,
			"error":   err.Error(),
		})
	}
	state.STMSessions = sessions

	record, found, err := p.ltm.Record(ctx, state.UserID)
	if err != nil {
		state.addError(fmt.Sprintf("Memory fetch error: %v", err))
		logger.ErrorCF("agent", "LTM fetch failed", map[string]interface{}{
			"task_id": state.TaskID,
			"user_id": state.UserID,
			"error":   err.Error(),
		})
	}
	state.LTM = record
	state.LTMFound = found

	logger.InfoCF("agent", "Memory fetched", map[string]interface{}{
		"task_id":       state.TaskID,
		"stm_sessions":  len(state.STMSessions),
		"new_sessions":  len(state.payloadSessions()),
		"ltm_available": found,
	})
}

// runReasoning produces the analysis snapshot over the combined history and
// folds stored long-term context into it.
func (p *Pipeline) runReasoning(state *State) {
	defer func() {
		if r := recover(); r != nil {
			state.addError(fmt.Sprintf("Reasoning error: %v", r))
			state.Analysis = nil
		}
	}()

	state.Analysis = p.analyzer.Analyze(state.combinedSessions(), state.profile())

	if state.LTMFound {
		trends := state.LTM.Trends
		if trends.AvgDuration != nil && state.Analysis.Duration != nil {
			state.Analysis.Duration.LTMAverage = trends.AvgDuration
		}
		if trends.AvgEfficiency != nil && state.Analysis.Efficiency != nil {
			state.Analysis.Efficiency.LTMAverage = trends.AvgEfficiency
		}
		state.Analysis.LTMPatterns = state.LTM.Patterns
	}

	logger.InfoCF("agent", "Analysis completed", map[string]interface{}{
		"task_id": state.TaskID,
		"issues":  len(state.Analysis.Issues),
	})
}

// runFanOut runs scoring and recommendation against the same read-only
// snapshot and merges their disjoint patches. Both branches must finish
// before memory_write; first to finish does not short-circuit the other.
func (p *Pipeline) runFanOut(state *State) {
	var (
		wg        sync.WaitGroup
		score     scorePatch
		recommend recommendPatch
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		score = p.runScoring(state)
	}()
	go func() {
		defer wg.Done()
		recommend = p.runRecommendation(state)
	}()
	wg.Wait()

	state.SleepScore = score.sleepScore
	state.Confidence = score.confidence
	state.Recommendations = recommend.recommendations
	state.PersonalizedTips = recommend.tips
}

func (p *Pipeline) runScoring(state *State) (patch scorePatch) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("agent", "Scorer failed, using zero score", map[string]interface{}{
				"task_id": state.TaskID,
				"panic":   fmt.Sprintf("%v", r),
			})
			patch = scorePatch{}
		}
	}()

	result := p.scorer.Calculate(state.scoringSessions(), state.Analysis)
	logger.InfoCF("agent", "Sleep score calculated", map[string]interface{}{
		"task_id":     state.TaskID,
		"sleep_score": result.SleepScore,
		"confidence":  result.Confidence,
	})
	return scorePatch{sleepScore: result.SleepScore, confidence: result.Confidence}
}

func (p *Pipeline) runRecommendation(state *State) (patch recommendPatch) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("agent", "Recommender failed, using empty recommendations", map[string]interface{}{
				"task_id": state.TaskID,
				"panic":   fmt.Sprintf("%v", r),
			})
			patch = recommendPatch{recommendations: &memory.Recommendations{}}
		}
	}()

	profile := enhanceProfile(state.profile(), state.LTM.Preferences)
	recs := p.recommender.Generate(state.Analysis, profile, state.LTM.Trends)

	// Stored patterns contribute their own tips on top of the generated set.
	for _, pattern := range state.LTM.Patterns {
		switch pattern.Type {
		case memory.PatternConsistentBedtime:
			recs.PersonalizedTips = append(recs.PersonalizedTips, "Maintain your consistent bedtime routine")
		case memory.PatternSufficientData:
			recs.PersonalizedTips = append(recs.PersonalizedTips, "Continue tracking for better insights")
		}
	}

	logger.InfoCF("agent", "Recommendations generated", map[string]interface{}{
		"task_id":  state.TaskID,
		"tips":     len(recs.PersonalizedTips),
		"patterns": len(state.LTM.Patterns),
	})
	return recommendPatch{recommendations: recs, tips: recs.PersonalizedTips}
}

// enhanceProfile fills profile gaps from stored preferences. The supplied
// profile is never mutated.
func enhanceProfile(profile *task.Profile, prefs memory.Preferences) *task.Profile {
	if prefs.PreferredDuration == nil {
		return profile
	}

	enhanced := task.Profile{}
	if profile != nil {
		enhanced = *profile
	}
	if enhanced.AvgSleepDuration == nil {
		enhanced.AvgSleepDuration = prefs.PreferredDuration
	}
	return &enhanced
}

// runMemoryWrite persists the task's products. A failed write is logged and
// the task still completes; see DESIGN.md for the rationale.
func (p *Pipeline) runMemoryWrite(ctx context.Context, state *State) {
	newSessions := state.payloadSessions()
	if len(newSessions) > 0 {
		if err := p.stm.Save(ctx, state.UserID, newSessions); err != nil {
			logger.ErrorCF("agent", "STM save failed", map[string]interface{}{
				"task_id": state.TaskID,
				"user_id": state.UserID,
				"error":   err.Error(),
			})
		}
	}

	// Trends are recomputed over the complete history, not just the delta.
	allSessions := state.combinedSessions()
	if len(allSessions) > 0 {
		if err := p.ltm.UpdateTrends(ctx, state.UserID, allSessions); err != nil {
			logger.ErrorCF("agent", "LTM trend update failed", map[string]interface{}{
				"task_id": state.TaskID,
				"user_id": state.UserID,
				"error":   err.Error(),
			})
		}
	}

	issues := state.Issues
	if len(issues) == 0 && state.Analysis != nil {
		issues = state.Analysis.Issues
	}

	hasRecommendations := state.Recommendations != nil
	hasScore := state.SleepScore > 0 || state.Confidence > 0
	hasTips := len(state.PersonalizedTips) > 0
	hasIssues := len(issues) > 0

	if !hasRecommendations && !hasScore && !hasTips && !hasIssues {
		logger.WarnCF("agent", "No task outputs to persist", map[string]interface{}{
			"task_id": state.TaskID,
			"user_id": state.UserID,
		})
		return
	}

	err := p.ltm.UpdateOutputs(ctx, state.UserID, state.Recommendations,
		state.SleepScore, state.Confidence, state.PersonalizedTips, issues)
	if err != nil {
		logger.ErrorCF("agent", "LTM output update failed", map[string]interface{}{
			"task_id": state.TaskID,
			"user_id": state.UserID,
			"error":   err.Error(),
		})
		return
	}

	logger.InfoCF("agent", "Memory updated", map[string]interface{}{
		"task_id":     state.TaskID,
		"sleep_score": state.SleepScore,
		"tips":        len(state.PersonalizedTips),
		"issues":      len(issues),
	})
}

func (p *Pipeline) runFormatting(state *State) {
	if state.Analysis != nil {
		state.Issues = state.Analysis.Issues
		state.Summary = state.Analysis.Summary
	}
	if state.Summary == "" {
		state.Summary = "Sleep analysis completed."
	}
	state.Status = task.StatusCompleted
}

// finalResult builds the response envelope. Accumulated errors from any
// stage turn the task into an error result, joined for the caller.
func finalResult(state *State) task.Result {
	if state.Status == task.StatusError || len(state.Errors) > 0 {
		errs := state.Errors
		if len(errs) == 0 {
			errs = []string{"Unknown error"}
		}
		return task.Result{
			TaskID: state.TaskID,
			Status: task.StatusError,
			Error:  strings.Join(errs, "; "),
		}
	}

	return task.Result{
		TaskID: state.TaskID,
		Status: task.StatusCompleted,
		Result: &task.ResultBody{
			Summary:          state.Summary,
			Issues:           state.Issues,
			Recommendations:  state.Recommendations,
			SleepScore:       state.SleepScore,
			Confidence:       state.Confidence,
			PersonalizedTips: state.PersonalizedTips,
		},
	}
}
