package service

import (
	"cad_practice_backend/internal/geometry"
	"cad_practice_backend/internal/model"
	"cad_practice_backend/internal/onshape"
	"cad_practice_backend/internal/util"
	"cad_practice_backend/pkg/logger"
	"cad_practice_backend/pkg/monitoring"
	"context"
	"time"

	"go.uber.org/zap"
)

// Token refresh window before an evaluation round trip. Shorter than the
// relaunch lead because an evaluation is a single burst of vendor calls.
const evaluateRefreshLead = 10 * time.Minute

// VendorAPI is the slice of the Onshape client the attempt machinery needs.
type VendorAPI interface {
	GetMassProperties(ctx context.Context, token, domain, etype, did, wvm, wvmid, eid string, massAsGroup bool) (*onshape.MassProperties, error)
	GetFeatureList(ctx context.Context, token, domain, etype, did, wvm, wvmid, eid string) (*onshape.FeatureList, error)
	GetPartList(ctx context.Context, token, domain, did, wvm, wvmid, eid string) ([]onshape.Part, error)
	GetAssemblyDefinition(ctx context.Context, token, domain, did, wvm, wvmid, eid string, includeMateFeatures bool) (*onshape.AssemblyDefinition, error)
	GetCurrentMicroversion(ctx context.Context, token, domain, did, wid string) (string, error)
	InsertDerivedFeature(ctx context.Context, token, domain, did, wid, eid, srcDID, srcVID, srcEID, srcMID, featureName string) (string, error)
	CreateAssemblyInstances(ctx context.Context, token, domain, did, wid, eid, srcDID, srcVID, srcEID string) error
}

type tokenRefresher interface {
	EnsureFreshToken(ctx context.Context, user *model.AuthUser, within time.Duration) error
}

type collectionPolicy interface {
	ShouldCollect(user *model.AuthUser, q *model.Question) bool
	ShouldCollectCompletion(user *model.AuthUser, q *model.Question, duration float64) bool
	EnqueueFailureCapture(ctx context.Context, user *model.AuthUser, q *model.Question)
	EnqueueFinalCapture(ctx context.Context, user *model.AuthUser, q *model.Question, isFailure bool)
	EnqueueStepCapture(ctx context.Context, user *model.AuthUser, q *model.Question, finalStep bool)
}

type attemptUserStore interface {
	FindByID(id uint) (*model.AuthUser, error)
	Update(user *model.AuthUser) error
}

type attemptQuestionStore interface {
	FindByTypeAndID(t model.QuestionType, id uint) (*model.Question, error)
	Update(q *model.Question) error
	FindStep(questionID uint, stepNumber int) (*model.QuestionStep, error)
}

type attemptHistoryStore interface {
	CreateCompletion(rec *model.CompletionRecord) error
	CreateFailure(rec *model.FailureRecord) error
	ListCompletions(userID uint, questionKey string) ([]model.CompletionRecord, error)
}

// evalOutcome is what a strategy reports back from one submission. Exactly
// one of Precondition, Mismatch, PartialMatch, or Passed describes the
// result; CountMismatch marks the part-count precondition, which unlike the
// others counts as a real failed attempt.
type evalOutcome struct {
	Passed        bool
	Precondition  string
	CountMismatch bool
	Message       string
	Mismatch      *geometry.MismatchReport
	PartialMatch  *geometry.PartialMatchReport
	FeatureCount  int
	FinalStep     bool
}

// strategy is the per-question-kind behaviour behind the shared attempt
// state machine.
type strategy interface {
	Initiate(ctx context.Context, user *model.AuthUser, q *model.Question) error
	Evaluate(ctx context.Context, user *model.AuthUser, q *model.Question) (*evalOutcome, error)
	SolutionHint(ctx context.Context, user *model.AuthUser, q *model.Question) string
}

// EvaluateResult is the submission verdict returned to the user.
type EvaluateResult struct {
	Passed       bool                         `json:"passed"`
	Completed    bool                         `json:"completed"`
	FirstFailure bool                         `json:"firstFailure"`
	Message      string                       `json:"message,omitempty"`
	Mismatch     *geometry.MismatchReport     `json:"mismatch,omitempty"`
	PartialMatch *geometry.PartialMatchReport `json:"partialMatch,omitempty"`
	CurrentStep  int                          `json:"currentStep,omitempty"`
}

// GiveUpResult carries the solution instructions back to the user.
type GiveUpResult struct {
	Message    string `json:"message"`
	DidCollect bool   `json:"didCollect"`
}

// AttemptSummary is shown on the completion page. Distribution holds the
// question's outlier-filtered completion durations and FeatureCounts the
// feature counts of all completions, both for client-side charts.
type AttemptSummary struct {
	QuestionName  string    `json:"questionName"`
	Duration      float64   `json:"duration"`
	FeatureCount  int       `json:"featureCount"`
	AverageTime   string    `json:"averageTime"`
	Distribution  []float64 `json:"distribution"`
	FeatureCounts []int     `json:"featureCounts,omitempty"`
}

// AttemptService owns the lifecycle of a user's live attempt: starting a
// question, judging submissions, recording completions and abandonments,
// and handing telemetry decisions to the collector.
type AttemptService struct {
	Users      attemptUserStore
	Questions  attemptQuestionStore
	History    attemptHistoryStore
	Vendor     VendorAPI
	Auth       tokenRefresher
	Collector  collectionPolicy
	strategies map[model.QuestionType]strategy
}

func NewAttemptService(
	users attemptUserStore,
	questions attemptQuestionStore,
	history attemptHistoryStore,
	vendor VendorAPI,
	auth tokenRefresher,
	collector collectionPolicy,
) *AttemptService {
	s := &AttemptService{
		Users:     users,
		Questions: questions,
		History:   history,
		Vendor:    vendor,
		Auth:      auth,
		Collector: collector,
	}
	s.strategies = map[model.QuestionType]strategy{
		model.QuestionTypeSinglePart: &singlePartStrategy{vendor: vendor},
		model.QuestionTypeMultiPart:  &multiPartStrategy{vendor: vendor},
		model.QuestionTypeAssembly:   &assemblyStrategy{vendor: vendor},
		model.QuestionTypeMultiStep:  &multiStepStrategy{vendor: vendor, steps: questions},
	}
	return s
}

func (s *AttemptService) strategyFor(t model.QuestionType) (strategy, error) {
	st, ok := s.strategies[t]
	if !ok {
		return nil, util.ErrQuestionNotFound
	}
	return st, nil
}

// Initiate starts a new attempt. The user's workspace must hold no prior
// geometry, and any terminal state from an earlier attempt is simply
// overwritten since there is only ever one live attempt per user.
func (s *AttemptService) Initiate(ctx context.Context, userID uint, qtype model.QuestionType, questionID uint) (*model.Question, error) {
	user, err := s.Users.FindByID(userID)
	if err != nil {
		return nil, util.ErrUserNotFound
	}
	q, err := s.Questions.FindByTypeAndID(qtype, questionID)
	if err != nil {
		return nil, util.ErrQuestionNotFound
	}
	if !q.IsPublished && !user.IsReviewer {
		return nil, util.ErrQuestionNotPublished
	}
	if q.AllowedElemType != model.ElementTypeAll && q.AllowedElemType != user.ElementType {
		return nil, util.ErrElementTypeMismatch
	}

	if err := s.Auth.EnsureFreshToken(ctx, user, evaluateRefreshLead); err != nil {
		return nil, err
	}
	if err := s.checkWorkspaceEmpty(ctx, user); err != nil {
		return nil, err
	}

	st, err := s.strategyFor(qtype)
	if err != nil {
		return nil, err
	}

	// Scratch state from any earlier attempt must not leak into this one.
	user.InitContext = model.InitContext{}
	if err := st.Initiate(ctx, user, q); err != nil {
		return nil, err
	}

	// The start marker is taken after initiating actions so that derived
	// starting imports are part of the baseline, not of the user's edits.
	startMid, err := s.Vendor.GetCurrentMicroversion(ctx, user.AccessToken, user.Domain, user.DocumentID, user.WorkspaceID)
	if err != nil {
		return nil, util.ErrApiUnavailable
	}

	now := time.Now()
	user.IsModelling = true
	user.LastStart = &now
	user.CurrQuestionType = qtype
	user.CurrQuestionID = questionID
	user.CurrStep = 1
	user.StartMicroversion = startMid
	user.EndMicroversion = ""
	if err := s.Users.Update(user); err != nil {
		return nil, err
	}
	return q, nil
}

func (s *AttemptService) checkWorkspaceEmpty(ctx context.Context, user *model.AuthUser) error {
	switch user.ElementType {
	case model.ElementTypeAssembly:
		def, err := s.Vendor.GetAssemblyDefinition(ctx, user.AccessToken, user.Domain, user.DocumentID, "w", user.WorkspaceID, user.ElementID, false)
		if err != nil {
			return util.ErrApiUnavailable
		}
		if len(def.RootAssembly.Instances) > 0 || len(def.SubAssemblies) > 0 {
			return util.ErrWorkspaceNotEmpty
		}
	default:
		features, err := s.Vendor.GetFeatureList(ctx, user.AccessToken, user.Domain, string(user.ElementType), user.DocumentID, "w", user.WorkspaceID, user.ElementID)
		if err != nil {
			return util.ErrApiUnavailable
		}
		if len(features.Features) > 0 {
			return util.ErrWorkspaceNotEmpty
		}
	}
	return nil
}

// Evaluate judges the user's current model against the reference and runs
// the shared state transitions for pass, first failure, and repeat failure.
func (s *AttemptService) Evaluate(ctx context.Context, userID uint) (*EvaluateResult, error) {
	user, err := s.Users.FindByID(userID)
	if err != nil {
		return nil, util.ErrUserNotFound
	}
	if !user.IsModelling {
		return nil, util.ErrNoActiveAttempt
	}
	q, err := s.Questions.FindByTypeAndID(user.CurrQuestionType, user.CurrQuestionID)
	if err != nil {
		return nil, util.ErrQuestionNotFound
	}
	if err := s.Auth.EnsureFreshToken(ctx, user, evaluateRefreshLead); err != nil {
		return nil, err
	}

	st, err := s.strategyFor(q.Type)
	if err != nil {
		return nil, err
	}
	outcome, err := st.Evaluate(ctx, user, q)
	if err != nil {
		monitoring.EvaluationCounter.WithLabelValues(string(q.Type), "error").Inc()
		return nil, util.ErrApiUnavailable
	}

	if outcome.Passed {
		if q.Type == model.QuestionTypeMultiStep && !outcome.FinalStep {
			return s.advanceStep(ctx, user, q)
		}
		return s.recordCompletion(ctx, user, q, outcome)
	}
	return s.recordFailure(ctx, user, q, outcome)
}

// advanceStep handles a non-final step pass of a multi-step question: the
// version marker moves forward, the step snapshot is always captured, and
// the attempt stays live on the next step.
func (s *AttemptService) advanceStep(ctx context.Context, user *model.AuthUser, q *model.Question) (*EvaluateResult, error) {
	mid, err := s.Vendor.GetCurrentMicroversion(ctx, user.AccessToken, user.Domain, user.DocumentID, user.WorkspaceID)
	if err != nil {
		return nil, util.ErrApiUnavailable
	}
	user.EndMicroversion = mid
	s.Collector.EnqueueStepCapture(ctx, user, q, false)
	user.CurrStep++
	if err := s.Users.Update(user); err != nil {
		return nil, err
	}
	monitoring.EvaluationCounter.WithLabelValues(string(q.Type), "step_pass").Inc()
	return &EvaluateResult{Passed: true, CurrentStep: int(user.CurrStep)}, nil
}

func (s *AttemptService) recordCompletion(ctx context.Context, user *model.AuthUser, q *model.Question, outcome *evalOutcome) (*EvaluateResult, error) {
	endMid, err := s.Vendor.GetCurrentMicroversion(ctx, user.AccessToken, user.Domain, user.DocumentID, user.WorkspaceID)
	if err != nil {
		return nil, util.ErrApiUnavailable
	}

	duration := float64(0)
	if user.LastStart != nil {
		duration = time.Since(*user.LastStart).Seconds()
	}

	q.CompletionCount++
	q.CompletionTimes = append(q.CompletionTimes, duration)
	q.CompletionFeatureCounts = append(q.CompletionFeatureCounts, outcome.FeatureCount)
	if user.IsReviewer {
		q.ReviewerCompletionCount++
	}
	if err := s.Questions.Update(q); err != nil {
		return nil, err
	}

	// The decision must see the just-finished duration as the most recent
	// entry; the history row is only written below.
	collect := q.Type != model.QuestionTypeMultiStep && s.Collector.ShouldCollectCompletion(user, q, duration)

	user.EndMicroversion = endMid
	user.IsModelling = false
	if err := s.Users.Update(user); err != nil {
		return nil, err
	}

	if err := s.History.CreateCompletion(&model.CompletionRecord{
		UserID:       user.ID,
		QuestionKey:  q.Key(),
		CompletedAt:  time.Now(),
		Duration:     duration,
		FeatureCount: outcome.FeatureCount,
	}); err != nil {
		logger.Log.Error("failed to record completion", zap.Uint("user_id", user.ID), zap.Error(err))
	}

	if q.Type == model.QuestionTypeMultiStep {
		s.Collector.EnqueueStepCapture(ctx, user, q, true)
	} else if collect {
		s.Collector.EnqueueFinalCapture(ctx, user, q, false)
	}
	monitoring.EvaluationCounter.WithLabelValues(string(q.Type), "pass").Inc()
	return &EvaluateResult{Passed: true, Completed: true}, nil
}

func (s *AttemptService) recordFailure(ctx context.Context, user *model.AuthUser, q *model.Question, outcome *evalOutcome) (*EvaluateResult, error) {
	res := &EvaluateResult{
		Message:      outcome.Message,
		Mismatch:     outcome.Mismatch,
		PartialMatch: outcome.PartialMatch,
		CurrentStep:  int(user.CurrStep),
	}
	if outcome.Precondition != "" && !outcome.CountMismatch {
		// Precondition rejections are not modelling failures and never
		// set the failure marker.
		res.Message = outcome.Precondition
		monitoring.EvaluationCounter.WithLabelValues(string(q.Type), "precondition").Inc()
		return res, nil
	}
	if outcome.CountMismatch {
		res.Message = outcome.Precondition
	}

	if user.EndMicroversion == "" {
		mid, err := s.Vendor.GetCurrentMicroversion(ctx, user.AccessToken, user.Domain, user.DocumentID, user.WorkspaceID)
		if err != nil {
			return nil, util.ErrApiUnavailable
		}
		user.EndMicroversion = mid
		if err := s.Users.Update(user); err != nil {
			return nil, err
		}
		res.FirstFailure = true
		if q.Type != model.QuestionTypeMultiStep && s.Collector.ShouldCollect(user, q) {
			s.Collector.EnqueueFailureCapture(ctx, user, q)
		}
	}
	monitoring.EvaluationCounter.WithLabelValues(string(q.Type), "fail").Inc()
	return res, nil
}

// GiveUp abandons the live attempt and exposes the reference solution. The
// abandonment is only recorded when the user has failed at least once;
// giving up without a single evaluated attempt leaves nothing to compare
// against.
func (s *AttemptService) GiveUp(ctx context.Context, userID uint) (*GiveUpResult, error) {
	user, err := s.Users.FindByID(userID)
	if err != nil {
		return nil, util.ErrUserNotFound
	}
	if !user.IsModelling {
		return nil, util.ErrNoActiveAttempt
	}
	q, err := s.Questions.FindByTypeAndID(user.CurrQuestionType, user.CurrQuestionID)
	if err != nil {
		return nil, util.ErrQuestionNotFound
	}
	if err := s.Auth.EnsureFreshToken(ctx, user, evaluateRefreshLead); err != nil {
		return nil, err
	}

	st, err := s.strategyFor(q.Type)
	if err != nil {
		return nil, err
	}

	// Taken before the solution import so the marker excludes the
	// reference geometry about to be inserted.
	finalMid, err := s.Vendor.GetCurrentMicroversion(ctx, user.AccessToken, user.Domain, user.DocumentID, user.WorkspaceID)
	if err != nil {
		return nil, util.ErrApiUnavailable
	}

	hint := st.SolutionHint(ctx, user, q)
	res := &GiveUpResult{Message: hint}

	if user.EndMicroversion != "" {
		duration := float64(0)
		if user.LastStart != nil {
			duration = time.Since(*user.LastStart).Seconds()
		}
		if err := s.History.CreateFailure(&model.FailureRecord{
			UserID:      user.ID,
			QuestionKey: q.Key(),
			AbandonedAt: time.Now(),
			Duration:    duration,
		}); err != nil {
			logger.Log.Error("failed to record abandonment", zap.Uint("user_id", user.ID), zap.Error(err))
		}
		user.EndMicroversion = finalMid
		if q.Type != model.QuestionTypeMultiStep && s.Collector.ShouldCollect(user, q) {
			s.Collector.EnqueueFinalCapture(ctx, user, q, true)
			res.DidCollect = true
		}
	}

	user.IsModelling = false
	if err := s.Users.Update(user); err != nil {
		return nil, err
	}
	monitoring.EvaluationCounter.WithLabelValues(string(q.Type), "give_up").Inc()
	return res, nil
}

// Summarize reports a completion of the user's current question alongside
// the question's running average. By default it describes the most recent
// completion; with best it describes the fastest one in the user's history.
func (s *AttemptService) Summarize(userID uint, best bool) (*AttemptSummary, error) {
	user, err := s.Users.FindByID(userID)
	if err != nil {
		return nil, util.ErrUserNotFound
	}
	q, err := s.Questions.FindByTypeAndID(user.CurrQuestionType, user.CurrQuestionID)
	if err != nil {
		return nil, util.ErrQuestionNotFound
	}
	completions, err := s.History.ListCompletions(user.ID, q.Key())
	if err != nil || len(completions) == 0 {
		return nil, util.ErrNoActiveAttempt
	}
	shown := completions[len(completions)-1]
	if best {
		for _, c := range completions {
			if c.Duration < shown.Duration {
				shown = c
			}
		}
	}
	return &AttemptSummary{
		QuestionName:  q.Name,
		Duration:      shown.Duration,
		FeatureCount:  shown.FeatureCount,
		AverageTime:   q.AverageTimeString(),
		Distribution:  q.FilteredCompletionTimes(),
		FeatureCounts: q.CompletionFeatureCounts,
	}, nil
}
