package service

import (
	"cad_practice_backend/internal/model"
	"cad_practice_backend/pkg/logger"
	"context"
	"time"

	"go.uber.org/zap"
)

// Job kinds consumed by the capture worker.
const (
	JobFirstFailureCapture = "capture:first_failure"
	JobFinalCapture        = "capture:final"
	JobStepCapture         = "capture:step"
)

// CaptureJob is the frozen snapshot passed to a background capture job.
// The user's live attempt state changes as soon as the request returns, so
// everything the job needs is pinned at enqueue time.
type CaptureJob struct {
	UserID       uint               `json:"userId"`
	OSUserID     string             `json:"osUserId"`
	QuestionID   uint               `json:"questionId"`
	QuestionType model.QuestionType `json:"questionType"`

	// Query snapshot: where and what to fetch
	Domain            string            `json:"domain"`
	DocumentID        string            `json:"documentId"`
	StartMicroversion string            `json:"startMicroversion"`
	EndMicroversion   string            `json:"endMicroversion"`
	ElementID         string            `json:"elementId"`
	ElementType       model.ElementType `json:"elementType"`

	StartTime   *time.Time `json:"startTime,omitempty"`
	SubmittedAt time.Time  `json:"submittedAt"`
	Step        int        `json:"step,omitempty"`
	IsFailure   bool       `json:"isFailure,omitempty"`
	FinalStep   bool       `json:"finalStep,omitempty"`
}

type completionLister interface {
	ListCompletions(userID uint, questionKey string) ([]model.CompletionRecord, error)
}

type jobEnqueuer interface {
	Enqueue(ctx context.Context, kind string, payload interface{}) error
}

// Telemetry storage is capped per question; once a question has been
// completed this many times, no further captures are recorded for it.
const collectionCompletionCap = 250

// A repeat completion is only worth capturing when the user beat their best
// prior time by at least this factor.
const repeatImprovementRatio = 0.8

// CollectorService decides whether a telemetry capture is worth storing and
// enqueues the background jobs that perform it.
type CollectorService struct {
	HistoryRepo completionLister
	Queue       jobEnqueuer
}

func NewCollectorService(historyRepo completionLister, q jobEnqueuer) *CollectorService {
	return &CollectorService{
		HistoryRepo: historyRepo,
		Queue:       q,
	}
}

// ShouldCollect is the sampling policy bounding telemetry storage cost,
// consulted on failure and give-up captures where no new completion exists:
// the stored history's last entry is the most recent attempt. Multi-step
// questions never consult it; their per-step captures are unconditional.
func (s *CollectorService) ShouldCollect(user *model.AuthUser, q *model.Question) bool {
	if !s.collectionOpen(q) {
		return false
	}

	completions, err := s.HistoryRepo.ListCompletions(user.ID, q.Key())
	if err != nil || len(completions) == 0 {
		// No history yet: first contact with this question is always
		// worth capturing.
		return true
	}
	if len(completions) > 3 {
		mostRecent := completions[len(completions)-1].Duration
		older := completions[:len(completions)-1]
		if mostRecent > bestDuration(older)*repeatImprovementRatio {
			return false
		}
	}
	return true
}

// ShouldCollectCompletion is the sampling policy for a completion that has
// not been recorded yet: duration is the just-finished time and the stored
// history holds only prior completions. With more than 3 prior completions
// the new time must beat the prior best by the improvement ratio.
func (s *CollectorService) ShouldCollectCompletion(user *model.AuthUser, q *model.Question, duration float64) bool {
	if !s.collectionOpen(q) {
		return false
	}

	prior, err := s.HistoryRepo.ListCompletions(user.ID, q.Key())
	if err != nil || len(prior) == 0 {
		return true
	}
	if len(prior) > 3 && duration > bestDuration(prior)*repeatImprovementRatio {
		return false
	}
	return true
}

func (s *CollectorService) collectionOpen(q *model.Question) bool {
	if !q.IsCollectingData || !q.IsPublished {
		return false
	}
	return q.CompletionCount <= collectionCompletionCap
}

func bestDuration(recs []model.CompletionRecord) float64 {
	best := recs[0].Duration
	for _, c := range recs[1:] {
		if c.Duration < best {
			best = c.Duration
		}
	}
	return best
}

// EnqueueFailureCapture records the first failed submission of an attempt.
func (s *CollectorService) EnqueueFailureCapture(ctx context.Context, user *model.AuthUser, q *model.Question) {
	s.enqueue(ctx, JobFirstFailureCapture, s.snapshot(user, q))
}

// EnqueueFinalCapture records the terminal submission of an attempt, either
// a pass or a give-up.
func (s *CollectorService) EnqueueFinalCapture(ctx context.Context, user *model.AuthUser, q *model.Question, isFailure bool) {
	job := s.snapshot(user, q)
	job.IsFailure = isFailure
	s.enqueue(ctx, JobFinalCapture, job)
}

// EnqueueStepCapture records a passed step of a multi-step question.
func (s *CollectorService) EnqueueStepCapture(ctx context.Context, user *model.AuthUser, q *model.Question, finalStep bool) {
	job := s.snapshot(user, q)
	job.Step = int(user.CurrStep)
	job.FinalStep = finalStep
	s.enqueue(ctx, JobStepCapture, job)
}

func (s *CollectorService) snapshot(user *model.AuthUser, q *model.Question) CaptureJob {
	return CaptureJob{
		UserID:            user.ID,
		OSUserID:          user.OSUserID,
		QuestionID:        q.ID,
		QuestionType:      q.Type,
		Domain:            user.Domain,
		DocumentID:        user.DocumentID,
		StartMicroversion: user.StartMicroversion,
		EndMicroversion:   user.EndMicroversion,
		ElementID:         user.ElementID,
		ElementType:       user.ElementType,
		StartTime:         user.LastStart,
		SubmittedAt:       time.Now(),
	}
}

// enqueue is fire-and-forget: a full queue or broken broker must never fail
// the user-facing request.
func (s *CollectorService) enqueue(ctx context.Context, kind string, job CaptureJob) {
	if err := s.Queue.Enqueue(ctx, kind, job); err != nil {
		logger.Log.Error("Failed to enqueue capture job",
			zap.String("kind", kind),
			zap.Uint("question_id", job.QuestionID),
			zap.Error(err),
		)
	}
}
