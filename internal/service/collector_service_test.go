package service

import (
	"cad_practice_backend/internal/model"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompletionLister struct {
	completions []model.CompletionRecord
	err         error
}

func (f *fakeCompletionLister) ListCompletions(userID uint, questionKey string) ([]model.CompletionRecord, error) {
	return f.completions, f.err
}

type fakeQueue struct {
	kinds    []string
	payloads []interface{}
	err      error
}

func (f *fakeQueue) Enqueue(ctx context.Context, kind string, payload interface{}) error {
	f.kinds = append(f.kinds, kind)
	f.payloads = append(f.payloads, payload)
	return f.err
}

func completionsWithDurations(durations ...float64) []model.CompletionRecord {
	recs := make([]model.CompletionRecord, len(durations))
	for i, d := range durations {
		recs[i].Duration = d
	}
	return recs
}

func collectingQuestion() *model.Question {
	q := &model.Question{
		Type:             model.QuestionTypeSinglePart,
		Name:             "Bracket",
		IsPublished:      true,
		IsCollectingData: true,
	}
	q.ID = 7
	return q
}

func TestShouldCollect(t *testing.T) {
	user := &model.AuthUser{}
	user.ID = 1

	t.Run("disabled question", func(t *testing.T) {
		q := collectingQuestion()
		q.IsCollectingData = false
		svc := NewCollectorService(&fakeCompletionLister{}, &fakeQueue{})
		assert.False(t, svc.ShouldCollect(user, q))
	})

	t.Run("unpublished question", func(t *testing.T) {
		q := collectingQuestion()
		q.IsPublished = false
		svc := NewCollectorService(&fakeCompletionLister{}, &fakeQueue{})
		assert.False(t, svc.ShouldCollect(user, q))
	})

	t.Run("per-question cap", func(t *testing.T) {
		q := collectingQuestion()
		q.CompletionCount = 251
		svc := NewCollectorService(&fakeCompletionLister{}, &fakeQueue{})
		assert.False(t, svc.ShouldCollect(user, q))
	})

	t.Run("no history collects", func(t *testing.T) {
		svc := NewCollectorService(&fakeCompletionLister{}, &fakeQueue{})
		assert.True(t, svc.ShouldCollect(user, collectingQuestion()))
	})

	t.Run("history lookup error collects", func(t *testing.T) {
		svc := NewCollectorService(&fakeCompletionLister{err: errors.New("db down")}, &fakeQueue{})
		assert.True(t, svc.ShouldCollect(user, collectingQuestion()))
	})

	t.Run("few completions collect", func(t *testing.T) {
		lister := &fakeCompletionLister{completions: completionsWithDurations(100, 120, 110)}
		svc := NewCollectorService(lister, &fakeQueue{})
		assert.True(t, svc.ShouldCollect(user, collectingQuestion()))
	})

	t.Run("repeat without improvement skipped", func(t *testing.T) {
		// Best prior time 90s; 84s is not a 20% improvement.
		lister := &fakeCompletionLister{completions: completionsWithDurations(100, 95, 90, 84)}
		svc := NewCollectorService(lister, &fakeQueue{})
		assert.False(t, svc.ShouldCollect(user, collectingQuestion()))
	})

	t.Run("repeat with improvement collects", func(t *testing.T) {
		// 70s beats 90*0.8=72s.
		lister := &fakeCompletionLister{completions: completionsWithDurations(100, 95, 90, 70)}
		svc := NewCollectorService(lister, &fakeQueue{})
		assert.True(t, svc.ShouldCollect(user, collectingQuestion()))
	})

	t.Run("boundary is inclusive", func(t *testing.T) {
		// Exactly 20% faster still collects.
		lister := &fakeCompletionLister{completions: completionsWithDurations(100, 95, 90, 72)}
		svc := NewCollectorService(lister, &fakeQueue{})
		assert.True(t, svc.ShouldCollect(user, collectingQuestion()))
	})
}

func TestShouldCollectCompletion(t *testing.T) {
	user := &model.AuthUser{}
	user.ID = 1

	t.Run("disabled question", func(t *testing.T) {
		q := collectingQuestion()
		q.IsCollectingData = false
		svc := NewCollectorService(&fakeCompletionLister{}, &fakeQueue{})
		assert.False(t, svc.ShouldCollectCompletion(user, q, 50))
	})

	t.Run("no prior history collects", func(t *testing.T) {
		svc := NewCollectorService(&fakeCompletionLister{}, &fakeQueue{})
		assert.True(t, svc.ShouldCollectCompletion(user, collectingQuestion(), 50))
	})

	t.Run("three prior completions always collect", func(t *testing.T) {
		lister := &fakeCompletionLister{completions: completionsWithDurations(100, 95, 90)}
		svc := NewCollectorService(lister, &fakeQueue{})
		assert.True(t, svc.ShouldCollectCompletion(user, collectingQuestion(), 89))
	})

	t.Run("repeat without improvement skipped", func(t *testing.T) {
		// Prior best 85s; 84s is not a 20% improvement.
		lister := &fakeCompletionLister{completions: completionsWithDurations(100, 95, 90, 85)}
		svc := NewCollectorService(lister, &fakeQueue{})
		assert.False(t, svc.ShouldCollectCompletion(user, collectingQuestion(), 84))
	})

	t.Run("repeat with improvement collects", func(t *testing.T) {
		lister := &fakeCompletionLister{completions: completionsWithDurations(100, 95, 90, 85)}
		svc := NewCollectorService(lister, &fakeQueue{})
		assert.True(t, svc.ShouldCollectCompletion(user, collectingQuestion(), 50))
	})

	t.Run("boundary is inclusive", func(t *testing.T) {
		// Exactly 85*0.8 still collects.
		lister := &fakeCompletionLister{completions: completionsWithDurations(100, 95, 90, 85)}
		svc := NewCollectorService(lister, &fakeQueue{})
		assert.True(t, svc.ShouldCollectCompletion(user, collectingQuestion(), 68))
	})
}

func TestEnqueueSnapshotsAttemptState(t *testing.T) {
	user := &model.AuthUser{
		OSUserID:          "os-1",
		Domain:            "https://cad.example.com",
		DocumentID:        "doc",
		ElementID:         "elem",
		ElementType:       model.ElementTypePartStudio,
		StartMicroversion: "mid-start",
		EndMicroversion:   "mid-end",
		CurrStep:          2,
	}
	user.ID = 4
	q := collectingQuestion()

	queue := &fakeQueue{}
	svc := NewCollectorService(&fakeCompletionLister{}, queue)

	svc.EnqueueFailureCapture(context.Background(), user, q)
	svc.EnqueueFinalCapture(context.Background(), user, q, true)
	svc.EnqueueStepCapture(context.Background(), user, q, true)

	require.Equal(t, []string{JobFirstFailureCapture, JobFinalCapture, JobStepCapture}, queue.kinds)

	fail := queue.payloads[0].(CaptureJob)
	assert.Equal(t, uint(4), fail.UserID)
	assert.Equal(t, "mid-start", fail.StartMicroversion)
	assert.Equal(t, "mid-end", fail.EndMicroversion)
	assert.Equal(t, q.ID, fail.QuestionID)

	final := queue.payloads[1].(CaptureJob)
	assert.True(t, final.IsFailure)

	step := queue.payloads[2].(CaptureJob)
	assert.Equal(t, 2, step.Step)
	assert.True(t, step.FinalStep)
}

func TestEnqueueFailureIsSwallowed(t *testing.T) {
	queue := &fakeQueue{err: errors.New("broker down")}
	svc := NewCollectorService(&fakeCompletionLister{}, queue)
	user := &model.AuthUser{}
	svc.EnqueueFinalCapture(context.Background(), user, collectingQuestion(), false)
	assert.Len(t, queue.kinds, 1)
}
