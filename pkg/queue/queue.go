package queue

import (
	"cad_practice_backend/pkg/logger"
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Job is one queued unit of background work. Payload is kind-specific and
// decoded by the registered handler. ID correlates worker log lines with
// the enqueue site.
type Job struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
}

// Queue is a redis-list backed FIFO job queue.
type Queue struct {
	rdb *redis.Client
	key string
}

func New(rdb *redis.Client, key string) *Queue {
	return &Queue{rdb: rdb, key: key}
}

func (q *Queue) Enqueue(ctx context.Context, kind string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	job, err := json.Marshal(Job{
		ID:         uuid.NewString(),
		Kind:       kind,
		Payload:    data,
		EnqueuedAt: time.Now(),
	})
	if err != nil {
		return err
	}
	return q.rdb.LPush(ctx, q.key, job).Err()
}

// Handler processes one job payload. A returned error drops the job after
// logging; jobs are not retried.
type Handler func(ctx context.Context, payload json.RawMessage) error

// Worker consumes jobs from a queue and dispatches them by kind.
type Worker struct {
	queue    *Queue
	handlers map[string]Handler
}

func NewWorker(q *Queue) *Worker {
	return &Worker{
		queue:    q,
		handlers: make(map[string]Handler),
	}
}

func (w *Worker) Handle(kind string, h Handler) {
	w.handlers[kind] = h
}

// Run blocks consuming jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		result, err := w.queue.rdb.BRPop(ctx, 5*time.Second, w.queue.key).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Log.Error("Job queue poll failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		if len(result) < 2 {
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			logger.Log.Error("Malformed job dropped", zap.Error(err))
			continue
		}
		handler, ok := w.handlers[job.Kind]
		if !ok {
			logger.Log.Warn("No handler for job kind", zap.String("kind", job.Kind))
			continue
		}
		if err := handler(ctx, job.Payload); err != nil {
			logger.Log.Error("Job failed",
				zap.String("job_id", job.ID),
				zap.String("kind", job.Kind),
				zap.Error(err),
			)
		}
	}
}
