package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TaskTypeNormalize = "queue:normalize"
	QueueRepair       = "repair"
)

// NormalizePayload names the queue owner to renumber
type NormalizePayload struct {
	OwnerKey string `json:"ownerKey"`
}

// Normalizer renumbers one owner's pending queue to 1..n
type Normalizer interface {
	Normalize(ctx context.Context, owner string) (int, error)
}

// Enqueuer is the subset of *asynq.Client the scheduler needs
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Scheduler enqueues queue repairs. At most one repair per owner is
// pending at a time.
type Scheduler struct {
	client Enqueuer
	unique time.Duration
}

// NewScheduler creates a repair scheduler on an asynq client
func NewScheduler(client Enqueuer) *Scheduler {
	return &Scheduler{client: client, unique: time.Minute}
}

// NewNormalizeTask builds the repair task for owner
func NewNormalizeTask(owner string) (*asynq.Task, error) {
	data, err := json.Marshal(NormalizePayload{OwnerKey: owner})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal normalize payload: %w", err)
	}
	return asynq.NewTask(TaskTypeNormalize, data), nil
}

// ScheduleRepair enqueues a Normalize for owner
func (s *Scheduler) ScheduleRepair(ctx context.Context, owner string) error {
	task, err := NewNormalizeTask(owner)
	if err != nil {
		return err
	}

	info, err := s.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueRepair),
		asynq.MaxRetry(5),
		asynq.Unique(s.unique),
		asynq.Retention(time.Hour),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		return fmt.Errorf("failed to enqueue normalize task: %w", err)
	}

	slog.Info("queue repair scheduled", "owner", owner, "task", info.ID)
	return nil
}

// NormalizeWorker processes queue repair tasks
type NormalizeWorker struct {
	queue Normalizer
}

// NewNormalizeWorker creates a new normalize worker
func NewNormalizeWorker(queue Normalizer) *NormalizeWorker {
	return &NormalizeWorker{queue: queue}
}

// ProcessTask handles normalize task processing
func (w *NormalizeWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload NormalizePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w: %w", err, asynq.SkipRetry)
	}
	if payload.OwnerKey == "" {
		return fmt.Errorf("normalize task without owner: %w", asynq.SkipRetry)
	}

	changed, err := w.queue.Normalize(ctx, payload.OwnerKey)
	if err != nil {
		slog.Warn("queue repair failed", "owner", payload.OwnerKey, "error", err)
		return fmt.Errorf("failed to normalize queue of %s: %w", payload.OwnerKey, err)
	}

	slog.Info("queue repair done", "owner", payload.OwnerKey, "changed", changed)
	return nil
}
