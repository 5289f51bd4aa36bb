package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/heinthant2k4/sports-arena-booking/internal/config"
	"github.com/heinthant2k4/sports-arena-booking/internal/domain"
	"github.com/heinthant2k4/sports-arena-booking/internal/events"
	"github.com/heinthant2k4/sports-arena-booking/internal/metrics"
	"github.com/heinthant2k4/sports-arena-booking/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	redisQueueKey = "arena:outbox:queue"
	deadLetterKey = "arena:outbox:deadletter"
)

// Sink delivers outbox events to their destination.
type Sink interface {
	Deliver(ctx context.Context, task models.OutboxTask) error
	DeadLetter(ctx context.Context, task models.OutboxTask, cause error) error
}

// OutboxWorker relays persisted reservation events to a Sink. Tasks are
// written to the outbox table first, then announced through Redis or an
// in-memory queue; the table is polled for anything the queues missed.
type OutboxWorker struct {
	repo         domain.OutboxRepository
	sink         Sink
	redis        *redis.Client
	retryPolicy  RetryPolicy
	queue        chan models.OutboxTask
	pollInterval time.Duration
	batchSize    int
	logger       *zerolog.Logger
}

// NewOutboxWorker builds a worker with sane defaults.
func NewOutboxWorker(repo domain.OutboxRepository, sink Sink, redisClient *redis.Client, cfg config.OutboxConfig, logger *zerolog.Logger) *OutboxWorker {
	retry := RetryPolicyFromConfig(cfg).withDefaults()

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 20
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &OutboxWorker{
		repo:         repo,
		sink:         sink,
		redis:        redisClient,
		retryPolicy:  retry,
		queue:        make(chan models.OutboxTask, models.WorkerQueueSize),
		pollInterval: pollInterval,
		batchSize:    batchSize,
		logger:       logger,
	}
}

// Enqueue persists the event and schedules it via redis or the in-memory queue.
// changedBy names the actor and travels in the payload.
func (w *OutboxWorker) Enqueue(ctx context.Context, eventType string, r *models.Reservation, changedBy string) error {
	if eventType == "" {
		return errors.New("event type is required")
	}
	if r == nil || r.ID == 0 {
		return errors.New("reservation id is required")
	}

	payload, err := json.Marshal(events.NewReservationPayload(r, changedBy))
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	task := models.OutboxTask{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		ReservationID: r.ID,
		Payload:       string(payload),
		Status:        models.OutboxPending,
	}
	if err := w.repo.CreateOutboxTask(ctx, &task); err != nil {
		return fmt.Errorf("persist outbox task: %w", err)
	}

	if w.redis != nil {
		if err := w.pushRedis(ctx, redisQueueKey, task); err != nil {
			w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("redis push failed, fallback to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task:
	default:
		w.logger.Warn().Int64("task_id", task.ID).Msg("in-memory queue full, task left to polling")
	}
	return nil
}

// Start launches the main loop; stops when ctx is done.
func (w *OutboxWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("outbox worker started")
	defer w.logger.Info().Msg("outbox worker stopped")

	for {
		if ctx.Err() != nil {
			return
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processQueued(ctx, t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processQueued(ctx, t)
			continue
		}

		if n := w.drainPending(ctx); n == 0 {
			w.sleep(ctx)
		}
	}
}

// drainPending processes one batch of due tasks from the table.
func (w *OutboxWorker) drainPending(ctx context.Context) int {
	tasks, err := w.repo.GetPendingOutboxTasks(ctx, w.batchSize)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("fetch pending outbox tasks")
		}
		return 0
	}
	for i := range tasks {
		w.processTask(ctx, &tasks[i])
	}
	return len(tasks)
}

func (w *OutboxWorker) sleep(ctx context.Context) {
	timer := time.NewTimer(w.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (w *OutboxWorker) tryLocalQueue() (models.OutboxTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.OutboxTask{}, false
	}
}

func (w *OutboxWorker) tryRedis(ctx context.Context) (models.OutboxTask, bool) {
	if w.redis == nil {
		return models.OutboxTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || ctx.Err() != nil {
			return models.OutboxTask{}, false
		}
		w.logger.Error().Err(err).Msg("redis BRPOP error")
		return models.OutboxTask{}, false
	}
	if len(res) != 2 {
		return models.OutboxTask{}, false
	}
	var task models.OutboxTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("decode redis outbox task")
		return models.OutboxTask{}, false
	}
	return task, true
}

// processQueued delivers a task announced through a queue from its stored
// row. The poll may have settled it already, and a retrying row waits for its
// next_retry_at.
func (w *OutboxWorker) processQueued(ctx context.Context, queued models.OutboxTask) {
	stored, err := w.repo.GetOutboxTask(ctx, queued.ID)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Warn().Err(err).Int64("task_id", queued.ID).Msg("load queued outbox task, leaving it to polling")
		}
		return
	}

	switch {
	case stored.Status == models.OutboxDelivered || stored.Status == models.OutboxFailed:
		w.logger.Debug().Int64("task_id", stored.ID).Str("status", stored.Status).Msg("queued outbox task already settled")
		return
	case stored.NextRetryAt != nil && stored.NextRetryAt.After(time.Now()):
		return
	}
	w.processTask(ctx, stored)
}

func (w *OutboxWorker) processTask(ctx context.Context, task *models.OutboxTask) {
	if !json.Valid([]byte(task.Payload)) {
		w.failTask(ctx, task, errors.New("payload is not valid JSON"))
		return
	}

	if err := w.sink.Deliver(ctx, *task); err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}

	metrics.IncOutbox(models.OutboxDelivered)
	if err := w.repo.UpdateOutboxTaskStatus(ctx, task.ID, models.OutboxDelivered, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark delivered")
	}
}

func (w *OutboxWorker) retryOrFail(ctx context.Context, task *models.OutboxTask, cause error) {
	attempt := task.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		w.failTask(ctx, task, cause)
		return
	}

	metrics.IncOutbox(models.OutboxRetry)
	nextTime := w.retryPolicy.NextRetryAt(time.Now(), attempt)
	w.logger.Warn().Err(cause).Int64("task_id", task.ID).Int("attempt", attempt).Time("next_retry_at", nextTime).Msg("outbox delivery failed, will retry")
	if err := w.repo.UpdateOutboxTaskStatus(ctx, task.ID, models.OutboxRetry, cause.Error(), &nextTime); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark retry")
	}
}

func (w *OutboxWorker) failTask(ctx context.Context, task *models.OutboxTask, cause error) {
	metrics.IncOutbox(models.OutboxFailed)
	w.logger.Error().Err(cause).Int64("task_id", task.ID).Str("event_type", task.EventType).Msg("outbox task failed permanently")

	if err := w.repo.UpdateOutboxTaskStatus(ctx, task.ID, models.OutboxFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark failed")
	}
	if err := w.sink.DeadLetter(ctx, *task, cause); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("sink dead letter")
	}
	if w.redis != nil {
		if err := w.pushRedis(ctx, deadLetterKey, *task); err != nil {
			w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("deadletter push")
		}
	}
}

func (w *OutboxWorker) pushRedis(ctx context.Context, key string, task models.OutboxTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, key, data).Err()
}

// LogSink writes events to the log. Used when no broker is configured.
type LogSink struct {
	logger *zerolog.Logger
}

func NewLogSink(logger *zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Deliver(_ context.Context, task models.OutboxTask) error {
	s.logger.Info().
		Str("event_id", task.EventID).
		Str("event_type", task.EventType).
		Int64("reservation_id", task.ReservationID).
		RawJSON("payload", []byte(task.Payload)).
		Msg("reservation event")
	return nil
}

func (s *LogSink) DeadLetter(_ context.Context, task models.OutboxTask, cause error) error {
	s.logger.Error().Err(cause).Str("event_id", task.EventID).Msg("reservation event dead-lettered")
	return nil
}
