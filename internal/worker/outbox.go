package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"itinera/internal/database"
	"itinera/internal/domain"
	"itinera/internal/metrics"
	"itinera/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// taskPayload is persisted in SyncTask.Payload as JSON.
type taskPayload struct {
	ItineraryID  string               `json:"itinerary_id"`
	Itinerary    *models.Itinerary    `json:"itinerary,omitempty"`
	Notification *models.Notification `json:"notification,omitempty"`
}

// OutboxWorker consumes sync_queue tasks: sheet register updates and
// consultant notifications. Tasks are persisted first, then handed over via
// redis or an in-memory queue; the database poll picks up whatever those
// paths miss and every scheduled retry.
type OutboxWorker struct {
	store         domain.SyncQueueRepository
	sheets        domain.SheetsWriter
	notifier      domain.Notifier
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.SyncTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *zerolog.Logger
}

// NewOutboxWorker builds a worker with sane defaults. sheets, notifier and
// redisClient may be nil.
func NewOutboxWorker(
	store domain.SyncQueueRepository,
	sheets domain.SheetsWriter,
	notifier domain.Notifier,
	redisClient *redis.Client,
	retry RetryPolicy,
	logger *zerolog.Logger,
) *OutboxWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = 1 * time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "outbox_worker").Logger()

	return &OutboxWorker{
		store:         store,
		sheets:        sheets,
		notifier:      notifier,
		redis:         redisClient,
		retryPolicy:   retry,
		queue:         make(chan models.SyncTask, models.WorkerQueueSize),
		redisQueueKey: "outbox:queue",
		deadLetterKey: "outbox:deadletter",
		pollInterval:  2 * time.Second,
		batchSize:     20,
		logger:        &l,
	}
}

// EnqueueTask persists the task and schedules it via redis or the in-memory
// queue. payload is *models.Itinerary for sheet tasks and
// *models.Notification for notify tasks.
func (w *OutboxWorker) EnqueueTask(ctx context.Context, taskType, itineraryID string, payload interface{}) error {
	if taskType == "" {
		return errors.New("task type is required")
	}

	p := taskPayload{ItineraryID: itineraryID}
	switch v := payload.(type) {
	case *models.Itinerary:
		p.Itinerary = v
		if p.ItineraryID == "" && v != nil {
			p.ItineraryID = v.ID
		}
	case *models.Notification:
		p.Notification = v
	case nil:
	default:
		return fmt.Errorf("unsupported payload %T", payload)
	}
	if p.ItineraryID == "" {
		return errors.New("itinerary id is required")
	}

	payloadBytes, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	task := models.SyncTask{
		TaskType:    taskType,
		ItineraryID: p.ItineraryID,
		Payload:     string(payloadBytes),
		Status:      database.TaskPending,
	}
	if err := w.store.CreateSyncTask(ctx, &task); err != nil {
		return fmt.Errorf("persist sync task: %w", err)
	}

	if w.redis != nil {
		if err := w.pushRedis(ctx, task); err != nil {
			w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("Redis push failed, fallback to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task:
	default:
		w.logger.Warn().Int64("task_id", task.ID).Msg("In-memory queue full, task left to polling")
	}
	return nil
}

// Start runs the main loop until ctx is done.
func (w *OutboxWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("Outbox worker started")
	defer w.logger.Info().Msg("Outbox worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		tasks, err := w.store.GetPendingSyncTasks(ctx, w.batchSize)
		if err != nil {
			if ctx.Err() == nil {
				w.logger.Error().Err(err).Msg("Fetch pending tasks failed")
			}
			w.sleep(ctx)
			continue
		}
		if len(tasks) == 0 {
			w.sleep(ctx)
			continue
		}

		for i := range tasks {
			w.processTask(ctx, &tasks[i])
		}
	}
}

func (w *OutboxWorker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.pollInterval):
	}
}

func (w *OutboxWorker) tryLocalQueue() (models.SyncTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.SyncTask{}, false
	}
}

func (w *OutboxWorker) tryRedis(ctx context.Context) (models.SyncTask, bool) {
	if w.redis == nil {
		return models.SyncTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, redis.Nil) {
			return models.SyncTask{}, false
		}
		w.logger.Error().Err(err).Msg("Redis BRPOP failed")
		return models.SyncTask{}, false
	}
	if len(res) != 2 {
		return models.SyncTask{}, false
	}
	var task models.SyncTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("Decode redis task failed")
		return models.SyncTask{}, false
	}
	return task, true
}

func (w *OutboxWorker) processTask(ctx context.Context, task *models.SyncTask) {
	current, ok := w.claim(ctx, task)
	if !ok {
		return
	}
	task = current

	payload, err := w.decodePayload(task.Payload)
	if err != nil {
		w.failTask(ctx, task, fmt.Errorf("decode payload: %w", err))
		return
	}

	if err := w.handleTask(ctx, task.TaskType, payload); err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.store.UpdateSyncTaskStatus(ctx, task.ID, database.TaskCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Mark completed failed")
	}
	metrics.IncOutbox(task.TaskType, "ok")
}

// claim re-reads the row so a task delivered twice (queue copy plus the
// polling pass, or leftovers in redis from a previous run) runs once. The
// row is the source of truth; on a read error the task is left to polling.
func (w *OutboxWorker) claim(ctx context.Context, task *models.SyncTask) (*models.SyncTask, bool) {
	current, err := w.store.GetSyncTask(ctx, task.ID)
	if err != nil {
		w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("Reload task failed, left to polling")
		return nil, false
	}

	switch current.Status {
	case database.TaskCompleted, database.TaskFailed:
		w.logger.Debug().Int64("task_id", task.ID).Str("status", current.Status).Msg("Task already processed, skipped")
		return nil, false
	case database.TaskRetry:
		if current.NextRetryAt != nil && current.NextRetryAt.After(time.Now()) {
			return nil, false
		}
	}
	return current, true
}

func (w *OutboxWorker) handleTask(ctx context.Context, taskType string, payload taskPayload) error {
	switch taskType {
	case models.TaskSheetUpsert:
		if payload.Itinerary == nil {
			return errors.New("itinerary payload missing")
		}
		if w.sheets == nil {
			return nil
		}
		return w.sheets.UpsertItinerary(ctx, payload.Itinerary)
	case models.TaskSheetDelete:
		if payload.ItineraryID == "" {
			return errors.New("itinerary id missing")
		}
		if w.sheets == nil {
			return nil
		}
		return w.sheets.DeleteItineraryRow(ctx, payload.ItineraryID)
	case models.TaskNotify:
		if payload.Notification == nil {
			return errors.New("notification payload missing")
		}
		if w.notifier == nil {
			return nil
		}
		return w.notifier.Notify(ctx, payload.Notification)
	default:
		return fmt.Errorf("unknown task type: %s", taskType)
	}
}

func (w *OutboxWorker) retryOrFail(ctx context.Context, task *models.SyncTask, cause error) {
	attempt := task.RetryCount + 1
	if attempt >= w.retryPolicy.MaxRetries {
		w.failTask(ctx, task, cause)
		return
	}

	nextTime := time.Now().Add(w.retryPolicy.NextDelay(attempt))
	if err := w.store.UpdateSyncTaskStatus(ctx, task.ID, database.TaskRetry, cause.Error(), &nextTime); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Mark retry failed")
	}
	w.logger.Warn().Err(cause).
		Int64("task_id", task.ID).
		Str("task_type", task.TaskType).
		Int("attempt", attempt).
		Time("next_retry_at", nextTime).
		Msg("Task failed, scheduled retry")
	metrics.IncOutbox(task.TaskType, "retry")
}

func (w *OutboxWorker) failTask(ctx context.Context, task *models.SyncTask, cause error) {
	if err := w.store.UpdateSyncTaskStatus(ctx, task.ID, database.TaskFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Mark failed failed")
	}
	w.logger.Error().Err(cause).Int64("task_id", task.ID).Str("task_type", task.TaskType).Msg("Task moved to dead letter")
	w.pushDeadLetter(ctx, task)
	metrics.IncOutbox(task.TaskType, "dead")
}

func (w *OutboxWorker) decodePayload(raw string) (taskPayload, error) {
	var payload taskPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return payload, err
	}
	return payload, nil
}

func (w *OutboxWorker) pushRedis(ctx context.Context, task models.SyncTask) error {
	if w.redis == nil {
		return errors.New("redis client is nil")
	}
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, w.redisQueueKey, data).Err()
}

func (w *OutboxWorker) pushDeadLetter(ctx context.Context, task *models.SyncTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Encode dead letter failed")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Dead letter push failed")
	}
}

// DeadLetters returns up to limit most recent dead-lettered tasks from redis.
func (w *OutboxWorker) DeadLetters(ctx context.Context, limit int64) ([]models.SyncTask, error) {
	if w.redis == nil {
		return nil, nil
	}
	raw, err := w.redis.LRange(ctx, w.deadLetterKey, 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	tasks := make([]models.SyncTask, 0, len(raw))
	for _, r := range raw {
		var t models.SyncTask
		if err := json.Unmarshal([]byte(r), &t); err != nil {
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}
