// Package dispatcher schedules accepted events onto per-source lanes and
// drives them through the lead handler with bounded concurrency, rate limits
// and exponential retry. Jobs survive restarts in sqlite; redis carries the
// hot path and the dead-letter list.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"leadsync/internal/config"
	"leadsync/internal/domain"
	"leadsync/internal/metrics"
	"leadsync/internal/models"
)

const deadLetterKey = "jobs:deadletter"

// ErrNoRetry marks handler failures that retrying cannot fix. The job goes
// straight to the dead-letter queue.
var ErrNoRetry = errors.New("not retryable")

// Handler processes one claimed job.
type Handler interface {
	Handle(ctx context.Context, job *models.Job) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, job *models.Job) error

func (f HandlerFunc) Handle(ctx context.Context, job *models.Job) error {
	return f(ctx, job)
}

type lane struct {
	name    string
	workers int
	queue   chan models.Job
	limiter *rate.Limiter

	// pollMu lets only one worker of the lane run the sqlite catch-up poll.
	pollMu sync.Mutex
}

type Dispatcher struct {
	jobs    domain.JobStore
	handler Handler
	redis   *redis.Client
	alerter domain.Alerter
	events  domain.EventPublisher
	retry   RetryPolicy
	logger  zerolog.Logger

	lanes        map[string]*lane
	pollInterval time.Duration
	batchSize    int
	staleAfter   time.Duration
}

func New(jobs domain.JobStore, handler Handler, redisClient *redis.Client, cfg *config.Config, alerter domain.Alerter, events domain.EventPublisher, logger zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		jobs:    jobs,
		handler: handler,
		redis:   redisClient,
		alerter: alerter,
		events:  events,
		retry: RetryPolicy{
			MaxRetries:    cfg.Retry.MaxRetries,
			InitialDelay:  cfg.Retry.InitialDelay,
			MaxDelay:      cfg.Retry.MaxDelay,
			BackoffFactor: cfg.Retry.BackoffFactor,
		},
		logger:       logger.With().Str("component", "dispatcher").Logger(),
		lanes:        make(map[string]*lane),
		pollInterval: 2 * time.Second,
		batchSize:    20,
		staleAfter:   5 * time.Minute,
	}
	d.addLane(models.SourceChat, cfg.Lanes.Chat)
	d.addLane(models.SourcePipeline, cfg.Lanes.Pipeline)
	return d
}

func (d *Dispatcher) addLane(name string, cfg config.LaneConfig) {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	rps := cfg.RPS
	if rps <= 0 {
		rps = 1
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	d.lanes[name] = &lane{
		name:    name,
		workers: workers,
		queue:   make(chan models.Job, models.WorkerQueueSize),
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func queueKey(laneName string) string {
	return "jobs:queue:" + laneName
}

// Enqueue persists the job and schedules it. Redis carries it when available,
// the in-memory lane buffer when not; the sqlite poll catches whatever both
// miss.
func (d *Dispatcher) Enqueue(ctx context.Context, job *models.Job) error {
	ln, ok := d.lanes[job.Lane]
	if !ok {
		return fmt.Errorf("unknown lane %q", job.Lane)
	}
	if job.Status == "" {
		job.Status = models.JobPending
	}

	if err := d.jobs.CreateJob(ctx, job); err != nil {
		return fmt.Errorf("persist job: %w", err)
	}

	if d.redis != nil {
		if err := d.pushRedis(ctx, job); err != nil {
			d.logger.Warn().Err(err).Int64("job_id", job.ID).Msg("redis push failed, using memory queue")
		} else {
			return nil
		}
	}

	select {
	case ln.queue <- *job:
	default:
		d.logger.Warn().Int64("job_id", job.ID).Str("lane", job.Lane).Msg("lane buffer full, job left to polling")
	}
	return nil
}

// Start launches the lane workers and blocks until ctx is done.
func (d *Dispatcher) Start(ctx context.Context) {
	// Jobs a previous process claimed and never finished go back first.
	d.reclaimStale(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		d.reclaimLoop(ctx)
	}()
	for _, ln := range d.lanes {
		for i := 0; i < ln.workers; i++ {
			wg.Add(1)
			go func(ln *lane) {
				defer wg.Done()
				d.runWorker(ctx, ln)
			}(ln)
		}
		d.logger.Info().Str("lane", ln.name).Int("workers", ln.workers).Msg("lane started")
	}
	wg.Wait()
	d.logger.Info().Msg("dispatcher stopped")
}

func (d *Dispatcher) runWorker(ctx context.Context, ln *lane) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if job, ok := d.tryLocal(ln); ok {
			d.process(ctx, ln, &job)
			continue
		}
		if job, ok := d.tryRedis(ctx, ln); ok {
			d.process(ctx, ln, &job)
			continue
		}
		d.pollOnce(ctx, ln)
	}
}

func (d *Dispatcher) tryLocal(ln *lane) (models.Job, bool) {
	select {
	case job := <-ln.queue:
		return job, true
	default:
		return models.Job{}, false
	}
}

func (d *Dispatcher) tryRedis(ctx context.Context, ln *lane) (models.Job, bool) {
	if d.redis == nil {
		return models.Job{}, false
	}
	res, err := d.redis.BRPop(ctx, time.Second, queueKey(ln.name)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			d.logger.Warn().Err(err).Str("lane", ln.name).Msg("redis BRPOP error")
		}
		return models.Job{}, false
	}
	if len(res) != 2 {
		return models.Job{}, false
	}
	var job models.Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		d.logger.Error().Err(err).Str("lane", ln.name).Msg("decode queued job")
		return models.Job{}, false
	}
	return job, true
}

// pollOnce runs the sqlite catch-up under the lane poll lock. Workers that
// lose the lock just pace themselves.
func (d *Dispatcher) pollOnce(ctx context.Context, ln *lane) {
	if !ln.pollMu.TryLock() {
		d.pause(ctx)
		return
	}
	defer ln.pollMu.Unlock()

	due, err := d.jobs.GetDueJobs(ctx, ln.name, d.batchSize)
	if err != nil {
		d.logger.Error().Err(err).Str("lane", ln.name).Msg("fetch due jobs")
		d.pause(ctx)
		return
	}
	if len(due) == 0 {
		if d.redis == nil {
			// BRPOP paces redis-backed lanes; pace the poll-only path here.
			d.pause(ctx)
		}
		return
	}
	for i := range due {
		d.process(ctx, ln, &due[i])
	}
}

func (d *Dispatcher) pause(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(d.pollInterval):
	}
}

// process runs one job through the handler at the lane's rate. A job is
// delivered through up to three paths (buffer, redis, poll), so the worker
// must win the claim before the handler runs; losers drop the job silently.
func (d *Dispatcher) process(ctx context.Context, ln *lane, job *models.Job) {
	if err := ln.limiter.Wait(ctx); err != nil {
		return
	}

	claimed, err := d.jobs.ClaimJob(ctx, job.ID)
	if err != nil {
		d.logger.Error().Err(err).Int64("job_id", job.ID).Msg("claim job")
		return
	}
	if !claimed {
		return
	}

	fresh, err := d.jobs.GetJobByID(ctx, job.ID)
	if err != nil {
		d.logger.Error().Err(err).Int64("job_id", job.ID).Msg("reload claimed job")
		return
	}

	if err := d.handler.Handle(ctx, fresh); err != nil {
		if errors.Is(err, ErrNoRetry) {
			d.fail(ctx, fresh, err)
		} else {
			d.retryOrFail(ctx, fresh, err)
		}
		return
	}

	if err := d.jobs.UpdateJobStatus(ctx, fresh.ID, models.JobCompleted, "", nil); err != nil {
		d.logger.Error().Err(err).Int64("job_id", fresh.ID).Msg("mark job completed")
	}
	metrics.IncJobProcessed(ln.name, models.JobCompleted)
}

// reclaimLoop returns jobs a dead worker left claimed. The stale window is
// generous next to any sane handler runtime, so a live claim is never stolen.
func (d *Dispatcher) reclaimLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.reclaimStale(ctx)
		}
	}
}

func (d *Dispatcher) reclaimStale(ctx context.Context) {
	n, err := d.jobs.ReclaimStale(ctx, time.Now().Add(-d.staleAfter))
	if err != nil {
		d.logger.Error().Err(err).Msg("reclaim stale jobs")
		return
	}
	if n > 0 {
		d.logger.Warn().Int64("jobs", n).Msg("stale claimed jobs returned to queue")
	}
}

func (d *Dispatcher) retryOrFail(ctx context.Context, job *models.Job, cause error) {
	attempt := job.RetryCount + 1
	if attempt >= d.retry.MaxRetries {
		d.fail(ctx, job, cause)
		return
	}

	next := time.Now().Add(d.retry.NextDelay(attempt))
	if err := d.jobs.UpdateJobStatus(ctx, job.ID, models.JobRetry, cause.Error(), &next); err != nil {
		d.logger.Error().Err(err).Int64("job_id", job.ID).Msg("mark job retry")
	}
	metrics.IncJobRetry(job.Lane)
	d.logger.Warn().
		Err(cause).
		Int64("job_id", job.ID).
		Str("trace_id", job.TraceID).
		Int("attempt", attempt).
		Time("next_retry", next).
		Msg("job scheduled for retry")
}

func (d *Dispatcher) fail(ctx context.Context, job *models.Job, cause error) {
	if err := d.jobs.UpdateJobStatus(ctx, job.ID, models.JobFailed, cause.Error(), nil); err != nil {
		d.logger.Error().Err(err).Int64("job_id", job.ID).Msg("mark job failed")
	}
	d.pushDeadLetter(ctx, job)
	metrics.IncJobProcessed(job.Lane, models.JobFailed)
	metrics.IncDeadLetter(job.Lane)

	d.logger.Error().
		Err(cause).
		Int64("job_id", job.ID).
		Str("trace_id", job.TraceID).
		Str("lane", job.Lane).
		Msg("job dead-lettered")

	if d.events != nil {
		_ = d.events.PublishJSON("job_dead_lettered", map[string]any{
			"job_id":   job.ID,
			"trace_id": job.TraceID,
			"lane":     job.Lane,
			"error":    cause.Error(),
		})
	}
	if d.alerter != nil {
		d.alerter.Notify(fmt.Sprintf("Job %d (lane %s, trace %s) dead-lettered after %d attempts: %v",
			job.ID, job.Lane, job.TraceID, job.RetryCount+1, cause))
	}
}

// RetryJob puts one failed job back on its lane with a fresh attempt budget.
func (d *Dispatcher) RetryJob(ctx context.Context, id int64) error {
	job, err := d.jobs.GetJobByID(ctx, id)
	if err != nil {
		return err
	}
	if err := d.jobs.RequeueJob(ctx, id); err != nil {
		return err
	}
	job.Status = models.JobPending
	job.RetryCount = 0
	job.LastError = nil
	job.NextRetryAt = nil

	if ln, ok := d.lanes[job.Lane]; ok {
		if d.redis != nil && d.pushRedis(ctx, job) == nil {
			return nil
		}
		select {
		case ln.queue <- *job:
		default:
		}
	}
	return nil
}

// RetryAllFailed requeues the whole dead-letter set and reports how many.
func (d *Dispatcher) RetryAllFailed(ctx context.Context) (int, error) {
	failed, err := d.jobs.GetFailedJobs(ctx)
	if err != nil {
		return 0, err
	}
	requeued := 0
	for i := range failed {
		if err := d.RetryJob(ctx, failed[i].ID); err != nil {
			d.logger.Error().Err(err).Int64("job_id", failed[i].ID).Msg("requeue failed job")
			continue
		}
		requeued++
	}
	return requeued, nil
}

func (d *Dispatcher) pushRedis(ctx context.Context, job *models.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return d.redis.LPush(ctx, queueKey(job.Lane), data).Err()
}

func (d *Dispatcher) pushDeadLetter(ctx context.Context, job *models.Job) {
	if d.redis == nil {
		return
	}
	data, err := json.Marshal(job)
	if err != nil {
		d.logger.Error().Err(err).Int64("job_id", job.ID).Msg("encode dead-letter job")
		return
	}
	if err := d.redis.LPush(ctx, deadLetterKey, data).Err(); err != nil {
		d.logger.Warn().Err(err).Int64("job_id", job.ID).Msg("dead-letter push failed")
	}
}
