// Package jobs runs analysis jobs on a bounded worker pool and tracks their
// lifecycle in memory.
package jobs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/JimBoHa/Infrastructure-Dashboard-sub003/internal/domain/entity"
	"github.com/JimBoHa/Infrastructure-Dashboard-sub003/internal/domain/usecase"
	"github.com/JimBoHa/Infrastructure-Dashboard-sub003/internal/metrics"
)

type Runner interface {
	Run(ctx context.Context, params entity.JobParams, progress usecase.ProgressFunc) (any, []string, error)
}

// StatusMirror keeps a fast external view of job status and the recently
// completed job-key index. Mirror failures degrade to log lines; the
// in-memory record stays authoritative.
type StatusMirror interface {
	SetStatus(ctx context.Context, jobID string, status entity.JobStatus) error
	SetJobKey(ctx context.Context, key, jobID string, ttl time.Duration) error
	JobIDForKey(ctx context.Context, key string) (string, error)
}

type JobStore interface {
	SaveJob(ctx context.Context, job *entity.AnalysisJob) error
}

type EventPublisher interface {
	PublishJobEvent(ctx context.Context, ev entity.JobEvent) error
}

type ResultStore interface {
	Upload(ctx context.Context, key string, data []byte) error
}

type Config struct {
	Workers          int
	QueueSize        int
	DedupTTL         time.Duration
	OffloadThreshold int
	EventBuffer      int
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.DedupTTL <= 0 {
		c.DedupTTL = 5 * time.Minute
	}
	if c.OffloadThreshold <= 0 {
		c.OffloadThreshold = 256 << 10
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 64
	}
	return c
}

// Engine owns every job record. Records are replaced wholesale under the
// lock and handed out as clones, so readers never observe a half-updated
// job.
type Engine struct {
	cfg       Config
	runner    Runner
	mirror    StatusMirror
	store     JobStore
	publisher EventPublisher
	results   ResultStore
	log       *logrus.Entry

	mu       sync.RWMutex
	jobs     map[string]*entity.AnalysisJob
	events   map[string]*eventRing
	cancels  map[string]context.CancelFunc
	inflight map[string]string // job key -> job id

	queue chan string
	wg    sync.WaitGroup
	stop  context.CancelFunc
}

func NewEngine(runner Runner, mirror StatusMirror, store JobStore, publisher EventPublisher, results ResultStore, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		cfg:       cfg,
		runner:    runner,
		mirror:    mirror,
		store:     store,
		publisher: publisher,
		results:   results,
		log:       logrus.WithField("component", "jobs"),
		jobs:      make(map[string]*entity.AnalysisJob),
		events:    make(map[string]*eventRing),
		cancels:   make(map[string]context.CancelFunc),
		inflight:  make(map[string]string),
		queue:     make(chan string, cfg.QueueSize),
	}
}

// Start launches the worker pool. Workers exit when ctx is canceled; jobs
// running at that moment finish as canceled.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.stop = context.WithCancel(ctx)
	for i := 0; i < e.cfg.Workers; i++ {
		e.wg.Add(1)
		go e.worker(ctx)
	}
}

// Stop cancels all workers and blocks until they drain.
func (e *Engine) Stop() {
	if e.stop != nil {
		e.stop()
	}
	e.wg.Wait()
}

// Submit validates and enqueues one job. Dedup is opt-in: with dedupe set or
// an explicit job key given, a submission whose key matches a pending,
// running, or recently completed job returns that job (replayed=true) instead
// of creating a new one. Without either, identical params run as separate
// jobs.
func (e *Engine) Submit(ctx context.Context, kind entity.JobKind, raw json.RawMessage, jobKey string, dedupe bool) (job *entity.AnalysisJob, replayed bool, err error) {
	if _, err := entity.DecodeParams(kind, raw); err != nil {
		return nil, false, err
	}
	if dedupe && jobKey == "" {
		jobKey = deriveJobKey(kind, raw)
	}

	if jobKey != "" {
		e.mu.Lock()
		if id, ok := e.inflight[jobKey]; ok {
			job := e.jobs[id].Clone()
			e.mu.Unlock()
			metrics.JobsDeduplicated.Inc()
			return job, true, nil
		}
		e.mu.Unlock()

		if e.mirror != nil {
			if id, err := e.mirror.JobIDForKey(ctx, jobKey); err != nil {
				e.log.WithError(err).Warn("job key lookup failed")
			} else if id != "" {
				if job, err := e.Get(id); err == nil {
					metrics.JobsDeduplicated.Inc()
					return job, true, nil
				}
			}
		}
	}

	job = &entity.AnalysisJob{
		ID:        uuid.New().String(),
		Kind:      kind,
		Params:    raw,
		JobKey:    jobKey,
		Status:    entity.StatusPending,
		CreatedAt: time.Now().UTC(),
	}

	e.mu.Lock()
	select {
	case e.queue <- job.ID:
	default:
		e.mu.Unlock()
		metrics.JobsRejected.Inc()
		return nil, false, entity.ErrQueueFull
	}
	e.jobs[job.ID] = job
	e.events[job.ID] = newEventRing(e.cfg.EventBuffer)
	if jobKey != "" {
		e.inflight[jobKey] = job.ID
	}
	e.mu.Unlock()

	metrics.JobsSubmitted.WithLabelValues(string(kind)).Inc()
	metrics.QueueDepth.Set(float64(len(e.queue)))
	e.recordEvent(job, "accepted")
	e.mirrorStatus(job)
	e.persist(job)
	return job.Clone(), false, nil
}

func (e *Engine) Get(id string) (*entity.AnalysisJob, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	job, ok := e.jobs[id]
	if !ok {
		return nil, entity.ErrJobNotFound
	}
	return job.Clone(), nil
}

// Result returns the completed job carrying either the inline payload or the
// object-storage key it was offloaded to.
func (e *Engine) Result(id string) (*entity.AnalysisJob, error) {
	job, err := e.Get(id)
	if err != nil {
		return nil, err
	}
	if job.Status != entity.StatusCompleted {
		return nil, fmt.Errorf("%w: job is %s", entity.ErrJobNotCompleted, job.Status)
	}
	return job, nil
}

// Cancel requests cooperative cancellation. Pending jobs flip to canceled
// immediately; running jobs get their context canceled and finish on their
// own next check.
func (e *Engine) Cancel(id string) error {
	e.mu.Lock()
	job, ok := e.jobs[id]
	if !ok {
		e.mu.Unlock()
		return entity.ErrJobNotFound
	}
	if job.Status.Terminal() {
		e.mu.Unlock()
		return entity.ErrJobTerminal
	}
	if job.Status == entity.StatusPending {
		job = e.finalizeLocked(job, entity.StatusCanceled, nil, "", "", nil)
		e.mu.Unlock()
		metrics.JobsFinished.WithLabelValues(string(job.Kind), string(job.Status)).Inc()
		e.recordEvent(job, "canceled before start")
		e.mirrorStatus(job)
		e.persist(job)
		return nil
	}
	cancel := e.cancels[id]
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// Events returns the job's buffered lifecycle events, oldest first.
func (e *Engine) Events(id string) ([]entity.JobEvent, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ring, ok := e.events[id]
	if !ok {
		return nil, entity.ErrJobNotFound
	}
	return ring.snapshot(), nil
}

// List returns clones of all jobs, newest first.
func (e *Engine) List() []*entity.AnalysisJob {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*entity.AnalysisJob, 0, len(e.jobs))
	for _, job := range e.jobs {
		out = append(out, job.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (e *Engine) worker(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-e.queue:
			metrics.QueueDepth.Set(float64(len(e.queue)))
			e.runJob(ctx, id)
		}
	}
}

func (e *Engine) runJob(ctx context.Context, id string) {
	e.mu.Lock()
	job, ok := e.jobs[id]
	if !ok || job.Status != entity.StatusPending {
		// Canceled while queued.
		e.mu.Unlock()
		return
	}
	now := time.Now().UTC()
	job = job.Clone()
	job.Status = entity.StatusRunning
	job.StartedAt = &now
	e.jobs[id] = job

	jobCtx, cancel := context.WithCancel(ctx)
	e.cancels[id] = cancel
	e.mu.Unlock()
	defer cancel()

	metrics.RunningJobs.Inc()
	defer metrics.RunningJobs.Dec()
	e.recordEvent(job, "started")
	e.mirrorStatus(job)

	params, err := entity.DecodeParams(job.Kind, job.Params)
	if err != nil {
		e.finish(id, entity.StatusFailed, nil, err.Error(), nil)
		return
	}

	result, warnings, err := e.runner.Run(jobCtx, params, e.progressFunc(id))

	switch {
	case err == nil:
		payload, merr := json.Marshal(result)
		if merr != nil {
			e.finish(id, entity.StatusFailed, nil, fmt.Sprintf("encode result: %v", merr), warnings)
			return
		}
		e.finish(id, entity.StatusCompleted, payload, "", warnings)
	case errors.Is(err, context.Canceled):
		e.finish(id, entity.StatusCanceled, nil, "", warnings)
	default:
		e.finish(id, entity.StatusFailed, nil, err.Error(), warnings)
	}
}

// progressFunc throttles record churn: the record is replaced on every call,
// but events are only emitted when the phase changes.
func (e *Engine) progressFunc(id string) usecase.ProgressFunc {
	var lastPhase string
	return func(phase string, done, total int) {
		e.mu.Lock()
		job, ok := e.jobs[id]
		if !ok || job.Status != entity.StatusRunning {
			e.mu.Unlock()
			return
		}
		job = job.Clone()
		job.Progress = entity.JobProgress{Phase: phase, Completed: done, Total: total}
		e.jobs[id] = job
		e.mu.Unlock()

		if phase != lastPhase {
			lastPhase = phase
			e.recordEvent(job, "")
		}
	}
}

func (e *Engine) finish(id string, status entity.JobStatus, result json.RawMessage, errMsg string, warnings []string) {
	// Offload before taking the lock: a slow object-storage call must not
	// stall every other Submit/Get on the shared registry.
	var resultKey string
	if e.results != nil && len(result) > e.cfg.OffloadThreshold {
		key := "results/" + id + ".json"
		if err := e.results.Upload(context.Background(), key, result); err != nil {
			e.log.WithError(err).WithField("job_id", id).Warn("result offload failed, keeping inline")
		} else {
			resultKey = key
			metrics.ResultsOffloaded.Inc()
		}
	}

	e.mu.Lock()
	job, ok := e.jobs[id]
	if !ok {
		e.mu.Unlock()
		return
	}
	job = e.finalizeLocked(job, status, result, resultKey, errMsg, warnings)
	e.mu.Unlock()

	if job.StartedAt != nil {
		metrics.JobDuration.WithLabelValues(string(job.Kind)).Observe(job.FinishedAt.Sub(*job.StartedAt).Seconds())
	}
	metrics.JobsFinished.WithLabelValues(string(job.Kind), string(job.Status)).Inc()
	e.recordEvent(job, job.Error)
	e.mirrorStatus(job)
	e.persist(job)
	e.rememberKey(job)
}

// finalizeLocked replaces the record with its terminal form. A non-empty
// resultKey means the payload was already offloaded. Caller holds e.mu.
func (e *Engine) finalizeLocked(job *entity.AnalysisJob, status entity.JobStatus, result json.RawMessage, resultKey, errMsg string, warnings []string) *entity.AnalysisJob {
	now := time.Now().UTC()
	job = job.Clone()
	job.Status = status
	job.Error = errMsg
	job.Warnings = append(job.Warnings, warnings...)
	job.FinishedAt = &now

	if resultKey != "" {
		job.ResultKey = resultKey
	} else if len(result) > 0 {
		job.Result = result
	}

	e.jobs[job.ID] = job
	delete(e.cancels, job.ID)
	if job.JobKey != "" {
		delete(e.inflight, job.JobKey)
	}
	return job
}

func (e *Engine) recordEvent(job *entity.AnalysisJob, message string) {
	ev := entity.JobEvent{
		Ts:       time.Now().UTC(),
		JobID:    job.ID,
		Status:   job.Status,
		Progress: job.Progress,
		Message:  message,
	}
	e.mu.Lock()
	if ring, ok := e.events[job.ID]; ok {
		ring.push(ev)
	}
	e.mu.Unlock()

	if e.publisher != nil {
		if err := e.publisher.PublishJobEvent(context.Background(), ev); err != nil {
			e.log.WithError(err).WithField("job_id", job.ID).Warn("job event publish failed")
		}
	}
}

func (e *Engine) mirrorStatus(job *entity.AnalysisJob) {
	if e.mirror == nil {
		return
	}
	if err := e.mirror.SetStatus(context.Background(), job.ID, job.Status); err != nil {
		e.log.WithError(err).WithField("job_id", job.ID).Warn("status mirror failed")
	}
}

func (e *Engine) rememberKey(job *entity.AnalysisJob) {
	if e.mirror == nil || job.JobKey == "" || job.Status != entity.StatusCompleted {
		return
	}
	if err := e.mirror.SetJobKey(context.Background(), job.JobKey, job.ID, e.cfg.DedupTTL); err != nil {
		e.log.WithError(err).WithField("job_id", job.ID).Warn("job key mirror failed")
	}
}

func (e *Engine) persist(job *entity.AnalysisJob) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveJob(context.Background(), job); err != nil {
		e.log.WithError(err).WithField("job_id", job.ID).Warn("job persist failed")
	}
}

func deriveJobKey(kind entity.JobKind, raw json.RawMessage) string {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write(raw)
	return hex.EncodeToString(h.Sum(nil))
}
