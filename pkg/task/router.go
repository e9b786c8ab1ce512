// Package task runs background work off the gateway goroutines: per-group
// serialized queues, idempotency keys and retry with exponential backoff.
package task

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/small-frappuccino/modwarden/pkg/log"
)

// TaskHandler processes a task payload. ctx is cancelled when the router closes.
type TaskHandler func(ctx context.Context, payload any) error

// TaskOptions configures how a task is dispatched and executed.
type TaskOptions struct {
	// GroupKey serializes tasks that share it. Empty means the global group.
	GroupKey string

	// IdempotencyKey rejects re-dispatch of the same key within IdempotencyTTL.
	IdempotencyKey string

	// MaxAttempts bounds retries on handler error. 0 uses the router default.
	MaxAttempts int

	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	IdempotencyTTL time.Duration
}

// Task is one unit of work.
type Task struct {
	Type    string
	Payload any
	Options TaskOptions
}

// RouterConfig configures a TaskRouter. Zero fields take Defaults().
type RouterConfig struct {
	DefaultMaxAttempts int
	InitialBackoff     time.Duration
	MaxBackoff         time.Duration
	IdempotencyTTL     time.Duration

	// GroupBuffer is the queue length of each group worker.
	GroupBuffer int

	// GroupIdleTTL stops a group worker after this long without tasks.
	GroupIdleTTL time.Duration

	// CleanupInterval drives idle-group reaping, key expiry and ScheduleEvery jobs.
	CleanupInterval time.Duration

	// GlobalMaxWorkers caps concurrent handler executions; 0 is unlimited.
	GlobalMaxWorkers int

	// GroupMaxParallel is the worker count per group; 1 keeps groups serialized.
	GroupMaxParallel int
}

// Defaults returns the router defaults.
func Defaults() RouterConfig {
	return RouterConfig{
		DefaultMaxAttempts: 3,
		InitialBackoff:     1 * time.Second,
		MaxBackoff:         30 * time.Second,
		IdempotencyTTL:     10 * time.Minute,
		GroupBuffer:        64,
		GroupIdleTTL:       2 * time.Minute,
		CleanupInterval:    30 * time.Second,
		GlobalMaxWorkers:   0,
		GroupMaxParallel:   1,
	}
}

var (
	ErrRouterClosed    = errors.New("task router is closed")
	ErrUnknownTaskType = errors.New("unknown task type")
	ErrDuplicateTask   = errors.New("duplicate task (idempotency key present)")
)

const globalGroup = "_global"

type attemptKey struct{}

type attemptInfo struct {
	n, max int
}

// Attempt returns the 1-based attempt number and the attempt limit of the
// task being handled. Outside a handler it returns 1, 1.
func Attempt(ctx context.Context) (n, max int) {
	if a, ok := ctx.Value(attemptKey{}).(attemptInfo); ok {
		return a.n, a.max
	}
	return 1, 1
}

// TaskRouter is an in-memory dispatcher.
type TaskRouter struct {
	mu       sync.RWMutex
	handlers map[string]TaskHandler
	groups   map[string]*groupWorker
	inflight map[string]time.Time // idempotency key -> expiry
	closed   bool
	cfg      RouterConfig

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stop    sync.Once

	randMu sync.Mutex
	rnd    *rand.Rand

	execSem chan struct{}

	cronMu   sync.Mutex
	cronJobs []*cronJob
}

type groupWorker struct {
	key        string
	ch         chan *enqueuedTask
	quit       chan struct{}
	mu         sync.Mutex
	lastActive time.Time
}

type enqueuedTask struct {
	task    Task
	attempt int
}

type cronJob struct {
	interval time.Duration
	task     Task
	lastRun  time.Time
}

// NewRouter creates a running TaskRouter.
func NewRouter(cfg RouterConfig) *TaskRouter {
	def := Defaults()
	if cfg.DefaultMaxAttempts <= 0 {
		cfg.DefaultMaxAttempts = def.DefaultMaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = def.IdempotencyTTL
	}
	if cfg.GroupBuffer <= 0 {
		cfg.GroupBuffer = def.GroupBuffer
	}
	if cfg.GroupIdleTTL <= 0 {
		cfg.GroupIdleTTL = def.GroupIdleTTL
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	if cfg.GroupMaxParallel <= 0 {
		cfg.GroupMaxParallel = def.GroupMaxParallel
	}

	ctx, cancel := context.WithCancel(context.Background())
	tr := &TaskRouter{
		handlers: make(map[string]TaskHandler),
		groups:   make(map[string]*groupWorker),
		inflight: make(map[string]time.Time),
		cfg:      cfg,
		baseCtx:  ctx,
		cancel:   cancel,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if cfg.GlobalMaxWorkers > 0 {
		tr.execSem = make(chan struct{}, cfg.GlobalMaxWorkers)
	}

	tr.wg.Add(1)
	go tr.backgroundLoop()
	return tr
}

// RegisterHandler binds handler to taskType, replacing any previous one.
func (tr *TaskRouter) RegisterHandler(taskType string, handler TaskHandler) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.handlers[taskType] = handler
}

// Dispatch enqueues t. It returns ErrUnknownTaskType when no handler is
// registered and ErrDuplicateTask when t's idempotency key is still live.
func (tr *TaskRouter) Dispatch(ctx context.Context, t Task) error {
	tr.mu.Lock()
	if tr.closed {
		tr.mu.Unlock()
		return ErrRouterClosed
	}
	if h, ok := tr.handlers[t.Type]; !ok || h == nil {
		tr.mu.Unlock()
		return ErrUnknownTaskType
	}

	eff := tr.effectiveOptions(t.Options)
	now := time.Now()
	if key := eff.IdempotencyKey; key != "" {
		if expiry, exists := tr.inflight[key]; exists && now.Before(expiry) {
			tr.mu.Unlock()
			return ErrDuplicateTask
		}
		tr.inflight[key] = now.Add(eff.IdempotencyTTL)
	}

	tr.mu.Unlock()

	groupKey := eff.GroupKey
	if groupKey == "" {
		groupKey = globalGroup
	}
	if err := tr.enqueue(ctx, groupKey, &enqueuedTask{task: t, attempt: 1}); err != nil {
		tr.forget(eff.IdempotencyKey)
		return err
	}
	return nil
}

// enqueue hands enq to its group worker. The fast path sends under tr.mu so
// the group cannot be reaped in between; a full queue blocks outside the lock.
func (tr *TaskRouter) enqueue(ctx context.Context, groupKey string, enq *enqueuedTask) error {
	tr.mu.Lock()
	if tr.closed {
		tr.mu.Unlock()
		return ErrRouterClosed
	}
	gw := tr.ensureGroupLocked(groupKey)
	select {
	case gw.ch <- enq:
		tr.mu.Unlock()
		return nil
	default:
	}
	tr.mu.Unlock()

	select {
	case gw.ch <- enq:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-tr.baseCtx.Done():
		return ErrRouterClosed
	}
}

// Close cancels running handlers and waits for workers to exit. Queued
// tasks that have not started are dropped.
func (tr *TaskRouter) Close() {
	tr.stop.Do(func() {
		tr.mu.Lock()
		tr.closed = true
		tr.mu.Unlock()
		tr.cancel()
		tr.wg.Wait()
	})
}

// Stats is a snapshot for debugging and the control server.
type Stats struct {
	GroupsCount     int
	InflightCount   int
	RouterClosed    bool
	RegisteredTypes int
}

func (tr *TaskRouter) Stats() Stats {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return Stats{
		GroupsCount:     len(tr.groups),
		InflightCount:   len(tr.inflight),
		RouterClosed:    tr.closed,
		RegisteredTypes: len(tr.handlers),
	}
}

// ScheduleEvery dispatches t on every cleanup tick at least interval apart,
// starting with the first tick. The returned func cancels the job.
func (tr *TaskRouter) ScheduleEvery(interval time.Duration, t Task) func() {
	job := &cronJob{interval: interval, task: t}
	tr.cronMu.Lock()
	tr.cronJobs = append(tr.cronJobs, job)
	tr.cronMu.Unlock()

	return func() {
		tr.cronMu.Lock()
		defer tr.cronMu.Unlock()
		for i, j := range tr.cronJobs {
			if j == job {
				tr.cronJobs = append(tr.cronJobs[:i], tr.cronJobs[i+1:]...)
				return
			}
		}
	}
}

func (tr *TaskRouter) effectiveOptions(opt TaskOptions) TaskOptions {
	if opt.MaxAttempts <= 0 {
		opt.MaxAttempts = tr.cfg.DefaultMaxAttempts
	}
	if opt.InitialBackoff <= 0 {
		opt.InitialBackoff = tr.cfg.InitialBackoff
	}
	if opt.MaxBackoff <= 0 {
		opt.MaxBackoff = tr.cfg.MaxBackoff
	}
	if opt.IdempotencyTTL <= 0 {
		opt.IdempotencyTTL = tr.cfg.IdempotencyTTL
	}
	return opt
}

func (tr *TaskRouter) ensureGroupLocked(key string) *groupWorker {
	if gw, ok := tr.groups[key]; ok {
		gw.touch()
		return gw
	}
	gw := &groupWorker{
		key:        key,
		ch:         make(chan *enqueuedTask, tr.cfg.GroupBuffer),
		quit:       make(chan struct{}),
		lastActive: time.Now(),
	}
	tr.groups[key] = gw
	for range tr.cfg.GroupMaxParallel {
		tr.wg.Add(1)
		go tr.groupLoop(gw)
	}
	return gw
}

func (gw *groupWorker) touch() {
	gw.mu.Lock()
	gw.lastActive = time.Now()
	gw.mu.Unlock()
}

func (gw *groupWorker) idleSince() time.Time {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	return gw.lastActive
}

func (tr *TaskRouter) groupLoop(gw *groupWorker) {
	defer tr.wg.Done()
	for {
		select {
		case <-tr.baseCtx.Done():
			return
		case <-gw.quit:
			return
		case enq := <-gw.ch:
			gw.touch()
			tr.run(gw, enq)
		}
	}
}

func (tr *TaskRouter) run(gw *groupWorker, enq *enqueuedTask) {
	tr.mu.RLock()
	handler := tr.handlers[enq.task.Type]
	eff := tr.effectiveOptions(enq.task.Options)
	tr.mu.RUnlock()

	if handler == nil {
		log.ApplicationLogger().Warn("Task dropped (handler not registered)", "type", enq.task.Type, "group", gw.key)
		return
	}

	if tr.execSem != nil {
		select {
		case tr.execSem <- struct{}{}:
		case <-tr.baseCtx.Done():
			return
		}
	}
	ctx := context.WithValue(tr.baseCtx, attemptKey{}, attemptInfo{n: enq.attempt, max: eff.MaxAttempts})
	err := handler(ctx, enq.task.Payload)
	if tr.execSem != nil {
		<-tr.execSem
	}
	if err == nil {
		return
	}

	if enq.attempt >= eff.MaxAttempts || tr.baseCtx.Err() != nil {
		log.ErrorLoggerRaw().Error("Task failed; max attempts reached",
			"type", enq.task.Type,
			"group", gw.key,
			"attempts", enq.attempt,
			"err", err,
		)
		return
	}

	delay := tr.computeBackoff(eff.InitialBackoff, eff.MaxBackoff, enq.attempt)
	log.ApplicationLogger().Warn("Task failed, scheduling retry",
		"type", enq.task.Type,
		"group", gw.key,
		"attempt", enq.attempt+1,
		"max_attempts", eff.MaxAttempts,
		"backoff", delay.String(),
		"err", err,
	)
	next := &enqueuedTask{task: enq.task, attempt: enq.attempt + 1}
	tr.wg.Add(1)
	go tr.requeue(gw.key, next, delay)
}

// requeue re-enqueues a failed task on its group after delay. The group may
// have been reaped meanwhile; it is recreated.
func (tr *TaskRouter) requeue(groupKey string, enq *enqueuedTask, delay time.Duration) {
	defer tr.wg.Done()
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-tr.baseCtx.Done():
		return
	}

	if err := tr.enqueue(tr.baseCtx, groupKey, enq); err != nil && !errors.Is(err, ErrRouterClosed) {
		log.ApplicationLogger().Warn("Task retry dropped", "type", enq.task.Type, "group", groupKey, "err", err)
	}
}

func (tr *TaskRouter) computeBackoff(initial, max time.Duration, attempt int) time.Duration {
	backoff := initial
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff > max {
			backoff = max
			break
		}
	}
	return clampDuration(backoff+tr.jitter(backoff, 0.1), initial, max)
}

// jitter returns a random offset in [-d*ratio, +d*ratio].
func (tr *TaskRouter) jitter(d time.Duration, ratio float64) time.Duration {
	delta := int64(float64(d) * ratio)
	if delta <= 0 {
		return 0
	}
	tr.randMu.Lock()
	defer tr.randMu.Unlock()
	return time.Duration(tr.rnd.Int63n(2*delta+1) - delta)
}

func clampDuration(v, lo, hi time.Duration) time.Duration {
	return max(min(v, hi), lo)
}

func (tr *TaskRouter) forget(key string) {
	if key == "" {
		return
	}
	tr.mu.Lock()
	delete(tr.inflight, key)
	tr.mu.Unlock()
}

func (tr *TaskRouter) backgroundLoop() {
	defer tr.wg.Done()
	t := time.NewTicker(tr.cfg.CleanupInterval)
	defer t.Stop()
	for {
		select {
		case <-tr.baseCtx.Done():
			return
		case <-t.C:
			tr.cleanupOnce()
			tr.runCronOnce()
		}
	}
}

func (tr *TaskRouter) cleanupOnce() {
	now := time.Now()
	tr.mu.Lock()
	defer tr.mu.Unlock()

	for k, expiry := range tr.inflight {
		if now.After(expiry) {
			delete(tr.inflight, k)
		}
	}
	for key, gw := range tr.groups {
		if now.Sub(gw.idleSince()) >= tr.cfg.GroupIdleTTL && len(gw.ch) == 0 {
			close(gw.quit)
			delete(tr.groups, key)
		}
	}
}

func (tr *TaskRouter) runCronOnce() {
	now := time.Now()
	tr.cronMu.Lock()
	due := make([]Task, 0, len(tr.cronJobs))
	for _, job := range tr.cronJobs {
		if job.lastRun.IsZero() || now.Sub(job.lastRun) >= job.interval {
			job.lastRun = now
			due = append(due, job.task)
		}
	}
	tr.cronMu.Unlock()

	for _, t := range due {
		if err := tr.Dispatch(tr.baseCtx, t); err != nil && !errors.Is(err, ErrDuplicateTask) && !errors.Is(err, ErrRouterClosed) {
			log.ApplicationLogger().Warn("Scheduled task not dispatched", "type", t.Type, "err", err)
		}
	}
}
