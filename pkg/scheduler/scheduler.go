package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/feedeater/feedeater/pkg/settings"
)

// markTimeout bounds the bookkeeping writes around an invocation so a
// slow database cannot wedge a queue worker.
const markTimeout = 5 * time.Second

// Options tune dispatch. Zero values take defaults.
type Options struct {
	// QueueDepth is the per-queue intake buffer.
	QueueDepth int

	// Concurrency sets workers per named queue. Queues default to 1,
	// which alone guarantees single-flight; the per-job lock keeps that
	// guarantee when a queue is widened.
	Concurrency map[string]int

	// DefaultBudget applies to definitions without their own budget.
	DefaultBudget time.Duration

	// SettingsGeneration reports a counter that moves every time a
	// module's settings are written. A schedule paused by a settings
	// validation error resumes on the first tick after the generation
	// changes. When nil, only a successful manual run lifts a pause.
	SettingsGeneration func(module string) uint64
}

func (o Options) withDefaults() Options {
	if o.QueueDepth <= 0 {
		o.QueueDepth = 16
	}
	if o.DefaultBudget <= 0 {
		o.DefaultBudget = DefaultBudget
	}
	return o
}

type invocation struct {
	def Definition
	run Run
}

// Scheduler owns the cron table and the queue workers.
type Scheduler struct {
	store runStore
	opts  Options
	cron  *cron.Cron

	mu      sync.Mutex
	defs    map[string]Definition
	order   []string
	pending map[string]bool
	paused  map[string]uint64 // module -> settings generation seen when it failed validation
	locks   map[string]*sync.Mutex
	queues  map[string]chan invocation

	baseCtx  context.Context
	started  bool
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a scheduler over the given run store.
func New(store runStore, opts Options) *Scheduler {
	return &Scheduler{
		store:   store,
		opts:    opts.withDefaults(),
		cron:    cron.New(cron.WithLocation(time.UTC)),
		defs:    make(map[string]Definition),
		pending: make(map[string]bool),
		paused:  make(map[string]uint64),
		locks:   make(map[string]*sync.Mutex),
		queues:  make(map[string]chan invocation),
		stopCh:  make(chan struct{}),
	}
}

// Register adds job definitions. Must be called before Start.
func (s *Scheduler) Register(defs ...Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("cannot register jobs after start")
	}

	for _, def := range defs {
		if def.Module == "" || def.Name == "" || def.Queue == "" {
			return fmt.Errorf("job %s/%s: module, name and queue are required", def.Module, def.Name)
		}
		if def.Handler == nil {
			return fmt.Errorf("job %s/%s: handler is required", def.Module, def.Name)
		}
		if def.Schedule != "" {
			if _, err := cron.ParseStandard(def.Schedule); err != nil {
				return fmt.Errorf("job %s/%s: invalid schedule %q: %w", def.Module, def.Name, def.Schedule, err)
			}
		}
		key := runKey(def.Module, def.Name)
		if _, dup := s.defs[key]; dup {
			return fmt.Errorf("job %s/%s registered twice", def.Module, def.Name)
		}
		s.defs[key] = def
		s.order = append(s.order, key)
	}
	return nil
}

// Start syncs job rows, fails over orphaned runs, spawns queue workers,
// and starts the cron table. ctx is the parent of every invocation.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	defs := make([]Definition, 0, len(s.defs))
	for _, key := range s.order {
		defs = append(defs, s.defs[key])
	}
	s.mu.Unlock()

	s.baseCtx = ctx

	if n, err := s.store.MarkOrphans(ctx); err != nil {
		return err
	} else if n > 0 {
		slog.Warn("Failed over orphaned job runs", "count", n)
	}
	if err := s.store.SyncJobs(ctx, defs); err != nil {
		return err
	}

	for _, def := range defs {
		s.ensureQueue(def.Queue)
	}
	for name, ch := range s.queues {
		workers := 1
		if n, ok := s.opts.Concurrency[name]; ok && n > 0 {
			workers = n
		}
		for i := 0; i < workers; i++ {
			s.wg.Add(1)
			go s.work(name, ch)
		}
	}

	scheduled := 0
	for _, def := range defs {
		if def.Schedule == "" {
			continue
		}
		def := def
		if _, err := s.cron.AddFunc(def.Schedule, func() { s.enqueueScheduled(def) }); err != nil {
			return fmt.Errorf("failed to schedule %s/%s: %w", def.Module, def.Name, err)
		}
		scheduled++
	}
	s.cron.Start()

	slog.Info("Scheduler started",
		"jobs", len(defs),
		"scheduled", scheduled,
		"queues", len(s.queues))
	return nil
}

// Stop halts the cron table and waits for in-flight work, bounded by
// ctx. Queued runs that never started are failed over at next boot.
func (s *Scheduler) Stop(ctx context.Context) {
	s.stopOnce.Do(func() {
		s.cron.Stop()
		close(s.stopCh)
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("Scheduler stopped")
	case <-ctx.Done():
		slog.Warn("Scheduler stop timed out with work in flight")
	}
}

// RunNow enqueues a manual run and returns its id. Manual runs are
// never coalesced; one queued during an active run waits its turn.
func (s *Scheduler) RunNow(ctx context.Context, module, job string) (uuid.UUID, error) {
	s.mu.Lock()
	def, ok := s.defs[runKey(module, job)]
	s.mu.Unlock()
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: %s/%s", ErrUnknownJob, module, job)
	}

	run := Run{
		ID:         uuid.New(),
		Module:     def.Module,
		Job:        def.Name,
		Queue:      def.Queue,
		Trigger:    TriggerManual,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		return uuid.Nil, err
	}
	if !s.tryEnqueue(invocation{def: def, run: run}) {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrQueueSaturated, def.Queue)
	}

	slog.Info("Job enqueued manually", "module", module, "job", job, "run_id", run.ID)
	return run.ID, nil
}

// JobStatuses returns the persisted operational view of every job,
// overlaid with the in-memory pause state of its module.
func (s *Scheduler) JobStatuses(ctx context.Context) ([]JobStatus, error) {
	statuses, err := s.store.JobStatuses(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	for i := range statuses {
		def, ok := s.defs[runKey(statuses[i].Module, statuses[i].Name)]
		if !ok || def.Schedule == "" {
			continue
		}
		if _, paused := s.paused[statuses[i].Module]; paused {
			statuses[i].Paused = true
		}
	}
	s.mu.Unlock()
	return statuses, nil
}

// HasJob reports whether a job is registered.
func (s *Scheduler) HasJob(module, job string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.defs[runKey(module, job)]
	return ok
}

// enqueueScheduled is the cron callback. A tick is skipped when the
// previous scheduled instance has not started yet, so slow jobs cannot
// pile up behind their own schedule, and while the module is paused by
// a settings validation failure that has not been fixed.
func (s *Scheduler) enqueueScheduled(def Definition) {
	key := runKey(def.Module, def.Name)

	s.mu.Lock()
	if gen, ok := s.paused[def.Module]; ok {
		if s.settingsGen(def.Module) == gen {
			s.mu.Unlock()
			pausedSkipsTotal.WithLabelValues(def.Module, def.Name).Inc()
			slog.Debug("Skipped scheduled run, module paused until settings change",
				"module", def.Module, "job", def.Name)
			return
		}
		delete(s.paused, def.Module)
		slog.Info("Settings changed, resuming module schedule",
			"module", def.Module, "job", def.Name)
	}
	if s.pending[key] {
		s.mu.Unlock()
		coalescedTotal.WithLabelValues(def.Module, def.Name).Inc()
		slog.Debug("Coalesced scheduled run", "module", def.Module, "job", def.Name)
		return
	}
	s.pending[key] = true
	s.mu.Unlock()

	run := Run{
		ID:         uuid.New(),
		Module:     def.Module,
		Job:        def.Name,
		Queue:      def.Queue,
		Trigger:    TriggerSchedule,
		EnqueuedAt: time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), markTimeout)
	defer cancel()
	if err := s.store.CreateRun(ctx, run); err != nil {
		s.clearPending(key)
		slog.Error("Failed to create scheduled run", "module", def.Module, "job", def.Name, "error", err)
		return
	}

	if !s.tryEnqueue(invocation{def: def, run: run}) {
		s.clearPending(key)
		s.finishRun(Finished{
			RunID:   run.ID,
			Module:  run.Module,
			Job:     run.Job,
			Status:  StatusError,
			EndedAt: time.Now().UTC(),
			Error:   "queue saturated",
		})
	}
}

func (s *Scheduler) ensureQueue(name string) {
	if _, ok := s.queues[name]; !ok {
		s.queues[name] = make(chan invocation, s.opts.QueueDepth)
	}
}

func (s *Scheduler) tryEnqueue(item invocation) bool {
	s.mu.Lock()
	ch, ok := s.queues[item.def.Queue]
	s.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- item:
		return true
	default:
		slog.Warn("Queue saturated, dropping run",
			"queue", item.def.Queue, "module", item.run.Module, "job", item.run.Job)
		return false
	}
}

func (s *Scheduler) work(queue string, ch chan invocation) {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		case item := <-ch:
			s.execute(item)
		}
	}
}

// execute runs one invocation under the per-job lock. The pending
// marker clears only after the lock is held, which keeps coalescing
// effective while an earlier instance still runs.
func (s *Scheduler) execute(item invocation) {
	key := runKey(item.run.Module, item.run.Job)
	lock := s.jobLock(key)
	lock.Lock()
	defer lock.Unlock()

	if item.run.Trigger == TriggerSchedule {
		s.clearPending(key)
	}

	started := time.Now().UTC()
	markCtx, cancelMark := context.WithTimeout(context.Background(), markTimeout)
	err := s.store.MarkRunning(markCtx, item.run.ID, started)
	cancelMark()
	if err != nil {
		slog.Error("Failed to mark run running", "run_id", item.run.ID, "error", err)
	}

	budget := item.def.Budget
	if budget <= 0 {
		budget = s.opts.DefaultBudget
	}
	// The generation is read before the run so a settings write landing
	// mid-run still unpauses the next tick.
	genAtStart := s.settingsGen(item.run.Module)
	runCtx, cancel := context.WithTimeout(s.baseCtx, budget)
	metrics, runErr := s.invoke(runCtx, item.def)
	budgetHit := runCtx.Err() == context.DeadlineExceeded
	cancel()

	ended := time.Now().UTC()
	status := StatusSuccess
	errMsg := ""
	switch {
	case runErr == nil:
	case errors.Is(runErr, context.DeadlineExceeded) && budgetHit && s.baseCtx.Err() == nil:
		// A budget-bounded sweep ending mid-flight is a normal end, not
		// a failure.
		slog.Info("Job budget exhausted", "module", item.run.Module, "job", item.run.Job, "budget", budget)
	default:
		status = StatusError
		errMsg = runErr.Error()
	}

	if status == StatusSuccess {
		s.clearPaused(item.run.Module)
	} else if settings.IsValidationError(runErr) {
		s.pauseModule(item.run.Module, item.run.Job, errMsg, genAtStart)
	}

	s.finishRun(Finished{
		RunID:   item.run.ID,
		Module:  item.run.Module,
		Job:     item.run.Job,
		Status:  status,
		EndedAt: ended,
		Error:   errMsg,
		Metrics: metrics,
	})

	runsTotal.WithLabelValues(item.run.Module, item.run.Job, status).Inc()
	runDuration.WithLabelValues(item.run.Module, item.run.Job).Observe(ended.Sub(started).Seconds())

	log := slog.With("module", item.run.Module, "job", item.run.Job, "run_id", item.run.ID,
		"status", status, "duration", ended.Sub(started))
	if status == StatusError {
		log.Error("Job finished", "error", errMsg)
	} else {
		log.Info("Job finished")
	}
}

// invoke calls the handler with panic recovery. A panicking job must
// not take its queue worker down with it.
func (s *Scheduler) invoke(ctx context.Context, def Definition) (metrics map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Job handler panicked",
				"module", def.Module, "job", def.Name, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return def.Handler(ctx)
}

func (s *Scheduler) finishRun(fin Finished) {
	ctx, cancel := context.WithTimeout(context.Background(), markTimeout)
	defer cancel()
	if err := s.store.MarkFinished(ctx, fin); err != nil {
		slog.Error("Failed to record finished run", "run_id", fin.RunID, "error", err)
	}
}

// pauseModule takes a whole module off its schedule after a settings
// validation failure. Every job of a module parses the same settings,
// so one failure pauses them all. The recorded generation is the one
// seen before the failing run; the first tick after a settings write
// resumes. Manual runs are never blocked, and a successful run of any
// of the module's jobs also lifts the pause.
func (s *Scheduler) pauseModule(module, job, reason string, gen uint64) {
	s.mu.Lock()
	_, already := s.paused[module]
	s.paused[module] = gen
	s.mu.Unlock()
	if !already {
		slog.Warn("Module schedule paused by invalid settings",
			"module", module, "job", job, "error", reason)
	}
}

func (s *Scheduler) clearPaused(module string) {
	s.mu.Lock()
	_, was := s.paused[module]
	delete(s.paused, module)
	s.mu.Unlock()
	if was {
		slog.Info("Module schedule resumed after successful run", "module", module)
	}
}

func (s *Scheduler) settingsGen(module string) uint64 {
	if s.opts.SettingsGeneration == nil {
		return 0
	}
	return s.opts.SettingsGeneration(module)
}

func (s *Scheduler) jobLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}

func (s *Scheduler) clearPending(key string) {
	s.mu.Lock()
	delete(s.pending, key)
	s.mu.Unlock()
}

func runKey(module, job string) string {
	return module + ":" + job
}
