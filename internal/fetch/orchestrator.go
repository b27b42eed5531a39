// Package fetch coordinates when sources are scraped and how failures,
// retries, quota, and concurrency are handled. Resolve is the single entry
// point for both interactive searches and scheduled refreshes: it decides
// per source whether the cache is good enough, dispatches bounded
// concurrent fetches for the rest, and always answers from the store.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/jobdeck/jobdeck/internal/connector"
	"github.com/jobdeck/jobdeck/internal/normalize"
	"github.com/jobdeck/jobdeck/internal/quota"
	"github.com/jobdeck/jobdeck/internal/staleness"
	"github.com/jobdeck/jobdeck/internal/storage"
)

// ErrInvalidQuery rejects a resolve whose query text is empty or whose
// source selection leaves nothing to run against.
var ErrInvalidQuery = errors.New("invalid query")

// Store is the slice of the persistent store the orchestrator drives.
type Store interface {
	FindPostings(f storage.Filters) ([]storage.Posting, error)
	UpsertPosting(p storage.Posting) (bool, error)
	MarkInactive(source string, olderThan time.Time) (int64, error)
	GetSourceState(source string) (storage.SourceState, error)
	RecordSourceSuccess(source string, depth storage.Depth, at time.Time) error
	RecordSourceFailure(source, errMsg string, at time.Time) (int, error)
}

// Governor admits fetch tasks against the monthly quota.
type Governor interface {
	Reserve(units int) (quota.Decision, error)
	Usage() (quota.Decision, error)
}

// Config tunes an Orchestrator. Zero values fall back to production
// defaults; tests shrink the timings.
type Config struct {
	// Enabled lists the source names resolves may touch, in display
	// order. Names without a registered connector are dropped.
	Enabled []string
	// Policy decides when a source is due. Zero value means the default
	// TTLs.
	Policy staleness.Policy
	// MaxRetries bounds retries after the first attempt. Negative means
	// the default (3); zero disables retries.
	MaxRetries int
	// MaxInFlight bounds concurrent fetches across all sources.
	MaxInFlight int
	// Grace is how far past a deep refresh an unseen posting stays
	// active.
	Grace time.Duration
	// ResolveTimeout is how long Resolve waits for its tasks before
	// reporting them as background work.
	ResolveTimeout time.Duration
	// TaskBudget bounds a task's total run including backoff, so a
	// background task cannot hang forever. Zero means twice the resolve
	// timeout.
	TaskBudget time.Duration
	// RetryBase is the first backoff step.
	RetryBase time.Duration
}

// retryCeil caps any single backoff wait.
const retryCeil = 30 * time.Second

type Orchestrator struct {
	store    Store
	governor Governor
	registry *connector.Registry
	policy   staleness.Policy

	enabled map[string]bool
	order   []string

	maxRetries     int
	grace          time.Duration
	resolveTimeout time.Duration
	taskBudget     time.Duration
	retryBase      time.Duration

	sem   *semaphore.Weighted
	group singleflight.Group

	mu       sync.Mutex
	sourceMu map[string]*sync.Mutex

	now func() time.Time
	log *slog.Logger
}

func New(store Store, governor Governor, registry *connector.Registry, cfg Config) *Orchestrator {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 3
	}
	if cfg.MaxInFlight < 1 {
		cfg.MaxInFlight = 4
	}
	if cfg.Grace <= 0 {
		cfg.Grace = 72 * time.Hour
	}
	if cfg.ResolveTimeout <= 0 {
		cfg.ResolveTimeout = 30 * time.Second
	}
	if cfg.TaskBudget <= 0 {
		cfg.TaskBudget = 2 * cfg.ResolveTimeout
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}
	policy := cfg.Policy
	if policy.ShallowTTL <= 0 {
		policy = staleness.Default()
	}

	log := slog.With("component", "fetch")
	o := &Orchestrator{
		store:          store,
		governor:       governor,
		registry:       registry,
		policy:         policy,
		enabled:        make(map[string]bool, len(cfg.Enabled)),
		maxRetries:     cfg.MaxRetries,
		grace:          cfg.Grace,
		resolveTimeout: cfg.ResolveTimeout,
		taskBudget:     cfg.TaskBudget,
		retryBase:      cfg.RetryBase,
		sem:            semaphore.NewWeighted(int64(cfg.MaxInFlight)),
		sourceMu:       make(map[string]*sync.Mutex),
		now:            time.Now,
		log:            log,
	}
	for _, name := range cfg.Enabled {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || o.enabled[name] {
			continue
		}
		if _, ok := registry.Get(name); !ok {
			log.Warn("source enabled but no connector registered", "source", name)
			continue
		}
		o.enabled[name] = true
		o.order = append(o.order, name)
	}
	return o
}

// Resolve answers a query. It partitions the candidate sources into fresh
// and due, dispatches bounded fetches for the due ones, waits up to the
// resolve timeout, and reads the result from the store. Slow tasks keep
// running in the background and land in the store for the next query.
//
// Connector failures never surface as errors; only an invalid query and
// store failures do.
func (o *Orchestrator) Resolve(ctx context.Context, q connector.Query, opts Options) (*ResultSet, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, fmt.Errorf("%w: empty query text", ErrInvalidQuery)
	}
	if opts.Depth != "" && opts.Depth != storage.DepthShallow && opts.Depth != storage.DepthDeep {
		return nil, fmt.Errorf("%w: depth %q", ErrInvalidQuery, opts.Depth)
	}
	candidates, unknown := o.candidates(opts.Sources)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no enabled source in %v", ErrInvalidQuery, opts.Sources)
	}

	fingerprint := normalize.Fingerprint(q.Text, q.Location)
	now := o.now()
	log := o.log.With("fingerprint", fingerprint)

	reports := make([]SourceReport, 0, len(candidates)+len(unknown))
	for _, name := range unknown {
		reports = append(reports, SourceReport{Source: name, Status: StatusUnknown})
	}

	type pending struct {
		source string
		ch     <-chan singleflight.Result
	}
	var waits []pending

	for _, source := range candidates {
		st, err := o.store.GetSourceState(source)
		if err != nil {
			return nil, fmt.Errorf("load state for %s: %w", source, err)
		}

		if o.policy.Suspended(st) && !opts.ManualRefresh {
			reports = append(reports, SourceReport{Source: source, Status: StatusSuspended})
			continue
		}

		due, depth := o.policy.Evaluate(st, now)
		if opts.ManualRefresh {
			due = true
			switch {
			case opts.Depth != "":
				depth = opts.Depth
			case depth == "":
				depth = storage.DepthShallow
			}
		}
		if !due {
			reports = append(reports, SourceReport{Source: source, Status: StatusCached})
			continue
		}

		// The quota reservation happens inside the shared task, so
		// concurrent identical resolves spend exactly one unit.
		key := source + "|" + fingerprint + "|" + string(depth)
		taskCtx := context.WithoutCancel(ctx)
		ch := o.group.DoChan(key, func() (any, error) {
			return o.runTask(taskCtx, source, fingerprint, depth, q), nil
		})
		waits = append(waits, pending{source: source, ch: ch})
	}

	waitCtx, cancel := context.WithTimeout(ctx, o.resolveTimeout)
	defer cancel()
	for _, w := range waits {
		var out taskOutcome
		select {
		case res := <-w.ch:
			out = res.Val.(taskOutcome)
		case <-waitCtx.Done():
			select {
			case res := <-w.ch:
				out = res.Val.(taskOutcome)
			default:
				log.Info("fetch outran resolve budget, continuing in background", "source", w.source)
				reports = append(reports, SourceReport{Source: w.source, Status: StatusTimeout})
				continue
			}
		}
		reports = append(reports, SourceReport{
			Source:  w.source,
			Status:  out.status,
			Depth:   out.depth,
			TaskID:  out.taskID,
			Fetched: out.fetched,
			Err:     out.errMsg,
		})
	}

	decision, err := o.governor.Usage()
	if err != nil {
		return nil, fmt.Errorf("quota usage: %w", err)
	}

	postings, err := o.store.FindPostings(storage.Filters{
		Query:    q.Text,
		Sources:  candidates,
		Location: normalize.NormalizeLocation(q.Location),
		Limit:    opts.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("read postings: %w", err)
	}

	rs := &ResultSet{Postings: postings, Reports: reports, Quota: decision}
	switch {
	case decision.Exhausted():
		rs.Warning = fmt.Sprintf("monthly fetch quota exhausted (%d of %d); serving cached results only",
			decision.Used, decision.Limit)
	case decision.Warn:
		rs.Warning = fmt.Sprintf("monthly fetch quota at %d%% (%d of %d)",
			int(decision.Ratio()*100), decision.Used, decision.Limit)
	}
	return rs, nil
}

// Usage exposes the governor's view for status surfaces.
func (o *Orchestrator) Usage() (quota.Decision, error) {
	return o.governor.Usage()
}

// Enabled returns the resolvable source names in configuration order.
func (o *Orchestrator) Enabled() []string {
	names := make([]string, len(o.order))
	copy(names, o.order)
	return names
}

// candidates splits the requested names into resolvable and unknown. An
// empty request means every enabled source.
func (o *Orchestrator) candidates(requested []string) (known, unknown []string) {
	if len(requested) == 0 {
		return o.Enabled(), nil
	}
	seen := make(map[string]bool, len(requested))
	for _, name := range requested {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		if o.enabled[name] {
			known = append(known, name)
		} else {
			unknown = append(unknown, name)
		}
	}
	return known, unknown
}

type taskOutcome struct {
	taskID  string
	status  Status
	depth   storage.Depth
	fetched int
	errMsg  string
}

// runTask owns one fetch from quota admission to persistence. It runs on
// the singleflight winner's goroutine with a context detached from the
// caller, so a slow fetch survives the resolve that started it.
func (o *Orchestrator) runTask(ctx context.Context, source, fingerprint string, depth storage.Depth, q connector.Query) taskOutcome {
	ctx, cancel := context.WithTimeout(ctx, o.taskBudget)
	defer cancel()

	task := NewTask(source, fingerprint, depth)
	log := o.log.With("task", task.ID, "source", source, "depth", string(depth))

	conn, ok := o.registry.Get(source)
	if !ok {
		return taskOutcome{taskID: task.ID, status: StatusFailed, depth: depth, errMsg: "no connector registered"}
	}

	decision, err := o.governor.Reserve(1)
	if err != nil {
		log.Error("quota reservation failed", "error", err)
		return taskOutcome{taskID: task.ID, status: StatusFailed, depth: depth, errMsg: err.Error()}
	}
	if !decision.Granted {
		log.Info("quota exhausted, serving cache", "used", decision.Used, "limit", decision.Limit)
		return taskOutcome{taskID: task.ID, status: StatusQuotaExhausted, depth: depth}
	}
	task.Reserve()

	lock := o.sourceLock(source)
	lock.Lock()
	defer lock.Unlock()

	if err := o.sem.Acquire(ctx, 1); err != nil {
		log.Warn("task budget ran out waiting for a fetch slot")
		return taskOutcome{taskID: task.ID, status: StatusFailed, depth: depth, errMsg: "no fetch slot within task budget"}
	}
	defer o.sem.Release(1)

	for {
		task.Start()
		raws, more, err := conn.Fetch(ctx, q, depth)
		if err == nil {
			return o.finish(task, log, source, depth, raws, more)
		}

		final := connector.IsBlocked(err) || task.Attempts > o.maxRetries || ctx.Err() != nil
		if final {
			task.Fail()
			o.recordFailure(log, source, err, task.Attempts)
			return taskOutcome{taskID: task.ID, status: StatusFailed, depth: depth, errMsg: err.Error()}
		}

		task.Retry()
		delay := backoffDelay(o.retryBase, task.Attempts-1, retryCeil)
		log.Debug("transient failure, backing off", "error", err, "attempt", task.Attempts, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			task.Fail()
			o.recordFailure(log, source, err, task.Attempts)
			return taskOutcome{taskID: task.ID, status: StatusFailed, depth: depth, errMsg: err.Error()}
		}
	}
}

// finish persists a successful fetch: upsert every posting, stamp the
// source state, and on deep fetches retire postings unseen past the grace
// window. more reports that the source had pages beyond the fetch budget.
func (o *Orchestrator) finish(task *Task, log *slog.Logger, source string, depth storage.Depth, raws []connector.RawPosting, more bool) taskOutcome {
	now := o.now()

	fetched := 0
	for _, raw := range raws {
		p, err := normalize.Posting(raw, now)
		if err != nil {
			log.Debug("skipping unusable posting", "error", err)
			continue
		}
		if _, err := o.store.UpsertPosting(p); err != nil {
			task.Fail()
			log.Error("persisting postings failed", "error", err)
			return taskOutcome{taskID: task.ID, status: StatusFailed, depth: depth, fetched: fetched, errMsg: err.Error()}
		}
		fetched++
	}

	if err := o.store.RecordSourceSuccess(source, depth, now); err != nil {
		log.Error("recording source success failed", "error", err)
	}
	if depth == storage.DepthDeep {
		if n, err := o.store.MarkInactive(source, now.Add(-o.grace)); err != nil {
			log.Error("retiring unseen postings failed", "error", err)
		} else if n > 0 {
			log.Info("retired postings unseen past grace", "count", n)
		}
	}

	task.Succeed()
	log.Info("fetch succeeded", "postings", fetched, "attempts", task.Attempts, "more_available", more)
	return taskOutcome{taskID: task.ID, status: StatusFresh, depth: depth, fetched: fetched}
}

func (o *Orchestrator) recordFailure(log *slog.Logger, source string, cause error, attempts int) {
	failures, err := o.store.RecordSourceFailure(source, cause.Error(), o.now())
	if err != nil {
		log.Error("recording source failure failed", "error", err)
		return
	}
	if o.policy.FailureCeiling > 0 && failures >= o.policy.FailureCeiling {
		log.Warn("source suspended after consecutive failures",
			"failures", failures, "error", cause, "attempts", attempts)
		return
	}
	log.Warn("fetch failed, serving cache", "error", cause, "attempts", attempts, "failures", failures)
}

// sourceLock serializes fetches per source.
func (o *Orchestrator) sourceLock(source string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sourceMu[source] == nil {
		o.sourceMu[source] = &sync.Mutex{}
	}
	return o.sourceMu[source]
}

// backoffDelay picks a full-jitter wait before the given 0-based retry:
// uniform in [0, base*2^attempt), never past ceil.
func backoffDelay(base time.Duration, attempt int, ceil time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base << attempt
	if d <= 0 || d > ceil {
		d = ceil
	}
	return time.Duration(rand.Int64N(int64(d)))
}
