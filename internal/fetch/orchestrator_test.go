package fetch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jobdeck/jobdeck/internal/connector"
	"github.com/jobdeck/jobdeck/internal/quota"
	"github.com/jobdeck/jobdeck/internal/storage"
)

type fakeStore struct {
	mu       sync.Mutex
	postings map[string]storage.Posting
	states   map[string]storage.SourceState
	findErr  error
	marked   map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		postings: make(map[string]storage.Posting),
		states:   make(map[string]storage.SourceState),
		marked:   make(map[string]int),
	}
}

func (s *fakeStore) FindPostings(f storage.Filters) ([]storage.Posting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	var out []storage.Posting
	for _, p := range s.postings {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) UpsertPosting(p storage.Posting) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, existed := s.postings[p.ID]
	s.postings[p.ID] = p
	return !existed, nil
}

func (s *fakeStore) MarkInactive(source string, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked[source]++
	return 0, nil
}

func (s *fakeStore) GetSourceState(source string) (storage.SourceState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[source], nil
}

func (s *fakeStore) RecordSourceSuccess(source string, depth storage.Depth, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.states[source]
	st.Source = source
	st.LastShallowAt = at
	if depth == storage.DepthDeep {
		st.LastDeepAt = at
	}
	st.LastError = ""
	st.LastErrorAt = time.Time{}
	st.ConsecutiveFailures = 0
	s.states[source] = st
	return nil
}

func (s *fakeStore) RecordSourceFailure(source, errMsg string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.states[source]
	st.Source = source
	st.ConsecutiveFailures++
	st.LastError = errMsg
	st.LastErrorAt = at
	s.states[source] = st
	return st.ConsecutiveFailures, nil
}

func (s *fakeStore) state(source string) storage.SourceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[source]
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.postings)
}

func (s *fakeStore) preload(source string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%s-cached-%d", source, i)
		s.postings[id] = storage.Posting{ID: id, Source: source, Title: "cached", Active: true}
	}
}

// fakeGovernor admits against an in-memory counter with real
// check-and-increment semantics.
type fakeGovernor struct {
	mu       sync.Mutex
	used     int
	limit    int
	reserves int
}

func (g *fakeGovernor) Reserve(units int) (quota.Decision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reserves++
	granted := g.used+units <= g.limit
	if granted {
		g.used += units
	}
	d := quota.Decision{Granted: granted, Used: g.used, Limit: g.limit}
	d.Warn = d.Ratio() >= 0.8
	return d, nil
}

func (g *fakeGovernor) Usage() (quota.Decision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	d := quota.Decision{Used: g.used, Limit: g.limit}
	d.Warn = d.Ratio() >= 0.8
	return d, nil
}

func (g *fakeGovernor) spent() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.used
}

// scriptConnector serves scripted fetch results and tracks call counts and
// observed concurrency.
type scriptConnector struct {
	name    string
	delay   time.Duration
	fetchFn func(call int) ([]connector.RawPosting, bool, error)

	calls   atomic.Int32
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (c *scriptConnector) Name() string { return c.name }

func (c *scriptConnector) Fetch(ctx context.Context, q connector.Query, depth storage.Depth) ([]connector.RawPosting, bool, error) {
	call := int(c.calls.Add(1))
	cur := c.active.Add(1)
	for {
		peak := c.maxSeen.Load()
		if cur <= peak || c.maxSeen.CompareAndSwap(peak, cur) {
			break
		}
	}
	defer c.active.Add(-1)

	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
	if c.fetchFn != nil {
		return c.fetchFn(call)
	}
	return nil, false, nil
}

func rawPostings(source string, n int) []connector.RawPosting {
	out := make([]connector.RawPosting, n)
	for i := range out {
		out[i] = connector.RawPosting{
			Source: source,
			Title:  fmt.Sprintf("Engineer %d", i),
			URL:    fmt.Sprintf("https://example.com/%s/jobs/%d", source, i),
		}
	}
	return out
}

func succeedWith(source string, n int) func(int) ([]connector.RawPosting, bool, error) {
	return func(int) ([]connector.RawPosting, bool, error) {
		return rawPostings(source, n), false, nil
	}
}

func newTestOrchestrator(t *testing.T, store Store, gov Governor, cfg Config, conns ...connector.Connector) *Orchestrator {
	t.Helper()
	if len(cfg.Enabled) == 0 {
		for _, c := range conns {
			cfg.Enabled = append(cfg.Enabled, c.Name())
		}
	}
	if cfg.RetryBase == 0 {
		cfg.RetryBase = time.Millisecond
	}
	if cfg.ResolveTimeout == 0 {
		cfg.ResolveTimeout = 5 * time.Second
	}
	if cfg.TaskBudget == 0 {
		cfg.TaskBudget = 5 * time.Second
	}
	return New(store, gov, connector.NewRegistry(conns...), cfg)
}

func reportFor(t *testing.T, rs *ResultSet, source string) SourceReport {
	t.Helper()
	for _, r := range rs.Reports {
		if r.Source == source {
			return r
		}
	}
	t.Fatalf("no report for %s in %+v", source, rs.Reports)
	return SourceReport{}
}

// TestResolveRejectsEmptyQuery verifies blank query text fails fast.
func TestResolveRejectsEmptyQuery(t *testing.T) {
	o := newTestOrchestrator(t, newFakeStore(), &fakeGovernor{limit: 10}, Config{},
		&scriptConnector{name: "zhaopin"})

	_, err := o.Resolve(context.Background(), connector.Query{Text: "   "}, Options{})
	if !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("err = %v, want ErrInvalidQuery", err)
	}
}

// TestResolveRejectsUnknownOnlySelection verifies a selection that matches
// no enabled source fails fast.
func TestResolveRejectsUnknownOnlySelection(t *testing.T) {
	o := newTestOrchestrator(t, newFakeStore(), &fakeGovernor{limit: 10}, Config{},
		&scriptConnector{name: "zhaopin"})

	_, err := o.Resolve(context.Background(), connector.Query{Text: "golang"},
		Options{Sources: []string{"monster"}})
	if !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("err = %v, want ErrInvalidQuery", err)
	}
}

// TestResolveFreshFetch verifies a cold source fetches deep, persists, and
// reports fresh with the store as the result source.
func TestResolveFreshFetch(t *testing.T) {
	store := newFakeStore()
	gov := &fakeGovernor{limit: 10}
	conn := &scriptConnector{name: "zhaopin", fetchFn: succeedWith("zhaopin", 3)}
	o := newTestOrchestrator(t, store, gov, Config{}, conn)

	rs, err := o.Resolve(context.Background(), connector.Query{Text: "golang"}, Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	rep := reportFor(t, rs, "zhaopin")
	if rep.Status != StatusFresh {
		t.Errorf("status = %s", rep.Status)
	}
	if rep.Depth != storage.DepthDeep {
		t.Errorf("cold source should fetch deep, got %s", rep.Depth)
	}
	if rep.Fetched != 3 {
		t.Errorf("fetched = %d", rep.Fetched)
	}
	if rep.TaskID == "" {
		t.Error("fresh report without task ID")
	}
	if len(rs.Postings) != 3 {
		t.Errorf("postings = %d", len(rs.Postings))
	}
	if gov.spent() != 1 {
		t.Errorf("quota spent = %d, want 1", gov.spent())
	}
	if store.state("zhaopin").LastDeepAt.IsZero() {
		t.Error("deep success not stamped")
	}
	if store.marked["zhaopin"] != 1 {
		t.Error("deep fetch should reconcile inactive postings")
	}
}

// TestResolveCachedWithinTTL verifies a recently refreshed source is not
// fetched and spends nothing.
func TestResolveCachedWithinTTL(t *testing.T) {
	store := newFakeStore()
	now := time.Now()
	store.states["zhaopin"] = storage.SourceState{
		Source: "zhaopin", LastShallowAt: now, LastDeepAt: now,
	}
	store.preload("zhaopin", 2)
	gov := &fakeGovernor{limit: 10}
	conn := &scriptConnector{name: "zhaopin", fetchFn: succeedWith("zhaopin", 3)}
	o := newTestOrchestrator(t, store, gov, Config{}, conn)

	rs, err := o.Resolve(context.Background(), connector.Query{Text: "golang"}, Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if rep := reportFor(t, rs, "zhaopin"); rep.Status != StatusCached {
		t.Errorf("status = %s", rep.Status)
	}
	if conn.calls.Load() != 0 {
		t.Errorf("connector called %d times", conn.calls.Load())
	}
	if gov.spent() != 0 {
		t.Errorf("quota spent = %d", gov.spent())
	}
	if len(rs.Postings) != 2 {
		t.Errorf("cached postings = %d", len(rs.Postings))
	}
}

// TestResolveDegradeAfterRetries verifies persistent transient failure runs
// exactly the first attempt plus MaxRetries, charges quota once, and still
// serves cached postings.
func TestResolveDegradeAfterRetries(t *testing.T) {
	store := newFakeStore()
	store.preload("zhaopin", 2)
	gov := &fakeGovernor{limit: 10}
	conn := &scriptConnector{name: "zhaopin", fetchFn: func(int) ([]connector.RawPosting, bool, error) {
		return nil, false, errors.New("gateway timeout")
	}}
	o := newTestOrchestrator(t, store, gov, Config{MaxRetries: 3}, conn)

	rs, err := o.Resolve(context.Background(), connector.Query{Text: "golang"}, Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if got := conn.calls.Load(); got != 4 {
		t.Errorf("connector calls = %d, want 4 (1 + 3 retries)", got)
	}
	rep := reportFor(t, rs, "zhaopin")
	if rep.Status != StatusFailed || rep.Err == "" {
		t.Errorf("report = %+v", rep)
	}
	if gov.spent() != 1 {
		t.Errorf("quota spent = %d, want 1 (no refund, charged once)", gov.spent())
	}
	if len(rs.Postings) != 2 {
		t.Errorf("cached postings = %d", len(rs.Postings))
	}
	if store.state("zhaopin").ConsecutiveFailures != 1 {
		t.Errorf("failures = %d, want 1", store.state("zhaopin").ConsecutiveFailures)
	}
}

// TestResolveBlockedFailsImmediately verifies a blocked source gets no
// retries.
func TestResolveBlockedFailsImmediately(t *testing.T) {
	store := newFakeStore()
	gov := &fakeGovernor{limit: 10}
	blockedConn := &connectorReturning{name: "zhaopin"}
	o := newTestOrchestrator(t, store, gov, Config{MaxRetries: 3}, blockedConn)

	rs, err := o.Resolve(context.Background(), connector.Query{Text: "golang"}, Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if blockedConn.calls != 1 {
		t.Errorf("connector calls = %d, want 1", blockedConn.calls)
	}
	if rep := reportFor(t, rs, "zhaopin"); rep.Status != StatusFailed {
		t.Errorf("status = %s", rep.Status)
	}
}

// connectorReturning emits a blocked classification by driving a real
// connector through a blocked page.
type connectorReturning struct {
	name  string
	calls int
}

func (c *connectorReturning) Name() string { return c.name }

func (c *connectorReturning) Fetch(ctx context.Context, q connector.Query, depth storage.Depth) ([]connector.RawPosting, bool, error) {
	c.calls++
	z := connector.NewZhaopin(blockedScraper{}, 1, "")
	_, _, err := z.Fetch(ctx, q, depth)
	return nil, false, err
}

type blockedScraper struct{}

func (blockedScraper) Markdown(ctx context.Context, pageURL string) (string, error) {
	return "请完成下列验证", nil
}

// TestResolveSuspendedSource verifies a source past the failure ceiling is
// reported suspended and left alone.
func TestResolveSuspendedSource(t *testing.T) {
	store := newFakeStore()
	store.states["zhaopin"] = storage.SourceState{Source: "zhaopin", ConsecutiveFailures: 5}
	store.preload("zhaopin", 1)
	gov := &fakeGovernor{limit: 10}
	conn := &scriptConnector{name: "zhaopin", fetchFn: succeedWith("zhaopin", 3)}
	o := newTestOrchestrator(t, store, gov, Config{}, conn)

	rs, err := o.Resolve(context.Background(), connector.Query{Text: "golang"}, Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if rep := reportFor(t, rs, "zhaopin"); rep.Status != StatusSuspended {
		t.Errorf("status = %s", rep.Status)
	}
	if conn.calls.Load() != 0 {
		t.Error("suspended source must not fetch")
	}
	if gov.spent() != 0 {
		t.Error("suspended source must not spend quota")
	}
	if len(rs.Postings) != 1 {
		t.Errorf("cached postings = %d", len(rs.Postings))
	}
}

// TestResolveManualRefreshRevivesSuspended verifies a manual refresh runs a
// suspended source and a success clears the failure count.
func TestResolveManualRefreshRevivesSuspended(t *testing.T) {
	store := newFakeStore()
	store.states["zhaopin"] = storage.SourceState{Source: "zhaopin", ConsecutiveFailures: 5}
	gov := &fakeGovernor{limit: 10}
	conn := &scriptConnector{name: "zhaopin", fetchFn: succeedWith("zhaopin", 2)}
	o := newTestOrchestrator(t, store, gov, Config{}, conn)

	rs, err := o.Resolve(context.Background(), connector.Query{Text: "golang"},
		Options{ManualRefresh: true, Depth: storage.DepthDeep})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if rep := reportFor(t, rs, "zhaopin"); rep.Status != StatusFresh {
		t.Errorf("status = %s", rep.Status)
	}
	if got := store.state("zhaopin").ConsecutiveFailures; got != 0 {
		t.Errorf("failures after successful manual refresh = %d, want 0", got)
	}
	if gov.spent() != 1 {
		t.Errorf("manual refresh must still spend quota, spent = %d", gov.spent())
	}
}

// TestResolveQuotaLastUnit runs the one-unit-left scenario: two due
// sources, exactly one granted, cached postings still served for both.
func TestResolveQuotaLastUnit(t *testing.T) {
	store := newFakeStore()
	store.preload("zhaopin", 2)
	store.preload("linkedin", 2)
	gov := &fakeGovernor{limit: 10, used: 9}
	connA := &scriptConnector{name: "zhaopin", fetchFn: succeedWith("zhaopin", 1)}
	connB := &scriptConnector{name: "linkedin", fetchFn: succeedWith("linkedin", 1)}
	o := newTestOrchestrator(t, store, gov, Config{}, connA, connB)

	rs, err := o.Resolve(context.Background(), connector.Query{Text: "golang"}, Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	var fresh, exhausted int
	for _, rep := range rs.Reports {
		switch rep.Status {
		case StatusFresh:
			fresh++
		case StatusQuotaExhausted:
			exhausted++
		}
	}
	if fresh != 1 || exhausted != 1 {
		t.Fatalf("fresh = %d, exhausted = %d, reports = %+v", fresh, exhausted, rs.Reports)
	}
	if gov.spent() != 10 {
		t.Errorf("quota spent = %d, want 10", gov.spent())
	}

	bySource := map[string]int{}
	for _, p := range rs.Postings {
		bySource[p.Source]++
	}
	if bySource["zhaopin"] < 2 || bySource["linkedin"] < 2 {
		t.Errorf("cached postings missing from result: %v", bySource)
	}
	if rs.Warning == "" {
		t.Error("exhausted quota should carry a warning")
	}
}

// TestResolveSingleflight runs two identical concurrent resolves and
// verifies one connector call and one quota unit serve both.
func TestResolveSingleflight(t *testing.T) {
	store := newFakeStore()
	gov := &fakeGovernor{limit: 10}
	conn := &scriptConnector{name: "zhaopin", delay: 150 * time.Millisecond,
		fetchFn: succeedWith("zhaopin", 2)}
	o := newTestOrchestrator(t, store, gov, Config{}, conn)

	var wg sync.WaitGroup
	results := make([]*ResultSet, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = o.Resolve(context.Background(),
				connector.Query{Text: "golang", Location: "beijing"}, Options{})
		}()
	}
	wg.Wait()

	for i := 0; i < 2; i++ {
		if errs[i] != nil {
			t.Fatalf("resolve %d: %v", i, errs[i])
		}
		if rep := reportFor(t, results[i], "zhaopin"); rep.Status != StatusFresh {
			t.Errorf("resolve %d status = %s", i, rep.Status)
		}
	}
	if got := conn.calls.Load(); got != 1 {
		t.Errorf("connector calls = %d, want 1 (shared flight)", got)
	}
	if gov.spent() != 1 {
		t.Errorf("quota spent = %d, want 1 (shared flight)", gov.spent())
	}
}

// TestResolveTimeoutFinishesInBackground verifies a slow fetch reports
// timeout but still lands in the store afterwards.
func TestResolveTimeoutFinishesInBackground(t *testing.T) {
	store := newFakeStore()
	gov := &fakeGovernor{limit: 10}
	conn := &scriptConnector{name: "zhaopin", delay: 300 * time.Millisecond,
		fetchFn: succeedWith("zhaopin", 2)}
	o := newTestOrchestrator(t, store, gov,
		Config{ResolveTimeout: 50 * time.Millisecond}, conn)

	rs, err := o.Resolve(context.Background(), connector.Query{Text: "golang"}, Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if rep := reportFor(t, rs, "zhaopin"); rep.Status != StatusTimeout {
		t.Errorf("status = %s", rep.Status)
	}
	if len(rs.Postings) != 0 {
		t.Errorf("postings before background completion = %d", len(rs.Postings))
	}

	deadline := time.Now().Add(3 * time.Second)
	for store.count() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("background task never persisted")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if store.state("zhaopin").LastDeepAt.IsZero() {
		t.Error("background completion should stamp source state")
	}
}

// TestResolveUnknownSourceReported verifies unknown names are skipped with
// a report entry while known ones proceed.
func TestResolveUnknownSourceReported(t *testing.T) {
	store := newFakeStore()
	gov := &fakeGovernor{limit: 10}
	conn := &scriptConnector{name: "zhaopin", fetchFn: succeedWith("zhaopin", 1)}
	o := newTestOrchestrator(t, store, gov, Config{}, conn)

	rs, err := o.Resolve(context.Background(), connector.Query{Text: "golang"},
		Options{Sources: []string{"zhaopin", "monster"}})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if rep := reportFor(t, rs, "monster"); rep.Status != StatusUnknown {
		t.Errorf("monster status = %s", rep.Status)
	}
	if rep := reportFor(t, rs, "zhaopin"); rep.Status != StatusFresh {
		t.Errorf("zhaopin status = %s", rep.Status)
	}
}

// TestResolveStoreErrorPropagates verifies store failures are fatal, unlike
// connector failures.
func TestResolveStoreErrorPropagates(t *testing.T) {
	store := newFakeStore()
	store.findErr = errors.New("disk gone")
	gov := &fakeGovernor{limit: 10}
	conn := &scriptConnector{name: "zhaopin", fetchFn: succeedWith("zhaopin", 1)}
	o := newTestOrchestrator(t, store, gov, Config{}, conn)

	_, err := o.Resolve(context.Background(), connector.Query{Text: "golang"}, Options{})
	if err == nil || !errors.Is(err, store.findErr) {
		t.Fatalf("err = %v, want wrapped store error", err)
	}
}

// TestResolveGlobalConcurrencyBound verifies the weighted semaphore caps
// simultaneous fetches.
func TestResolveGlobalConcurrencyBound(t *testing.T) {
	store := newFakeStore()
	gov := &fakeGovernor{limit: 10}
	shared := &scriptConnector{delay: 80 * time.Millisecond}
	connA := &countingConnector{name: "zhaopin", inner: shared}
	connB := &countingConnector{name: "linkedin", inner: shared}
	o := newTestOrchestrator(t, store, gov, Config{MaxInFlight: 1}, connA, connB)

	if _, err := o.Resolve(context.Background(), connector.Query{Text: "golang"}, Options{}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if peak := shared.maxSeen.Load(); peak > 1 {
		t.Errorf("observed %d concurrent fetches, bound is 1", peak)
	}
	if calls := shared.calls.Load(); calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

// countingConnector funnels two source names through one scriptConnector so
// concurrency is observed in one place.
type countingConnector struct {
	name  string
	inner *scriptConnector
}

func (c *countingConnector) Name() string { return c.name }

func (c *countingConnector) Fetch(ctx context.Context, q connector.Query, depth storage.Depth) ([]connector.RawPosting, bool, error) {
	return c.inner.Fetch(ctx, q, depth)
}

// TestResolvePerSourceSerialized verifies two different queries against one
// source never fetch concurrently.
func TestResolvePerSourceSerialized(t *testing.T) {
	store := newFakeStore()
	gov := &fakeGovernor{limit: 10}
	conn := &scriptConnector{name: "zhaopin", delay: 80 * time.Millisecond,
		fetchFn: succeedWith("zhaopin", 1)}
	o := newTestOrchestrator(t, store, gov, Config{MaxInFlight: 4}, conn)

	var wg sync.WaitGroup
	for _, text := range []string{"golang", "python"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := o.Resolve(context.Background(), connector.Query{Text: text}, Options{}); err != nil {
				t.Errorf("resolve %q: %v", text, err)
			}
		}()
	}
	wg.Wait()

	if peak := conn.maxSeen.Load(); peak > 1 {
		t.Errorf("observed %d concurrent fetches on one source, want 1", peak)
	}
	if calls := conn.calls.Load(); calls != 2 {
		t.Errorf("calls = %d, want 2 (different fingerprints share nothing)", calls)
	}
}

// TestResolveQuotaWarningThreshold verifies the warning rides along once
// usage crosses the ratio.
func TestResolveQuotaWarningThreshold(t *testing.T) {
	store := newFakeStore()
	gov := &fakeGovernor{limit: 10, used: 8}
	conn := &scriptConnector{name: "zhaopin", fetchFn: succeedWith("zhaopin", 1)}
	o := newTestOrchestrator(t, store, gov, Config{}, conn)

	rs, err := o.Resolve(context.Background(), connector.Query{Text: "golang"}, Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if rs.Warning == "" {
		t.Error("usage past the threshold should warn")
	}
	if !rs.Quota.Warn {
		t.Error("decision should carry the warn flag")
	}
}
