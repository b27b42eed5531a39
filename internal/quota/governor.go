// Package quota meters fetch spending against a hard monthly budget. Every
// fetch task costs one unit regardless of how many pages or retries it
// takes, and a failed fetch is never refunded: the upstream request was
// made, so the money is spent.
package quota

import (
	"fmt"
	"time"
)

// Ledger is the persistence the governor needs.
type Ledger interface {
	ReserveQuota(month string, units, limit int) (bool, int, error)
	QuotaUsed(month string) (int, error)
}

// Decision is the outcome of one admission check.
type Decision struct {
	Granted bool `json:"granted"`
	Used    int  `json:"used"`
	Limit   int  `json:"limit"`
	Warn    bool `json:"warn"` // usage at or past the warning threshold
}

// Ratio returns consumed/limit clamped to [0, 1].
func (d Decision) Ratio() float64 {
	if d.Limit <= 0 {
		return 1
	}
	r := float64(d.Used) / float64(d.Limit)
	if r > 1 {
		return 1
	}
	return r
}

// Exhausted reports whether the month's budget is fully spent.
func (d Decision) Exhausted() bool {
	return d.Used >= d.Limit
}

type Governor struct {
	ledger    Ledger
	limit     int
	warnRatio float64
	now       func() time.Time
}

func NewGovernor(ledger Ledger, limit int, warnRatio float64) *Governor {
	return &Governor{
		ledger:    ledger,
		limit:     limit,
		warnRatio: warnRatio,
		now:       time.Now,
	}
}

// MonthKey formats the calendar month a timestamp falls into, in UTC.
// Ledger rows are keyed by these, so a new month starts a fresh budget.
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// Reserve atomically admits units against the current month. The ledger does
// the check-and-increment in one statement, so concurrent reservations
// always sum to at most the limit.
func (g *Governor) Reserve(units int) (Decision, error) {
	month := MonthKey(g.now())
	granted, used, err := g.ledger.ReserveQuota(month, units, g.limit)
	if err != nil {
		return Decision{}, fmt.Errorf("reserving %d unit(s) for %s: %w", units, month, err)
	}
	return g.decision(granted, used), nil
}

// Usage returns the current month's consumption without reserving anything.
func (g *Governor) Usage() (Decision, error) {
	month := MonthKey(g.now())
	used, err := g.ledger.QuotaUsed(month)
	if err != nil {
		return Decision{}, fmt.Errorf("reading usage for %s: %w", month, err)
	}
	return g.decision(false, used), nil
}

func (g *Governor) decision(granted bool, used int) Decision {
	d := Decision{Granted: granted, Used: used, Limit: g.limit}
	d.Warn = d.Ratio() >= g.warnRatio
	return d
}
