// Package staleness decides when a source's cached postings are too old to
// serve without a refresh. The policy is pure: it looks at recorded fetch
// timestamps and a clock, never at the network or the database.
package staleness

import (
	"time"

	"github.com/jobdeck/jobdeck/internal/storage"
)

type Policy struct {
	ShallowTTL     time.Duration
	DeepTTL        time.Duration
	FailureCeiling int
}

// Default returns the stock policy: first page daily, full crawl weekly,
// suspension after five straight failures.
func Default() Policy {
	return Policy{
		ShallowTTL:     24 * time.Hour,
		DeepTTL:        168 * time.Hour,
		FailureCeiling: 5,
	}
}

// Suspended reports whether the source has hit the failure ceiling. A
// suspended source is never auto-due; only an explicit manual refresh may
// reach it again.
func (p Policy) Suspended(st storage.SourceState) bool {
	return p.FailureCeiling > 0 && st.ConsecutiveFailures >= p.FailureCeiling
}

// Evaluate reports whether the source is due for a refresh at now, and at
// what depth. Deep supersedes shallow when both TTLs have lapsed. A source
// that has never been fetched is due at deep so the first crawl fills the
// cache properly. Exactly-at-TTL is not yet due; the clock must pass it.
func (p Policy) Evaluate(st storage.SourceState, now time.Time) (bool, storage.Depth) {
	if p.Suspended(st) {
		return false, ""
	}
	if st.LastDeepAt.IsZero() {
		return true, storage.DepthDeep
	}
	if now.Sub(st.LastDeepAt) > p.DeepTTL {
		return true, storage.DepthDeep
	}
	if st.LastShallowAt.IsZero() || now.Sub(st.LastShallowAt) > p.ShallowTTL {
		return true, storage.DepthShallow
	}
	return false, ""
}
