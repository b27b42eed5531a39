package fetch

import (
	"github.com/jobdeck/jobdeck/internal/quota"
	"github.com/jobdeck/jobdeck/internal/storage"
)

// Options shapes one resolve. The zero value means: all enabled sources,
// depth chosen by the staleness policy, default result limit.
type Options struct {
	// Sources restricts the resolve to these source names. Empty means
	// every enabled source.
	Sources []string
	// Depth forces a fetch depth. Only honored together with
	// ManualRefresh; scheduled resolves let the policy decide.
	Depth storage.Depth
	// ManualRefresh bypasses the staleness policy and suspension, but
	// never the quota.
	ManualRefresh bool
	// Limit caps returned postings. 0 uses the store default.
	Limit int
}

// Status is the per-source provenance of one resolve.
type Status string

const (
	// StatusFresh means a fetch ran and the store was updated.
	StatusFresh Status = "fresh"
	// StatusCached means the source was within TTL and nothing ran.
	StatusCached Status = "cached"
	// StatusFailed means the fetch exhausted its attempts or was blocked.
	StatusFailed Status = "failed"
	// StatusSuspended means consecutive failures crossed the ceiling and
	// the source is excluded until a manual refresh succeeds.
	StatusSuspended Status = "suspended"
	// StatusQuotaExhausted means admission was denied and cached data
	// was served instead.
	StatusQuotaExhausted Status = "quota_exhausted"
	// StatusTimeout means the fetch outran the resolve budget and kept
	// running in the background.
	StatusTimeout Status = "timeout"
	// StatusUnknown means the requested source is not enabled or has no
	// connector.
	StatusUnknown Status = "unknown"
)

// SourceReport tells what happened to one source during a resolve.
type SourceReport struct {
	Source  string        `json:"source"`
	Status  Status        `json:"status"`
	Depth   storage.Depth `json:"depth,omitempty"`
	TaskID  string        `json:"task_id,omitempty"`
	Fetched int           `json:"fetched"`
	Err     string        `json:"error,omitempty"`
}

// ResultSet is the answer to one resolve: postings read back from the
// store, never assembled from in-flight fetch output.
type ResultSet struct {
	Postings []storage.Posting `json:"postings"`
	Reports  []SourceReport    `json:"reports"`
	Quota    quota.Decision    `json:"quota"`
	Warning  string            `json:"warning,omitempty"`
}

// Fresh reports whether at least one source fetched during this resolve.
func (rs *ResultSet) Fresh() bool {
	for _, r := range rs.Reports {
		if r.Status == StatusFresh {
			return true
		}
	}
	return false
}
