package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Depth distinguishes a cheap first-page refresh from a full crawl.
type Depth string

const (
	DepthShallow Depth = "shallow"
	DepthDeep    Depth = "deep"
)

// Posting is one job advertisement observed at a source. Identity is derived
// from the canonical posting URL; scraped platform IDs are not stable across
// fetches and are never used as keys.
type Posting struct {
	ID             string    `json:"id"`
	Source         string    `json:"source"`
	Title          string    `json:"title"`
	Company        string    `json:"company"`
	URL            string    `json:"url"` // canonical, unique
	Location       string    `json:"location,omitempty"`
	SalaryText     string    `json:"salary,omitempty"`
	SalaryMinK     int       `json:"salary_min_k,omitempty"` // thousands per month, 0 = unknown
	SalaryMaxK     int       `json:"salary_max_k,omitempty"`
	Experience     string    `json:"experience,omitempty"`
	Education      string    `json:"education,omitempty"`
	Description    string    `json:"description,omitempty"`
	Requirements   []string  `json:"requirements,omitempty"` // ordered as listed upstream
	Tags           []string  `json:"tags,omitempty"`
	PostedAt       string    `json:"posted_at,omitempty"` // free-form upstream text ("3 days ago")
	FirstFetchedAt time.Time `json:"first_fetched_at"`
	LastSeenAt     time.Time `json:"last_seen_at"`
	Active         bool      `json:"active"`
}

// SourceState is the per-source fetch bookkeeping consulted by the staleness
// policy and updated after every fetch attempt.
type SourceState struct {
	Source              string    `json:"source"`
	LastShallowAt       time.Time `json:"last_shallow_at,omitzero"` // zero = never
	LastDeepAt          time.Time `json:"last_deep_at,omitzero"`
	LastError           string    `json:"last_error,omitempty"`
	LastErrorAt         time.Time `json:"last_error_at,omitzero"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
}

// Filters narrows a posting query. Zero values mean "no constraint".
type Filters struct {
	Query           string // matches title, company, or description
	Sources         []string
	Location        string
	MinSalaryK      int
	Tags            []string // all must be present
	Experience      string
	IncludeInactive bool
	Limit           int // 0 = default (50)
}

// SourceCount summarizes stored postings for one source.
type SourceCount struct {
	Source   string `json:"source"`
	Active   int    `json:"active"`
	Inactive int    `json:"inactive"`
}
