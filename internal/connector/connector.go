// Package connector defines the capability contract between the fetch
// engine and individual job sources, plus the production connectors that
// scrape listing pages through the markdown gateway.
package connector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jobdeck/jobdeck/internal/storage"
)

// Query is a user search reduced to what sources can act on.
type Query struct {
	Text     string
	Location string
}

// RawPosting is connector output before normalization: strings as scraped,
// no identity, no timestamps. Requirements stay empty on search-page
// scrapes; only a detail-capable connector can fill them.
type RawPosting struct {
	Source       string
	Title        string
	Company      string
	URL          string
	Location     string
	Salary       string
	Experience   string
	Education    string
	Description  string
	Requirements []string
	PostedAt     string
}

// ErrorKind tells the engine whether a failed fetch is worth retrying.
type ErrorKind int

const (
	// Transient covers timeouts, connection drops, and empty gateway
	// responses. Retrying may help.
	Transient ErrorKind = iota
	// Blocked means the source served a verification or denial page.
	// Retrying immediately makes the blocking worse, so the engine must not.
	Blocked
)

func (k ErrorKind) String() string {
	if k == Blocked {
		return "blocked"
	}
	return "transient"
}

// ConnectorError classifies a fetch failure.
type ConnectorError struct {
	Source string
	Kind   ErrorKind
	Err    error
}

func (e *ConnectorError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *ConnectorError) Unwrap() error {
	return e.Err
}

// IsBlocked reports whether err is a blocked-source classification.
func IsBlocked(err error) bool {
	var ce *ConnectorError
	return errors.As(err, &ce) && ce.Kind == Blocked
}

// IsTransient reports whether err is a retryable fetch failure.
func IsTransient(err error) bool {
	var ce *ConnectorError
	return errors.As(err, &ce) && ce.Kind == Transient
}

func transientErr(source string, err error) error {
	return &ConnectorError{Source: source, Kind: Transient, Err: err}
}

func blockedErr(source string, err error) error {
	return &ConnectorError{Source: source, Kind: Blocked, Err: err}
}

// Scraper is the slice of the gateway client connectors depend on.
type Scraper interface {
	Markdown(ctx context.Context, pageURL string) (string, error)
}

// Connector fetches postings for one source. hasMore reports that the
// source likely had further pages beyond the fetch budget. Failures are
// ConnectorErrors; anything else is treated as transient by the engine.
type Connector interface {
	Name() string
	Fetch(ctx context.Context, q Query, depth storage.Depth) (postings []RawPosting, hasMore bool, err error)
}

// Registry maps source names to connectors.
type Registry struct {
	byName map[string]Connector
}

func NewRegistry(connectors ...Connector) *Registry {
	r := &Registry{byName: make(map[string]Connector, len(connectors))}
	for _, c := range connectors {
		r.byName[c.Name()] = c
	}
	return r
}

func (r *Registry) Get(name string) (Connector, bool) {
	c, ok := r.byName[name]
	return c, ok
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// blockMarkers are fragments that identify a verification or denial page in
// any of the sources' markdown renderings.
var blockMarkers = []string{
	"安全验证",
	"验证码",
	"captcha",
	"access denied",
	"unusual traffic",
	"请完成下列验证",
}

func isBlockedPage(md string) bool {
	lower := strings.ToLower(md)
	for _, marker := range blockMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// cleanMarkdown strips emphasis and image syntax from scraped link text.
func cleanMarkdown(s string) string {
	s = strings.NewReplacer("**", "", "*", "", "`", "", "![", "[").Replace(s)
	return strings.TrimSpace(s)
}

// descriptionBudget caps how much listing-block text a RawPosting carries.
// Downstream tag extraction and search need the text; the full page not.
const descriptionBudget = 240

// condense collapses runs of whitespace and truncates on a rune boundary.
func condense(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
