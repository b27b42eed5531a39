package connector

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/jobdeck/jobdeck/internal/storage"
)

type staticConnector struct{ name string }

func (s *staticConnector) Name() string { return s.name }

func (s *staticConnector) Fetch(context.Context, Query, storage.Depth) ([]RawPosting, bool, error) {
	return nil, false, nil
}

// TestErrorClassification checks blocked and transient detection through
// wrapping, and that plain errors classify as neither.
func TestErrorClassification(t *testing.T) {
	base := errors.New("boom")

	blocked := blockedErr("zhaopin", base)
	if !IsBlocked(blocked) || IsTransient(blocked) {
		t.Errorf("blocked error misclassified")
	}
	transient := transientErr("zhaopin", base)
	if !IsTransient(transient) || IsBlocked(transient) {
		t.Errorf("transient error misclassified")
	}

	wrapped := fmt.Errorf("fetch failed: %w", blocked)
	if !IsBlocked(wrapped) {
		t.Errorf("wrapping should preserve classification")
	}
	if !errors.Is(wrapped, base) {
		t.Errorf("cause should survive through ConnectorError")
	}

	if IsBlocked(base) || IsTransient(base) {
		t.Errorf("plain error should classify as neither")
	}
	if IsBlocked(nil) || IsTransient(nil) {
		t.Errorf("nil should classify as neither")
	}
}

// TestIsBlockedPage runs every marker plus a clean page.
func TestIsBlockedPage(t *testing.T) {
	for _, marker := range blockMarkers {
		if !isBlockedPage("page header\n" + marker + "\nfooter") {
			t.Errorf("marker %q not detected", marker)
		}
	}
	if isBlockedPage("[Go Engineer](https://example.com/jobs/1) 2-3万 北京") {
		t.Error("clean page flagged as blocked")
	}
	if !isBlockedPage("ACCESS DENIED") {
		t.Error("detection should ignore case")
	}
}

// TestRegistry checks lookup and sorted name listing.
func TestRegistry(t *testing.T) {
	r := NewRegistry(&staticConnector{name: "zhaopin"}, &staticConnector{name: "linkedin"})

	if _, ok := r.Get("zhaopin"); !ok {
		t.Error("zhaopin not found")
	}
	if _, ok := r.Get("monster"); ok {
		t.Error("unknown source should not resolve")
	}
	if got := r.Names(); !reflect.DeepEqual(got, []string{"linkedin", "zhaopin"}) {
		t.Errorf("Names() = %v", got)
	}
}

// TestCondense checks whitespace collapsing and rune-safe truncation.
func TestCondense(t *testing.T) {
	if got := condense("  a\n\n b\tc  ", 100); got != "a b c" {
		t.Errorf("condense = %q", got)
	}
	if got := condense("北京海淀上地", 2); got != "北京" {
		t.Errorf("truncation split a rune: %q", got)
	}
	if got := condense("short", 10); got != "short" {
		t.Errorf("under-budget string changed: %q", got)
	}
}

// TestCleanMarkdown checks emphasis and image syntax stripping.
func TestCleanMarkdown(t *testing.T) {
	if got := cleanMarkdown("**Senior** *Go* `Engineer`"); got != "Senior Go Engineer" {
		t.Errorf("cleanMarkdown = %q", got)
	}
	if got := cleanMarkdown("![logo] Corp"); got != "[logo] Corp" {
		t.Errorf("image syntax: %q", got)
	}
}
