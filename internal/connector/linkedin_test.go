package connector

import (
	"context"
	"strings"
	"testing"

	"github.com/jobdeck/jobdeck/internal/storage"
)

const linkedinFixture = `Jobs in China

*   [Senior Go Engineer](https://cn.linkedin.com/jobs/view/senior-go-engineer-at-bytedance-3712345678)
    ### Senior Go Engineer
    #### [ByteDance](https://www.linkedin.com/company/bytedance)
    Beijing, Beijing, China
    2 weeks ago
*   [Backend Developer](https://cn.linkedin.com/jobs/view/backend-developer-at-tencent-3798765432)
    ### Backend Developer
    #### [Tencent](https://www.linkedin.com/company/tencent)
    Shenzhen, Guangdong, China
    3 days ago
*   [About LinkedIn](https://www.linkedin.com/about)
`

// TestLinkedInParseSearch checks block splitting, the /jobs/view/ guard,
// and field extraction.
func TestLinkedInParseSearch(t *testing.T) {
	postings := parseLinkedInSearch(linkedinFixture)
	if len(postings) != 2 {
		t.Fatalf("parsed %d postings, want 2", len(postings))
	}

	first := postings[0]
	if first.Title != "Senior Go Engineer" {
		t.Errorf("title = %q", first.Title)
	}
	if first.Company != "ByteDance" {
		t.Errorf("company = %q", first.Company)
	}
	if first.Location != "Beijing, Beijing, China" {
		t.Errorf("location = %q", first.Location)
	}
	if first.PostedAt != "2 weeks ago" {
		t.Errorf("postedAt = %q", first.PostedAt)
	}
	if first.Salary != "" {
		t.Errorf("salary should be absent, got %q", first.Salary)
	}
	if first.Source != "linkedin" {
		t.Errorf("source = %q", first.Source)
	}

	if postings[1].PostedAt != "3 days ago" {
		t.Errorf("second postedAt = %q", postings[1].PostedAt)
	}
}

// TestLinkedInFetchFiltersLocation verifies city requests drop listings
// from other cities while country-level requests keep everything.
func TestLinkedInFetchFiltersLocation(t *testing.T) {
	fs := &fakeScraper{markdownFn: func(_ context.Context, _ string) (string, error) {
		return linkedinFixture, nil
	}}
	l := NewLinkedIn(fs, 3)

	postings, _, err := l.Fetch(context.Background(), Query{Text: "golang", Location: "beijing"}, storage.DepthShallow)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(postings) != 1 {
		t.Fatalf("got %d postings, want 1", len(postings))
	}
	if !strings.Contains(postings[0].Location, "Beijing") {
		t.Errorf("kept wrong posting: %q", postings[0].Location)
	}

	postings, _, err = l.Fetch(context.Background(), Query{Text: "golang", Location: "china"}, storage.DepthShallow)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(postings) != 2 {
		t.Errorf("country-level request got %d postings, want 2", len(postings))
	}
}

// TestLinkedInFetchBlocked verifies denial pages classify as blocked.
func TestLinkedInFetchBlocked(t *testing.T) {
	fs := &fakeScraper{markdownFn: func(_ context.Context, _ string) (string, error) {
		return "Access Denied - request looks automated", nil
	}}
	l := NewLinkedIn(fs, 3)

	_, _, err := l.Fetch(context.Background(), Query{Text: "golang"}, storage.DepthShallow)
	if !IsBlocked(err) {
		t.Fatalf("want blocked error, got %v", err)
	}
}

// TestLinkedInSearchURL checks the guest API offset arithmetic and the
// country-wide geoId.
func TestLinkedInSearchURL(t *testing.T) {
	l := NewLinkedIn(&fakeScraper{}, 3)

	u := l.searchURL(Query{Text: "go developer", Location: "beijing"}, 2)
	for _, want := range []string{
		"jobs-guest/jobs/api/seeMoreJobPostings",
		"keywords=go+developer",
		"geoId=" + linkedinGeoChina,
		"start=25",
		"location=China",
	} {
		if !strings.Contains(u, want) {
			t.Errorf("url %q missing %q", u, want)
		}
	}

	if u := l.searchURL(Query{Text: "go"}, 1); !strings.Contains(u, "start=0") {
		t.Errorf("first page url %q should start at 0", u)
	}
}

// TestLinkedInPostedText checks the age line is canonicalized with the
// right plurality.
func TestLinkedInPostedText(t *testing.T) {
	tests := []struct {
		block string
		want  string
	}{
		{"posted 1 hour ago", "1 hour ago"},
		{"Posted 2 Weeks ago", "2 weeks ago"},
		{"30+ applicants", ""},
	}
	for _, tt := range tests {
		if got := linkedinPostedText(tt.block); got != tt.want {
			t.Errorf("linkedinPostedText(%q) = %q, want %q", tt.block, got, tt.want)
		}
	}
}

// TestLinkedInBlockLocation exercises the strict pattern, the loose
// fallback, and the non-location line filter.
func TestLinkedInBlockLocation(t *testing.T) {
	tests := []struct {
		name  string
		block string
		want  string
	}{
		{
			name:  "strict match on country suffix",
			block: "title](u)\n    Shanghai, Shanghai, China\n    1 week ago",
			want:  "Shanghai, Shanghai, China",
		},
		{
			name:  "loose match without suffix",
			block: "title](u)\n    Hangzhou, Zhejiang\n    more text",
			want:  "Hangzhou, Zhejiang",
		},
		{
			name:  "age line rejected by loose filter",
			block: "title](u)\n    Two weeks ago\n",
			want:  "China",
		},
		{
			name:  "no candidates",
			block: "title](u)\n    12345\n",
			want:  "China",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := linkedinBlockLocation(tt.block); got != tt.want {
				t.Errorf("linkedinBlockLocation = %q, want %q", got, tt.want)
			}
		})
	}
}
