package connector

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/jobdeck/jobdeck/internal/storage"
)

// linkedinGeoChina is the geoId for country-wide China. City geoIds behave
// poorly with the guest API, so every search runs country-wide and location
// narrowing happens after parsing.
const linkedinGeoChina = "102890883"

// linkedinPageStride is the guest API offset step. The hasMore threshold
// sits below it because location filtering shrinks pages.
const (
	linkedinPageStride  = 25
	linkedinFullishPage = 10
)

var (
	linkedinItemSplit = regexp.MustCompile(`\n\*\s+\[`)
	linkedinTitleLink = regexp.MustCompile(`^([^\]]+)\]\((https?://[^)]+)\)`)
	linkedinCompany   = regexp.MustCompile(`####\s+\[([^\]]+)\]`)
	linkedinLocation  = regexp.MustCompile(`(?i)\n\s+([A-Za-z\x{4e00}-\x{9fff}][^\n]*(?:China|中国|District|Province|City|Area)[^\n]*)`)
	linkedinLocLoose  = regexp.MustCompile(`\n\s+([A-Za-z\x{4e00}-\x{9fff}][A-Za-z\x{4e00}-\x{9fff}\s,\-]+)\n`)
	linkedinPostedAgo = regexp.MustCompile(`(?i)(\d+)\s+(hour|day|week|month)s?\s+ago`)
)

// linkedinLocAliases pairs a requested location with the fragments that
// identify it in scraped location lines.
var linkedinLocAliases = map[string][]string{
	"beijing":   {"beijing", "北京"},
	"北京":        {"beijing", "北京"},
	"shanghai":  {"shanghai", "上海"},
	"上海":        {"shanghai", "上海"},
	"guangzhou": {"guangzhou", "广州"},
	"广州":        {"guangzhou", "广州"},
	"shenzhen":  {"shenzhen", "深圳"},
	"深圳":        {"shenzhen", "深圳"},
}

// LinkedIn scrapes the unauthenticated jobs-guest API rendered to markdown.
// Listings carry no salary and no experience band.
type LinkedIn struct {
	scraper  Scraper
	maxPages int
}

func NewLinkedIn(scraper Scraper, maxPages int) *LinkedIn {
	if maxPages < 1 {
		maxPages = 1
	}
	return &LinkedIn{scraper: scraper, maxPages: maxPages}
}

func (l *LinkedIn) Name() string { return "linkedin" }

// Fetch pages through the guest API, one page for shallow depth and up to
// maxPages for deep. Page-failure policy matches Zhaopin: first page fails
// the fetch, later pages end pagination, blocked aborts anywhere.
func (l *LinkedIn) Fetch(ctx context.Context, q Query, depth storage.Depth) ([]RawPosting, bool, error) {
	pages := 1
	if depth == storage.DepthDeep {
		pages = l.maxPages
	}

	var all []RawPosting
	hasMore := false
	for page := 1; page <= pages; page++ {
		md, err := l.scraper.Markdown(ctx, l.searchURL(q, page))
		if err != nil {
			if page > 1 {
				break
			}
			return nil, false, transientErr(l.Name(), err)
		}
		if isBlockedPage(md) {
			return nil, false, blockedErr(l.Name(), fmt.Errorf("verification page on page %d", page))
		}
		if strings.TrimSpace(md) == "" {
			if page > 1 {
				break
			}
			return nil, false, transientErr(l.Name(), fmt.Errorf("empty gateway response"))
		}

		parsed := filterLinkedInLocation(parseLinkedInSearch(md), q.Location)
		all = append(all, parsed...)
		hasMore = len(parsed) >= linkedinFullishPage
		if !hasMore {
			break
		}
	}
	return all, hasMore, nil
}

func (l *LinkedIn) searchURL(q Query, page int) string {
	start := (page - 1) * linkedinPageStride
	return fmt.Sprintf("https://www.linkedin.com/jobs-guest/jobs/api/seeMoreJobPostings/search?keywords=%s&location=China&geoId=%s&start=%d",
		url.QueryEscape(q.Text), linkedinGeoChina, start)
}

// parseLinkedInSearch splits the guest API markdown on list items. Each
// item opens with the job link; company, location, and age follow on their
// own lines.
func parseLinkedInSearch(md string) []RawPosting {
	blocks := linkedinItemSplit.Split(md, -1)
	if len(blocks) < 2 {
		return nil
	}

	postings := make([]RawPosting, 0, len(blocks)-1)
	for _, block := range blocks[1:] {
		tm := linkedinTitleLink.FindStringSubmatch(block)
		if tm == nil {
			continue
		}
		jobURL := tm[2]
		if !strings.Contains(jobURL, "/jobs/view/") {
			continue
		}
		title := cleanMarkdown(tm[1])
		if dec, err := url.QueryUnescape(title); err == nil {
			title = dec
		}

		company := "Unknown"
		if cm := linkedinCompany.FindStringSubmatch(block); cm != nil {
			company = cleanMarkdown(cm[1])
		}

		postings = append(postings, RawPosting{
			Source:      "linkedin",
			Title:       title,
			Company:     company,
			URL:         jobURL,
			Location:    linkedinBlockLocation(block),
			PostedAt:    linkedinPostedText(block),
			Description: condense(block, descriptionBudget),
		})
	}
	return postings
}

func linkedinBlockLocation(block string) string {
	if m := linkedinLocation.FindStringSubmatch(block); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := linkedinLocLoose.FindStringSubmatch(block); m != nil {
		loc := strings.TrimSpace(m[1])
		lower := strings.ToLower(loc)
		for _, skip := range []string{"applicant", "ago", "week", "month", "day", "hour"} {
			if strings.Contains(lower, skip) {
				return "China"
			}
		}
		return loc
	}
	return "China"
}

func linkedinPostedText(block string) string {
	m := linkedinPostedAgo.FindStringSubmatch(block)
	if m == nil {
		return ""
	}
	unit := strings.ToLower(m[2])
	if m[1] != "1" {
		unit += "s"
	}
	return m[1] + " " + unit + " ago"
}

// filterLinkedInLocation drops postings outside the requested city. The
// guest API is searched country-wide, so a country-level request keeps
// everything.
func filterLinkedInLocation(postings []RawPosting, location string) []RawPosting {
	loc := strings.ToLower(strings.TrimSpace(location))
	if loc == "" || loc == "china" || loc == "中国" {
		return postings
	}
	aliases, ok := linkedinLocAliases[loc]
	if !ok {
		aliases = []string{loc}
	}

	kept := postings[:0]
	for _, p := range postings {
		ploc := strings.ToLower(p.Location)
		for _, alias := range aliases {
			if strings.Contains(ploc, alias) {
				kept = append(kept, p)
				break
			}
		}
	}
	return kept
}
