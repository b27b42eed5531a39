package connector

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/jobdeck/jobdeck/internal/storage"
)

// zhaopinCityCodes maps a location to the jl query parameter on
// sou.zhaopin.com. Unknown locations fall back to Beijing, which is the
// site's own default.
var zhaopinCityCodes = map[string]string{
	"beijing":   "530",
	"北京":        "530",
	"shanghai":  "538",
	"上海":        "538",
	"guangzhou": "763",
	"广州":        "763",
	"shenzhen":  "765",
	"深圳":        "765",
}

// zhaopinPageSize is how many listings a full results page carries. A page
// with fewer is the last one.
const zhaopinPageSize = 15

var (
	zhaopinJobLink    = regexp.MustCompile(`\[([^\]]+)\]\((https?://(?:www\.)?zhaopin\.com/jobdetail/[^)]+)\)`)
	zhaopinCompany    = regexp.MustCompile(`\[([^\]]+)\]\([^)]*companydetail[^)]*\)`)
	zhaopinSalary     = regexp.MustCompile(`\d+(?:\.\d+)?-\d+(?:\.\d+)?万(?:·\d+薪)?|\d{4,}-\d{4,}元`)
	// Districts are glued to the city with ·, as in 北京·海淀·上地. A
	// space-separated token after the city is some other field, not a
	// district.
	zhaopinLocation   = regexp.MustCompile(`(?:北京|上海|广州|深圳)(?:·[^\s\n]+)?`)
	zhaopinExperience = regexp.MustCompile(`\d+-\d+年|经验不限|\d+年以上`)
	zhaopinEducation  = regexp.MustCompile(`博士|硕士|本科|大专|学历不限`)
)

// zhaopinNavTitles flag link text that is site navigation, not a listing.
var zhaopinNavTitles = []string{"首页", "职位推荐", "登录", "注册", "收藏", "投递"}

// Zhaopin scrapes sou.zhaopin.com search pages rendered to markdown by the
// gateway.
type Zhaopin struct {
	scraper     Scraper
	maxPages    int
	defaultCity string
}

// NewZhaopin builds a zhaopin connector. defaultCity scopes queries that
// carry no location of their own; empty means the site default (Beijing).
func NewZhaopin(scraper Scraper, maxPages int, defaultCity string) *Zhaopin {
	if maxPages < 1 {
		maxPages = 1
	}
	return &Zhaopin{
		scraper:     scraper,
		maxPages:    maxPages,
		defaultCity: strings.ToLower(strings.TrimSpace(defaultCity)),
	}
}

func (z *Zhaopin) Name() string { return "zhaopin" }

// Fetch scrapes one search page for shallow depth and up to maxPages for
// deep. A failure on the first page fails the fetch; a failure later just
// ends pagination with what was already parsed. A blocked page aborts
// regardless of position.
func (z *Zhaopin) Fetch(ctx context.Context, q Query, depth storage.Depth) ([]RawPosting, bool, error) {
	pages := 1
	if depth == storage.DepthDeep {
		pages = z.maxPages
	}

	var all []RawPosting
	hasMore := false
	for page := 1; page <= pages; page++ {
		md, err := z.scraper.Markdown(ctx, z.searchURL(q, page))
		if err != nil {
			if page > 1 {
				break
			}
			return nil, false, transientErr(z.Name(), err)
		}
		if isBlockedPage(md) {
			return nil, false, blockedErr(z.Name(), fmt.Errorf("verification page on page %d", page))
		}
		if strings.TrimSpace(md) == "" {
			if page > 1 {
				break
			}
			return nil, false, transientErr(z.Name(), fmt.Errorf("empty gateway response"))
		}

		parsed := parseZhaopinSearch(md)
		all = append(all, parsed...)
		hasMore = len(parsed) >= zhaopinPageSize
		if !hasMore {
			break
		}
	}
	return all, hasMore, nil
}

func (z *Zhaopin) searchURL(q Query, page int) string {
	loc := strings.ToLower(strings.TrimSpace(q.Location))
	if loc == "" {
		loc = z.defaultCity
	}
	code, ok := zhaopinCityCodes[loc]
	if !ok {
		code = zhaopinCityCodes["beijing"]
	}
	return fmt.Sprintf("https://sou.zhaopin.com/?jl=%s&kw=%s&p=%d&kt=3",
		code, url.QueryEscape(q.Text), page)
}

// parseZhaopinSearch splits a results page into per-listing blocks. Each
// listing starts with a jobdetail link; the block runs until the next one.
func parseZhaopinSearch(md string) []RawPosting {
	matches := zhaopinJobLink.FindAllStringSubmatchIndex(md, -1)
	postings := make([]RawPosting, 0, len(matches))
	for i, m := range matches {
		title := cleanMarkdown(md[m[2]:m[3]])
		jobURL := md[m[4]:m[5]]
		if isZhaopinNav(title) {
			continue
		}

		end := len(md)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		block := md[m[1]:end]

		company := "Unknown"
		if cm := zhaopinCompany.FindStringSubmatch(block); cm != nil {
			company = cleanMarkdown(cm[1])
		}

		postings = append(postings, RawPosting{
			Source:      "zhaopin",
			Title:       title,
			Company:     company,
			URL:         jobURL,
			Location:    zhaopinLocation.FindString(block),
			Salary:      zhaopinSalary.FindString(block),
			Experience:  zhaopinExperience.FindString(block),
			Education:   zhaopinEducation.FindString(block),
			Description: condense(block, descriptionBudget),
		})
	}
	return postings
}

func isZhaopinNav(title string) bool {
	for _, nav := range zhaopinNavTitles {
		if strings.Contains(title, nav) {
			return true
		}
	}
	return false
}
