// Package normalize turns raw connector output into stored postings with a
// stable identity. Identity is a digest of the canonical posting URL, so the
// same job seen through different tracking links collapses to one record.
package normalize

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jobdeck/jobdeck/internal/connector"
	"github.com/jobdeck/jobdeck/internal/storage"
)

// trackingParams vary per impression and never identify the posting.
var trackingParams = map[string]bool{
	"refid":      true,
	"trackingid": true,
	"trk":        true,
	"position":   true,
	"pagenum":    true,
	"spm":        true,
	"from":       true,
	"ref":        true,
}

// CanonicalURL rewrites a scraped posting URL into its identity form:
// lowercase scheme and host, no fragment, no tracking parameters, remaining
// query keys sorted, no trailing slash. Relative URLs are rejected.
func CanonicalURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q is not absolute", raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")

	q := u.Query()
	for key := range q {
		lower := strings.ToLower(key)
		if trackingParams[lower] || strings.HasPrefix(lower, "utm_") {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// ID digests a canonical URL into a short stable key. md5 is used as a
// cheap identity hash, not for security.
func ID(canonicalURL string) string {
	sum := md5.Sum([]byte(canonicalURL))
	return hex.EncodeToString(sum[:])[:12]
}

// Fingerprint keys a search by its effective inputs. Case and surrounding
// whitespace do not change the fingerprint.
func Fingerprint(query, location string) string {
	key := strings.ToLower(strings.TrimSpace(query)) + "|" + strings.ToLower(strings.TrimSpace(location))
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])[:12]
}

// Posting converts one raw scrape into a storable posting observed at now.
// FirstFetchedAt stays zero; the store fills it on first insert.
func Posting(raw connector.RawPosting, now time.Time) (storage.Posting, error) {
	canonical, err := CanonicalURL(raw.URL)
	if err != nil {
		return storage.Posting{}, fmt.Errorf("canonicalize %q: %w", raw.URL, err)
	}
	title := strings.TrimSpace(raw.Title)
	if title == "" {
		return storage.Posting{}, fmt.Errorf("posting %q has no title", canonical)
	}

	text, minK, maxK := ParseSalary(raw.Salary)
	tagText := strings.Join(append([]string{raw.Title, raw.Description}, raw.Requirements...), " ")

	return storage.Posting{
		ID:           ID(canonical),
		Source:       raw.Source,
		Title:        title,
		Company:      strings.TrimSpace(raw.Company),
		URL:          canonical,
		Location:     NormalizeLocation(raw.Location),
		SalaryText:   text,
		SalaryMinK:   minK,
		SalaryMaxK:   maxK,
		Experience:   ParseExperience(raw.Experience),
		Education:    ParseEducation(raw.Education),
		Description:  strings.TrimSpace(raw.Description),
		Requirements: cleanList(raw.Requirements),
		Tags:         ExtractTags(tagText),
		PostedAt:     strings.TrimSpace(raw.PostedAt),
		LastSeenAt:   now,
		Active:       true,
	}, nil
}

// cleanList trims entries and drops blanks, preserving order.
func cleanList(items []string) []string {
	var out []string
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
