package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const postingColumns = `id, source, title, company, url, location, salary_text, salary_min_k, salary_max_k,
	experience, education, description, requirements, tags, posted_at, first_fetched_at, last_seen_at, active`

// mergePosting reconciles a re-observed posting with its stored row. The
// incoming side wins for mutable fields, except that an empty incoming field
// never erases a non-empty stored one. FirstFetchedAt is immutable;
// re-observation always revives the posting.
func mergePosting(existing, incoming Posting) Posting {
	out := incoming
	out.ID = existing.ID
	out.URL = existing.URL
	out.FirstFetchedAt = existing.FirstFetchedAt
	out.Active = true

	if out.Title == "" {
		out.Title = existing.Title
	}
	if out.Company == "" {
		out.Company = existing.Company
	}
	if out.Location == "" {
		out.Location = existing.Location
	}
	if out.SalaryText == "" {
		out.SalaryText = existing.SalaryText
		out.SalaryMinK = existing.SalaryMinK
		out.SalaryMaxK = existing.SalaryMaxK
	}
	if out.Experience == "" {
		out.Experience = existing.Experience
	}
	if out.Education == "" {
		out.Education = existing.Education
	}
	if out.Description == "" {
		out.Description = existing.Description
	}
	if len(out.Requirements) == 0 {
		out.Requirements = existing.Requirements
	}
	if len(out.Tags) == 0 {
		out.Tags = existing.Tags
	}
	if out.PostedAt == "" {
		out.PostedAt = existing.PostedAt
	}
	if out.LastSeenAt.IsZero() {
		out.LastSeenAt = existing.LastSeenAt
	}
	return out
}

// UpsertPosting inserts a posting or merges it into the existing row with the
// same canonical URL. Returns true when a new row was created. The read and
// write run in one transaction, so concurrent upserts of the same URL cannot
// produce duplicates.
func (s *Store) UpsertPosting(p Posting) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("beginning upsert transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := scanPosting(tx.QueryRow(
		`SELECT `+postingColumns+` FROM postings WHERE url = ?`, p.URL))
	switch {
	case err == sql.ErrNoRows:
		if p.FirstFetchedAt.IsZero() {
			p.FirstFetchedAt = p.LastSeenAt
		}
		_, err = tx.Exec(`
			INSERT INTO postings (`+postingColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			p.ID, p.Source, p.Title, p.Company, p.URL, p.Location,
			p.SalaryText, p.SalaryMinK, p.SalaryMaxK, p.Experience, p.Education,
			p.Description, marshalList(p.Requirements), marshalList(p.Tags), p.PostedAt,
			p.FirstFetchedAt.UTC().Format(time.RFC3339),
			p.LastSeenAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return false, fmt.Errorf("inserting posting %s: %w", p.ID, err)
		}
		if err := tx.Commit(); err != nil {
			return false, fmt.Errorf("committing insert: %w", err)
		}
		return true, nil
	case err != nil:
		return false, fmt.Errorf("selecting posting by url: %w", err)
	}

	merged := mergePosting(existing, p)
	_, err = tx.Exec(`
		UPDATE postings SET source = ?, title = ?, company = ?, location = ?,
			salary_text = ?, salary_min_k = ?, salary_max_k = ?, experience = ?,
			education = ?, description = ?, requirements = ?, tags = ?,
			posted_at = ?, last_seen_at = ?, active = 1
		WHERE id = ?`,
		merged.Source, merged.Title, merged.Company, merged.Location,
		merged.SalaryText, merged.SalaryMinK, merged.SalaryMaxK, merged.Experience,
		merged.Education, merged.Description, marshalList(merged.Requirements),
		marshalList(merged.Tags), merged.PostedAt,
		merged.LastSeenAt.UTC().Format(time.RFC3339), merged.ID,
	)
	if err != nil {
		return false, fmt.Errorf("updating posting %s: %w", merged.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing merge: %w", err)
	}
	return false, nil
}

// GetPosting returns a posting by ID, active or not.
func (s *Store) GetPosting(id string) (Posting, error) {
	p, err := scanPosting(s.db.QueryRow(
		`SELECT `+postingColumns+` FROM postings WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return Posting{}, ErrNotFound
	}
	if err != nil {
		return Posting{}, err
	}
	return p, nil
}

// FindPostings returns postings matching the filters, most recently seen
// first. Inactive postings are excluded unless IncludeInactive is set.
func (s *Store) FindPostings(f Filters) ([]Posting, error) {
	conds := []string{"1=1"}
	var args []interface{}

	if !f.IncludeInactive {
		conds = append(conds, "active = 1")
	}
	if f.Query != "" {
		like := "%" + strings.ToLower(f.Query) + "%"
		conds = append(conds, "(LOWER(title) LIKE ? OR LOWER(company) LIKE ? OR LOWER(description) LIKE ?)")
		args = append(args, like, like, like)
	}
	if len(f.Sources) > 0 {
		placeholders := strings.Repeat(",?", len(f.Sources)-1)
		conds = append(conds, "source IN (?"+placeholders+")")
		for _, src := range f.Sources {
			args = append(args, src)
		}
	}
	if f.Location != "" {
		conds = append(conds, "LOWER(location) LIKE ?")
		args = append(args, "%"+strings.ToLower(f.Location)+"%")
	}
	if f.MinSalaryK > 0 {
		conds = append(conds, "salary_min_k >= ?")
		args = append(args, f.MinSalaryK)
	}
	for _, tag := range f.Tags {
		// Tags are a JSON array in one TEXT column; LIKE folds ASCII case,
		// so the quoted-substring match is case-insensitive.
		conds = append(conds, "tags LIKE ?")
		args = append(args, `%"`+strings.ToLower(tag)+`"%`)
	}
	if f.Experience != "" {
		conds = append(conds, "experience = ?")
		args = append(args, f.Experience)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)

	query := `SELECT ` + postingColumns + ` FROM postings WHERE ` +
		strings.Join(conds, " AND ") + ` ORDER BY last_seen_at DESC, id ASC LIMIT ?`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying postings: %w", err)
	}
	defer rows.Close()

	var results []Posting
	for rows.Next() {
		p, err := scanPosting(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

// MarkInactive flags postings of a source that were last observed before the
// cutoff. Rows are kept; callers that want physical deletion use
// PruneInactive. Returns the number of postings newly marked.
func (s *Store) MarkInactive(source string, olderThan time.Time) (int64, error) {
	res, err := s.db.Exec(`
		UPDATE postings SET active = 0
		WHERE source = ? AND active = 1 AND last_seen_at < ?`,
		source, olderThan.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("marking postings inactive for %s: %w", source, err)
	}
	return res.RowsAffected()
}

// PruneInactive deletes inactive postings last seen before the cutoff.
func (s *Store) PruneInactive(olderThan time.Time) (int64, error) {
	res, err := s.db.Exec(`
		DELETE FROM postings WHERE active = 0 AND last_seen_at < ?`,
		olderThan.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning postings: %w", err)
	}
	return res.RowsAffected()
}

// CountPostingsBySource returns active/inactive totals per source, sorted by
// source name.
func (s *Store) CountPostingsBySource() ([]SourceCount, error) {
	rows, err := s.db.Query(`
		SELECT source,
			SUM(CASE WHEN active = 1 THEN 1 ELSE 0 END),
			SUM(CASE WHEN active = 0 THEN 1 ELSE 0 END)
		FROM postings GROUP BY source ORDER BY source ASC`)
	if err != nil {
		return nil, fmt.Errorf("counting postings: %w", err)
	}
	defer rows.Close()

	var counts []SourceCount
	for rows.Next() {
		var c SourceCount
		if err := rows.Scan(&c.Source, &c.Active, &c.Inactive); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanPosting reads one posting row. sql.ErrNoRows passes through untouched
// so callers can map it to ErrNotFound or handle insert-vs-merge.
func scanPosting(row rowScanner) (Posting, error) {
	var p Posting
	var requirements, tags, firstFetched, lastSeen string
	var active int
	err := row.Scan(
		&p.ID, &p.Source, &p.Title, &p.Company, &p.URL, &p.Location,
		&p.SalaryText, &p.SalaryMinK, &p.SalaryMaxK, &p.Experience, &p.Education,
		&p.Description, &requirements, &tags, &p.PostedAt, &firstFetched, &lastSeen, &active,
	)
	if err == sql.ErrNoRows {
		return Posting{}, err
	}
	if err != nil {
		return Posting{}, fmt.Errorf("scanning posting: %w", err)
	}
	p.Requirements = unmarshalList(requirements)
	p.Tags = unmarshalList(tags)
	p.Active = active == 1
	if p.FirstFetchedAt, err = time.Parse(time.RFC3339, firstFetched); err != nil {
		return Posting{}, fmt.Errorf("parsing first_fetched_at: %w", err)
	}
	if p.LastSeenAt, err = time.Parse(time.RFC3339, lastSeen); err != nil {
		return Posting{}, fmt.Errorf("parsing last_seen_at: %w", err)
	}
	return p, nil
}

// marshalList stores a string slice as a JSON array, used for both the
// tags and requirements columns.
func marshalList(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func unmarshalList(s string) []string {
	if s == "" || s == "[]" {
		return nil
	}
	var items []string
	if err := json.Unmarshal([]byte(s), &items); err != nil {
		return nil
	}
	return items
}
