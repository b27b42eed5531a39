package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// GetSourceState returns the fetch bookkeeping for a source. A source that
// has never been fetched yields a zero-valued state (cold start), not an
// error.
func (s *Store) GetSourceState(source string) (SourceState, error) {
	st := SourceState{Source: source}
	var shallow, deep, errAt sql.NullString
	err := s.db.QueryRow(`
		SELECT last_shallow_at, last_deep_at, last_error, last_error_at, consecutive_failures
		FROM source_state WHERE source = ?`, source,
	).Scan(&shallow, &deep, &st.LastError, &errAt, &st.ConsecutiveFailures)
	if err == sql.ErrNoRows {
		return st, nil
	}
	if err != nil {
		return SourceState{}, fmt.Errorf("reading state for %s: %w", source, err)
	}
	if st.LastShallowAt, err = parseNullTime(shallow); err != nil {
		return SourceState{}, fmt.Errorf("parsing last_shallow_at for %s: %w", source, err)
	}
	if st.LastDeepAt, err = parseNullTime(deep); err != nil {
		return SourceState{}, fmt.Errorf("parsing last_deep_at for %s: %w", source, err)
	}
	if st.LastErrorAt, err = parseNullTime(errAt); err != nil {
		return SourceState{}, fmt.Errorf("parsing last_error_at for %s: %w", source, err)
	}
	return st, nil
}

// SetSourceState writes a full state row, replacing whatever was there.
func (s *Store) SetSourceState(st SourceState) error {
	_, err := s.db.Exec(`
		INSERT INTO source_state (source, last_shallow_at, last_deep_at, last_error, last_error_at, consecutive_failures)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(source) DO UPDATE SET
			last_shallow_at = excluded.last_shallow_at,
			last_deep_at = excluded.last_deep_at,
			last_error = excluded.last_error,
			last_error_at = excluded.last_error_at,
			consecutive_failures = excluded.consecutive_failures`,
		st.Source, timeOrNil(st.LastShallowAt), timeOrNil(st.LastDeepAt),
		st.LastError, timeOrNil(st.LastErrorAt), st.ConsecutiveFailures,
	)
	if err != nil {
		return fmt.Errorf("writing state for %s: %w", st.Source, err)
	}
	return nil
}

// RecordSourceSuccess stamps refresh timestamps and clears failure tracking.
// A deep refresh also stamps the shallow timestamp: it subsumes a shallow
// one, so shallow must not come due right after a full crawl.
func (s *Store) RecordSourceSuccess(source string, depth Depth, at time.Time) error {
	ts := at.UTC().Format(time.RFC3339)
	var err error
	if depth == DepthDeep {
		_, err = s.db.Exec(`
			INSERT INTO source_state (source, last_shallow_at, last_deep_at, last_error, last_error_at, consecutive_failures)
			VALUES (?, ?, ?, '', NULL, 0)
			ON CONFLICT(source) DO UPDATE SET
				last_shallow_at = excluded.last_shallow_at,
				last_deep_at = excluded.last_deep_at,
				last_error = '', last_error_at = NULL, consecutive_failures = 0`,
			source, ts, ts)
	} else {
		_, err = s.db.Exec(`
			INSERT INTO source_state (source, last_shallow_at, last_deep_at, last_error, last_error_at, consecutive_failures)
			VALUES (?, ?, NULL, '', NULL, 0)
			ON CONFLICT(source) DO UPDATE SET
				last_shallow_at = excluded.last_shallow_at,
				last_error = '', last_error_at = NULL, consecutive_failures = 0`,
			source, ts)
	}
	if err != nil {
		return fmt.Errorf("recording success for %s: %w", source, err)
	}
	return nil
}

// RecordSourceFailure increments the consecutive-failure counter and stores
// the error. Returns the new counter value so callers can log suspension.
func (s *Store) RecordSourceFailure(source, errMsg string, at time.Time) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning failure transaction: %w", err)
	}
	defer tx.Rollback()

	ts := at.UTC().Format(time.RFC3339)
	if _, err := tx.Exec(`
		INSERT INTO source_state (source, last_error, last_error_at, consecutive_failures)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(source) DO UPDATE SET
			last_error = excluded.last_error,
			last_error_at = excluded.last_error_at,
			consecutive_failures = consecutive_failures + 1`,
		source, errMsg, ts,
	); err != nil {
		return 0, fmt.Errorf("recording failure for %s: %w", source, err)
	}

	var failures int
	if err := tx.QueryRow(`SELECT consecutive_failures FROM source_state WHERE source = ?`, source).Scan(&failures); err != nil {
		return 0, fmt.Errorf("reading failure count for %s: %w", source, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing failure for %s: %w", source, err)
	}
	return failures, nil
}

// ListSourceStates returns all recorded source states sorted by name.
func (s *Store) ListSourceStates() ([]SourceState, error) {
	rows, err := s.db.Query(`
		SELECT source, last_shallow_at, last_deep_at, last_error, last_error_at, consecutive_failures
		FROM source_state ORDER BY source ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing source states: %w", err)
	}
	defer rows.Close()

	var states []SourceState
	for rows.Next() {
		var st SourceState
		var shallow, deep, errAt sql.NullString
		if err := rows.Scan(&st.Source, &shallow, &deep, &st.LastError, &errAt, &st.ConsecutiveFailures); err != nil {
			return nil, err
		}
		if st.LastShallowAt, err = parseNullTime(shallow); err != nil {
			return nil, fmt.Errorf("parsing last_shallow_at for %s: %w", st.Source, err)
		}
		if st.LastDeepAt, err = parseNullTime(deep); err != nil {
			return nil, fmt.Errorf("parsing last_deep_at for %s: %w", st.Source, err)
		}
		if st.LastErrorAt, err = parseNullTime(errAt); err != nil {
			return nil, fmt.Errorf("parsing last_error_at for %s: %w", st.Source, err)
		}
		states = append(states, st)
	}
	return states, rows.Err()
}

func parseNullTime(v sql.NullString) (time.Time, error) {
	if !v.Valid || v.String == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v.String)
}

func timeOrNil(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
