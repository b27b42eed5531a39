package storage

import (
	"database/sql"
	"fmt"
)

// ReserveQuota atomically admits units against one month's ledger row,
// creating the row on first use. The conditional UPDATE is the admission
// check: it only fires when the increment stays within limit, so concurrent
// reservations can never push the ledger past it. Returns whether the
// reservation was granted and the post-decision used count.
func (s *Store) ReserveQuota(month string, units, limit int) (bool, int, error) {
	if units <= 0 {
		return false, 0, fmt.Errorf("reserve units must be positive, got %d", units)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return false, 0, fmt.Errorf("beginning quota transaction: %w", err)
	}
	defer tx.Rollback()

	// Keep monthly_limit current so stats reflect config changes mid-month.
	if _, err := tx.Exec(`
		INSERT INTO quota_ledger (month, used, monthly_limit) VALUES (?, 0, ?)
		ON CONFLICT(month) DO UPDATE SET monthly_limit = excluded.monthly_limit`,
		month, limit,
	); err != nil {
		return false, 0, fmt.Errorf("ensuring ledger row for %s: %w", month, err)
	}

	res, err := tx.Exec(`
		UPDATE quota_ledger SET used = used + ?
		WHERE month = ? AND used + ? <= ?`,
		units, month, units, limit,
	)
	if err != nil {
		return false, 0, fmt.Errorf("reserving quota for %s: %w", month, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, 0, fmt.Errorf("checking quota reservation: %w", err)
	}

	var used int
	if err := tx.QueryRow(`SELECT used FROM quota_ledger WHERE month = ?`, month).Scan(&used); err != nil {
		return false, 0, fmt.Errorf("reading ledger for %s: %w", month, err)
	}

	if err := tx.Commit(); err != nil {
		return false, 0, fmt.Errorf("committing quota reservation: %w", err)
	}
	return n == 1, used, nil
}

// QuotaUsed returns the consumed units for a month; zero when the month has
// no ledger row yet.
func (s *Store) QuotaUsed(month string) (int, error) {
	var used int
	err := s.db.QueryRow(`SELECT used FROM quota_ledger WHERE month = ?`, month).Scan(&used)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading quota for %s: %w", month, err)
	}
	return used, nil
}
