package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Probe run statuses.
const (
	RunOK     = "ok"
	RunFailed = "failed"
)

// Page size bounds for ListRuns.
const (
	defaultRunLimit = 50
	maxRunLimit     = 200
)

// ProbeRun is one row of probe history.
type ProbeRun struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	Devices    int       `json:"devices"`
	Tags       int       `json:"tags"`
	Removed    int       `json:"removed"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
}

// RunFilter controls which probe runs ListRuns returns.
type RunFilter struct {
	Status string // optional: RunOK or RunFailed
	Limit  int    // default 50, max 200
	Offset int
}

// RunList is a page of probe runs, newest first.
type RunList struct {
	Runs   []ProbeRun `json:"runs"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// RecordRun appends a probe run to the history.
func (s *Store) RecordRun(ctx context.Context, run ProbeRun) error {
	if run.ID == "" {
		return fmt.Errorf("recording probe run: empty id")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	var errText any
	if run.Error != "" {
		errText = run.Error
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO probe_runs (id, status, devices, tags, removed, duration_ms, error, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Status, run.Devices, run.Tags, run.Removed, run.DurationMS,
		errText, run.StartedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting probe run: %w", err)
	}
	return nil
}

// ListRuns returns probe runs matching the filter, most recent first.
func (s *Store) ListRuns(ctx context.Context, filter RunFilter) (*RunList, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultRunLimit
	}
	if filter.Limit > maxRunLimit {
		filter.Limit = maxRunLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var (
		conditions []string
		args       []any
	)
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM probe_runs " + where //nolint:gosec // WHERE built from parameterised conditions
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting probe runs: %w", err)
	}

	query := "SELECT id, status, devices, tags, removed, duration_ms, COALESCE(error, ''), started_at FROM probe_runs " + //nolint:gosec // as above
		where + " ORDER BY started_at DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying probe runs: %w", err)
	}
	defer rows.Close()

	runs := []ProbeRun{}
	for rows.Next() {
		var (
			run       ProbeRun
			startedAt string
		)
		if err := rows.Scan(&run.ID, &run.Status, &run.Devices, &run.Tags, &run.Removed,
			&run.DurationMS, &run.Error, &startedAt); err != nil {
			return nil, fmt.Errorf("scanning probe run: %w", err)
		}
		run.StartedAt, err = time.Parse(timeFormat, startedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing probe run timestamp %q: %w", startedAt, err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating probe runs: %w", err)
	}

	return &RunList{
		Runs:   runs,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}
