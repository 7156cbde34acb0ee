package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/pifworks/pif-pipeline/pif"
)

// =============================================================================
// STAGING AND INFLIGHT MERGE
// =============================================================================

var (
	deleteStagingCostsSQL = `
		DELETE FROM staging_costs
		WHERE EXISTS (
			SELECT 1 FROM staging_projects p
			WHERE p.pif_id = staging_costs.pif_id
			  AND p.project_id = staging_costs.project_id
			  AND p.site = ?
		)`

	deleteStagingProjectsSQL = "DELETE FROM staging_projects WHERE site = ?"

	upsertInflightSQL = upsertProjectsSQL("inflight_projects", "staging_projects", "site = ?", false)

	deleteMergedInflightCostsSQL = `
		DELETE FROM inflight_costs
		WHERE EXISTS (
			SELECT 1 FROM staging_projects p
			WHERE p.pif_id = inflight_costs.pif_id
			  AND p.project_id = inflight_costs.project_id
			  AND p.site = ?
		)`

	insertInflightCostsSQL = fmt.Sprintf(`
		INSERT INTO inflight_costs (%s)
		SELECT %s FROM staging_costs c
		JOIN staging_projects p ON p.pif_id = c.pif_id AND p.project_id = c.project_id
		WHERE p.site = ?`,
		columnList("", costColumns), columnList("c", costColumns))
)

// replaceStaging truncates the site's staging rows and bulk inserts the batch.
func replaceStaging(ctx context.Context, db execer, site string, projects []pif.ProjectRecord, costs []pif.CostFact) (int, int, error) {
	if site == "" {
		return 0, 0, pif.ErrSiteRequired
	}
	if err := clearStaging(ctx, db, site); err != nil {
		return 0, 0, err
	}

	np, err := insertProjects(ctx, db, "staging_projects", projects)
	if err != nil {
		return 0, 0, err
	}
	nc, err := insertCosts(ctx, db, "staging_costs", costs)
	if err != nil {
		return 0, 0, err
	}
	return np, nc, nil
}

func clearStaging(ctx context.Context, db execer, site string) error {
	if _, err := db.ExecContext(ctx, deleteStagingCostsSQL, site); err != nil {
		return fmt.Errorf("failed to clear staging costs: %w", err)
	}
	if _, err := db.ExecContext(ctx, deleteStagingProjectsSQL, site); err != nil {
		return fmt.Errorf("failed to clear staging projects: %w", err)
	}
	return nil
}

// mergeStagingToInflight upserts the site's staged projects into inflight,
// replaces the inflight cost sets of the merged keys and empties the site's
// staging rows. A staged key held by another site in inflight or approved
// fails with a *pif.SiteConflictError.
func mergeStagingToInflight(ctx context.Context, db execer, site string) (int, int, error) {
	if site == "" {
		return 0, 0, pif.ErrSiteRequired
	}
	for _, kind := range []pif.StoreKind{pif.StoreInflight, pif.StoreApproved} {
		conflict, err := findSiteConflict(ctx, db, "staging_projects", "", kind, site)
		if err != nil {
			return 0, 0, err
		}
		if conflict != nil {
			return 0, 0, conflict
		}
	}

	res, err := db.ExecContext(ctx, upsertInflightSQL, site)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to merge staging projects: %w", err)
	}
	projects := rowsAffected(res)

	if _, err := db.ExecContext(ctx, deleteMergedInflightCostsSQL, site); err != nil {
		return 0, 0, fmt.Errorf("failed to clear merged inflight costs: %w", err)
	}
	res, err = db.ExecContext(ctx, insertInflightCostsSQL, site)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to merge staging costs: %w", err)
	}
	costs := rowsAffected(res)

	if err := clearStaging(ctx, db, site); err != nil {
		return 0, 0, err
	}
	return projects, costs, nil
}

// =============================================================================
// SUBMISSION LOG (pif.SubmissionLog interface)
// =============================================================================

// AppendSubmission records a submission outside of any batch transaction.
func (s *Store) AppendSubmission(ctx context.Context, sub pif.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return appendSubmission(ctx, s.db, sub)
}

func appendSubmission(ctx context.Context, db execer, sub pif.Submission) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO submissions (id, site, submitted_by, status, row_count, failure_count, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.Site, sub.SubmittedBy, string(sub.Status),
		sub.RowCount, sub.FailureCount, formatTimestamp(sub.SubmittedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: submission %s", pif.ErrDuplicateKey, sub.ID)
		}
		return fmt.Errorf("failed to append submission: %w", err)
	}
	return nil
}

// ListSubmissions returns the newest submissions first. An empty site lists
// every site; limit <= 0 means no limit.
func (s *Store) ListSubmissions(ctx context.Context, site string, limit int) ([]pif.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, site, submitted_by, status, row_count, failure_count, submitted_at
		FROM submissions`
	var args []any
	if site != "" {
		query += " WHERE site = ?"
		args = append(args, site)
	}
	query += " ORDER BY submitted_at DESC, rowid DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}
	defer rows.Close()

	var subs []pif.Submission
	for rows.Next() {
		var sub pif.Submission
		var submittedAt string
		if err := rows.Scan(&sub.ID, &sub.Site, &sub.SubmittedBy, &sub.Status,
			&sub.RowCount, &sub.FailureCount, &submittedAt); err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		if sub.SubmittedAt, err = parseTimestamp(submittedAt); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// =============================================================================
// REPORTING PERIOD (pif.PeriodStore interface)
// =============================================================================

// GetReportingPeriod returns the persisted reporting period.
func (s *Store) GetReportingPeriod(ctx context.Context) (pif.ReportingPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var p pif.ReportingPeriod
	err := s.db.QueryRowContext(ctx,
		"SELECT year, month FROM reporting_period WHERE id = 1",
	).Scan(&p.Year, &p.Month)
	if errors.Is(err, sql.ErrNoRows) {
		return p, pif.ErrReportingPeriodUnavailable
	}
	if err != nil {
		return p, fmt.Errorf("failed to read reporting period: %w", err)
	}
	return p, nil
}

// SetReportingPeriod replaces the persisted reporting period.
func (s *Store) SetReportingPeriod(ctx context.Context, p pif.ReportingPeriod) error {
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reporting_period (id, year, month, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			year = excluded.year,
			month = excluded.month,
			updated_at = excluded.updated_at`,
		p.Year, p.Month, formatTimestamp(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to save reporting period: %w", err)
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
