package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pifworks/pif-pipeline/pif"
)

// =============================================================================
// PROJECT READER (pif.ProjectReader interface)
// =============================================================================

// ListProjects returns the project records of a store, ordered by key.
// An empty site returns every site.
func (s *Store) ListProjects(ctx context.Context, kind pif.StoreKind, site string) ([]pif.ProjectRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return listProjects(ctx, s.db, kind, site)
}

// ListCosts returns the cost facts of a store whose parent project belongs
// to site. An empty site returns every site.
func (s *Store) ListCosts(ctx context.Context, kind pif.StoreKind, site string) ([]pif.CostFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return listCosts(ctx, s.db, kind, site)
}

// ListRecords reads projects and costs inside one transaction so a
// promotion committing in between cannot orphan the costs.
func (s *Store) ListRecords(ctx context.Context, kind pif.StoreKind, site string) ([]pif.ProjectRecord, []pif.CostFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin read: %w", err)
	}
	defer tx.Rollback()

	projects, err := listProjects(ctx, tx, kind, site)
	if err != nil {
		return nil, nil, err
	}
	costs, err := listCosts(ctx, tx, kind, site)
	if err != nil {
		return nil, nil, err
	}
	return projects, costs, nil
}

func listProjects(ctx context.Context, db execer, kind pif.StoreKind, site string) ([]pif.ProjectRecord, error) {
	table, err := projectTable(kind)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s p", selectProjectColumns(kind), table)
	var args []any
	if site != "" {
		query += " WHERE p.site = ?"
		args = append(args, site)
	}
	query += " ORDER BY p.pif_id, p.project_id"

	return queryProjects(ctx, db, query, args...)
}

func listCosts(ctx context.Context, db execer, kind pif.StoreKind, site string) ([]pif.CostFact, error) {
	projects, err := projectTable(kind)
	if err != nil {
		return nil, err
	}
	costs, _ := costTable(kind)

	query := fmt.Sprintf(`
		SELECT %s FROM %s c
		JOIN %s p ON p.pif_id = c.pif_id AND p.project_id = c.project_id`,
		columnList("c", costColumns), costs, projects)
	var args []any
	if site != "" {
		query += " WHERE p.site = ?"
		args = append(args, site)
	}
	query += " ORDER BY c.pif_id, c.project_id, c.scenario, c.year"

	return queryCosts(ctx, db, query, args...)
}

// =============================================================================
// SITE OWNERSHIP
// =============================================================================

// findSiteConflict returns the first key of site's rows in src (filtered by
// srcFilter on alias s) that dst holds under a different site, or nil.
func findSiteConflict(ctx context.Context, db execer, src, srcFilter string, dst pif.StoreKind, site string) (*pif.SiteConflictError, error) {
	dstTable, err := projectTable(dst)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT s.pif_id, s.project_id, d.site
		FROM %s s
		JOIN %s d ON d.pif_id = s.pif_id AND d.project_id = s.project_id
		WHERE s.site = ?%s AND d.site <> s.site
		ORDER BY s.pif_id, s.project_id
		LIMIT 1`, src, dstTable, srcFilter)

	conflict := &pif.SiteConflictError{Store: dst, Site: site}
	err = db.QueryRowContext(ctx, query, site).Scan(&conflict.Key.PIFID, &conflict.Key.ProjectID, &conflict.Owner)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check %s ownership: %w", dst, err)
	}
	return conflict, nil
}

// selectProjectColumns selects the shared columns plus approval_date, which
// only the approved table has.
func selectProjectColumns(kind pif.StoreKind) string {
	cols := columnList("p", projectColumns)
	if kind == pif.StoreApproved {
		return cols + ", p.approval_date"
	}
	return cols + ", NULL AS approval_date"
}

func queryProjects(ctx context.Context, db execer, query string, args ...any) ([]pif.ProjectRecord, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	var projects []pif.ProjectRecord
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func scanProject(rows *sql.Rows) (pif.ProjectRecord, error) {
	var (
		p                                      pif.ProjectRecord
		seg                                    sql.NullInt64
		originalISD, revisedISD, submittedDate sql.NullString
		approvalDate                           sql.NullString
	)

	err := rows.Scan(
		&p.PIFID, &p.ProjectID, &p.LineItem, &p.Site, &p.ArchiveFlag, &p.IncludeFlag,
		&p.ChangeType, &p.Category, &p.AccountingTreatment, &p.StrategicRank, &p.Status,
		&p.Justification, &p.LCMIssue, &seg, &p.PriorYearSpend,
		&originalISD, &revisedISD, &p.MovingISDYear, &submittedDate,
		&approvalDate,
	)
	if err != nil {
		return p, fmt.Errorf("failed to scan project: %w", err)
	}

	if seg.Valid {
		n := int(seg.Int64)
		p.Seg = &n
	}
	if p.OriginalFPISD, err = parseDate(originalISD); err != nil {
		return p, err
	}
	if p.RevisedFPISD, err = parseDate(revisedISD); err != nil {
		return p, err
	}
	if p.SubmissionDate, err = parseDate(submittedDate); err != nil {
		return p, err
	}
	if approvalDate.Valid {
		t, err := parseTimestamp(approvalDate.String)
		if err != nil {
			return p, err
		}
		p.ApprovalDate = &t
	}
	return p, nil
}

func queryCosts(ctx context.Context, db execer, query string, args ...any) ([]pif.CostFact, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query costs: %w", err)
	}
	defer rows.Close()

	var costs []pif.CostFact
	for rows.Next() {
		var c pif.CostFact
		if err := rows.Scan(&c.PIFID, &c.ProjectID, &c.Scenario, &c.Year,
			&c.RequestedValue, &c.CurrentValue, &c.VarianceValue); err != nil {
			return nil, fmt.Errorf("failed to scan cost: %w", err)
		}
		costs = append(costs, c)
	}
	return costs, rows.Err()
}

// =============================================================================
// BULK INSERT
// =============================================================================

func insertProjects(ctx context.Context, db execer, table string, projects []pif.ProjectRecord) (int, error) {
	if len(projects) == 0 {
		return 0, nil
	}
	stmt, err := db.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, columnList("", projectColumns), placeholders(len(projectColumns))))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare project insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range projects {
		_, err := stmt.ExecContext(ctx,
			p.PIFID, p.ProjectID, p.LineItem, p.Site, p.ArchiveFlag, p.IncludeFlag,
			p.ChangeType, p.Category, p.AccountingTreatment, p.StrategicRank, p.Status,
			p.Justification, p.LCMIssue, nullInt(p.Seg), p.PriorYearSpend,
			nullDate(p.OriginalFPISD), nullDate(p.RevisedFPISD), p.MovingISDYear, nullDate(p.SubmissionDate),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return 0, fmt.Errorf("%w: %s in %s", pif.ErrDuplicateKey, p.Key(), table)
			}
			return 0, fmt.Errorf("failed to insert project %s: %w", p.Key(), err)
		}
	}
	return len(projects), nil
}

func insertCosts(ctx context.Context, db execer, table string, costs []pif.CostFact) (int, error) {
	if len(costs) == 0 {
		return 0, nil
	}
	stmt, err := db.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, columnList("", costColumns), placeholders(len(costColumns))))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare cost insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range costs {
		_, err := stmt.ExecContext(ctx,
			c.PIFID, c.ProjectID, string(c.Scenario), c.Year,
			c.RequestedValue.String(), c.CurrentValue.String(), c.VarianceValue.String(),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return 0, fmt.Errorf("%w: %s %s %d in %s", pif.ErrDuplicateKey, c.Key(), c.Scenario, c.Year, table)
			}
			return 0, fmt.Errorf("failed to insert cost for %s: %w", c.Key(), err)
		}
	}
	return len(costs), nil
}
