package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pifworks/pif-pipeline/pif"
)

// =============================================================================
// PROMOTION ENGINE (pif.Promoter interface)
// =============================================================================
//
// archive_approved runs as one write transaction:
//
//   1. select     inflight rows of the site with archive_flag AND include_flag;
//                 a candidate key approved under another site fails the run
//   2. upsert     candidates into approved_projects by (pif_id, project_id);
//                 existing rows are overwritten in place, approval_date is
//                 set to the promotion timestamp either way
//   3. replace    approved_costs of every candidate key with the inflight set
//   4. delete     the candidates' inflight costs, then the inflight rows
//
// Every statement filters on the same site predicate, so a run for one site
// never reads or writes another site's rows. Any error rolls back all steps.

const candidatePredicate = "site = ? AND archive_flag = 1 AND include_flag = 1"

// Steps named in pif.TransactionError.
const (
	stepBegin          = "begin"
	stepSelect         = "select_candidates"
	stepUpsertProjects = "upsert_projects"
	stepReplaceCosts   = "replace_costs"
	stepDeleteInflight = "delete_inflight"
	stepCommit         = "commit"
)

var (
	countCandidatesSQL = "SELECT COUNT(*) FROM inflight_projects WHERE " + candidatePredicate

	upsertApprovedSQL = upsertProjectsSQL("approved_projects", "inflight_projects", candidatePredicate, true)

	deleteApprovedCostsSQL = `
		DELETE FROM approved_costs
		WHERE EXISTS (
			SELECT 1 FROM inflight_projects p
			WHERE p.pif_id = approved_costs.pif_id
			  AND p.project_id = approved_costs.project_id
			  AND p.site = ? AND p.archive_flag = 1 AND p.include_flag = 1
		)`

	insertApprovedCostsSQL = fmt.Sprintf(`
		INSERT INTO approved_costs (%s)
		SELECT %s FROM inflight_costs c
		JOIN inflight_projects p ON p.pif_id = c.pif_id AND p.project_id = c.project_id
		WHERE p.site = ? AND p.archive_flag = 1 AND p.include_flag = 1`,
		columnList("", costColumns), columnList("c", costColumns))

	deleteInflightCostsSQL = `
		DELETE FROM inflight_costs
		WHERE EXISTS (
			SELECT 1 FROM inflight_projects p
			WHERE p.pif_id = inflight_costs.pif_id
			  AND p.project_id = inflight_costs.project_id
			  AND p.site = ? AND p.archive_flag = 1 AND p.include_flag = 1
		)`

	deleteInflightProjectsSQL = "DELETE FROM inflight_projects WHERE " + candidatePredicate
)

// upsertProjectsSQL builds a single set-based INSERT ... SELECT ... ON
// CONFLICT DO UPDATE from src into dst. When stamped, the statement takes
// the approval timestamp as its first argument, followed by the predicate's.
func upsertProjectsSQL(dst, src, predicate string, stamped bool) string {
	insertCols := columnList("", projectColumns)
	selectCols := insertCols
	var set []string
	for _, c := range projectColumns {
		if c == "pif_id" || c == "project_id" {
			continue
		}
		set = append(set, fmt.Sprintf("%s = excluded.%s", c, c))
	}
	if stamped {
		insertCols += ", approval_date"
		selectCols += ", ?"
		set = append(set, "approval_date = excluded.approval_date")
	}
	// The WHERE clause is required by SQLite to disambiguate ON CONFLICT
	// from a join constraint in INSERT ... SELECT.
	return fmt.Sprintf(`
		INSERT INTO %s (%s)
		SELECT %s FROM %s
		WHERE %s
		ON CONFLICT(pif_id, project_id) DO UPDATE SET
			%s`,
		dst, insertCols, selectCols, src, predicate, strings.Join(set, ",\n\t\t\t"))
}

// ArchiveApproved promotes the site's flagged inflight records into the
// approved store. Running it again with no inflight changes is a no-op.
func (s *Store) ArchiveApproved(ctx context.Context, site string, at time.Time) (pif.PromotionResult, error) {
	result := pif.PromotionResult{Site: site, PromotedAt: at.UTC()}
	if site == "" {
		return result, pif.ErrSiteRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fail := func(step string, err error) (pif.PromotionResult, error) {
		return pif.PromotionResult{Site: site, PromotedAt: result.PromotedAt},
			&pif.TransactionError{Op: "archive_approved", Step: step, Site: site, Err: err}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fail(stepBegin, err)
	}
	defer tx.Rollback()

	// Step 1
	var candidates int
	if err := tx.QueryRowContext(ctx, countCandidatesSQL, site).Scan(&candidates); err != nil {
		return fail(stepSelect, err)
	}
	if candidates == 0 {
		return result, nil
	}
	conflict, err := findSiteConflict(ctx, tx, "inflight_projects",
		" AND s.archive_flag = 1 AND s.include_flag = 1", pif.StoreApproved, site)
	if err != nil {
		return fail(stepSelect, err)
	}
	if conflict != nil {
		return fail(stepSelect, conflict)
	}

	// Step 2
	res, err := tx.ExecContext(ctx, upsertApprovedSQL, formatTimestamp(at), site)
	if err != nil {
		return fail(stepUpsertProjects, err)
	}
	result.ProjectsAffected = rowsAffected(res)

	// Step 3
	if _, err := tx.ExecContext(ctx, deleteApprovedCostsSQL, site); err != nil {
		return fail(stepReplaceCosts, err)
	}
	res, err = tx.ExecContext(ctx, insertApprovedCostsSQL, site)
	if err != nil {
		return fail(stepReplaceCosts, err)
	}
	result.CostsAffected = rowsAffected(res)

	// Step 4
	if _, err := tx.ExecContext(ctx, deleteInflightCostsSQL, site); err != nil {
		return fail(stepDeleteInflight, err)
	}
	if _, err := tx.ExecContext(ctx, deleteInflightProjectsSQL, site); err != nil {
		return fail(stepDeleteInflight, err)
	}

	if err := tx.Commit(); err != nil {
		return fail(stepCommit, err)
	}
	return result, nil
}

// PromotionCandidates returns what ArchiveApproved would promote for site.
func (s *Store) PromotionCandidates(ctx context.Context, site string) ([]pif.ProjectRecord, []pif.CostFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin read: %w", err)
	}
	defer tx.Rollback()

	projects, err := queryProjects(ctx, tx, fmt.Sprintf(`
		SELECT %s FROM inflight_projects p
		WHERE p.site = ? AND p.archive_flag = 1 AND p.include_flag = 1
		ORDER BY p.pif_id, p.project_id`,
		selectProjectColumns(pif.StoreInflight)), site)
	if err != nil {
		return nil, nil, err
	}

	costs, err := queryCosts(ctx, tx, fmt.Sprintf(`
		SELECT %s FROM inflight_costs c
		JOIN inflight_projects p ON p.pif_id = c.pif_id AND p.project_id = c.project_id
		WHERE p.site = ? AND p.archive_flag = 1 AND p.include_flag = 1
		ORDER BY c.pif_id, c.project_id, c.scenario, c.year`,
		columnList("c", costColumns)), site)
	if err != nil {
		return nil, nil, err
	}
	return projects, costs, nil
}
