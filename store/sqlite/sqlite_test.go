package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pifworks/pif-pipeline/pif"
)

// =============================================================================
// MIGRATIONS
// =============================================================================

func TestNew_ReopenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pif.db")

	first, err := New(path)
	require.NoError(t, err)
	require.NoError(t, first.SetReportingPeriod(context.Background(), pif.ReportingPeriod{Year: 2025, Month: 9}))
	require.NoError(t, first.Close())

	second, err := New(path)
	require.NoError(t, err)
	defer second.Close()

	p, err := second.GetReportingPeriod(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pif.ReportingPeriod{Year: 2025, Month: 9}, p)
}

func TestSchemaVersion(t *testing.T) {
	s := newTestStore(t)

	version, dirty, err := s.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
}

// =============================================================================
// STAGING AND INFLIGHT MERGE
// =============================================================================

func submitTx(s *Store, site string, projects []pif.ProjectRecord, costs []pif.CostFact) (int, int, error) {
	var merged, mergedCosts int
	err := s.WithTx(context.Background(), func(tx pif.TxStore) error {
		if _, _, err := tx.ReplaceStaging(context.Background(), site, projects, costs); err != nil {
			return err
		}
		var err error
		merged, mergedCosts, err = tx.MergeStagingToInflight(context.Background(), site)
		return err
	})
	return merged, mergedCosts, err
}

func submit(t *testing.T, s *Store, site string, projects []pif.ProjectRecord, costs []pif.CostFact) (int, int) {
	merged, mergedCosts, err := submitTx(s, site, projects, costs)
	require.NoError(t, err)
	return merged, mergedCosts
}

func stage(t *testing.T, s *Store, site string, projects ...pif.ProjectRecord) {
	err := s.WithTx(context.Background(), func(tx pif.TxStore) error {
		_, _, err := tx.ReplaceStaging(context.Background(), site, projects, nil)
		return err
	})
	require.NoError(t, err)
}

func TestReplaceStaging_ReplacesOnlyTheSite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stage(t, s, "ANO", flaggedProject("PIF-1", "P-100", "ANO"))
	stage(t, s, "GGN", flaggedProject("PIF-9", "P-900", "GGN"))
	stage(t, s, "ANO", flaggedProject("PIF-2", "P-200", "ANO"))

	staged, err := s.ListProjects(ctx, pif.StoreStaging, "")
	require.NoError(t, err)
	require.Len(t, staged, 2)
	assert.Equal(t, "PIF-2", staged[0].PIFID)
	assert.Equal(t, "PIF-9", staged[1].PIFID)
}

func TestMergeStagingToInflight_EmptiesStaging(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	submit(t, s, "ANO", []pif.ProjectRecord{flaggedProject("PIF-1", "P-100", "ANO")},
		[]pif.CostFact{cost("PIF-1", "P-100", pif.ScenarioTarget, 2025, "1", "1", "0")})
	submit(t, s, "ANO", []pif.ProjectRecord{flaggedProject("PIF-2", "P-200", "ANO")}, nil)

	staged, stagedCosts := snapshot(t, s, pif.StoreStaging)
	assert.Empty(t, staged)
	assert.Empty(t, stagedCosts)

	inflight, err := s.ListProjects(ctx, pif.StoreInflight, "ANO")
	require.NoError(t, err)
	assert.Len(t, inflight, 2, "inflight accumulates across submissions")
}

func TestMergeStagingToInflight_SameKeyAfterOtherSitePromoted(t *testing.T) {
	// GIVEN: GGN submitted and promoted (PIF-1, P-100)
	// WHEN: ANO submits the same key
	// THEN: The merge fails with a site conflict on approved rather than a
	//       stale staging collision, and nothing of ANO lands

	s := newTestStore(t)
	ctx := context.Background()
	submit(t, s, "GGN", []pif.ProjectRecord{flaggedProject("PIF-1", "P-100", "GGN")}, nil)
	_, err := s.ArchiveApproved(ctx, "GGN", firstRun)
	require.NoError(t, err)

	_, _, err = submitTx(s, "ANO", []pif.ProjectRecord{flaggedProject("PIF-1", "P-100", "ANO")}, nil)

	require.ErrorIs(t, err, pif.ErrDuplicateKey)
	var conflict *pif.SiteConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, pif.StoreApproved, conflict.Store)
	assert.Equal(t, "GGN", conflict.Owner)
	assert.Equal(t, "ANO", conflict.Site)

	anoInflight, err := s.ListProjects(ctx, pif.StoreInflight, "ANO")
	require.NoError(t, err)
	assert.Empty(t, anoInflight)
	approved, err := s.ListProjects(ctx, pif.StoreApproved, "GGN")
	require.NoError(t, err)
	assert.Len(t, approved, 1)
}

func TestMergeStagingToInflight_RefusesKeyInflightUnderAnotherSite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	held := flaggedProject("PIF-1", "P-100", "GGN")
	held.ArchiveFlag = false
	submit(t, s, "GGN", []pif.ProjectRecord{held},
		[]pif.CostFact{cost("PIF-1", "P-100", pif.ScenarioTarget, 2025, "10", "10", "0")})
	submit(t, s, "GGN", []pif.ProjectRecord{flaggedProject("PIF-2", "P-200", "GGN")}, nil)

	_, _, err := submitTx(s, "ANO", []pif.ProjectRecord{flaggedProject("PIF-1", "P-100", "ANO")}, nil)

	var conflict *pif.SiteConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, pif.StoreInflight, conflict.Store)
	assert.Equal(t, pif.Key{PIFID: "PIF-1", ProjectID: "P-100"}, conflict.Key)

	ggn, err := s.ListProjects(ctx, pif.StoreInflight, "GGN")
	require.NoError(t, err)
	require.Len(t, ggn, 2)
	assert.Equal(t, "PIF-1", ggn[0].PIFID)
	ggnCosts, err := s.ListCosts(ctx, pif.StoreInflight, "GGN")
	require.NoError(t, err)
	assert.Len(t, ggnCosts, 1)
}

func TestMergeStagingToInflight_UpsertsAndReplacesCosts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	submit(t, s, "ANO",
		[]pif.ProjectRecord{flaggedProject("PIF-1", "P-100", "ANO")},
		[]pif.CostFact{
			cost("PIF-1", "P-100", pif.ScenarioTarget, 2025, "100", "90", "-10"),
			cost("PIF-1", "P-100", pif.ScenarioClosings, 2025, "80", "80", "0"),
		})

	revised := flaggedProject("PIF-1", "P-100", "ANO")
	revised.Status = "Revised"
	merged, mergedCosts := submit(t, s, "ANO",
		[]pif.ProjectRecord{revised},
		[]pif.CostFact{cost("PIF-1", "P-100", pif.ScenarioTarget, 2026, "120", "100", "20")})
	assert.Equal(t, 1, merged)
	assert.Equal(t, 1, mergedCosts)

	inflight, costs := snapshot(t, s, pif.StoreInflight)
	require.Len(t, inflight, 1)
	assert.Equal(t, "Revised", inflight[0].Status)
	assert.Nil(t, inflight[0].ApprovalDate)
	require.Len(t, costs, 1)
	assert.Equal(t, 2026, costs[0].Year)

	_, err := s.ListProjects(ctx, pif.StoreKind("archive"), "")
	assert.ErrorIs(t, err, pif.ErrUnknownStore)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx pif.TxStore) error {
		if _, _, err := tx.ReplaceStaging(ctx, "ANO", []pif.ProjectRecord{flaggedProject("PIF-1", "P-100", "ANO")}, nil); err != nil {
			return err
		}
		// Same key twice violates the staging primary key.
		_, _, err := tx.ReplaceStaging(ctx, "GGN", []pif.ProjectRecord{flaggedProject("PIF-1", "P-100", "GGN")}, nil)
		return err
	})
	require.ErrorIs(t, err, pif.ErrDuplicateKey)

	staged, err := s.ListProjects(ctx, pif.StoreStaging, "")
	require.NoError(t, err)
	assert.Empty(t, staged)
}

// =============================================================================
// RECORDS
// =============================================================================

func TestListRecords_ProjectsAndCostsOfOneSite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedInflight(t, s,
		[]pif.ProjectRecord{
			flaggedProject("PIF-1", "P-100", "ANO"),
			flaggedProject("PIF-9", "P-900", "GGN"),
		},
		[]pif.CostFact{
			cost("PIF-1", "P-100", pif.ScenarioTarget, 2025, "1", "1", "0"),
			cost("PIF-1", "P-100", pif.ScenarioClosings, 2025, "2", "2", "0"),
			cost("PIF-9", "P-900", pif.ScenarioTarget, 2025, "9", "9", "0"),
		})

	projects, costs, err := s.ListRecords(ctx, pif.StoreInflight, "ANO")
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "ANO", projects[0].Site)
	require.Len(t, costs, 2)
	for _, c := range costs {
		assert.Equal(t, projects[0].Key(), pif.Key{PIFID: c.PIFID, ProjectID: c.ProjectID})
	}

	_, err = s.ArchiveApproved(ctx, "ANO", firstRun)
	require.NoError(t, err)

	projects, costs, err = s.ListRecords(ctx, pif.StoreInflight, "")
	require.NoError(t, err)
	assert.Len(t, projects, 1)
	assert.Len(t, costs, 1)

	_, _, err = s.ListRecords(ctx, pif.StoreKind("archive"), "")
	assert.ErrorIs(t, err, pif.ErrUnknownStore)
}

// =============================================================================
// SUBMISSION LOG
// =============================================================================

func TestSubmissions_NewestFirstPerSite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, time.March, 1, 8, 0, 0, 0, time.UTC)

	for i, sub := range []pif.Submission{
		{ID: "s-1", Site: "ANO", SubmittedBy: "jdoe", Status: pif.SubmissionAccepted, RowCount: 3},
		{ID: "s-2", Site: "GGN", SubmittedBy: "asmith", Status: pif.SubmissionAccepted, RowCount: 1},
		{ID: "s-3", Site: "ANO", SubmittedBy: "jdoe", Status: pif.SubmissionRejected, RowCount: 2, FailureCount: 1},
	} {
		sub.SubmittedAt = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, s.AppendSubmission(ctx, sub))
	}

	subs, err := s.ListSubmissions(ctx, "ANO", 0)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "s-3", subs[0].ID)
	assert.Equal(t, pif.SubmissionRejected, subs[0].Status)
	assert.Equal(t, 1, subs[0].FailureCount)
	assert.Equal(t, "s-1", subs[1].ID)

	limited, err := s.ListSubmissions(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "s-3", limited[0].ID)

	err = s.AppendSubmission(ctx, pif.Submission{ID: "s-1", Site: "ANO", Status: pif.SubmissionAccepted, SubmittedAt: base})
	assert.ErrorIs(t, err, pif.ErrDuplicateKey)
}

// =============================================================================
// REPORTING PERIOD
// =============================================================================

func TestReportingPeriod_UnavailableUntilSet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetReportingPeriod(ctx)
	assert.ErrorIs(t, err, pif.ErrReportingPeriodUnavailable)

	require.NoError(t, s.SetReportingPeriod(ctx, pif.ReportingPeriod{Year: 2025, Month: 6}))
	require.NoError(t, s.SetReportingPeriod(ctx, pif.ReportingPeriod{Year: 2025, Month: 7}))

	p, err := s.GetReportingPeriod(ctx)
	require.NoError(t, err)
	assert.Equal(t, pif.ReportingPeriod{Year: 2025, Month: 7}, p)

	err = s.SetReportingPeriod(ctx, pif.ReportingPeriod{Year: 2025, Month: 13})
	assert.ErrorIs(t, err, pif.ErrInvalidReportingPeriod)
}
