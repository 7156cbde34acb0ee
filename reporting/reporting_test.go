package reporting_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pifworks/pif-pipeline/pif"
	"github.com/pifworks/pif-pipeline/reporting"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type fakeReader struct {
	projects  map[pif.StoreKind][]pif.ProjectRecord
	costs     map[pif.StoreKind][]pif.CostFact
	calls     int
	snapshots int
}

func (f *fakeReader) ListProjects(_ context.Context, kind pif.StoreKind, site string) ([]pif.ProjectRecord, error) {
	f.calls++
	var out []pif.ProjectRecord
	for _, p := range f.projects[kind] {
		if site == "" || p.Site == site {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeReader) ListCosts(_ context.Context, kind pif.StoreKind, _ string) ([]pif.CostFact, error) {
	f.calls++
	return f.costs[kind], nil
}

func (f *fakeReader) ListRecords(_ context.Context, kind pif.StoreKind, site string) ([]pif.ProjectRecord, []pif.CostFact, error) {
	f.snapshots++
	var projects []pif.ProjectRecord
	for _, p := range f.projects[kind] {
		if site == "" || p.Site == site {
			projects = append(projects, p)
		}
	}
	return projects, f.costs[kind], nil
}

func (f *fakeReader) PromotionCandidates(context.Context, string) ([]pif.ProjectRecord, []pif.CostFact, error) {
	return nil, nil, nil
}

type fakePeriodStore struct {
	period pif.ReportingPeriod
	err    error
}

func (f fakePeriodStore) GetReportingPeriod(context.Context) (pif.ReportingPeriod, error) {
	return f.period, f.err
}

func (f fakePeriodStore) SetReportingPeriod(context.Context, pif.ReportingPeriod) error {
	return nil
}

func project(pifID, projectID, site string) pif.ProjectRecord {
	return pif.ProjectRecord{PIFID: pifID, ProjectID: projectID, LineItem: 1, Site: site}
}

func fact(pifID, projectID string, scenario pif.Scenario, year int, requested, current, variance int64) pif.CostFact {
	return pif.CostFact{
		PIFID:          pifID,
		ProjectID:      projectID,
		Scenario:       scenario,
		Year:           year,
		RequestedValue: decimal.NewFromInt(requested),
		CurrentValue:   decimal.NewFromInt(current),
		VarianceValue:  decimal.NewFromInt(variance),
	}
}

func column(s pif.Scenario, k reporting.ValueKind, offset int) reporting.Column {
	return reporting.Column{Scenario: s, Kind: k, Offset: offset}
}

var period2025 = pif.ReportingPeriod{Year: 2025, Month: 3}

// =============================================================================
// COLUMN CATALOGUE
// =============================================================================

func TestColumns_FixedSchema(t *testing.T) {
	cols := reporting.Columns()
	require.Len(t, cols, 36)

	assert.Equal(t, "target_requested_y0", cols[0].Name())
	assert.Equal(t, "target_requested_y5", cols[5].Name())
	assert.Equal(t, "target_current_y0", cols[6].Name())
	assert.Equal(t, "closings_requested_y0", cols[18].Name())
	assert.Equal(t, "closings_variance_y5", cols[35].Name())
}

// =============================================================================
// PIVOT
// =============================================================================

func TestPivot_SpreadsCostsRelativeToPeriod(t *testing.T) {
	// GIVEN: One project with costs in the reporting year and two years later
	projects := []pif.ProjectRecord{project("PIF-1", "P-100", "ANO")}
	costs := []pif.CostFact{
		fact("PIF-1", "P-100", pif.ScenarioTarget, 2025, 100, 90, -10),
		fact("PIF-1", "P-100", pif.ScenarioClosings, 2027, 40, 45, 5),
	}

	// WHEN: Pivoting against 2025
	rows, err := reporting.Pivot(projects, costs, period2025)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	// THEN: Offsets are computed from the reporting year
	row := rows[0]
	require.NotNil(t, row.Value(column(pif.ScenarioTarget, reporting.Requested, 0)))
	assert.True(t, decimal.NewFromInt(100).Equal(*row.Value(column(pif.ScenarioTarget, reporting.Requested, 0))))
	assert.True(t, decimal.NewFromInt(-10).Equal(*row.Value(column(pif.ScenarioTarget, reporting.Variance, 0))))
	assert.True(t, decimal.NewFromInt(45).Equal(*row.Value(column(pif.ScenarioClosings, reporting.Current, 2))))

	// AND: Positions without a fact stay absent rather than zero
	assert.Nil(t, row.Value(column(pif.ScenarioTarget, reporting.Requested, 1)))
	assert.Nil(t, row.Value(column(pif.ScenarioClosings, reporting.Requested, 0)))

	values := row.Values()
	require.Len(t, values, 36)
	present := 0
	for _, v := range values {
		if v != nil {
			present++
		}
	}
	assert.Equal(t, 6, present)
}

func TestPivot_FloatingPeriodShiftsColumns(t *testing.T) {
	projects := []pif.ProjectRecord{project("PIF-1", "P-100", "ANO")}
	costs := []pif.CostFact{fact("PIF-1", "P-100", pif.ScenarioTarget, 2026, 7, 7, 0)}

	rows, err := reporting.Pivot(projects, costs, pif.ReportingPeriod{Year: 2026, Month: 1})
	require.NoError(t, err)

	assert.NotNil(t, rows[0].Value(column(pif.ScenarioTarget, reporting.Requested, 0)))
	assert.Nil(t, rows[0].Value(column(pif.ScenarioTarget, reporting.Requested, 1)))
}

func TestPivot_DropsYearsOutsideWindow(t *testing.T) {
	projects := []pif.ProjectRecord{project("PIF-1", "P-100", "ANO")}
	costs := []pif.CostFact{
		fact("PIF-1", "P-100", pif.ScenarioTarget, 2024, 1, 1, 0),
		fact("PIF-1", "P-100", pif.ScenarioTarget, 2031, 1, 1, 0),
		fact("PIF-1", "P-100", pif.ScenarioTarget, 2030, 9, 9, 0),
	}

	rows, err := reporting.Pivot(projects, costs, period2025)
	require.NoError(t, err)

	assert.NotNil(t, rows[0].Value(column(pif.ScenarioTarget, reporting.Requested, 5)))
	for _, v := range rows[0].Values()[:5] {
		assert.Nil(t, v)
	}
}

func TestPivot_ProjectWithoutCostsStillHasRow(t *testing.T) {
	projects := []pif.ProjectRecord{
		project("PIF-1", "P-100", "ANO"),
		project("PIF-2", "P-200", "ANO"),
	}
	costs := []pif.CostFact{
		fact("PIF-1", "P-100", pif.ScenarioTarget, 2025, 1, 1, 0),
		fact("PIF-X", "P-999", pif.ScenarioTarget, 2025, 5, 5, 0),
	}

	rows, err := reporting.Pivot(projects, costs, period2025)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "PIF-2", rows[1].Project.PIFID)
	for _, v := range rows[1].Values() {
		assert.Nil(t, v)
	}
}

func TestPivot_DuplicateCellFails(t *testing.T) {
	// GIVEN: Two facts for the same project, scenario and year
	projects := []pif.ProjectRecord{project("PIF-1", "P-100", "ANO")}
	costs := []pif.CostFact{
		fact("PIF-1", "P-100", pif.ScenarioTarget, 2025, 1, 1, 0),
		fact("PIF-1", "P-100", pif.ScenarioTarget, 2025, 2, 2, 0),
	}

	// WHEN: Pivoting
	_, err := reporting.Pivot(projects, costs, period2025)

	// THEN: The collision is reported instead of one value winning
	require.ErrorIs(t, err, pif.ErrDuplicateKey)
	var dup *pif.DuplicateCellError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, pif.Key{PIFID: "PIF-1", ProjectID: "P-100"}, dup.Key)
	assert.Equal(t, 2025, dup.Year)
}

// =============================================================================
// PERIOD PROVIDERS
// =============================================================================

func TestStorePeriod(t *testing.T) {
	ctx := context.Background()

	p, err := reporting.StorePeriod{Store: fakePeriodStore{period: period2025}}.ReportingPeriod(ctx)
	require.NoError(t, err)
	assert.Equal(t, period2025, p)

	_, err = reporting.StorePeriod{Store: fakePeriodStore{err: pif.ErrReportingPeriodUnavailable}}.ReportingPeriod(ctx)
	assert.ErrorIs(t, err, pif.ErrReportingPeriodUnavailable)

	_, err = reporting.StorePeriod{Store: fakePeriodStore{err: errors.New("disk I/O error")}}.ReportingPeriod(ctx)
	assert.ErrorIs(t, err, pif.ErrReportingPeriodUnavailable)

	_, err = reporting.StorePeriod{}.ReportingPeriod(ctx)
	assert.ErrorIs(t, err, pif.ErrReportingPeriodUnavailable)
}

func TestFixedPeriod_RejectsInvalid(t *testing.T) {
	_, err := reporting.FixedPeriod{Year: 2025, Month: 0}.ReportingPeriod(context.Background())
	assert.ErrorIs(t, err, pif.ErrReportingPeriodUnavailable)
}

// =============================================================================
// BUILDER
// =============================================================================

func TestBuilder_WideView(t *testing.T) {
	reader := &fakeReader{
		projects: map[pif.StoreKind][]pif.ProjectRecord{
			pif.StoreApproved: {project("PIF-1", "P-100", "ANO"), project("PIF-9", "P-900", "GGN")},
		},
		costs: map[pif.StoreKind][]pif.CostFact{
			pif.StoreApproved: {fact("PIF-1", "P-100", pif.ScenarioClosings, 2026, 3, 3, 0)},
		},
	}
	b := reporting.NewBuilder(reader, reporting.FixedPeriod(period2025))

	view, err := b.WideView(context.Background(), pif.StoreApproved, "ANO")
	require.NoError(t, err)

	assert.Equal(t, period2025, view.Period)
	assert.Len(t, view.Columns, 36)
	require.Len(t, view.Rows, 1)
	assert.NotNil(t, view.Rows[0].Value(column(pif.ScenarioClosings, reporting.Requested, 1)))
	assert.Equal(t, 1, reader.snapshots, "projects and costs come from one read")
	assert.Zero(t, reader.calls)
}

func TestBuilder_MissingPeriodFailsBeforeReading(t *testing.T) {
	reader := &fakeReader{}
	b := reporting.NewBuilder(reader, reporting.StorePeriod{Store: fakePeriodStore{err: pif.ErrReportingPeriodUnavailable}})

	_, err := b.WideView(context.Background(), pif.StoreInflight, "")

	require.ErrorIs(t, err, pif.ErrReportingPeriodUnavailable)
	assert.True(t, pif.IsConfigurationError(err))
	assert.Zero(t, reader.calls)
	assert.Zero(t, reader.snapshots)
}

func TestBuilder_RejectsStagingAndUnknownStores(t *testing.T) {
	b := reporting.NewBuilder(&fakeReader{}, reporting.FixedPeriod(period2025))

	_, err := b.WideView(context.Background(), pif.StoreStaging, "")
	assert.ErrorIs(t, err, pif.ErrUnknownStore)

	_, err = b.WideView(context.Background(), pif.StoreKind("archive"), "")
	assert.ErrorIs(t, err, pif.ErrUnknownStore)
}
