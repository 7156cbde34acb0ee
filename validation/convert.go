package validation

import (
	"strconv"
	"time"

	"github.com/pifworks/pif-pipeline/pif"
)

// RowsFromRecords renders stored records back into submission rows so that
// records edited in place can be re-validated with the same rule set.
// Costs are attached to their parent by natural key.
func RowsFromRecords(projects []pif.ProjectRecord, costs []pif.CostFact, layout string) []pif.SubmissionRow {
	byKey := make(map[pif.Key][]pif.CostFact)
	for _, c := range costs {
		byKey[c.Key()] = append(byKey[c.Key()], c)
	}

	rows := make([]pif.SubmissionRow, len(projects))
	for i, p := range projects {
		rows[i] = RowFromRecord(p, byKey[p.Key()], layout)
		rows[i].Row = i + 1
	}
	return rows
}

// RowFromRecord renders a single record and its costs.
func RowFromRecord(p pif.ProjectRecord, costs []pif.CostFact, layout string) pif.SubmissionRow {
	if layout == "" {
		layout = DefaultDateLayout
	}
	row := pif.SubmissionRow{
		PIFID:               p.PIFID,
		ProjectID:           p.ProjectID,
		Site:                p.Site,
		ArchiveFlag:         p.ArchiveFlag,
		IncludeFlag:         p.IncludeFlag,
		ChangeType:          p.ChangeType,
		Category:            p.Category,
		AccountingTreatment: p.AccountingTreatment,
		StrategicRank:       p.StrategicRank,
		Status:              p.Status,
		Justification:       p.Justification,
		LCMIssue:            p.LCMIssue,
		OriginalFPISD:       formatDate(p.OriginalFPISD, layout),
		RevisedFPISD:        formatDate(p.RevisedFPISD, layout),
		MovingISDYear:       p.MovingISDYear,
		SubmissionDate:      formatDate(p.SubmissionDate, layout),
	}
	if p.LineItem > 0 {
		row.LineItem = strconv.Itoa(p.LineItem)
	}
	if p.Seg != nil {
		row.Seg = strconv.Itoa(*p.Seg)
	}
	if p.PriorYearSpend.Valid {
		row.PriorYearSpend = p.PriorYearSpend.Decimal.String()
	}
	for _, c := range costs {
		row.Costs = append(row.Costs, pif.SubmissionCost{
			Scenario:       string(c.Scenario),
			Year:           strconv.Itoa(c.Year),
			RequestedValue: c.RequestedValue.String(),
			CurrentValue:   c.CurrentValue.String(),
			VarianceValue:  c.VarianceValue.String(),
		})
	}
	return row
}

func formatDate(t *time.Time, layout string) string {
	if t == nil {
		return ""
	}
	return t.Format(layout)
}
