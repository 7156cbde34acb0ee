package reporting

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pifworks/pif-pipeline/pif"
)

// YearOffsets is the number of years covered by a wide row, starting at
// the reporting year.
const YearOffsets = 6

// ValueKind selects one of the three amounts of a cost fact.
type ValueKind string

const (
	Requested ValueKind = "requested"
	Current   ValueKind = "current"
	Variance  ValueKind = "variance"
)

// ValueKinds lists every kind in column order.
var ValueKinds = []ValueKind{Requested, Current, Variance}

// Column identifies one cell position of the wide schema.
type Column struct {
	Scenario pif.Scenario
	Kind     ValueKind
	Offset   int
}

// Name returns the column name, e.g. "closings_variance_y3".
func (c Column) Name() string {
	return fmt.Sprintf("%s_%s_y%d", strings.ToLower(string(c.Scenario)), c.Kind, c.Offset)
}

// Columns returns the fixed wide schema in order: scenario, then kind,
// then offset.
func Columns() []Column {
	cols := make([]Column, 0, len(pif.Scenarios)*len(ValueKinds)*YearOffsets)
	for _, s := range pif.Scenarios {
		for _, k := range ValueKinds {
			for o := 0; o < YearOffsets; o++ {
				cols = append(cols, Column{Scenario: s, Kind: k, Offset: o})
			}
		}
	}
	return cols
}

// WideRow is one project with its costs pivoted into the fixed schema.
// A nil cell means no cost fact exists for that position.
type WideRow struct {
	Project pif.ProjectRecord
	cells   map[Column]decimal.Decimal
}

// Value returns the cell for a column, or nil.
func (r WideRow) Value(c Column) *decimal.Decimal {
	d, ok := r.cells[c]
	if !ok {
		return nil
	}
	return &d
}

// Values returns every cell in Columns() order.
func (r WideRow) Values() []*decimal.Decimal {
	cols := Columns()
	out := make([]*decimal.Decimal, len(cols))
	for i, c := range cols {
		out[i] = r.Value(c)
	}
	return out
}

// Pivot joins costs onto their projects and spreads them across the wide
// schema relative to period.Year. Costs outside the six-year window and
// costs without a parent project are dropped. Two facts for the same cell
// fail with *pif.DuplicateCellError rather than picking one.
func Pivot(projects []pif.ProjectRecord, costs []pif.CostFact, period pif.ReportingPeriod) ([]WideRow, error) {
	rows := make([]WideRow, len(projects))
	index := make(map[pif.Key]int, len(projects))
	for i, p := range projects {
		rows[i] = WideRow{Project: p, cells: make(map[Column]decimal.Decimal)}
		index[p.Key()] = i
	}

	type cell struct {
		key      pif.Key
		scenario pif.Scenario
		offset   int
	}
	filled := make(map[cell]bool)
	for _, c := range costs {
		i, ok := index[c.Key()]
		if !ok {
			continue
		}
		offset := c.Year - period.Year
		if offset < 0 || offset >= YearOffsets {
			continue
		}

		at := cell{key: c.Key(), scenario: c.Scenario, offset: offset}
		if filled[at] {
			return nil, &pif.DuplicateCellError{Key: c.Key(), Scenario: c.Scenario, Year: c.Year}
		}
		filled[at] = true

		r := rows[i]
		r.cells[Column{Scenario: c.Scenario, Kind: Requested, Offset: offset}] = c.RequestedValue
		r.cells[Column{Scenario: c.Scenario, Kind: Current, Offset: offset}] = c.CurrentValue
		r.cells[Column{Scenario: c.Scenario, Kind: Variance, Offset: offset}] = c.VarianceValue
	}
	return rows, nil
}
