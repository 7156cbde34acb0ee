/*
Package reporting builds the wide cost views of the inflight and approved
stores.

PURPOSE:
  Cost facts are stored one row per (pif, project, scenario, year). Reports
  want one row per project with a fixed set of columns:

    <scenario>_<kind>_y<offset>   e.g. target_requested_y0

  for scenario in {Target, Closings}, kind in {requested, current,
  variance} and offset 0..5 relative to the reporting year.

REPORTING PERIOD:
  The reference year is NOT the calendar year. It follows the last data
  load and is supplied by a PeriodProvider, so views are deterministic in
  tests (FixedPeriod) and follow the database in production (StorePeriod).

SEE ALSO:
  - pivot.go: The pivot itself
  - view.go: Store-backed view builder
*/
package reporting

import (
	"context"
	"errors"
	"fmt"

	"github.com/pifworks/pif-pipeline/pif"
)

// PeriodProvider supplies the reporting period.
type PeriodProvider interface {
	ReportingPeriod(ctx context.Context) (pif.ReportingPeriod, error)
}

// FixedPeriod is a PeriodProvider that always returns the same period.
type FixedPeriod pif.ReportingPeriod

func (p FixedPeriod) ReportingPeriod(context.Context) (pif.ReportingPeriod, error) {
	period := pif.ReportingPeriod(p)
	if err := period.Validate(); err != nil {
		return period, fmt.Errorf("%w: %v", pif.ErrReportingPeriodUnavailable, err)
	}
	return period, nil
}

// StorePeriod reads the period persisted in a PeriodStore.
type StorePeriod struct {
	Store pif.PeriodStore
}

func (p StorePeriod) ReportingPeriod(ctx context.Context) (pif.ReportingPeriod, error) {
	if p.Store == nil {
		return pif.ReportingPeriod{}, fmt.Errorf("%w: no period store configured", pif.ErrReportingPeriodUnavailable)
	}
	period, err := p.Store.GetReportingPeriod(ctx)
	if err != nil {
		if errors.Is(err, pif.ErrReportingPeriodUnavailable) {
			return period, err
		}
		return period, fmt.Errorf("%w: %v", pif.ErrReportingPeriodUnavailable, err)
	}
	if err := period.Validate(); err != nil {
		return period, fmt.Errorf("%w: %v", pif.ErrReportingPeriodUnavailable, err)
	}
	return period, nil
}
