package reporting

import (
	"context"
	"fmt"

	"github.com/pifworks/pif-pipeline/pif"
)

// View is a pivoted store snapshot.
type View struct {
	Store   pif.StoreKind
	Site    string
	Period  pif.ReportingPeriod
	Columns []Column
	Rows    []WideRow
}

// Builder produces wide views from a store.
type Builder struct {
	reader pif.ProjectReader
	period PeriodProvider
}

// NewBuilder creates a builder reading records from reader and the
// reference year from period.
func NewBuilder(reader pif.ProjectReader, period PeriodProvider) *Builder {
	return &Builder{reader: reader, period: period}
}

// WideView pivots the records of one store. An empty site covers every
// site. The period is resolved first so a missing period fails before any
// record is read.
func (b *Builder) WideView(ctx context.Context, kind pif.StoreKind, site string) (*View, error) {
	if kind == pif.StoreStaging {
		return nil, fmt.Errorf("%w: staging has no reporting view", pif.ErrUnknownStore)
	}
	if _, err := pif.ParseStoreKind(string(kind)); err != nil {
		return nil, err
	}

	period, err := b.period.ReportingPeriod(ctx)
	if err != nil {
		return nil, err
	}

	projects, costs, err := b.reader.ListRecords(ctx, kind, site)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s records: %w", kind, err)
	}

	rows, err := Pivot(projects, costs, period)
	if err != nil {
		return nil, err
	}
	return &View{
		Store:   kind,
		Site:    site,
		Period:  period,
		Columns: Columns(),
		Rows:    rows,
	}, nil
}
