package sheets

import (
	"context"

	"ecocalc/internal/core"
)

// Ports for outbound adapters.
type (
	// CalculationExporter appends one stored calculation to an external
	// ledger. Delivery is at least once; callers track what was exported.
	CalculationExporter interface {
		ExportCalculation(ctx context.Context, rec core.CalculationRecord) (rowRef string, err error)
	}

	// HeaderWriter is implemented by exporters that keep a header row.
	HeaderWriter interface {
		EnsureHeader(ctx context.Context) error
	}
)

// Header lists the exported columns in order: identity, scope subtotals and
// one column per breakdown category.
func Header() []string {
	factors := core.Factors()
	out := make([]string, 0, 6+len(factors))
	out = append(out, "id", "date", "scope1", "scope2", "scope3", "total")
	for _, f := range factors {
		out = append(out, string(f.Category))
	}
	return out
}

// Row renders a record in Header order. Dates are RFC 3339 in UTC.
func Row(rec core.CalculationRecord) []any {
	factors := core.Factors()
	out := make([]any, 0, 6+len(factors))
	out = append(out,
		rec.ID,
		rec.Date.UTC().Format("2006-01-02T15:04:05.000000Z07:00"),
		rec.Scope1,
		rec.Scope2,
		rec.Scope3,
		rec.Total,
	)
	for _, f := range factors {
		out = append(out, rec.Breakdown[f.Category])
	}
	return out
}
