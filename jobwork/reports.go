/*
reports.go - Vendor SLA and consignment aging

SLA:
  A receipt counts on-time when its date is on or before the expected
  return date of the challan it references; equality counts as on-time.
  Reversed receipts are not deliveries. onTimePct is 0 when there are no
  matched receipts - never a divide by zero.

AGING:
  Dispatched quantity bucketed by elapsed days since the challan date:
  0-7, 8-15, 16-30, 30+.
*/
package jobwork

import (
	"context"
	"math"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SLA
// =============================================================================

type SLAReport struct {
	Vendor    string
	Total     int
	OnTime    int
	OnTimePct int
}

// ComputeSLA pairs each non-reversed inward of the vendor with the outward
// its challanNo references and reports the on-time fraction.
func (l *Ledger) ComputeSLA(ctx context.Context, vendor string) (SLAReport, error) {
	report := SLAReport{Vendor: vendor}

	inwards, err := l.store.ListInwards(ctx)
	if err != nil {
		return report, err
	}
	for _, in := range inwards {
		if in.Vendor != vendor || in.Status == InwardReversed || in.ChallanNo == "" {
			continue
		}
		out, err := l.store.GetOutwardByChallan(ctx, in.ChallanNo)
		if err != nil {
			// Dangling challan reference: skip rather than fail the report.
			continue
		}
		report.Total++
		if !in.Date.After(out.ExpectedReturn) {
			report.OnTime++
		}
	}

	if report.Total > 0 {
		report.OnTimePct = int(math.Round(float64(report.OnTime) / float64(report.Total) * 100))
	}
	return report, nil
}

// =============================================================================
// AGING
// =============================================================================

type AgingReport struct {
	Days0to7   decimal.Decimal
	Days8to15  decimal.Decimal
	Days16to30 decimal.Decimal
	DaysOver30 decimal.Decimal
}

// ComputeAging buckets total dispatched quantity by the age of each challan.
func (l *Ledger) ComputeAging(ctx context.Context) (AgingReport, error) {
	report := AgingReport{
		Days0to7:   decimal.Zero,
		Days8to15:  decimal.Zero,
		Days16to30: decimal.Zero,
		DaysOver30: decimal.Zero,
	}

	outwards, err := l.store.ListOutwards(ctx)
	if err != nil {
		return report, err
	}

	now := l.now().UTC()
	for _, out := range outwards {
		qty := decimal.Zero
		for _, it := range out.Items {
			qty = qty.Add(it.QtySent)
		}

		days := int(now.Sub(out.Date).Hours() / 24)
		switch {
		case days <= 7:
			report.Days0to7 = report.Days0to7.Add(qty)
		case days <= 15:
			report.Days8to15 = report.Days8to15.Add(qty)
		case days <= 30:
			report.Days16to30 = report.Days16to30.Add(qty)
		default:
			report.DaysOver30 = report.DaysOver30.Add(qty)
		}
	}
	return report, nil
}
