package invoicing

import (
	"topdivers/backend/internal/models"

	"github.com/shopspring/decimal"
)

// SummaryRow is one invoice's contribution to an aggregate summary.
type SummaryRow struct {
	Status string
	Amount decimal.Decimal
}

// AggregateSummary folds invoice rows into per-status buckets. FAILED,
// CANCELLED and EXPIRED all land in the failed bucket. Rows with an
// unrecognized status are skipped.
func AggregateSummary(rows []SummaryRow) models.InvoiceSummary {
	out := models.InvoiceSummary{
		TotalAmount:   decimal.Zero,
		PaidAmount:    decimal.Zero,
		PendingAmount: decimal.Zero,
		FailedAmount:  decimal.Zero,
	}
	for _, row := range rows {
		status, ok := ParseStatus(row.Status)
		if !ok {
			continue
		}
		out.TotalCount++
		out.TotalAmount = out.TotalAmount.Add(row.Amount)
		switch status {
		case StatusPaid:
			out.PaidCount++
			out.PaidAmount = out.PaidAmount.Add(row.Amount)
		case StatusPending:
			out.PendingCount++
			out.PendingAmount = out.PendingAmount.Add(row.Amount)
		default:
			out.FailedCount++
			out.FailedAmount = out.FailedAmount.Add(row.Amount)
		}
	}
	return out
}
