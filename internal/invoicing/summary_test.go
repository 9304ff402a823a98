package invoicing

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestAggregateSummaryBuckets(t *testing.T) {
	rows := []SummaryRow{
		{Status: "PAID", Amount: decimal.RequireFromString("97.20")},
		{Status: "PAID", Amount: decimal.RequireFromString("300")},
		{Status: "PENDING", Amount: decimal.RequireFromString("120")},
		{Status: "FAILED", Amount: decimal.RequireFromString("50")},
		{Status: "CANCELLED", Amount: decimal.RequireFromString("80")},
		{Status: "EXPIRED", Amount: decimal.RequireFromString("20")},
	}

	summary := AggregateSummary(rows)

	if summary.TotalCount != 6 {
		t.Errorf("total count = %d, want 6", summary.TotalCount)
	}
	if !summary.TotalAmount.Equal(decimal.RequireFromString("667.20")) {
		t.Errorf("total amount = %s", summary.TotalAmount)
	}
	if summary.PaidCount != 2 || !summary.PaidAmount.Equal(decimal.RequireFromString("397.20")) {
		t.Errorf("paid bucket = %d / %s", summary.PaidCount, summary.PaidAmount)
	}
	if summary.PendingCount != 1 || !summary.PendingAmount.Equal(decimal.NewFromInt(120)) {
		t.Errorf("pending bucket = %d / %s", summary.PendingCount, summary.PendingAmount)
	}
	if summary.FailedCount != 3 || !summary.FailedAmount.Equal(decimal.NewFromInt(150)) {
		t.Errorf("failed bucket = %d / %s", summary.FailedCount, summary.FailedAmount)
	}
}

func TestAggregateSummarySkipsUnknownStatuses(t *testing.T) {
	summary := AggregateSummary([]SummaryRow{
		{Status: "REFUNDED", Amount: decimal.NewFromInt(10)},
		{Status: "", Amount: decimal.NewFromInt(10)},
		{Status: "paid", Amount: decimal.NewFromInt(40)},
	})
	if summary.TotalCount != 1 {
		t.Fatalf("total count = %d, want 1", summary.TotalCount)
	}
	if summary.PaidCount != 1 || !summary.PaidAmount.Equal(decimal.NewFromInt(40)) {
		t.Errorf("paid bucket = %d / %s", summary.PaidCount, summary.PaidAmount)
	}
}

func TestAggregateSummaryEmpty(t *testing.T) {
	summary := AggregateSummary(nil)
	if summary.TotalCount != 0 {
		t.Fatalf("total count = %d", summary.TotalCount)
	}
	if !summary.TotalAmount.Equal(decimal.Zero) {
		t.Errorf("total amount = %s, want 0", summary.TotalAmount)
	}
}
