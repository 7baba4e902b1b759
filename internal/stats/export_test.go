package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HadassahLevi/tiktax/internal/domain/entity"
)

func ptrTime(t time.Time) *time.Time { return &t }
func ptrFloat(v float64) *float64    { return &v }

func exportRecord(id, category, vendor string, amount float64, date time.Time) *entity.Receipt {
	return &entity.Receipt{
		ID:            id,
		OwnerID:       "owner-1",
		CategoryID:    category,
		VendorName:    vendor,
		TotalAmount:   amount,
		VATAmount:     amount - amount/1.18,
		Date:          &date,
		Status:        entity.StatusApproved,
		InvoiceNumber: "INV-" + id,
	}
}

func TestComputeExport_ConjunctiveFilter(t *testing.T) {
	dec := func(day int) time.Time {
		return time.Date(2024, time.December, day, 0, 0, 0, 0, time.UTC)
	}
	records := []*entity.Receipt{
		exportRecord("match", "office", "Office Depot", 500, dec(10)),
		exportRecord("wrong-category", "travel", "Egged", 500, dec(10)),
		exportRecord("too-cheap", "office", "Office Depot", 50, dec(10)),
		exportRecord("out-of-range", "office", "Office Depot", 500, dec(25)),
	}

	filter := ExportFilter{
		DateFrom:    ptrTime(dec(1)),
		DateTo:      ptrTime(dec(15)),
		CategoryIDs: []string{"office"},
		MinAmount:   ptrFloat(100),
	}

	result := ComputeExport(records, filter)
	require.Len(t, result.Receipts, 1)
	assert.Equal(t, "match", result.Receipts[0].ID)
	assert.InDelta(t, 500.0, result.TotalAmount, 0.001)
	assert.InDelta(t, 500-500/1.18, result.TotalVAT, 0.001)
	assert.Equal(t, 1, result.Count)
}

func TestComputeExport_FreeTextQuery(t *testing.T) {
	now := time.Date(2024, time.December, 1, 0, 0, 0, 0, time.UTC)
	withNotes := exportRecord("noted", "office", "SuperPharm", 80, now)
	withNotes.Notes = "printer toner refill"
	records := []*entity.Receipt{
		withNotes,
		exportRecord("vendor-hit", "office", "Toner World", 60, now),
		exportRecord("miss", "office", "Cafe Shapira", 40, now),
	}

	result := ComputeExport(records, ExportFilter{Query: "TONER"})
	require.Len(t, result.Receipts, 2)

	// invoice numbers are searchable too
	result = ComputeExport(records, ExportFilter{Query: "inv-miss"})
	require.Len(t, result.Receipts, 1)
	assert.Equal(t, "miss", result.Receipts[0].ID)
}

func TestComputeExport_VendorAndStatusSets(t *testing.T) {
	now := time.Date(2024, time.December, 1, 0, 0, 0, 0, time.UTC)
	reviewRec := exportRecord("in-review", "office", "Office Depot", 70, now)
	reviewRec.Status = entity.StatusReview
	records := []*entity.Receipt{
		exportRecord("approved", "office", "Office Depot", 100, now),
		reviewRec,
	}

	result := ComputeExport(records, ExportFilter{
		Vendors:  []string{"office depot"},
		Statuses: []entity.Status{entity.StatusApproved},
	})
	require.Len(t, result.Receipts, 1)
	assert.Equal(t, "approved", result.Receipts[0].ID)
}

func TestComputeExport_EmptyResultIsNotAnError(t *testing.T) {
	result := ComputeExport(nil, ExportFilter{Query: "nothing"})
	assert.NotNil(t, result.Receipts)
	assert.Empty(t, result.Receipts)
	assert.Zero(t, result.TotalAmount)
	assert.Zero(t, result.TotalVAT)
	assert.Zero(t, result.Count)
}

func TestComputeExport_NoFilterPassesEverything(t *testing.T) {
	now := time.Date(2024, time.December, 1, 0, 0, 0, 0, time.UTC)
	records := []*entity.Receipt{
		exportRecord("a", "office", "A", 10, now),
		exportRecord("b", "travel", "B", 20, now),
	}

	result := ComputeExport(records, ExportFilter{})
	assert.Len(t, result.Receipts, 2)
	assert.InDelta(t, 30.0, result.TotalAmount, 0.001)
}

func TestComputeExport_UndatedRecordFailsDateConstraints(t *testing.T) {
	undated := &entity.Receipt{ID: "undated", CategoryID: "office", TotalAmount: 10}
	from := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

	result := ComputeExport([]*entity.Receipt{undated}, ExportFilter{DateFrom: ptrTime(from)})
	assert.Empty(t, result.Receipts)
}
