package stats

import (
	"strings"
	"time"

	"github.com/HadassahLevi/tiktax/internal/domain/entity"
)

// ExportFilter selects a subset of records for reporting. All supplied
// criteria apply conjunctively; zero values mean "no constraint".
type ExportFilter struct {
	DateFrom *time.Time `json:"date_from,omitempty"`
	DateTo   *time.Time `json:"date_to,omitempty"`

	CategoryIDs []string `json:"category_ids,omitempty"`

	MinAmount *float64 `json:"min_amount,omitempty"`
	MaxAmount *float64 `json:"max_amount,omitempty"`

	Vendors  []string        `json:"vendors,omitempty"`
	Statuses []entity.Status `json:"statuses,omitempty"`

	// Query is matched case-insensitively against vendor name, notes
	// and invoice number
	Query string `json:"query,omitempty"`
}

// ExportResult is the filtered dataset handed to rendering collaborators
type ExportResult struct {
	Receipts    []*entity.Receipt `json:"receipts"`
	TotalAmount float64           `json:"total_amount"`
	TotalVAT    float64           `json:"total_vat"`
	Count       int               `json:"count"`
}

// ComputeExport applies the filter and recomputes totals over exactly
// the surviving subset. An empty result is a valid result, not an error.
func ComputeExport(records []*entity.Receipt, filter ExportFilter) ExportResult {
	result := ExportResult{Receipts: []*entity.Receipt{}}

	for _, rec := range records {
		if rec == nil || !matches(rec, filter) {
			continue
		}
		result.Receipts = append(result.Receipts, rec)
		result.TotalAmount += rec.TotalAmount
		result.TotalVAT += rec.VATAmount
	}

	result.Count = len(result.Receipts)
	return result
}

func matches(rec *entity.Receipt, f ExportFilter) bool {
	if f.DateFrom != nil && (rec.Date == nil || rec.Date.Before(*f.DateFrom)) {
		return false
	}
	if f.DateTo != nil && (rec.Date == nil || rec.Date.After(*f.DateTo)) {
		return false
	}
	if len(f.CategoryIDs) > 0 && !containsString(f.CategoryIDs, rec.CategoryID) {
		return false
	}
	if f.MinAmount != nil && rec.TotalAmount < *f.MinAmount {
		return false
	}
	if f.MaxAmount != nil && rec.TotalAmount > *f.MaxAmount {
		return false
	}
	if len(f.Vendors) > 0 && !containsFold(f.Vendors, rec.VendorName) {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, rec.Status) {
		return false
	}
	if f.Query != "" && !matchesQuery(rec, f.Query) {
		return false
	}
	return true
}

func matchesQuery(rec *entity.Receipt, query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	for _, hay := range []string{rec.VendorName, rec.Notes, rec.InvoiceNumber} {
		if strings.Contains(strings.ToLower(hay), q) {
			return true
		}
	}
	return false
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func containsFold(set []string, v string) bool {
	for _, s := range set {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

func containsStatus(set []entity.Status, v entity.Status) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
