package entity

import "time"

// Status represents the lifecycle status of a receipt
type Status string

const (
	StatusProcessing Status = "processing"
	StatusReview     Status = "review"
	StatusApproved   Status = "approved"
	StatusFailed     Status = "failed"
	StatusDuplicate  Status = "duplicate"
)

// String returns the string representation of the status
func (s Status) String() string {
	return string(s)
}

// ConfidenceBand is a qualitative rating of a recognized field value
type ConfidenceBand string

const (
	BandLow    ConfidenceBand = "low"
	BandMedium ConfidenceBand = "medium"
	BandHigh   ConfidenceBand = "high"
)

// Rank orders bands so that low < medium < high. Unknown bands rank
// below low so a corrupt value can never raise overall confidence.
func (b ConfidenceBand) Rank() int {
	switch b {
	case BandLow:
		return 1
	case BandMedium:
		return 2
	case BandHigh:
		return 3
	default:
		return 0
	}
}

// FieldID identifies an extracted receipt field. Edit history and
// validation errors reference fields through this closed set only.
type FieldID string

const (
	FieldVendorName    FieldID = "vendor_name"
	FieldBusinessID    FieldID = "business_id"
	FieldDate          FieldID = "date"
	FieldTotalAmount   FieldID = "total_amount"
	FieldVATAmount     FieldID = "vat_amount"
	FieldPreVATAmount  FieldID = "pre_vat_amount"
	FieldInvoiceNumber FieldID = "invoice_number"
	FieldCategory      FieldID = "category"
	FieldNotes         FieldID = "notes"
)

var knownFields = map[FieldID]bool{
	FieldVendorName:    true,
	FieldBusinessID:    true,
	FieldDate:          true,
	FieldTotalAmount:   true,
	FieldVATAmount:     true,
	FieldPreVATAmount:  true,
	FieldInvoiceNumber: true,
	FieldCategory:      true,
	FieldNotes:         true,
}

// IsValid returns true if the field identifier belongs to the known set
func (f FieldID) IsValid() bool {
	return knownFields[f]
}

// ConfidenceScoreSet holds one band per recognized field plus the
// derived overall band.
type ConfidenceScoreSet struct {
	Fields  map[FieldID]ConfidenceBand `json:"fields"`
	Overall ConfidenceBand             `json:"overall"`
}

// FieldEdit records a single manual correction applied during review
type FieldEdit struct {
	ID        int64     `json:"id"`
	ReceiptID string    `json:"receipt_id"`
	Field     FieldID   `json:"field"`
	OldValue  string    `json:"old_value"`
	NewValue  string    `json:"new_value"`
	EditedBy  string    `json:"edited_by"`
	EditedAt  time.Time `json:"edited_at"`
}

// Receipt represents a photographed receipt (קבלה) and everything the
// platform knows about it: the values extracted by the recognition
// service, their confidence bands, classification, lifecycle status and
// audit trail.
type Receipt struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`

	VendorName    string     `json:"vendor_name"`
	BusinessID    string     `json:"business_id"` // normalized, 9 digits
	Date          *time.Time `json:"date"`
	TotalAmount   float64    `json:"total_amount"`
	VATAmount     float64    `json:"vat_amount"`
	PreVATAmount  float64    `json:"pre_vat_amount"`
	InvoiceNumber string     `json:"invoice_number"`
	Notes         string     `json:"notes"`

	CategoryID string `json:"category_id"`
	Status     Status `json:"status"`

	IsDuplicate   bool   `json:"is_duplicate"`
	DuplicateOfID string `json:"duplicate_of_id,omitempty"`

	Confidence   ConfidenceScoreSet `json:"confidence"`
	VATValidated bool               `json:"vat_validated"`

	// ImageRef is an opaque handle owned by the storage collaborator
	ImageRef string `json:"image_ref"`

	Edits []FieldEdit `json:"edits,omitempty"`

	// Version increments on every mutation; writers carrying a stale
	// version are rejected with ErrConcurrentModification.
	Version    int64      `json:"version"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
}

// FieldValue returns the string form of a field's current value, as
// recorded in edit history entries.
func (r *Receipt) FieldValue(f FieldID) string {
	switch f {
	case FieldVendorName:
		return r.VendorName
	case FieldBusinessID:
		return r.BusinessID
	case FieldDate:
		if r.Date == nil {
			return ""
		}
		return r.Date.Format("2006-01-02")
	case FieldTotalAmount:
		return formatAmount(r.TotalAmount)
	case FieldVATAmount:
		return formatAmount(r.VATAmount)
	case FieldPreVATAmount:
		return formatAmount(r.PreVATAmount)
	case FieldInvoiceNumber:
		return r.InvoiceNumber
	case FieldCategory:
		return r.CategoryID
	case FieldNotes:
		return r.Notes
	}
	return ""
}
