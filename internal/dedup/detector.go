// Package dedup scores a newly submitted receipt against the owner's
// existing records and decides whether it duplicates one of them.
package dedup

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/HadassahLevi/tiktax/internal/domain/entity"
)

// Weights combine the four binary similarity signals into one score.
// They are tunable configuration, not business logic, and must sum to 1.
type Weights struct {
	BusinessID    float64 `mapstructure:"business_id"`
	Date          float64 `mapstructure:"date"`
	Amount        float64 `mapstructure:"amount"`
	InvoiceNumber float64 `mapstructure:"invoice_number"`
}

// DefaultWeights weight the invoice number highest, since invoice
// numbers are intended to be unique per vendor.
func DefaultWeights() Weights {
	return Weights{
		BusinessID:    0.25,
		Date:          0.20,
		Amount:        0.25,
		InvoiceNumber: 0.30,
	}
}

// Validate checks the weights are non-negative and sum to 1
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"business_id":    w.BusinessID,
		"date":           w.Date,
		"amount":         w.Amount,
		"invoice_number": w.InvoiceNumber,
	} {
		if v < 0 {
			return fmt.Errorf("dedup weight %s must be non-negative, got %v", name, v)
		}
	}
	sum := w.BusinessID + w.Date + w.Amount + w.InvoiceNumber
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("dedup weights must sum to 1.0, got %v", sum)
	}
	return nil
}

// DefaultThreshold is the minimum composite score that marks a record
// as a duplicate candidate.
const DefaultThreshold = 0.8

// amountTolerance matches the validator's rounding unit: totals that
// agree to the agora are treated as the same amount.
const amountTolerance = 0.01

// Candidate is one existing record that scored at or above threshold
type Candidate struct {
	Receipt *entity.Receipt `json:"receipt"`
	Score   float64         `json:"score"`
}

// Result is the outcome of a duplicate check
type Result struct {
	IsDuplicate     bool        `json:"is_duplicate"`
	Candidates      []Candidate `json:"candidates"`
	SimilarityScore float64     `json:"similarity_score"`
}

// Detector computes similarity scores with configured weights
type Detector struct {
	weights   Weights
	threshold float64
}

// NewDetector creates a detector with the given tuning. Invalid weights
// or an out-of-range threshold are configuration mistakes and refuse to
// construct.
func NewDetector(weights Weights, threshold float64) (*Detector, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	if threshold <= 0 || threshold > 1 {
		return nil, fmt.Errorf("dedup threshold must be in (0, 1], got %v", threshold)
	}
	return &Detector{weights: weights, threshold: threshold}, nil
}

// MustDefault returns a detector with the default configuration
func MustDefault() *Detector {
	d, err := NewDetector(DefaultWeights(), DefaultThreshold)
	if err != nil {
		panic(err)
	}
	return d
}

// Score computes the composite similarity of two receipts in [0, 1].
// Each signal is binary: business id equality, same-day transaction
// date, total amount agreement within the validator's rounding unit,
// and invoice number equality. The invoice signal only counts when the
// number is present on both sides.
func (d *Detector) Score(a, b *entity.Receipt) float64 {
	var score float64

	if a.BusinessID != "" && a.BusinessID == b.BusinessID {
		score += d.weights.BusinessID
	}
	if a.Date != nil && b.Date != nil && sameDay(*a.Date, *b.Date) {
		score += d.weights.Date
	}
	if math.Abs(a.TotalAmount-b.TotalAmount) <= amountTolerance {
		score += d.weights.Amount
	}
	if a.InvoiceNumber != "" && b.InvoiceNumber != "" && a.InvoiceNumber == b.InvoiceNumber {
		score += d.weights.InvoiceNumber
	}

	return score
}

// FindDuplicates scores candidate against the owner's existing records
// and returns every record at or above threshold, ordered by descending
// score. Records belonging to a different owner are never compared;
// cross-owner comparison is a privacy violation, not a scoring detail.
func (d *Detector) FindDuplicates(candidate *entity.Receipt, existing []*entity.Receipt) Result {
	var candidates []Candidate
	for _, rec := range existing {
		if rec == nil || rec.ID == candidate.ID || rec.OwnerID != candidate.OwnerID {
			continue
		}
		if score := d.Score(candidate, rec); score >= d.threshold {
			candidates = append(candidates, Candidate{Receipt: rec, Score: score})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	result := Result{
		IsDuplicate: len(candidates) > 0,
		Candidates:  candidates,
	}
	if len(candidates) > 0 {
		result.SimilarityScore = candidates[0].Score
	}
	return result
}

// sameDay compares at day granularity, which is all a printed receipt
// carries.
func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
