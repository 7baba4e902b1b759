// Package confidence turns the recognizer's per-field quality signals
// into a single routing decision: auto-progress or forced human review.
package confidence

import "github.com/HadassahLevi/tiktax/internal/domain/entity"

// RecognizedFields is the set of fields the recognition collaborator is
// expected to report a band for. Complete fills in a low band for any
// of them missing from the recognizer output, so a dropped field can
// never raise overall confidence.
var RecognizedFields = []entity.FieldID{
	entity.FieldVendorName,
	entity.FieldBusinessID,
	entity.FieldDate,
	entity.FieldTotalAmount,
	entity.FieldVATAmount,
	entity.FieldInvoiceNumber,
}

// Complete returns a copy of fields with every expected field present,
// defaulting absent ones to low.
func Complete(fields map[entity.FieldID]entity.ConfidenceBand) map[entity.FieldID]entity.ConfidenceBand {
	out := make(map[entity.FieldID]entity.ConfidenceBand, len(RecognizedFields))
	for f, b := range fields {
		out[f] = b
	}
	for _, f := range RecognizedFields {
		if _, ok := out[f]; !ok {
			out[f] = entity.BandLow
		}
	}
	return out
}

// OverallBand derives the record-level band as the weakest band among
// the evaluated fields. An empty or nil field set yields low: an
// extraction with no data never passes silently.
func OverallBand(fields map[entity.FieldID]entity.ConfidenceBand) entity.ConfidenceBand {
	if len(fields) == 0 {
		return entity.BandLow
	}
	overall := entity.BandHigh
	for _, band := range fields {
		if band.Rank() < overall.Rank() {
			overall = band
		}
	}
	return overall
}

// Evaluate completes the recognizer's field set and derives the overall
// band. This is the entry point the processing pipeline uses.
func Evaluate(fields map[entity.FieldID]entity.ConfidenceBand) entity.ConfidenceScoreSet {
	completed := Complete(fields)
	return entity.ConfidenceScoreSet{
		Fields:  completed,
		Overall: OverallBand(completed),
	}
}

// RequiresReview reports whether the record must be routed to human
// review. Anything short of high overall confidence is reviewed.
func RequiresReview(overall entity.ConfidenceBand) bool {
	return overall != entity.BandHigh
}
