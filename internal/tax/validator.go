// Package tax validates the financial fields of a receipt: business
// identifiers, dates, amounts and VAT consistency. Everything here is a
// pure function; failures are reported as booleans that callers fold
// into a field-error list, never as errors.
package tax

import (
	"math"
	"strings"
	"time"
	"unicode"
)

const (
	// DefaultVATRate is the Israeli VAT rate applied to receipts
	DefaultVATRate = 0.18

	// DefaultTolerance absorbs printed-receipt rounding: a claimed VAT
	// within one shekel of the derived VAT is accepted
	DefaultTolerance = 1.0

	// BusinessIDLength is the length of a normalized Israeli company
	// registration number (ח.פ / עוסק מורשה)
	BusinessIDLength = 9
)

// NormalizeBusinessID strips every non-digit character from raw and
// reports whether exactly nine digits remain. The normalized string is
// returned even when invalid so callers can show what was recognized.
func NormalizeBusinessID(raw string) (string, bool) {
	var sb strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) {
			sb.WriteRune(r)
		}
	}
	normalized := sb.String()
	return normalized, len(normalized) == BusinessIDLength
}

// dateLayouts are the only accepted forms: the Israeli day/month/year
// form and the ISO calendar date. time.Parse range-checks components,
// so a month/day-swapped value like 25/13/2024 is rejected.
var dateLayouts = []string{
	"02/01/2006",
	"2006-01-02",
}

// ValidDateFormat reports whether raw is an acceptable transaction date
func ValidDateFormat(raw string) bool {
	_, err := ParseDate(raw)
	return err == nil
}

// ParseDate parses raw against the accepted layouts
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// ValidPositiveAmount reports whether n is a usable monetary amount:
// finite and strictly greater than zero.
func ValidPositiveAmount(n float64) bool {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return false
	}
	return n > 0
}

// DerivePreVAT computes the pre-VAT portion of a VAT-inclusive total,
// rounded to two decimal places.
func DerivePreVAT(total, vatRate float64) float64 {
	return round2(total / (1 + vatRate))
}

// DeriveVAT computes the VAT portion embedded in a VAT-inclusive total,
// rounded to two decimal places.
func DeriveVAT(total, vatRate float64) float64 {
	return round2(total - DerivePreVAT(total, vatRate))
}

// VATConsistent reports whether the claimed VAT matches the VAT derived
// from the total, within tolerance.
func VATConsistent(total, claimedVAT, vatRate, tolerance float64) bool {
	if !ValidPositiveAmount(total) || math.IsNaN(claimedVAT) || math.IsInf(claimedVAT, 0) {
		return false
	}
	return math.Abs(claimedVAT-DeriveVAT(total, vatRate)) <= tolerance
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
