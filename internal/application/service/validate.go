package service

import (
	"github.com/HadassahLevi/tiktax/internal/domain/entity"
	"github.com/HadassahLevi/tiktax/internal/tax"
)

// ValidationConfig carries the tax parameters the validation pass needs
type ValidationConfig struct {
	VATRate   float64
	Tolerance float64
}

// DefaultValidationConfig applies the standard Israeli VAT rate and the
// one-shekel rounding tolerance.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{VATRate: tax.DefaultVATRate, Tolerance: tax.DefaultTolerance}
}

// validateReceipt folds the tax validator's booleans into a field-error
// list. It never mutates the receipt and never returns a hard error;
// validation failure is an expected branch of normal operation.
func validateReceipt(rec *entity.Receipt, registry *entity.CategoryRegistry, cfg ValidationConfig) entity.FieldErrors {
	var errs entity.FieldErrors

	if _, ok := tax.NormalizeBusinessID(rec.BusinessID); !ok {
		errs = append(errs, entity.FieldError{
			Field:  entity.FieldBusinessID,
			Reason: "business id must contain exactly 9 digits",
		})
	}

	if rec.Date == nil {
		errs = append(errs, entity.FieldError{
			Field:  entity.FieldDate,
			Reason: "transaction date is missing or unparseable",
		})
	}

	if !tax.ValidPositiveAmount(rec.TotalAmount) {
		errs = append(errs, entity.FieldError{
			Field:  entity.FieldTotalAmount,
			Reason: "total amount must be a positive number",
		})
	}

	if !tax.ValidPositiveAmount(rec.VATAmount) {
		errs = append(errs, entity.FieldError{
			Field:  entity.FieldVATAmount,
			Reason: "VAT amount must be a positive number",
		})
	} else if !errs.Has(entity.FieldTotalAmount) &&
		!tax.VATConsistent(rec.TotalAmount, rec.VATAmount, cfg.VATRate, cfg.Tolerance) {
		errs = append(errs, entity.FieldError{
			Field:  entity.FieldVATAmount,
			Reason: "VAT amount does not match the amount derived from the total",
		})
	}

	if rec.CategoryID != "" && registry != nil {
		if _, ok := registry.Get(rec.CategoryID); !ok {
			errs = append(errs, entity.FieldError{
				Field:  entity.FieldCategory,
				Reason: "unknown category",
			})
		}
	}

	return errs
}
