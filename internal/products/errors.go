package products

import (
	"fmt"
	"sort"
	"strings"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
)

var (
	// ErrNotFound indicates the product does not exist.
	ErrNotFound = fmt.Errorf("products: product %w", httpx.ErrNotFound)
	// ErrConflict indicates the barcode is already assigned.
	ErrConflict = fmt.Errorf("products: barcode already exists: %w", httpx.ErrDuplicate)
	// ErrInUse indicates sale or purchase lines still reference the product.
	ErrInUse = fmt.Errorf("products: product is referenced by transactions: %w", httpx.ErrDuplicate)
	// ErrIDMismatch is returned when the path id differs from the body id.
	ErrIDMismatch = fmt.Errorf("products: id mismatch: %w", httpx.ErrValidation)
	// ErrInvalidID rejects non-positive ids.
	ErrInvalidID = fmt.Errorf("products: invalid id: %w", httpx.ErrValidation)
	// ErrBarcodeRequired rejects empty barcode lookups.
	ErrBarcodeRequired = fmt.Errorf("products: barcode cannot be empty: %w", httpx.ErrValidation)
	// ErrNothingSelected is returned when a label request names no products.
	ErrNothingSelected = fmt.Errorf("products: no products selected for printing: %w", httpx.ErrValidation)
	// ErrNothingResolved is returned when none of the requested ids exist.
	ErrNothingResolved = fmt.Errorf("products: no valid products found for printing: %w", httpx.ErrNotFound)
	// ErrTooManyLabels rejects label jobs above MaxLabelsPerJob.
	ErrTooManyLabels = fmt.Errorf("products: too many labels requested: %w", httpx.ErrValidation)
)

// FieldErrors maps input fields to messages.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e[k])
	}
	return "products: " + strings.Join(parts, "; ")
}

// Unwrap lets FieldErrors match httpx.ErrValidation.
func (e FieldErrors) Unwrap() error {
	return httpx.ErrValidation
}
