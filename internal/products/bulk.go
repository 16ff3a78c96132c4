package products

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
)

// Bulk operations process items one at a time, in request order. Later items
// must see the products created by earlier ones.

var (
	// ErrEmptyBarcodeList rejects bulk calls without barcodes.
	ErrEmptyBarcodeList = fmt.Errorf("products: barcode list empty: %w", httpx.ErrValidation)
	// ErrNoImportItems rejects imports without products.
	ErrNoImportItems = fmt.Errorf("products: no products provided for import: %w", httpx.ErrValidation)
)

const (
	msgBarcodeValid    = "Barcode is valid"
	msgBarcodeUnknown  = "Barcode not found in system"
	msgBulkUnknown     = "Barcode not found"
	msgBulkEmpty       = "Barcode cannot be empty"
	msgBulkUnchecked   = "Barcode could not be checked"
	reasonDuplicate    = "barcode already exists"
	reasonNotSaved     = "could not be saved"
	reasonNotChecked   = "could not check barcode"
	reasonMissingField = "missing required fields"
)

// LabelPDFPath is where a rendered label sheet can be fetched.
func LabelPDFPath(jobID string) string {
	return "/api/products/print-labels/" + jobID
}

func newJobID() string {
	return uuid.NewString()
}

// ValidateBarcode looks a single barcode up. An unknown barcode is a normal
// result, not an error.
func (s *Service) ValidateBarcode(ctx context.Context, barcode string) (ValidationResult, error) {
	barcode = normalizeBarcode(barcode)
	if barcode == "" {
		return ValidationResult{}, ErrBarcodeRequired
	}
	exists, err := s.repo.BarcodeExists(ctx, barcode)
	if err != nil {
		return ValidationResult{}, err
	}
	if !exists {
		return ValidationResult{Barcode: barcode, Message: msgBarcodeUnknown}, nil
	}
	p, err := s.repo.GetByBarcode(ctx, barcode)
	if errors.Is(err, ErrNotFound) {
		// deleted between the probe and the fetch
		return ValidationResult{Barcode: barcode, Message: msgBarcodeUnknown}, nil
	}
	if err != nil {
		return ValidationResult{}, err
	}
	res := snapshot(p)
	res.Message = msgBarcodeValid
	return res, nil
}

// ValidateBulk classifies every barcode as valid or invalid.
func (s *Service) ValidateBulk(ctx context.Context, barcodes []string) (BulkValidationResult, error) {
	if len(barcodes) == 0 {
		return BulkValidationResult{}, ErrEmptyBarcodeList
	}
	out := BulkValidationResult{
		ValidBarcodes:   make([]ValidationResult, 0, len(barcodes)),
		InvalidBarcodes: make([]ValidationResult, 0),
	}
	for _, raw := range barcodes {
		res := s.classify(ctx, normalizeBarcode(raw))
		if res.IsValid {
			out.ValidBarcodes = append(out.ValidBarcodes, res)
		} else {
			out.InvalidBarcodes = append(out.InvalidBarcodes, res)
		}
	}
	out.ValidCount = len(out.ValidBarcodes)
	out.InvalidCount = len(out.InvalidBarcodes)
	out.IsSuccess = out.ValidCount > 0
	out.Message = fmt.Sprintf("Validation complete: %d valid, %d invalid", out.ValidCount, out.InvalidCount)
	return out, nil
}

func (s *Service) classify(ctx context.Context, barcode string) ValidationResult {
	if barcode == "" {
		return ValidationResult{Message: msgBulkEmpty}
	}
	exists, err := s.repo.BarcodeExists(ctx, barcode)
	if err != nil {
		s.logger.Warn("bulk validate probe", slog.String("barcode", barcode), slog.Any("error", err))
		return ValidationResult{Barcode: barcode, Message: msgBulkUnchecked}
	}
	if !exists {
		return ValidationResult{Barcode: barcode, Message: msgBulkUnknown}
	}
	p, err := s.repo.GetByBarcode(ctx, barcode)
	switch {
	case errors.Is(err, ErrNotFound):
		return ValidationResult{Barcode: barcode, Message: msgBulkUnknown}
	case err != nil:
		s.logger.Warn("bulk validate fetch", slog.String("barcode", barcode), slog.Any("error", err))
		return ValidationResult{Barcode: barcode, Message: msgBulkUnchecked}
	}
	return snapshot(p)
}

func snapshot(p Product) ValidationResult {
	id := p.ID
	return ValidationResult{
		IsValid:       true,
		Barcode:       p.Barcode,
		ProductID:     &id,
		ProductName:   p.Name,
		StockQuantity: p.StockQuantity,
		SalePrice:     p.SalePrice,
	}
}

// SearchByBarcodes returns the products found, in input order. Misses are
// dropped.
func (s *Service) SearchByBarcodes(ctx context.Context, barcodes []string) ([]Product, error) {
	if len(barcodes) == 0 {
		return nil, ErrEmptyBarcodeList
	}
	found := make([]Product, 0, len(barcodes))
	for _, raw := range barcodes {
		barcode := normalizeBarcode(raw)
		if barcode == "" {
			continue
		}
		p, err := s.repo.GetByBarcode(ctx, barcode)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		found = append(found, p)
	}
	return found, nil
}

// Import creates products one by one. Item failures are reported in the
// result and never abort the batch.
func (s *Service) Import(ctx context.Context, req ImportRequest) (ImportResult, error) {
	if len(req.Products) == 0 {
		return ImportResult{Message: "No products provided for import"}, ErrNoImportItems
	}
	out := ImportResult{
		Items:            make([]ItemOutcome, 0, len(req.Products)),
		Errors:           make([]string, 0),
		ImportedProducts: make([]Product, 0),
	}
	for i, item := range req.Products {
		outcome := s.importOne(ctx, i, item, req.SkipDuplicates)
		switch outcome.Outcome {
		case OutcomeImported:
			out.ImportedCount++
		case OutcomeSkipped:
			out.SkippedCount++
		case OutcomeFailed:
			out.FailedCount++
			if outcome.Reason == reasonMissingField {
				out.Errors = append(out.Errors, "Product missing required fields: "+outcome.Barcode)
			} else {
				out.Errors = append(out.Errors, fmt.Sprintf("Error importing product %s: %s", outcome.Barcode, outcome.Reason))
			}
		}
		if outcome.product != nil {
			out.ImportedProducts = append(out.ImportedProducts, *outcome.product)
		}
		if s.observer != nil {
			s.observer.ObserveImport(string(outcome.Outcome))
		}
		out.Items = append(out.Items, outcome.ItemOutcome)
	}
	out.IsSuccess = out.ImportedCount > 0
	out.Message = fmt.Sprintf("Import completed: %d imported, %d skipped, %d failed", out.ImportedCount, out.SkippedCount, out.FailedCount)
	return out, nil
}

type importOutcome struct {
	ItemOutcome
	product *Product
}

func (s *Service) importOne(ctx context.Context, index int, item ImportItem, skipDuplicates bool) importOutcome {
	barcode := normalizeBarcode(item.Barcode)
	res := importOutcome{ItemOutcome: ItemOutcome{Index: index, Barcode: barcode}}
	fail := func(reason string) importOutcome {
		res.Outcome = OutcomeFailed
		res.Reason = reason
		return res
	}

	if skipDuplicates && barcode != "" {
		exists, err := s.repo.BarcodeExists(ctx, barcode)
		if err != nil {
			s.logger.Warn("import probe", slog.String("barcode", barcode), slog.Any("error", err))
			return fail(reasonNotChecked)
		}
		if exists {
			res.Outcome = OutcomeSkipped
			res.Reason = reasonDuplicate
			return res
		}
	}
	if strings.TrimSpace(item.Name) == "" || barcode == "" {
		return fail(reasonMissingField)
	}

	active := true
	created, err := s.Create(ctx, ProductInput{
		Name:          item.Name,
		Barcode:       barcode,
		CategoryID:    item.CategoryID,
		TypeID:        item.TypeID,
		SupplierID:    item.SupplierID,
		CostPrice:     item.CostPrice,
		SalePrice:     item.SalePrice,
		StockQuantity: item.StockQuantity,
		ReorderLevel:  item.ReorderLevel,
		IsActive:      &active,
	})
	var fieldErrs FieldErrors
	switch {
	case err == nil:
		id := created.ID
		res.Outcome = OutcomeImported
		res.ProductID = &id
		res.product = &created
		return res
	case errors.Is(err, ErrConflict):
		return fail(reasonDuplicate)
	case errors.As(err, &fieldErrs):
		return fail(strings.TrimPrefix(fieldErrs.Error(), "products: "))
	default:
		s.logger.Error("import product", slog.String("barcode", barcode), slog.Any("error", err))
		return fail(reasonNotSaved)
	}
}

// MaxLabelsPerJob bounds resolved products times quantity for one sheet.
const MaxLabelsPerJob = 1000

// LabelCount returns products*quantity, or false when it exceeds
// MaxLabelsPerJob. Quantity below one counts as one.
func LabelCount(products, quantity int) (int, bool) {
	if quantity < 1 {
		quantity = 1
	}
	if products < 0 || quantity > MaxLabelsPerJob || products > MaxLabelsPerJob/quantity {
		return 0, false
	}
	return products * quantity, true
}

func tooManyLabels() PrintResult {
	return PrintResult{Message: fmt.Sprintf("At most %d labels can be printed per job", MaxLabelsPerJob)}
}

// PrintLabels resolves the requested products and creates a label job.
// A quantity below one prints a single label per product.
func (s *Service) PrintLabels(ctx context.Context, req PrintRequest) (PrintResult, error) {
	if len(req.ProductIDs) == 0 {
		return PrintResult{Message: "No products selected for printing"}, ErrNothingSelected
	}
	if _, ok := LabelCount(1, req.Quantity); !ok {
		return tooManyLabels(), ErrTooManyLabels
	}
	resolved := make([]Product, 0, len(req.ProductIDs))
	for _, id := range req.ProductIDs {
		if id <= 0 {
			continue
		}
		p, err := s.repo.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return PrintResult{}, err
		}
		resolved = append(resolved, p)
	}
	if len(resolved) == 0 {
		return PrintResult{Message: "No valid products found for printing"}, ErrNothingResolved
	}

	count, ok := LabelCount(len(resolved), req.Quantity)
	if !ok {
		return tooManyLabels(), ErrTooManyLabels
	}
	quantity := max(req.Quantity, 1)
	job := LabelJob{ID: s.newJobID(), Products: resolved, Quantity: quantity}
	if s.labels != nil {
		if err := s.labels.EnqueueLabels(ctx, job); err != nil {
			return PrintResult{}, fmt.Errorf("products: enqueue labels: %w", err)
		}
	}
	return PrintResult{
		IsSuccess:    true,
		Message:      fmt.Sprintf("Print job created: %d labels ready to print", count),
		PrintJobID:   job.ID,
		BarcodeCount: count,
		PdfURL:       LabelPDFPath(job.ID),
	}, nil
}
