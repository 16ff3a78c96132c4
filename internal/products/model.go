package products

import "time"

// Product is a sellable catalog item identified by its barcode.
type Product struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Barcode       string    `json:"barcode"`
	CategoryID    *int64    `json:"category_id"`
	TypeID        *int64    `json:"type_id"`
	SupplierID    *int64    `json:"supplier_id"`
	CostPrice     float64   `json:"cost_price"`
	SalePrice     float64   `json:"sale_price"`
	StockQuantity int       `json:"stock_quantity"`
	ReorderLevel  int       `json:"reorder_level"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NeedsReorder reports whether stock fell to the reorder level.
func (p Product) NeedsReorder() bool {
	return p.ReorderLevel > 0 && p.StockQuantity <= p.ReorderLevel
}

// ProductInput carries create and update payloads. A nil IsActive means
// active on create and unchanged on update.
type ProductInput struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name" validate:"required,max=200"`
	Barcode       string  `json:"barcode" validate:"required,max=64"`
	CategoryID    *int64  `json:"category_id" validate:"omitempty,gt=0"`
	TypeID        *int64  `json:"type_id" validate:"omitempty,gt=0"`
	SupplierID    *int64  `json:"supplier_id" validate:"omitempty,gt=0"`
	CostPrice     float64 `json:"cost_price" validate:"gte=0"`
	SalePrice     float64 `json:"sale_price" validate:"gte=0"`
	StockQuantity int     `json:"stock_quantity" validate:"gte=0"`
	ReorderLevel  int     `json:"reorder_level" validate:"gte=0"`
	IsActive      *bool   `json:"is_active"`
}

// ListFilters drives the paginated catalog page.
type ListFilters struct {
	Page       int
	Limit      int
	Search     string
	SortBy     string
	SortDir    string
	IsActive   *bool
	CategoryID *int64
}

// Choice is a lookup entry for category, type and supplier selects.
type Choice struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Options groups the reference lists shown on the product form.
type Options struct {
	Categories []Choice
	Types      []Choice
	Suppliers  []Choice
}

// ValidationResult describes a single barcode lookup.
type ValidationResult struct {
	IsValid       bool    `json:"is_valid"`
	Barcode       string  `json:"barcode"`
	Message       string  `json:"message,omitempty"`
	ProductID     *int64  `json:"product_id,omitempty"`
	ProductName   string  `json:"product_name,omitempty"`
	StockQuantity int     `json:"stock_quantity"`
	SalePrice     float64 `json:"sale_price"`
}

// BulkValidationResult tallies a bulk barcode validation.
type BulkValidationResult struct {
	IsSuccess       bool               `json:"is_success"`
	Message         string             `json:"message"`
	ValidCount      int                `json:"valid_count"`
	InvalidCount    int                `json:"invalid_count"`
	ValidBarcodes   []ValidationResult `json:"valid_barcodes"`
	InvalidBarcodes []ValidationResult `json:"invalid_barcodes"`
}

// ImportItem is one row of a bulk import.
type ImportItem struct {
	Name          string  `json:"name"`
	Barcode       string  `json:"barcode"`
	CategoryID    *int64  `json:"category_id"`
	TypeID        *int64  `json:"type_id"`
	SupplierID    *int64  `json:"supplier_id"`
	CostPrice     float64 `json:"cost_price"`
	SalePrice     float64 `json:"sale_price"`
	StockQuantity int     `json:"stock_quantity"`
	ReorderLevel  int     `json:"reorder_level"`
}

// ImportRequest is the bulk import payload.
type ImportRequest struct {
	Products       []ImportItem `json:"products"`
	SkipDuplicates bool         `json:"skip_duplicates"`
}

// Outcome classifies what happened to one import item.
type Outcome string

const (
	OutcomeImported Outcome = "imported"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
)

// ItemOutcome is the per-item result of an import.
type ItemOutcome struct {
	Index     int     `json:"index"`
	Barcode   string  `json:"barcode"`
	Outcome   Outcome `json:"outcome"`
	Reason    string  `json:"reason,omitempty"`
	ProductID *int64  `json:"product_id,omitempty"`
}

// ImportResult aggregates a bulk import.
type ImportResult struct {
	IsSuccess        bool          `json:"is_success"`
	Message          string        `json:"message"`
	ImportedCount    int           `json:"imported_count"`
	SkippedCount     int           `json:"skipped_count"`
	FailedCount      int           `json:"failed_count"`
	Items            []ItemOutcome `json:"items"`
	Errors           []string      `json:"errors"`
	ImportedProducts []Product     `json:"imported_products"`
}

// PrintRequest asks for a label sheet.
type PrintRequest struct {
	ProductIDs []int64 `json:"product_ids"`
	Quantity   int     `json:"quantity"`
}

// PrintResult describes the label job that was created.
type PrintResult struct {
	IsSuccess    bool   `json:"is_success"`
	Message      string `json:"message"`
	PrintJobID   string `json:"print_job_id,omitempty"`
	BarcodeCount int    `json:"barcode_count"`
	PdfURL       string `json:"pdf_url,omitempty"`
}

// LabelJob is handed to the label queue.
type LabelJob struct {
	ID       string    `json:"id"`
	Products []Product `json:"products"`
	Quantity int       `json:"quantity"`
}
