package products

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// LabelQueue hands label jobs to the renderer.
type LabelQueue interface {
	EnqueueLabels(ctx context.Context, job LabelJob) error
}

// ImportObserver records bulk import outcomes.
type ImportObserver interface {
	ObserveImport(outcome string)
}

// Service implements catalog rules over a Repository.
type Service struct {
	repo      Repository
	audit     shared.AuditRecorder
	labels    LabelQueue
	observer  ImportObserver
	validator *validator.Validate
	logger    *slog.Logger
	newJobID  func() string
}

// Option customises a Service.
type Option func(*Service)

// WithAudit records catalog changes.
func WithAudit(a shared.AuditRecorder) Option {
	return func(s *Service) { s.audit = a }
}

// WithLabelQueue enables asynchronous label rendering.
func WithLabelQueue(q LabelQueue) Option {
	return func(s *Service) { s.labels = q }
}

// WithImportObserver attaches an import metrics observer.
func WithImportObserver(o ImportObserver) Option {
	return func(s *Service) { s.observer = o }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService constructs the product service.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		validator: validator.New(),
		logger:    slog.Default(),
		newJobID:  newJobID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns a page of products for the catalog screen.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Product, int, error) {
	return s.repo.List(ctx, filters)
}

// GetAll returns every product.
func (s *Service) GetAll(ctx context.Context) ([]Product, error) {
	return s.repo.All(ctx, false)
}

// GetActive returns products flagged active.
func (s *Service) GetActive(ctx context.Context) ([]Product, error) {
	return s.repo.All(ctx, true)
}

// GetByID fetches a product by id.
func (s *Service) GetByID(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, ErrInvalidID
	}
	return s.repo.Get(ctx, id)
}

// GetByBarcode is an exact, case-sensitive barcode lookup.
func (s *Service) GetByBarcode(ctx context.Context, barcode string) (Product, error) {
	barcode = normalizeBarcode(barcode)
	if barcode == "" {
		return Product{}, ErrBarcodeRequired
	}
	return s.repo.GetByBarcode(ctx, barcode)
}

// BarcodeExists probes for a barcode without loading the product.
func (s *Service) BarcodeExists(ctx context.Context, barcode string) (bool, error) {
	barcode = normalizeBarcode(barcode)
	if barcode == "" {
		return false, nil
	}
	return s.repo.BarcodeExists(ctx, barcode)
}

// Options lists the reference data for product forms.
func (s *Service) Options(ctx context.Context) (Options, error) {
	return s.repo.Options(ctx)
}

// Create validates and stores a new product.
func (s *Service) Create(ctx context.Context, in ProductInput) (Product, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Barcode = normalizeBarcode(in.Barcode)
	if err := s.validate(in); err != nil {
		return Product{}, err
	}
	exists, err := s.repo.BarcodeExists(ctx, in.Barcode)
	if err != nil {
		return Product{}, err
	}
	if exists {
		return Product{}, ErrConflict
	}
	p := in.apply(Product{IsActive: true})
	created, err := s.repo.Create(ctx, p)
	if err != nil {
		return Product{}, err
	}
	s.record(ctx, "product.create", created.ID, map[string]any{"barcode": created.Barcode})
	return created, nil
}

// Update replaces a product. The body id must equal the path id.
func (s *Service) Update(ctx context.Context, id int64, in ProductInput) (Product, error) {
	if id <= 0 {
		return Product{}, ErrInvalidID
	}
	if in.ID != id {
		return Product{}, ErrIDMismatch
	}
	in.Name = strings.TrimSpace(in.Name)
	in.Barcode = normalizeBarcode(in.Barcode)
	if err := s.validate(in); err != nil {
		return Product{}, err
	}
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Product{}, err
	}
	if in.Barcode != current.Barcode {
		exists, err := s.repo.BarcodeExists(ctx, in.Barcode)
		if err != nil {
			return Product{}, err
		}
		if exists {
			return Product{}, ErrConflict
		}
	}
	updated, err := s.repo.Update(ctx, in.apply(current))
	if err != nil {
		return Product{}, err
	}
	s.record(ctx, "product.update", id, map[string]any{"barcode": updated.Barcode})
	return updated, nil
}

// Delete removes a product that no transaction references.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return ErrInvalidID
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, "product.delete", id, nil)
	return nil
}

func (s *Service) validate(in ProductInput) error {
	err := s.validator.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := FieldErrors{}
	for _, fe := range fieldErrs {
		out[jsonField(fe.Field())] = fieldMessage(fe)
	}
	return out
}

func (s *Service) record(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "product",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit product change", slog.String("action", action), slog.Any("error", err))
	}
}

func (in ProductInput) apply(p Product) Product {
	p.Name = in.Name
	p.Barcode = in.Barcode
	p.CategoryID = in.CategoryID
	p.TypeID = in.TypeID
	p.SupplierID = in.SupplierID
	p.CostPrice = in.CostPrice
	p.SalePrice = in.SalePrice
	p.StockQuantity = in.StockQuantity
	p.ReorderLevel = in.ReorderLevel
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	return p
}

// normalizeBarcode strips whitespace scanners append. Case is preserved.
func normalizeBarcode(barcode string) string {
	return strings.TrimSpace(barcode)
}

var jsonFields = map[string]string{
	"Name":          "name",
	"Barcode":       "barcode",
	"CategoryID":    "category_id",
	"TypeID":        "type_id",
	"SupplierID":    "supplier_id",
	"CostPrice":     "cost_price",
	"SalePrice":     "sale_price",
	"StockQuantity": "stock_quantity",
	"ReorderLevel":  "reorder_level",
}

func jsonField(name string) string {
	if f, ok := jsonFields[name]; ok {
		return f
	}
	return strings.ToLower(name)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "gte":
		return "must not be negative"
	case "gt":
		return "must be a positive id"
	default:
		return "is invalid"
	}
}
