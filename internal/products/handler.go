package products

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-pos/internal/authstate"
	"github.com/odyssey-erp/odyssey-pos/internal/rbac"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
	"github.com/odyssey-erp/odyssey-pos/internal/view"
)

// Handler serves the catalog pages.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
}

// NewHandler builds the catalog page handler.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, rbac: rbac}
}

// MountRoutes registers the /products pages.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermProductsView))
		r.Get("/", h.list)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermPOSScan, shared.PermProductsView))
		r.Get("/scan", h.scan)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermProductsEdit))
		r.Get("/new", h.showForm)
		r.Post("/", h.create)
		r.Get("/{id}/edit", h.showEditForm)
		r.Post("/{id}/edit", h.update)
		r.Post("/{id}/delete", h.delete)
	})
}

type formErrors map[string]string

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, perPage := shared.PageFromQuery(q)
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = shared.DefaultPerPage
	}
	filters := ListFilters{
		Page:    page,
		Limit:   perPage,
		Search:  strings.TrimSpace(q.Get("search")),
		SortBy:  q.Get("sort"),
		SortDir: q.Get("dir"),
	}
	if raw := q.Get("category_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filters.CategoryID = &id
		}
	}
	if raw := q.Get("is_active"); raw != "" {
		active := raw == "true"
		filters.IsActive = &active
	}

	products, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list products", slog.Any("error", err))
		http.Error(w, "Failed to load products", http.StatusInternalServerError)
		return
	}
	opts, err := h.service.Options(r.Context())
	if err != nil {
		h.logger.Warn("product options", slog.Any("error", err))
	}

	h.render(w, r, "pages/products_list.html", map[string]any{
		"Products":   products,
		"Filters":    filters,
		"Pagination": shared.NewPagination(page, perPage, total),
		"Categories": opts.Categories,
		"CanEdit":    h.rbac.Allowed(r, shared.PermProductsEdit),
		"CanPrint":   h.rbac.Allowed(r, shared.PermLabelsPrint),
	}, http.StatusOK)
}

func (h *Handler) scan(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/products_scan.html", map[string]any{
		"CanImport": h.rbac.Allowed(r, shared.PermProductsImport),
	}, http.StatusOK)
}

func (h *Handler) showForm(w http.ResponseWriter, r *http.Request) {
	active := true
	h.renderForm(w, r, ProductInput{IsActive: &active}, formErrors{}, http.StatusOK)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	in, errs := parseProductForm(r)
	if len(errs) > 0 {
		h.renderForm(w, r, in, errs, http.StatusBadRequest)
		return
	}
	created, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.renderForm(w, r, in, h.saveErrors(err), http.StatusBadRequest)
		return
	}
	h.redirectWithFlash(w, r, "/products", "success", "Product "+created.Name+" created")
}

func (h *Handler) showEditForm(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid product ID", http.StatusBadRequest)
		return
	}
	product, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			h.logger.Error("get product", slog.Any("error", err), slog.Int64("id", id))
		}
		http.Error(w, "Product not found", http.StatusNotFound)
		return
	}
	h.renderForm(w, r, inputFromProduct(product), formErrors{}, http.StatusOK)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid product ID", http.StatusBadRequest)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	in, errs := parseProductForm(r)
	in.ID = id
	if len(errs) > 0 {
		h.renderForm(w, r, in, errs, http.StatusBadRequest)
		return
	}
	if _, err := h.service.Update(r.Context(), id, in); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ErrNotFound) {
			status = http.StatusNotFound
		}
		h.renderForm(w, r, in, h.saveErrors(err), status)
		return
	}
	h.redirectWithFlash(w, r, "/products", "success", "Product updated")
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid product ID", http.StatusBadRequest)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		msg := shared.UserSafeMessage(err)
		if errors.Is(err, ErrInUse) {
			msg = "Product is used by sales or purchases and cannot be deleted."
		}
		h.redirectWithFlash(w, r, "/products", "error", msg)
		return
	}
	h.redirectWithFlash(w, r, "/products", "success", "Product deleted")
}

func (h *Handler) saveErrors(err error) formErrors {
	var fieldErrs FieldErrors
	switch {
	case errors.As(err, &fieldErrs):
		return formErrors(fieldErrs)
	case errors.Is(err, ErrConflict):
		return formErrors{"barcode": "is already assigned to another product"}
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrIDMismatch):
	default:
		h.logger.Error("save product", slog.Any("error", err))
	}
	return formErrors{"general": shared.UserSafeMessage(err)}
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, in ProductInput, errs formErrors, status int) {
	opts, err := h.service.Options(r.Context())
	if err != nil {
		h.logger.Warn("product options", slog.Any("error", err))
	}
	h.render(w, r, "pages/product_form.html", map[string]any{
		"Product": in,
		"Options": opts,
		"Errors":  errs,
		"IsEdit":  in.ID > 0,
	}, status)
}

// parseProductForm reads the HTML form. Unparseable numbers become field
// errors instead of silently turning into zero.
func parseProductForm(r *http.Request) (ProductInput, formErrors) {
	errs := formErrors{}
	in := ProductInput{
		Name:    strings.TrimSpace(r.PostFormValue("name")),
		Barcode: strings.TrimSpace(r.PostFormValue("barcode")),
	}
	in.CategoryID = optionalID(r.PostFormValue("category_id"), "category_id", errs)
	in.TypeID = optionalID(r.PostFormValue("type_id"), "type_id", errs)
	in.SupplierID = optionalID(r.PostFormValue("supplier_id"), "supplier_id", errs)
	in.CostPrice = parseFloat(r.PostFormValue("cost_price"), "cost_price", errs)
	in.SalePrice = parseFloat(r.PostFormValue("sale_price"), "sale_price", errs)
	in.StockQuantity = parseInt(r.PostFormValue("stock_quantity"), "stock_quantity", errs)
	in.ReorderLevel = parseInt(r.PostFormValue("reorder_level"), "reorder_level", errs)
	active := r.PostFormValue("is_active") == "on"
	in.IsActive = &active
	return in, errs
}

func optionalID(raw, field string, errs formErrors) *int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		errs[field] = "is invalid"
		return nil
	}
	return &id
}

func parseFloat(raw, field string, errs formErrors) float64 {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		errs[field] = "must be a number"
	}
	return v
}

func parseInt(raw, field string, errs formErrors) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		errs[field] = "must be a whole number"
	}
	return v
}

func inputFromProduct(p Product) ProductInput {
	active := p.IsActive
	return ProductInput{
		ID:            p.ID,
		Name:          p.Name,
		Barcode:       p.Barcode,
		CategoryID:    p.CategoryID,
		TypeID:        p.TypeID,
		SupplierID:    p.SupplierID,
		CostPrice:     p.CostPrice,
		SalePrice:     p.SalePrice,
		StockQuantity: p.StockQuantity,
		ReorderLevel:  p.ReorderLevel,
		IsActive:      &active,
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template string, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{
		Title:       "Products",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	if p, ok := authstate.PrincipalFromContext(r.Context()); ok {
		viewData.User = p.Username
	}
	if err := h.templates.RenderStatus(w, template, viewData, status); err != nil {
		h.logger.Error("render template", slog.Any("error", err), slog.String("template", template))
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}
