package products

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-pos/internal/barcode"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/rbac"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// IdempotencyHeader lets clients retry an import without creating duplicates.
const IdempotencyHeader = "Idempotency-Key"

const idempotencyModule = "products.import"

// Decoder reads barcodes from base64 encoded camera frames.
type Decoder interface {
	DecodeBase64(payload string) barcode.Result
	MaxBytes() int
}

// LabelSheets serves rendered label PDFs. ready is false while the job is
// still queued. Unknown jobs return an error wrapping httpx.ErrNotFound.
type LabelSheets interface {
	LabelPDF(ctx context.Context, jobID string) (pdf []byte, ready bool, err error)
}

// APIHandler exposes the catalog and barcode pipeline as JSON.
type APIHandler struct {
	logger      *slog.Logger
	service     *Service
	decoder     Decoder
	sheets      LabelSheets
	idempotency shared.IdempotencyGuard
	rbac        rbac.Middleware
}

// NewAPIHandler wires the product API. decoder, sheets and idempotency may be
// nil; the matching endpoints then degrade as documented on each route.
func NewAPIHandler(logger *slog.Logger, service *Service, decoder Decoder, sheets LabelSheets, idempotency shared.IdempotencyGuard, rbac rbac.Middleware) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIHandler{logger: logger, service: service, decoder: decoder, sheets: sheets, idempotency: idempotency, rbac: rbac}
}

// MountRoutes registers the /api/products endpoints.
func (h *APIHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermProductsView, shared.PermPOSScan))
		r.Get("/", h.list)
		r.Get("/active", h.listActive)
		r.Get("/by-barcode/{barcode}", h.byBarcode)
		r.Get("/{id}", h.get)
		r.Post("/validate-barcode", h.validateBarcode)
		r.Post("/search-by-barcode", h.searchByBarcode)
		r.Post("/validate-bulk-barcodes", h.validateBulk)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermProductsEdit))
		r.Post("/", h.create)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermProductsImport))
		r.Post("/import-products", h.importProducts)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermLabelsPrint))
		r.Post("/generate-print-labels", h.printLabels)
		r.Get("/print-labels/{jobID}", h.labelSheet)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermPOSScan, shared.PermProductsView))
		r.Post("/decode-barcode-image", h.decodeImage)
		r.Post("/camera-scan", h.cameraScan)
	})
}

func (h *APIHandler) list(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.GetAll(r.Context())
	if err != nil {
		h.fail(w, "list products", err)
		return
	}
	httpx.JSON(w, http.StatusOK, products)
}

func (h *APIHandler) listActive(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.GetActive(r.Context())
	if err != nil {
		h.fail(w, "list active products", err)
		return
	}
	httpx.JSON(w, http.StatusOK, products)
}

func (h *APIHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	product, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		h.fail(w, "get product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *APIHandler) byBarcode(w http.ResponseWriter, r *http.Request) {
	product, err := h.service.GetByBarcode(r.Context(), chi.URLParam(r, "barcode"))
	if err != nil {
		h.fail(w, "get product by barcode", err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *APIHandler) create(w http.ResponseWriter, r *http.Request) {
	var in ProductInput
	if err := httpx.DecodeJSONLimit(w, r, &in, httpx.DefaultBodyLimit); err != nil {
		httpx.RespondError(w, err)
		return
	}
	created, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.fail(w, "create product", err)
		return
	}
	w.Header().Set("Location", "/api/products/"+strconv.FormatInt(created.ID, 10))
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *APIHandler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in ProductInput
	if err := httpx.DecodeJSONLimit(w, r, &in, httpx.DefaultBodyLimit); err != nil {
		httpx.RespondError(w, err)
		return
	}
	updated, err := h.service.Update(r.Context(), id, in)
	if err != nil {
		h.fail(w, "update product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *APIHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, "delete product", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type barcodeRequest struct {
	Barcode string `json:"barcode"`
}

type barcodesRequest struct {
	Barcodes []string `json:"barcodes"`
}

func (h *APIHandler) validateBarcode(w http.ResponseWriter, r *http.Request) {
	var req barcodeRequest
	if err := httpx.DecodeJSONLimit(w, r, &req, httpx.DefaultBodyLimit); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.ValidateBarcode(r.Context(), req.Barcode)
	if err != nil {
		h.fail(w, "validate barcode", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *APIHandler) searchByBarcode(w http.ResponseWriter, r *http.Request) {
	var req barcodesRequest
	if err := httpx.DecodeJSONLimit(w, r, &req, httpx.DefaultBodyLimit); err != nil {
		httpx.RespondError(w, err)
		return
	}
	found, err := h.service.SearchByBarcodes(r.Context(), req.Barcodes)
	if err != nil {
		h.fail(w, "search by barcode", err)
		return
	}
	httpx.JSON(w, http.StatusOK, found)
}

func (h *APIHandler) validateBulk(w http.ResponseWriter, r *http.Request) {
	var req barcodesRequest
	if err := httpx.DecodeJSONLimit(w, r, &req, httpx.DefaultBodyLimit); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.ValidateBulk(r.Context(), req.Barcodes)
	if err != nil {
		h.fail(w, "validate bulk barcodes", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

// importProducts honours an optional Idempotency-Key. The key is released
// again when the import fails so the client can retry.
func (h *APIHandler) importProducts(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if err := httpx.DecodeJSONLimit(w, r, &req, 8*httpx.DefaultBodyLimit); err != nil {
		httpx.RespondError(w, err)
		return
	}
	key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	if key != "" && h.idempotency != nil {
		if err := h.idempotency.Reserve(r.Context(), idempotencyModule, key); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				httpx.Problem(w, http.StatusConflict, "Conflict", "import already processed for this idempotency key")
				return
			}
			h.fail(w, "import idempotency", err)
			return
		}
	}
	result, err := h.service.Import(r.Context(), req)
	if err != nil {
		h.releaseKey(r.Context(), key)
		if errors.Is(err, ErrNoImportItems) {
			httpx.JSON(w, http.StatusBadRequest, result)
			return
		}
		h.fail(w, "import products", err)
		return
	}
	if result.ImportedCount == 0 {
		h.releaseKey(r.Context(), key)
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *APIHandler) releaseKey(ctx context.Context, key string) {
	if key == "" || h.idempotency == nil {
		return
	}
	if err := h.idempotency.Release(ctx, idempotencyModule, key); err != nil {
		h.logger.Warn("release idempotency key", slog.Any("error", err))
	}
}

func (h *APIHandler) printLabels(w http.ResponseWriter, r *http.Request) {
	var req PrintRequest
	if err := httpx.DecodeJSONLimit(w, r, &req, httpx.DefaultBodyLimit); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.PrintLabels(r.Context(), req)
	switch {
	case errors.Is(err, ErrNothingSelected), errors.Is(err, ErrTooManyLabels):
		httpx.JSON(w, http.StatusBadRequest, result)
	case errors.Is(err, ErrNothingResolved):
		httpx.JSON(w, http.StatusNotFound, result)
	case err != nil:
		h.logger.Error("generate print labels", slog.Any("error", err))
		httpx.JSON(w, http.StatusInternalServerError, PrintResult{Message: "Error generating print labels"})
	default:
		httpx.JSON(w, http.StatusOK, result)
	}
}

func (h *APIHandler) labelSheet(w http.ResponseWriter, r *http.Request) {
	if h.sheets == nil {
		httpx.RespondError(w, fmt.Errorf("label sheet %w", httpx.ErrNotFound))
		return
	}
	jobID := chi.URLParam(r, "jobID")
	pdf, ready, err := h.sheets.LabelPDF(r.Context(), jobID)
	if err != nil {
		h.fail(w, "label sheet", err)
		return
	}
	if !ready {
		w.Header().Set("Retry-After", "2")
		httpx.JSON(w, http.StatusAccepted, map[string]string{"status": "pending", "print_job_id": jobID})
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="labels-`+jobID+`.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

type decodeRequest struct {
	ImageData string `json:"image_data"`
}

type decodeResponse struct {
	barcode.Result
	Product *Product `json:"product,omitempty"`
}

// decodeImage answers 200 with success=false when nothing was found so the
// scanner keeps sending frames.
func (h *APIHandler) decodeImage(w http.ResponseWriter, r *http.Request) {
	if h.decoder == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "barcode decoding is not configured")
		return
	}
	var req decodeRequest
	// base64 inflates by 4/3; leave room for the data URL prefix and JSON.
	limit := int64(h.decoder.MaxBytes())*4/3 + 4096
	if err := httpx.DecodeJSONLimit(w, r, &req, limit); err != nil {
		httpx.JSON(w, http.StatusBadRequest, decodeResponse{Result: barcode.Result{Error: barcode.MsgImageRequired}})
		return
	}
	if strings.TrimSpace(req.ImageData) == "" {
		httpx.JSON(w, http.StatusBadRequest, decodeResponse{Result: barcode.Result{Error: barcode.MsgImageRequired}})
		return
	}
	res := decodeResponse{Result: h.decoder.DecodeBase64(req.ImageData)}
	if !res.Success {
		if res.Error == "" {
			res.Error = barcode.MsgNotDetected
		}
		httpx.JSON(w, http.StatusOK, res)
		return
	}
	product, err := h.service.GetByBarcode(r.Context(), res.Barcode)
	switch {
	case err == nil:
		res.Product = &product
	case !errors.Is(err, ErrNotFound):
		h.logger.Error("decode lookup", slog.String("barcode", res.Barcode), slog.Any("error", err))
		httpx.JSON(w, http.StatusInternalServerError, decodeResponse{Result: barcode.Result{Error: "Error decoding barcode"}})
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

type cameraScanRequest struct {
	Barcode string `json:"barcode"`
	Format  string `json:"format"`
}

type cameraScanResponse struct {
	IsProcessed bool     `json:"is_processed"`
	Message     string   `json:"message"`
	Errors      []string `json:"errors"`
	Product     *Product `json:"product,omitempty"`
}

func (h *APIHandler) cameraScan(w http.ResponseWriter, r *http.Request) {
	var req cameraScanRequest
	if err := httpx.DecodeJSONLimit(w, r, &req, httpx.DefaultBodyLimit); err != nil || normalizeBarcode(req.Barcode) == "" {
		httpx.JSON(w, http.StatusBadRequest, cameraScanResponse{
			Message: "Invalid scan data",
			Errors:  []string{"Barcode cannot be empty"},
		})
		return
	}
	code := normalizeBarcode(req.Barcode)
	product, err := h.service.GetByBarcode(r.Context(), code)
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.JSON(w, http.StatusNotFound, cameraScanResponse{
			Message: "Product not found for barcode: " + code,
			Errors:  []string{"Barcode not in system"},
		})
	case err != nil:
		h.logger.Error("camera scan", slog.String("barcode", code), slog.Any("error", err))
		httpx.JSON(w, http.StatusInternalServerError, cameraScanResponse{
			Message: "Error processing camera scan",
			Errors:  []string{"internal error"},
		})
	default:
		httpx.JSON(w, http.StatusOK, cameraScanResponse{
			IsProcessed: true,
			Message:     "Scan processed successfully",
			Errors:      []string{},
			Product:     &product,
		})
	}
}

// fail logs unexpected errors and maps the rest through the httpx taxonomy.
func (h *APIHandler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, ErrInvalidID)
		return 0, false
	}
	return id, true
}
