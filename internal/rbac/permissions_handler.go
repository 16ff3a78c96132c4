package rbac

import (
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
	"github.com/odyssey-erp/odyssey-pos/internal/view"
)

// PermissionGroup collects catalog entries sharing the prefix before the
// first dot, e.g. "products" for "products.edit".
type PermissionGroup struct {
	Module      string
	Permissions []Permission
}

// GroupPermissions buckets perms by module, sorted by module then name.
func GroupPermissions(perms []Permission) []PermissionGroup {
	byModule := make(map[string][]Permission)
	for _, p := range perms {
		module, _, _ := strings.Cut(p.Name, ".")
		byModule[module] = append(byModule[module], p)
	}
	groups := make([]PermissionGroup, 0, len(byModule))
	for module, list := range byModule {
		sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
		groups = append(groups, PermissionGroup{Module: module, Permissions: list})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Module < groups[j].Module })
	return groups
}

// PermissionsHandler serves the read-only permission catalog page.
type PermissionsHandler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	guard     Middleware
}

func NewPermissionsHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, guard Middleware) *PermissionsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PermissionsHandler{logger: logger, service: service, templates: templates, csrf: csrf, guard: guard}
}

func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.With(h.guard.RequireAny(shared.PermRolesView)).Get("/", h.catalog)
}

func (h *PermissionsHandler) catalog(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{}
	status := http.StatusOK
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.logger.Error("list permissions", slog.Any("error", err))
		data["Error"] = shared.UserSafeMessage(err)
		status = http.StatusInternalServerError
	} else {
		data["Groups"] = GroupPermissions(perms)
		data["Total"] = len(perms)
	}

	sess := shared.SessionFromContext(r.Context())
	page := view.TemplateData{Title: "Permissions", CurrentPath: r.URL.Path, Data: data}
	page.CSRFToken, _ = h.csrf.EnsureToken(r.Context(), sess)
	if sess != nil {
		page.Flash = sess.PopFlash()
	}
	if err := h.templates.RenderStatus(w, "pages/permissions.html", page, status); err != nil {
		h.logger.Error("render permissions", slog.Any("error", err))
	}
}
