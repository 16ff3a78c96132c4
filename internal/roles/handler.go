package roles

import (
	"context"
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

// PermissionAssigner manages the permissions granted to a role.
type PermissionAssigner interface {
	ListPermissions(ctx context.Context) ([]rbac.Permission, error)
	RolePermissionIDs(ctx context.Context, roleID int64) ([]int64, error)
	SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error
}

// Handler manages role management endpoints.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	permissions PermissionAssigner
	templates   *view.Engine
	csrf        *shared.CSRFManager
	rbac        rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, permissions PermissionAssigner, templates *view.Engine, csrf *shared.CSRFManager, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, permissions: permissions, templates: templates, csrf: csrf, rbac: rbac}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermRolesView))
		r.Get("/", h.listRoles)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermRolesEdit))
		r.Get("/new", h.showCreateRoleForm)
		r.Post("/", h.createRole)
		r.Get("/{id}/edit", h.showEditRoleForm)
		r.Post("/{id}/edit", h.updateRole)
		r.Post("/{id}/delete", h.deleteRole)
	})
}

type formErrors map[string]string

type roleRow struct {
	Role
	ParentName string
	Depth      int
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		h.render(w, r, "pages/roles_list.html", map[string]any{"Errors": formErrors{"general": shared.UserSafeMessage(err)}}, http.StatusInternalServerError)
		return
	}
	names := make(map[int64]string, len(roles))
	for _, role := range roles {
		names[role.ID] = role.Name
	}
	tree := NewHierarchy(roles)
	rows := make([]roleRow, 0, len(roles))
	for _, role := range roles {
		row := roleRow{Role: role, Depth: len(tree.Ancestors(role.ID))}
		if role.ParentRoleID != nil {
			row.ParentName = names[*role.ParentRoleID]
		}
		rows = append(rows, row)
	}
	h.render(w, r, "pages/roles_list.html", map[string]any{
		"Roles":   rows,
		"CanEdit": h.rbac.Allowed(r, shared.PermRolesEdit),
	}, http.StatusOK)
}

func (h *Handler) showCreateRoleForm(w http.ResponseWriter, r *http.Request) {
	h.renderForm(w, r, 0, Input{}, nil, formErrors{}, http.StatusOK)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	in, errs := parseRoleForm(r)
	perms := parsePermissionIDs(r)
	if len(errs) > 0 {
		h.renderForm(w, r, 0, in, perms, errs, http.StatusBadRequest)
		return
	}
	created, err := h.service.CreateRole(r.Context(), in)
	if err != nil {
		h.renderForm(w, r, 0, in, perms, h.saveErrors(err), http.StatusBadRequest)
		return
	}
	if err := h.permissions.SetRolePermissions(r.Context(), created.ID, perms); err != nil {
		h.logger.Error("assign role permissions", slog.Any("error", err), slog.Int64("role_id", created.ID))
		h.redirectWithFlash(w, r, "/roles/"+strconv.FormatInt(created.ID, 10)+"/edit", "error", "Role created but permissions could not be saved.")
		return
	}
	h.redirectWithFlash(w, r, "/roles", "success", "Role "+created.Name+" created")
}

func (h *Handler) showEditRoleForm(w http.ResponseWriter, r *http.Request) {
	id, ok := roleID(w, r)
	if !ok {
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		http.Error(w, "Role not found", http.StatusNotFound)
		return
	}
	assigned, err := h.permissions.RolePermissionIDs(r.Context(), id)
	if err != nil {
		h.logger.Error("role permissions", slog.Any("error", err))
	}
	in := Input{
		Name:             role.Name,
		Description:      role.Description,
		IsAdministrative: role.IsAdministrative,
		CanEditModel:     role.CanEditModel,
		ParentRoleID:     role.ParentRoleID,
	}
	h.renderForm(w, r, id, in, assigned, formErrors{}, http.StatusOK)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := roleID(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	in, errs := parseRoleForm(r)
	perms := parsePermissionIDs(r)
	if len(errs) > 0 {
		h.renderForm(w, r, id, in, perms, errs, http.StatusBadRequest)
		return
	}
	if _, err := h.service.UpdateRole(r.Context(), id, in); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ErrNotFound) {
			status = http.StatusNotFound
		}
		h.renderForm(w, r, id, in, perms, h.saveErrors(err), status)
		return
	}
	if err := h.permissions.SetRolePermissions(r.Context(), id, perms); err != nil {
		msg := shared.UserSafeMessage(err)
		if errors.Is(err, rbac.ErrUnknownPermission) {
			msg = "One of the selected permissions no longer exists."
		} else {
			h.logger.Error("assign role permissions", slog.Any("error", err), slog.Int64("role_id", id))
		}
		h.renderForm(w, r, id, in, perms, formErrors{"general": msg}, http.StatusBadRequest)
		return
	}
	h.redirectWithFlash(w, r, "/roles", "success", "Role updated")
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := roleID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteRole(r.Context(), id); err != nil {
		msg := shared.UserSafeMessage(err)
		if errors.Is(err, ErrRoleInUse) {
			msg = "Role is assigned to users or other roles and cannot be deleted."
		} else if !errors.Is(err, ErrNotFound) {
			h.logger.Error("delete role", slog.Any("error", err))
		}
		h.redirectWithFlash(w, r, "/roles", "error", msg)
		return
	}
	h.redirectWithFlash(w, r, "/roles", "success", "Role deleted")
}

func (h *Handler) saveErrors(err error) formErrors {
	var fieldErrs FieldErrors
	switch {
	case errors.As(err, &fieldErrs):
		return formErrors(fieldErrs)
	case errors.Is(err, ErrDuplicateName):
		return formErrors{"name": "is already used by another role"}
	case errors.Is(err, ErrCycle):
		return formErrors{"parent_role_id": "would make the role inherit from itself"}
	case errors.Is(err, ErrParentNotFound):
		return formErrors{"parent_role_id": "does not exist"}
	case errors.Is(err, ErrNotFound):
	default:
		h.logger.Error("save role", slog.Any("error", err))
	}
	return formErrors{"general": shared.UserSafeMessage(err)}
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, id int64, in Input, assigned []int64, errs formErrors, status int) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.logger.Warn("list parent roles", slog.Any("error", err))
	}
	parents := make([]Role, 0, len(roles))
	for _, role := range roles {
		if role.ID != id {
			parents = append(parents, role)
		}
	}
	perms, err := h.permissions.ListPermissions(r.Context())
	if err != nil {
		h.logger.Warn("list permissions", slog.Any("error", err))
	}
	selected := make(map[int64]bool, len(assigned))
	for _, pid := range assigned {
		selected[pid] = true
	}
	h.render(w, r, "pages/role_form.html", map[string]any{
		"ID":          id,
		"Role":        in,
		"Parents":     parents,
		"Permissions": perms,
		"Selected":    selected,
		"Errors":      errs,
	}, status)
}

func parseRoleForm(r *http.Request) (Input, formErrors) {
	errs := formErrors{}
	in := Input{
		Name:             strings.TrimSpace(r.PostFormValue("name")),
		Description:      strings.TrimSpace(r.PostFormValue("description")),
		IsAdministrative: r.PostFormValue("is_administrative") == "on",
		CanEditModel:     r.PostFormValue("can_edit_model") == "on",
	}
	if raw := strings.TrimSpace(r.PostFormValue("parent_role_id")); raw != "" {
		parent, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parent <= 0 {
			errs["parent_role_id"] = "is invalid"
		} else {
			in.ParentRoleID = &parent
		}
	}
	return in, errs
}

func parsePermissionIDs(r *http.Request) []int64 {
	var ids []int64
	for _, raw := range r.PostForm["permission_ids"] {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

func roleID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Invalid role ID", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template string, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{Title: "Roles", CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, Data: data}
	if p, ok := authstate.PrincipalFromContext(r.Context()); ok {
		viewData.User = p.Username
	}
	if err := h.templates.RenderStatus(w, template, viewData, status); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}
