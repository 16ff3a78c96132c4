package users

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
	"github.com/odyssey-erp/odyssey-pos/internal/roles"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
	"github.com/odyssey-erp/odyssey-pos/internal/view"
)

// RoleLister supplies role choices for the user form.
type RoleLister interface {
	ListRoles(ctx context.Context) ([]roles.Role, error)
}

// Handler manages user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	roles     RoleLister
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, roles RoleLister, templates *view.Engine, csrf *shared.CSRFManager, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, roles: roles, templates: templates, csrf: csrf, rbac: rbac}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermUsersView, shared.PermUsersEdit))
		r.Get("/", h.listUsers)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermUsersEdit))
		r.Get("/new", h.showCreateUserForm)
		r.Post("/", h.createUser)
		r.Get("/{id}/edit", h.showEditUserForm)
		r.Post("/{id}/edit", h.updateUser)
		r.Post("/{id}/password", h.resetPassword)
	})
}

type formErrors map[string]string

type userForm struct {
	Username string
	Email    string
	Name     string
	RoleID   *int64
	IsActive bool
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		h.render(w, r, "pages/users_list.html", map[string]any{"Errors": formErrors{"general": shared.UserSafeMessage(err)}}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/users_list.html", map[string]any{
		"Users":   users,
		"CanEdit": h.rbac.Allowed(r, shared.PermUsersEdit),
	}, http.StatusOK)
}

func (h *Handler) showCreateUserForm(w http.ResponseWriter, r *http.Request) {
	h.renderForm(w, r, 0, userForm{IsActive: true}, formErrors{}, http.StatusOK)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	form, errs := parseUserForm(r)
	if len(errs) > 0 {
		h.renderForm(w, r, 0, form, errs, http.StatusBadRequest)
		return
	}
	created, err := h.service.CreateUser(r.Context(), CreateInput{
		Username: form.Username,
		Email:    form.Email,
		Name:     form.Name,
		Password: r.PostFormValue("password"),
		RoleID:   form.RoleID,
		IsActive: form.IsActive,
	})
	if err != nil {
		h.renderForm(w, r, 0, form, h.saveErrors(err), statusFor(err))
		return
	}
	h.redirectWithFlash(w, r, "/users", "success", "User "+created.Username+" created")
}

func (h *Handler) showEditUserForm(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	u, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}
	form := userForm{Username: u.Username, Email: u.Email, Name: u.Name, RoleID: u.RoleID, IsActive: u.IsActive}
	h.renderForm(w, r, id, form, formErrors{}, http.StatusOK)
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	form, errs := parseUserForm(r)
	if len(errs) > 0 {
		h.renderForm(w, r, id, form, errs, http.StatusBadRequest)
		return
	}
	if p, ok := authstate.PrincipalFromContext(r.Context()); ok && p.UserID == id && !form.IsActive {
		h.renderForm(w, r, id, form, formErrors{"is_active": "you cannot deactivate your own account"}, http.StatusBadRequest)
		return
	}
	_, err := h.service.UpdateUser(r.Context(), id, ProfileInput{Email: form.Email, Name: form.Name, RoleID: form.RoleID, IsActive: form.IsActive})
	if err != nil {
		h.renderForm(w, r, id, form, h.saveErrors(err), statusFor(err))
		return
	}
	h.redirectWithFlash(w, r, "/users", "success", "User updated")
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	location := "/users/" + strconv.FormatInt(id, 10) + "/edit"
	if err := h.service.ChangePassword(r.Context(), id, "", r.PostFormValue("password")); err != nil {
		msg := shared.UserSafeMessage(err)
		var fieldErrs FieldErrors
		if errors.As(err, &fieldErrs) {
			msg = "Password " + fieldErrs["password"]
		} else if !errors.Is(err, ErrNotFound) {
			h.logger.Error("reset password", slog.Any("error", err), slog.Int64("user_id", id))
		}
		h.redirectWithFlash(w, r, location, "error", msg)
		return
	}
	h.redirectWithFlash(w, r, location, "success", "Password reset")
}

func (h *Handler) saveErrors(err error) formErrors {
	var fieldErrs FieldErrors
	switch {
	case errors.As(err, &fieldErrs):
		return formErrors(fieldErrs)
	case errors.Is(err, ErrDuplicate):
		return formErrors{"username": "username or email is already taken"}
	case errors.Is(err, ErrUnknownRole):
		return formErrors{"role_id": "does not exist"}
	case errors.Is(err, ErrNotFound):
	default:
		h.logger.Error("save user", slog.Any("error", err))
	}
	return formErrors{"general": shared.UserSafeMessage(err)}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	}
	return http.StatusBadRequest
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, id int64, form userForm, errs formErrors, status int) {
	var choices []roles.Role
	if h.roles != nil {
		var err error
		if choices, err = h.roles.ListRoles(r.Context()); err != nil {
			h.logger.Warn("list roles", slog.Any("error", err))
		}
	}
	h.render(w, r, "pages/user_form.html", map[string]any{
		"ID":     id,
		"User":   form,
		"Roles":  choices,
		"Errors": errs,
		"IsEdit": id > 0,
	}, status)
}

func parseUserForm(r *http.Request) (userForm, formErrors) {
	errs := formErrors{}
	form := userForm{
		Username: strings.TrimSpace(r.PostFormValue("username")),
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Name:     strings.TrimSpace(r.PostFormValue("name")),
		IsActive: r.PostFormValue("is_active") == "on",
	}
	if raw := strings.TrimSpace(r.PostFormValue("role_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			errs["role_id"] = "is invalid"
		} else {
			form.RoleID = &id
		}
	}
	return form, errs
}

func userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
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
	viewData := view.TemplateData{Title: "Users", CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, Data: data}
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
