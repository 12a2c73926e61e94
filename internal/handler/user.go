package handler

import (
	"context"  // request-scoped context handed to the service
	"net/http" // status codes
	"strconv"  // path and query parsing

	"github.com/labstack/echo/v4" // routing and binding

	"github.com/iliyamo/user-insights/internal/apperror" // error taxonomy rendered by ErrorHandler
	"github.com/iliyamo/user-insights/internal/model"    // user and scope types
	"github.com/iliyamo/user-insights/internal/service"  // inputs and paging
)

// UserAPI is the part of service.UserService the HTTP layer calls.
type UserAPI interface {
	List(ctx context.Context, page, perPage int, scope model.Scope) (service.Page, error)
	Get(ctx context.Context, id uint64, scope model.Scope) (model.User, error)
	Create(ctx context.Context, in service.RegisterInput) (model.User, error)
	Update(ctx context.Context, id uint64, in service.UpdateInput) (model.User, error)
	Delete(ctx context.Context, id uint64) error
	Restore(ctx context.Context, id uint64) (model.User, error)
	ForceDelete(ctx context.Context, id uint64) error
}

// UserHandler serves the /api/users endpoints. Every route requires a
// bearer token; the router attaches it.
type UserHandler struct {
	users UserAPI
}

func NewUserHandler(users UserAPI) *UserHandler {
	return &UserHandler{users: users}
}

// ----- DTOs -----

type pageMeta struct {
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PerPage  int   `json:"per_page"`
	LastPage int   `json:"last_page"`
}

type listResp struct {
	Items []model.User `json:"items"`
	Meta  pageMeta     `json:"meta"`
}

// userID parses the :id path parameter. Anything that is not a positive
// integer cannot name a user.
func userID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, apperror.NotFound("user not found")
	}
	return id, nil
}

// scopeParam reads ?trashed=with|only. Absent means active users only.
func scopeParam(c echo.Context) (model.Scope, error) {
	scope, ok := model.ParseScope(c.QueryParam("trashed"))
	if !ok {
		return "", apperror.Validation(apperror.Fields{"trashed": {"The trashed must be one of: with, only."}})
	}
	return scope, nil
}

// intParam returns the query parameter as an int, or 0 when absent or
// malformed so the service applies its default.
func intParam(c echo.Context, name string) int {
	n, err := strconv.Atoi(c.QueryParam(name))
	if err != nil {
		return 0
	}
	return n
}

// ----- handlers -----

// List: GET /api/users?page=&per_page=&trashed=. Active users by default.
func (h *UserHandler) List(c echo.Context) error {
	scope, err := scopeParam(c)
	if err != nil {
		return err
	}
	page, err := h.users.List(c.Request().Context(), intParam(c, "page"), intParam(c, "per_page"), scope)
	if err != nil {
		return err
	}
	// Always render an array, never null.
	items := page.Items
	if items == nil {
		items = []model.User{}
	}
	return respond(c, http.StatusOK, "", listResp{
		Items: items,
		Meta:  pageMeta{Total: page.Total, Page: page.Page, PerPage: page.PerPage, LastPage: page.LastPage},
	})
}

// Show: GET /api/users/:id. ?trashed=with also finds soft-deleted users.
func (h *UserHandler) Show(c echo.Context) error {
	id, err := userID(c)
	if err != nil {
		return err
	}
	scope, err := scopeParam(c)
	if err != nil {
		return err
	}
	u, err := h.users.Get(c.Request().Context(), id, scope)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "", u)
}

// Create: POST /api/users with the registration rules. Returns 201.
func (h *UserHandler) Create(c echo.Context) error {
	var in service.RegisterInput
	if err := bind(c, &in); err != nil {
		return err
	}
	u, err := h.users.Create(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, "user created", u)
}

// Update: PUT or PATCH /api/users/:id. Absent fields are left unchanged.
func (h *UserHandler) Update(c echo.Context) error {
	id, err := userID(c)
	if err != nil {
		return err
	}
	var in service.UpdateInput
	if err := bind(c, &in); err != nil {
		return err
	}
	u, err := h.users.Update(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "user updated", u)
}

// Delete: DELETE /api/users/:id soft-deletes the user.
func (h *UserHandler) Delete(c echo.Context) error {
	id, err := userID(c)
	if err != nil {
		return err
	}
	if err := h.users.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	return respond(c, http.StatusOK, "user deleted", nil)
}

// Restore: POST or PATCH /api/users/:id/restore.
func (h *UserHandler) Restore(c echo.Context) error {
	id, err := userID(c)
	if err != nil {
		return err
	}
	u, err := h.users.Restore(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "user restored", u)
}

// ForceDelete: DELETE /api/users/:id/force removes the row for good.
func (h *UserHandler) ForceDelete(c echo.Context) error {
	id, err := userID(c)
	if err != nil {
		return err
	}
	if err := h.users.ForceDelete(c.Request().Context(), id); err != nil {
		return err
	}
	return respond(c, http.StatusOK, "user permanently deleted", nil)
}
