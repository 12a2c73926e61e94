package service

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/iliyamo/user-insights/internal/apperror"
	"github.com/iliyamo/user-insights/internal/model"
	"github.com/iliyamo/user-insights/internal/queue"
	"github.com/iliyamo/user-insights/internal/utils"
)

// Paging limits for List.
const (
	DefaultPerPage = 10
	MaxPerPage     = 100

	// MaxPage keeps (page-1)*per_page inside a 32-bit OFFSET.
	MaxPage = math.MaxInt32 / MaxPerPage
)

const userNotFound = "user not found"

// Page is one page of a user listing.
type Page struct {
	Items    []model.User `json:"items"`
	Total    int64        `json:"total"`
	Page     int          `json:"page"`
	PerPage  int          `json:"per_page"`
	LastPage int          `json:"last_page"`
}

// UserService manages users including soft delete, restore and force
// delete.
type UserService struct {
	users      UserStore
	validate   *inputValidator
	bcryptCost int
	options
}

// NewUserService builds the service. passwordPolicy selects the password
// rule applied on create and update.
func NewUserService(users UserStore, bcryptCost int, passwordPolicy string, opts ...Option) *UserService {
	return &UserService{
		users:      users,
		validate:   newInputValidator(passwordPolicy),
		bcryptCost: bcryptCost,
		options:    buildOptions(opts),
	}
}

// List returns users in scope, newest first. page starts at 1; out of
// range paging values fall back to the defaults and page is capped at
// MaxPage.
func (s *UserService) List(ctx context.Context, page, perPage int, scope model.Scope) (Page, error) {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	items, total, err := s.users.List(sctx, scope, perPage, (page-1)*perPage)
	if err != nil {
		return Page{}, apperror.Internal(err)
	}
	last := int((total + int64(perPage) - 1) / int64(perPage))
	if last < 1 {
		last = 1
	}
	return Page{Items: items, Total: total, Page: page, PerPage: perPage, LastPage: last}, nil
}

// Get returns the user with id if it is visible in scope.
func (s *UserService) Get(ctx context.Context, id uint64, scope model.Scope) (model.User, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	u, err := s.users.GetByID(sctx, id, scope)
	if err != nil {
		return model.User{}, storeErr(err, userNotFound)
	}
	return u, nil
}

// Create applies the registration rules.
func (s *UserService) Create(ctx context.Context, in RegisterInput) (model.User, error) {
	u, err := createUser(ctx, s.users, s.validate, s.bcryptCost, &s.options, in)
	if err != nil {
		return model.User{}, err
	}
	s.publish(ctx, queue.EventUserRegistered, u)
	return u, nil
}

// Update changes the fields present in in. Soft-deleted users can be
// updated too.
func (s *UserService) Update(ctx context.Context, id uint64, in UpdateInput) (model.User, error) {
	u, err := s.Get(ctx, id, model.ScopeWith)
	if err != nil {
		return model.User{}, err
	}
	if err := s.validate.Update(in); err != nil {
		return model.User{}, err
	}

	if in.Name != nil {
		u.Name = strings.TrimSpace(*in.Name)
	}
	if in.Email != nil {
		u.Email = strings.ToLower(strings.TrimSpace(*in.Email))
	}
	if in.Password != nil {
		hash, err := utils.HashPassword(*in.Password, s.bcryptCost)
		if err != nil {
			return model.User{}, apperror.Internal(err)
		}
		u.PasswordHash = hash
	}

	now := s.now().UTC()
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.users.Update(sctx, u, now); err != nil {
		return model.User{}, storeErr(err, userNotFound)
	}
	u.UpdatedAt = now.Truncate(time.Second)
	s.publish(ctx, queue.EventUserUpdated, u)
	return u, nil
}

// Delete soft-deletes an active user.
func (s *UserService) Delete(ctx context.Context, id uint64) error {
	u, err := s.Get(ctx, id, model.ScopeActive)
	if err != nil {
		return err
	}
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.users.SoftDelete(sctx, id, s.now()); err != nil {
		return storeErr(err, userNotFound)
	}
	s.publish(ctx, queue.EventUserDeleted, u)
	return nil
}

// Restore clears the soft delete of a user and returns it. Restoring an
// active user is a bad request.
func (s *UserService) Restore(ctx context.Context, id uint64) (model.User, error) {
	u, err := s.Get(ctx, id, model.ScopeWith)
	if err != nil {
		return model.User{}, err
	}
	if !u.Trashed() {
		return model.User{}, apperror.New(apperror.CodeBadRequest, "user is not deleted")
	}

	// Clear deleted_at, then reload so the response carries the new row.
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.users.Restore(sctx, id, s.now()); err != nil {
		return model.User{}, storeErr(err, userNotFound)
	}
	restored, err := s.users.GetByID(sctx, id, model.ScopeActive)
	if err != nil {
		return model.User{}, storeErr(err, userNotFound)
	}
	s.publish(ctx, queue.EventUserRestored, restored)
	return restored, nil
}

// ForceDelete removes a user permanently, whether soft-deleted or not.
func (s *UserService) ForceDelete(ctx context.Context, id uint64) error {
	u, err := s.Get(ctx, id, model.ScopeWith)
	if err != nil {
		return err
	}
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.users.ForceDelete(sctx, id); err != nil {
		return storeErr(err, userNotFound)
	}
	s.publish(ctx, queue.EventUserForceDeleted, u)
	return nil
}
