package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/user-insights/internal/apperror"
	"github.com/iliyamo/user-insights/internal/config"
	"github.com/iliyamo/user-insights/internal/model"
	"github.com/iliyamo/user-insights/internal/queue"
	"github.com/iliyamo/user-insights/internal/utils"
)

func newUserFixture(t *testing.T) (*UserService, *memStore, *recordingPublisher) {
	t.Helper()
	store := newMemStore()
	events := &recordingPublisher{}
	clock := &fakeClock{now: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
	svc := NewUserService(store, bcrypt.MinCost, config.PasswordPolicyBasic,
		WithClock(clock.Now), WithEvents(events), WithLogger(zap.NewNop()))
	return svc, store, events
}

func strp(s string) *string { return &s }

func TestUserLifecycle_SoftDeleteRestoreForceDelete(t *testing.T) {
	svc, _, events := newUserFixture(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, validRegistration("ada@example.com"))
	require.NoError(t, err)
	other, err := svc.Create(ctx, validRegistration("bob@example.com"))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, created.ID))

	page, err := svc.List(ctx, 1, 10, model.ScopeActive)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, other.ID, page.Items[0].ID)

	trashed, err := svc.List(ctx, 1, 10, model.ScopeOnly)
	require.NoError(t, err)
	require.Len(t, trashed.Items, 1)
	assert.Equal(t, created.ID, trashed.Items[0].ID)

	_, err = svc.Get(ctx, created.ID, model.ScopeActive)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	restored, err := svc.Restore(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, restored.ID)
	assert.Equal(t, created.Name, restored.Name)
	assert.Equal(t, created.Email, restored.Email)
	assert.False(t, restored.Trashed())

	page, err = svc.List(ctx, 1, 10, model.ScopeActive)
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)

	require.NoError(t, svc.ForceDelete(ctx, created.ID))
	for _, scope := range []model.Scope{model.ScopeActive, model.ScopeWith, model.ScopeOnly} {
		_, err = svc.Get(ctx, created.ID, scope)
		assert.ErrorIs(t, err, apperror.ErrNotFound, scope)
	}

	assert.Equal(t, []string{
		queue.EventUserRegistered,
		queue.EventUserRegistered,
		queue.EventUserDeleted,
		queue.EventUserRestored,
		queue.EventUserForceDeleted,
	}, events.names())
}

func TestRestore_ActiveUserIsBadRequest(t *testing.T) {
	svc, _, _ := newUserFixture(t)
	ctx := context.Background()
	u, err := svc.Create(ctx, validRegistration("ada@example.com"))
	require.NoError(t, err)

	_, err = svc.Restore(ctx, u.ID)
	assert.ErrorIs(t, err, apperror.ErrBadRequest)

	_, err = svc.Restore(ctx, 999)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestDelete_MissingOrAlreadyDeleted(t *testing.T) {
	svc, _, _ := newUserFixture(t)
	ctx := context.Background()
	u, err := svc.Create(ctx, validRegistration("ada@example.com"))
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, u.ID))

	assert.ErrorIs(t, svc.Delete(ctx, u.ID), apperror.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, 999), apperror.ErrNotFound)
	assert.ErrorIs(t, svc.ForceDelete(ctx, 999), apperror.ErrNotFound)
}

func TestUpdate_PartialFields(t *testing.T) {
	svc, store, _ := newUserFixture(t)
	ctx := context.Background()
	u, err := svc.Create(ctx, validRegistration("ada@example.com"))
	require.NoError(t, err)

	got, err := svc.Update(ctx, u.ID, UpdateInput{Name: strp("  Countess  ")})
	require.NoError(t, err)
	assert.Equal(t, "Countess", got.Name)
	assert.Equal(t, "ada@example.com", got.Email)
	assert.Equal(t, u.PasswordHash, got.PasswordHash)

	got, err = svc.Update(ctx, u.ID, UpdateInput{Password: strp("newpassword"), PasswordConfirmation: strp("newpassword")})
	require.NoError(t, err)
	stored, err := store.GetByID(ctx, u.ID, model.ScopeActive)
	require.NoError(t, err)
	assert.True(t, utils.VerifyPassword(stored.PasswordHash, "newpassword"))
	assert.Equal(t, "Countess", got.Name)
}

func TestUpdate_Errors(t *testing.T) {
	svc, _, _ := newUserFixture(t)
	ctx := context.Background()
	u, err := svc.Create(ctx, validRegistration("ada@example.com"))
	require.NoError(t, err)
	_, err = svc.Create(ctx, validRegistration("bob@example.com"))
	require.NoError(t, err)

	_, err = svc.Update(ctx, u.ID, UpdateInput{Email: strp("bob@example.com")})
	assert.ErrorIs(t, err, apperror.ErrConflict)

	_, err = svc.Update(ctx, u.ID, UpdateInput{Email: strp("nope"), Name: strp("")})
	fields := fieldsOf(t, err)
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "name")

	_, err = svc.Update(ctx, u.ID, UpdateInput{Password: strp("newpassword")})
	fields = fieldsOf(t, err)
	assert.Contains(t, fields, "password_confirmation")

	_, err = svc.Update(ctx, 999, UpdateInput{Name: strp("Ghost")})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestUpdate_SoftDeletedUser(t *testing.T) {
	svc, _, _ := newUserFixture(t)
	ctx := context.Background()
	u, err := svc.Create(ctx, validRegistration("ada@example.com"))
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, u.ID))

	got, err := svc.Update(ctx, u.ID, UpdateInput{Name: strp("Still Here")})
	require.NoError(t, err)
	assert.Equal(t, "Still Here", got.Name)
	assert.True(t, got.Trashed())
}

func TestList_Paging(t *testing.T) {
	svc, store, _ := newUserFixture(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		store.seed("user"+string(rune('a'+i)), base.Add(time.Duration(i)*time.Hour), false)
	}

	page, err := svc.List(ctx, 3, 10, model.ScopeActive)
	require.NoError(t, err)
	assert.Len(t, page.Items, 5)
	assert.Equal(t, int64(25), page.Total)
	assert.Equal(t, 3, page.LastPage)

	page, err = svc.List(ctx, 0, 0, model.ScopeActive)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, DefaultPerPage, page.PerPage)
	assert.Equal(t, base.Add(24*time.Hour), page.Items[0].CreatedAt)

	page, err = svc.List(ctx, 1, 1000, model.ScopeActive)
	require.NoError(t, err)
	assert.Equal(t, MaxPerPage, page.PerPage)

	page, err = svc.List(ctx, math.MaxInt64/10, MaxPerPage, model.ScopeActive)
	require.NoError(t, err)
	assert.Equal(t, MaxPage, page.Page)
	assert.Empty(t, page.Items)
	assert.Equal(t, int64(25), page.Total)
}

func TestPublishFailureDoesNotFailRequest(t *testing.T) {
	store := newMemStore()
	events := &recordingPublisher{err: errors.New("broker down")}
	var outcomes []error
	svc := NewUserService(store, bcrypt.MinCost, config.PasswordPolicyBasic,
		WithEvents(events),
		WithPublishObserver(func(_ string, err error) { outcomes = append(outcomes, err) }))

	_, err := svc.Create(context.Background(), validRegistration("ada@example.com"))
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Error(t, outcomes[0])
}

type stalledPublisher struct{}

func (stalledPublisher) Publish(ctx context.Context, _ queue.UserEvent) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestStalledPublisherIsBounded(t *testing.T) {
	var outcome error
	svc := NewUserService(newMemStore(), bcrypt.MinCost, config.PasswordPolicyBasic,
		WithEvents(stalledPublisher{}),
		WithStoreTimeout(50*time.Millisecond),
		WithPublishObserver(func(_ string, err error) { outcome = err }))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	// The store ignores ctx, so only the publish sees the cancelled request.
	_, err := svc.Create(ctx, validRegistration("ada@example.com"))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.ErrorIs(t, outcome, context.DeadlineExceeded)
}

func TestStoreFailureIsInternal(t *testing.T) {
	svc, store, _ := newUserFixture(t)
	store.err = errStoreDown

	_, err := svc.List(context.Background(), 1, 10, model.ScopeActive)
	assert.ErrorIs(t, err, apperror.ErrInternal)
	_, err = svc.Create(context.Background(), validRegistration("ada@example.com"))
	assert.ErrorIs(t, err, apperror.ErrInternal)
}
