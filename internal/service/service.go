// Package service implements authentication, user management and user
// growth statistics on top of injected stores, cache and event publisher.
package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/user-insights/internal/apperror"
	"github.com/iliyamo/user-insights/internal/model"
	"github.com/iliyamo/user-insights/internal/queue"
	"github.com/iliyamo/user-insights/internal/repository"
)

// UserStore is the persistence the auth and user services need.
type UserStore interface {
	Create(ctx context.Context, name, email, passwordHash string, now time.Time) (model.User, error)
	GetByID(ctx context.Context, id uint64, scope model.Scope) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	List(ctx context.Context, scope model.Scope, limit, offset int) ([]model.User, int64, error)
	Update(ctx context.Context, u model.User, now time.Time) error
	SoftDelete(ctx context.Context, id uint64, now time.Time) error
	Restore(ctx context.Context, id uint64, now time.Time) error
	ForceDelete(ctx context.Context, id uint64) error
}

// StatsStore is the read side used by the statistics service.
type StatsStore interface {
	Count(ctx context.Context, scope model.Scope) (int64, error)
	CountCreatedBetween(ctx context.Context, from, to time.Time) (int64, error)
	CreatedAtBetween(ctx context.Context, from, to time.Time) ([]time.Time, error)
	CountGrouped(ctx context.Context, unit repository.GroupUnit, from, to time.Time) (map[string]int64, error)
}

// TokenStore persists access tokens by hash.
type TokenStore interface {
	Create(ctx context.Context, userID uint64, tokenHash string, createdAt, expiresAt time.Time) error
	GetByHash(ctx context.Context, tokenHash string) (model.AccessToken, error)
	DeleteByHash(ctx context.Context, tokenHash string) error
	Touch(ctx context.Context, id uint64, at time.Time) error
}

// EventPublisher hands user lifecycle events to the broker.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.UserEvent) error
}

// Clock returns the current instant.
type Clock func() time.Time

type options struct {
	now          Clock
	log          *zap.Logger
	events       EventPublisher
	storeTimeout time.Duration
	onPublish    func(event string, err error)
}

// Option configures a service.
type Option func(*options)

// WithClock replaces time.Now.
func WithClock(c Clock) Option { return func(o *options) { o.now = c } }

func WithLogger(l *zap.Logger) Option { return func(o *options) { o.log = l } }

// WithEvents publishes user lifecycle events through p.
func WithEvents(p EventPublisher) Option { return func(o *options) { o.events = p } }

// WithStoreTimeout bounds every store and cache round-trip of one call.
func WithStoreTimeout(d time.Duration) Option { return func(o *options) { o.storeTimeout = d } }

// WithPublishObserver is told the outcome of every publish attempt.
func WithPublishObserver(f func(event string, err error)) Option {
	return func(o *options) { o.onPublish = f }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, log: zap.NewNop(), storeTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o *options) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.storeTimeout)
}

// publish is best effort: a failure is logged and never reaches the caller.
func (o *options) publish(ctx context.Context, event string, u model.User) {
	if o.events == nil {
		return
	}
	// The request may already be done; the event still goes out, bounded.
	pctx, cancel := o.storeCtx(context.WithoutCancel(ctx))
	defer cancel()
	err := o.events.Publish(pctx, queue.UserEvent{
		Event:      event,
		UserID:     u.ID,
		Email:      u.Email,
		OccurredAt: o.now().UTC(),
	})
	if o.onPublish != nil {
		o.onPublish(event, err)
	}
	if err != nil {
		o.log.Warn("user event not published", zap.String("event", event), zap.Uint64("user_id", u.ID), zap.Error(err))
	}
}

// storeErr maps a repository failure to the error taxonomy.
func storeErr(err error, notFoundMsg string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return apperror.NotFound(notFoundMsg)
	case errors.Is(err, repository.ErrEmailExists):
		e := apperror.Conflict("the email has already been taken")
		e.Fields = apperror.Fields{"email": {"The email has already been taken."}}
		return e
	default:
		return apperror.Internal(err)
	}
}
