package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/user-insights/internal/model"
)

const userColumns = "id,name,email,password_hash,created_at,updated_at,deleted_at"

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// scopeWhere returns the soft-delete predicate for s.
func scopeWhere(s model.Scope) string {
	switch s {
	case model.ScopeWith:
		return "1=1"
	case model.ScopeOnly:
		return "deleted_at IS NOT NULL"
	default:
		return "deleted_at IS NULL"
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(s rowScanner) (model.User, error) {
	var (
		u         model.User
		deletedAt sql.NullTime
	)
	if err := s.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt, &deletedAt); err != nil {
		return model.User{}, err
	}
	if deletedAt.Valid {
		t := deletedAt.Time.UTC()
		u.DeletedAt = &t
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u, nil
}

// NormalizeEmail lower-cases and trims an address before it reaches the
// unique index.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create inserts a user and returns it with its new ID.
func (r *UserRepo) Create(ctx context.Context, name, email, passwordHash string, now time.Time) (model.User, error) {
	now = now.UTC().Truncate(time.Second)
	email = NormalizeEmail(email)
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (name, email, password_hash, created_at, updated_at) VALUES (?,?,?,?,?)",
		name, email, passwordHash, now, now)
	if err != nil {
		if isDuplicate(err) {
			return model.User{}, ErrEmailExists
		}
		return model.User{}, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.User{}, fmt.Errorf("insert user: %w", err)
	}
	return model.User{
		ID:           uint64(id),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// GetByID fetches a user visible in scope.
func (r *UserRepo) GetByID(ctx context.Context, id uint64, scope model.Scope) (model.User, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? AND "+scopeWhere(scope)+" LIMIT 1", id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("get user %d: %w", id, err)
	}
	return u, nil
}

// GetByEmail fetches a user by normalized email regardless of soft delete.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", NormalizeEmail(email))
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// List returns one page of users in scope, newest first, and the total
// number of users in scope.
func (r *UserRepo) List(ctx context.Context, scope model.Scope, limit, offset int) ([]model.User, int64, error) {
	where := scopeWhere(scope)

	var total int64
	if err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE "+where).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE "+where+" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0, limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	return users, total, nil
}

// Update writes name, email and password hash of u. The row may be
// soft-deleted.
func (r *UserRepo) Update(ctx context.Context, u model.User, now time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET name=?, email=?, password_hash=?, updated_at=? WHERE id=?",
		u.Name, NormalizeEmail(u.Email), u.PasswordHash, now.UTC().Truncate(time.Second), u.ID)
	if err != nil {
		if isDuplicate(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("update user %d: %w", u.ID, err)
	}
	return nil
}

// SoftDelete stamps deleted_at on an active user.
func (r *UserRepo) SoftDelete(ctx context.Context, id uint64, now time.Time) error {
	return r.execAffecting(ctx, "soft delete user",
		"UPDATE users SET deleted_at=? WHERE id=? AND deleted_at IS NULL",
		now.UTC().Truncate(time.Second), id)
}

// Restore clears deleted_at on a soft-deleted user.
func (r *UserRepo) Restore(ctx context.Context, id uint64, now time.Time) error {
	return r.execAffecting(ctx, "restore user",
		"UPDATE users SET deleted_at=NULL, updated_at=? WHERE id=? AND deleted_at IS NOT NULL",
		now.UTC().Truncate(time.Second), id)
}

// ForceDelete removes the row permanently. Access tokens cascade.
func (r *UserRepo) ForceDelete(ctx context.Context, id uint64) error {
	return r.execAffecting(ctx, "force delete user", "DELETE FROM users WHERE id=?", id)
}

func (r *UserRepo) execAffecting(ctx context.Context, op, query string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the number of users in scope.
func (r *UserRepo) Count(ctx context.Context, scope model.Scope) (int64, error) {
	var n int64
	if err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE "+scopeWhere(scope)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// CountCreatedBetween counts active users created in [from, to).
func (r *UserRepo) CountCreatedBetween(ctx context.Context, from, to time.Time) (int64, error) {
	var n int64
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users WHERE deleted_at IS NULL AND created_at >= ? AND created_at < ?",
		from.UTC(), to.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count users created: %w", err)
	}
	return n, nil
}

// CreatedAtBetween returns the creation instants (UTC) of active users
// created in [from, to), oldest first.
func (r *UserRepo) CreatedAtBetween(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT created_at FROM users WHERE deleted_at IS NULL AND created_at >= ? AND created_at < ? ORDER BY created_at",
		from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("select created_at: %w", err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan created_at: %w", err)
		}
		out = append(out, t.UTC())
	}
	return out, rows.Err()
}

// GroupUnit is the calendar unit used by CountGrouped.
type GroupUnit string

const (
	GroupDay   GroupUnit = "day"
	GroupWeek  GroupUnit = "week"
	GroupMonth GroupUnit = "month"
)

// groupExpr maps a unit to a SQL expression yielding the bucket's first
// date as YYYY-MM-DD. Weeks start on Monday.
var groupExpr = map[GroupUnit]string{
	GroupDay:   "DATE_FORMAT(created_at, '%Y-%m-%d')",
	GroupWeek:  "DATE_FORMAT(DATE_SUB(DATE(created_at), INTERVAL WEEKDAY(created_at) DAY), '%Y-%m-%d')",
	GroupMonth: "DATE_FORMAT(created_at, '%Y-%m-01')",
}

// CountGrouped lets MySQL bucket active users created in [from, to) by
// the UTC calendar unit. The result maps each bucket's first date to its
// count; empty buckets are absent.
func (r *UserRepo) CountGrouped(ctx context.Context, unit GroupUnit, from, to time.Time) (map[string]int64, error) {
	expr, ok := groupExpr[unit]
	if !ok {
		return nil, fmt.Errorf("unknown group unit %q", unit)
	}
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+expr+" AS bucket, COUNT(*) AS total FROM users"+
			" WHERE deleted_at IS NULL AND created_at >= ? AND created_at < ?"+
			" GROUP BY bucket ORDER BY bucket",
		from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("group users by %s: %w", unit, err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var (
			bucket string
			total  int64
		)
		if err := rows.Scan(&bucket, &total); err != nil {
			return nil, fmt.Errorf("scan bucket: %w", err)
		}
		out[bucket] = total
	}
	return out, rows.Err()
}
