package user

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"mentorship/common/metrics"
	"mentorship/internal/apperror"
	"mentorship/internal/db"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var ErrEmailTaken = errors.New("email already registered")

type Repository interface {
	WithTx(tx bun.IDB) Repository
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]User, error)
	OwnedProjectIDs(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error)
}

type repository struct {
	db      bun.IDB
	metrics *metrics.Metrics
}

func NewRepository(db bun.IDB, m *metrics.Metrics) Repository {
	return &repository{db: db, metrics: m}
}

func (r *repository) WithTx(tx bun.IDB) Repository {
	return &repository{db: tx, metrics: r.metrics}
}

func (r *repository) Create(ctx context.Context, user *User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}

	start := time.Now()
	_, err := r.db.NewInsert().Model(user).Returning("*").Exec(ctx)
	r.metrics.Database.RecordQuery(ctx, "insert", "users", time.Since(start), err)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return apperror.NewValidationError("email", ErrEmailTaken.Error())
		}
		return apperror.Storage("insert user", err)
	}
	return nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	start := time.Now()
	user := new(User)
	err := r.db.NewSelect().Model(user).Where("u.id = ?", id).Scan(ctx)
	r.metrics.Database.RecordQuery(ctx, "select", "users", time.Since(start), err)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrUserNotFound
		}
		return nil, apperror.Storage("select user", err)
	}
	return user, nil
}

func (r *repository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]User, error) {
	users := make([]User, 0, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	start := time.Now()
	err := r.db.NewSelect().Model(&users).Where("u.id IN (?)", bun.In(ids)).Scan(ctx)
	r.metrics.Database.RecordQuery(ctx, "select", "users", time.Since(start), err)
	if err != nil {
		return nil, apperror.Storage("select users", err)
	}
	return users, nil
}

func (r *repository) OwnedProjectIDs(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	start := time.Now()
	ids := make([]uuid.UUID, 0)
	err := r.db.NewSelect().
		Table("projects").
		Column("id").
		Where("user_id = ?", id).
		Order("created_at DESC").
		Scan(ctx, &ids)
	r.metrics.Database.RecordQuery(ctx, "select", "projects", time.Since(start), err)
	if err != nil {
		return nil, apperror.Storage("select owned projects", err)
	}
	return ids, nil
}
