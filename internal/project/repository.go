package project

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

type Repository interface {
	WithTx(tx bun.IDB) Repository
	Create(ctx context.Context, project *Project) error
	GetByID(ctx context.Context, id uuid.UUID) (*Project, error)
	List(ctx context.Context, filter ListFilter) ([]Project, error)
	Patch(ctx context.Context, id uuid.UUID, intent UpdateProjectIntent) error
	MarkDone(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
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

func (r *repository) Create(ctx context.Context, project *Project) error {
	start := time.Now()
	_, err := r.db.NewInsert().Model(project).Returning("*").Exec(ctx)
	r.metrics.Database.RecordQuery(ctx, "insert", "projects", time.Since(start), err)
	if err != nil {
		if _, ok := db.IsForeignKeyViolation(err); ok {
			return apperror.ErrUserNotFound
		}
		return apperror.Storage("insert project", err)
	}
	return nil
}

// withGraph loads owner, files and skills alongside the selected projects. Files and
// skills each cost one extra query for the whole result set.
func withGraph(q *bun.SelectQuery) *bun.SelectQuery {
	return q.
		Relation("Owner").
		Relation("Files", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("f.seq ASC")
		}).
		Relation("Skills", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("s.name ASC")
		})
}

// GetByID loads the project row with its owner, files and skills.
func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Project, error) {
	start := time.Now()
	project := new(Project)
	err := withGraph(r.db.NewSelect().Model(project)).
		Where("p.id = ?", id).
		Scan(ctx)
	r.metrics.Database.RecordQuery(ctx, "select", "projects", time.Since(start), err)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrProjectNotFound
		}
		return nil, apperror.Storage("select project", err)
	}
	return project, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Project, error) {
	start := time.Now()
	projects := make([]Project, 0)
	q := withGraph(r.db.NewSelect().Model(&projects)).
		Order("p.created_at DESC")
	if filter.OwnerID != nil {
		q = q.Where("p.user_id = ?", *filter.OwnerID)
	}
	if filter.Status != nil {
		q = q.Where("p.status = ?", *filter.Status)
	}
	err := q.Scan(ctx)
	r.metrics.Database.RecordQuery(ctx, "select", "projects", time.Since(start), err)
	if err != nil {
		return nil, apperror.Storage("select projects", err)
	}
	return projects, nil
}

// Patch writes only the scalar fields present in intent. Status is never touched.
func (r *repository) Patch(ctx context.Context, id uuid.UUID, intent UpdateProjectIntent) error {
	if !intent.hasScalars() {
		return nil
	}

	q := r.db.NewUpdate().Model((*Project)(nil)).Where("id = ?", id)
	if intent.Title != nil {
		q = q.Set("title = ?", *intent.Title)
	}
	if intent.Description != nil {
		q = q.Set("description = ?", *intent.Description)
	}
	if intent.Type != nil {
		q = q.Set("type = ?", *intent.Type)
	}
	if intent.StudentsCount != nil {
		q = q.Set("students_count = ?", *intent.StudentsCount)
	}
	if intent.Duration != nil {
		q = q.Set("duration = ?", *intent.Duration)
	}

	start := time.Now()
	result, err := q.Exec(ctx)
	r.metrics.Database.RecordQuery(ctx, "update", "projects", time.Since(start), err)
	if err != nil {
		return apperror.Storage("update project", err)
	}
	return requireAffected(result, "update project")
}

// MarkDone moves the project to done. A project that is already done is refused.
func (r *repository) MarkDone(ctx context.Context, id uuid.UUID) error {
	start := time.Now()
	result, err := r.db.NewUpdate().
		Model((*Project)(nil)).
		Set("status = ?", StatusDone).
		Where("id = ?", id).
		Where("status <> ?", StatusDone).
		Exec(ctx)
	r.metrics.Database.RecordQuery(ctx, "update", "projects", time.Since(start), err)
	if err != nil {
		if db.IsRaisedException(err) {
			return apperror.ErrProjectAlreadyCompleted
		}
		return apperror.Storage("complete project", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return apperror.Storage("complete project", err)
	}
	if n > 0 {
		return nil
	}

	// Nothing changed: either the project is missing or it was done already.
	exists, err := r.db.NewSelect().Model((*Project)(nil)).Where("id = ?", id).Exists(ctx)
	if err != nil {
		return apperror.Storage("select project", err)
	}
	if !exists {
		return apperror.ErrProjectNotFound
	}
	return apperror.ErrProjectAlreadyCompleted
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	start := time.Now()
	result, err := r.db.NewDelete().
		Model((*Project)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	r.metrics.Database.RecordQuery(ctx, "delete", "projects", time.Since(start), err)
	if err != nil {
		return apperror.Storage("delete project", err)
	}
	return requireAffected(result, "delete project")
}

func requireAffected(result sql.Result, op string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return apperror.Storage(op, err)
	}
	if n == 0 {
		return apperror.ErrProjectNotFound
	}
	return nil
}
