package membership

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"mentorship/common/metrics"
	"mentorship/internal/apperror"
	"mentorship/internal/db"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Matches project.StatusDone; the registry reads the projects table directly.
const projectStatusDone = "done"

// Registry tracks (project, user) participation records.
type Registry struct {
	db      bun.IDB
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

func NewRegistry(db bun.IDB, m *metrics.Metrics, logger *slog.Logger) *Registry {
	return &Registry{db: db, metrics: m, logger: logger, now: time.Now}
}

func (r *Registry) WithTx(tx bun.IDB) *Registry {
	c := *r
	c.db = tx
	return &c
}

// WithClock overrides the completion timestamp source.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	c := *r
	c.now = now
	return &c
}

// Request links userID to the project as a pending participant. Uniqueness is left to
// the primary key so that concurrent requests for one pair yield exactly one row.
func (r *Registry) Request(ctx context.Context, projectID, userID uuid.UUID) (*Membership, error) {
	if err := r.ensureOpen(ctx, projectID); err != nil {
		return nil, err
	}

	m := &Membership{ProjectID: projectID, UserID: userID}

	start := time.Now()
	_, err := r.db.NewInsert().Model(m).Returning("*").Exec(ctx)
	r.metrics.Database.RecordQuery(ctx, "insert", "projects_users", time.Since(start), err)

	switch {
	case err == nil:
		return m, nil
	case db.IsUniqueViolation(err):
		return nil, apperror.ErrDuplicateMembership
	}
	if constraint, ok := db.IsForeignKeyViolation(err); ok {
		if strings.Contains(constraint, "user_id") {
			return nil, apperror.ErrUserNotFound
		}
		return nil, apperror.ErrProjectNotFound
	}
	return nil, apperror.Storage("insert membership", err)
}

// CancelRequest removes the record whatever its acceptance state.
func (r *Registry) CancelRequest(ctx context.Context, projectID, userID uuid.UUID) error {
	return r.delete(ctx, projectID, userID)
}

// Remove is the owner-side removal of a participant; same rules as CancelRequest.
func (r *Registry) Remove(ctx context.Context, projectID, userID uuid.UUID) error {
	return r.delete(ctx, projectID, userID)
}

func (r *Registry) delete(ctx context.Context, projectID, userID uuid.UUID) error {
	if err := r.ensureOpen(ctx, projectID); err != nil {
		return err
	}

	start := time.Now()
	result, err := r.db.NewDelete().
		Model((*Membership)(nil)).
		Where("project_id = ?", projectID).
		Where("user_id = ?", userID).
		Exec(ctx)
	r.metrics.Database.RecordQuery(ctx, "delete", "projects_users", time.Since(start), err)
	if err != nil {
		return apperror.Storage("delete membership", err)
	}
	return requireAffected(result, "delete membership")
}

// Accept marks the record accepted. Accepting twice is a no-op.
func (r *Registry) Accept(ctx context.Context, projectID, userID uuid.UUID) error {
	if err := r.ensureOpen(ctx, projectID); err != nil {
		return err
	}

	start := time.Now()
	result, err := r.db.NewUpdate().
		Model((*Membership)(nil)).
		Set("is_accepted = TRUE").
		Where("project_id = ?", projectID).
		Where("user_id = ?", userID).
		Exec(ctx)
	r.metrics.Database.RecordQuery(ctx, "update", "projects_users", time.Since(start), err)
	if err != nil {
		return apperror.Storage("accept membership", err)
	}
	return requireAffected(result, "accept membership")
}

// Complete stamps every reviewed membership as accepted and completed. The project row
// must already be done. Reviews for users without a record are skipped and reported.
func (r *Registry) Complete(ctx context.Context, projectID uuid.UUID, reviews []Review) (*CompletionReport, error) {
	completedAt := r.now()
	report := &CompletionReport{
		ProjectID:   projectID,
		CompletedAt: completedAt,
		Completed:   make([]uuid.UUID, 0, len(reviews)),
		Skipped:     make([]uuid.UUID, 0),
	}

	for _, rv := range reviews {
		review := rv.Review

		start := time.Now()
		result, err := r.db.NewUpdate().
			Model((*Membership)(nil)).
			Set("is_accepted = TRUE").
			Set("review = ?", review).
			Set("completed_at = ?", completedAt).
			Where("project_id = ?", projectID).
			Where("user_id = ?", rv.UserID).
			Exec(ctx)
		r.metrics.Database.RecordQuery(ctx, "update", "projects_users", time.Since(start), err)
		if err != nil {
			return report, apperror.Storage(fmt.Sprintf("complete membership of user %s", rv.UserID), err)
		}

		n, err := result.RowsAffected()
		if err != nil {
			return report, apperror.Storage("complete membership", err)
		}
		if n == 0 {
			r.logger.WarnContext(ctx, "review for user without membership skipped",
				"project_id", projectID,
				"user_id", rv.UserID,
			)
			report.Skipped = append(report.Skipped, rv.UserID)
			continue
		}
		report.Completed = append(report.Completed, rv.UserID)
	}

	return report, nil
}

func (r *Registry) Get(ctx context.Context, projectID, userID uuid.UUID) (*Membership, error) {
	start := time.Now()
	m := new(Membership)
	err := r.db.NewSelect().
		Model(m).
		Where("pu.project_id = ?", projectID).
		Where("pu.user_id = ?", userID).
		Scan(ctx)
	r.metrics.Database.RecordQuery(ctx, "select", "projects_users", time.Since(start), err)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrMembershipNotFound
		}
		return nil, apperror.Storage("select membership", err)
	}
	return m, nil
}

func (r *Registry) ListByProject(ctx context.Context, projectID uuid.UUID) ([]Membership, error) {
	return r.list(ctx, "pu.project_id = ?", projectID)
}

func (r *Registry) ListByUser(ctx context.Context, userID uuid.UUID) ([]Membership, error) {
	return r.list(ctx, "pu.user_id = ?", userID)
}

// ListByProjects returns the records of every listed project in one query.
func (r *Registry) ListByProjects(ctx context.Context, projectIDs []uuid.UUID) ([]Membership, error) {
	if len(projectIDs) == 0 {
		return []Membership{}, nil
	}
	return r.list(ctx, "pu.project_id IN (?)", bun.In(projectIDs))
}

func (r *Registry) list(ctx context.Context, where string, arg interface{}) ([]Membership, error) {
	start := time.Now()
	memberships := make([]Membership, 0)
	err := r.db.NewSelect().
		Model(&memberships).
		Where(where, arg).
		Order("pu.created_at ASC").
		Scan(ctx)
	r.metrics.Database.RecordQuery(ctx, "select", "projects_users", time.Since(start), err)
	if err != nil {
		return nil, apperror.Storage("select memberships", err)
	}
	return memberships, nil
}

// RemoveAllForProject drops every record of the project, completed ones included.
// Only project removal uses it.
func (r *Registry) RemoveAllForProject(ctx context.Context, projectID uuid.UUID) error {
	start := time.Now()
	_, err := r.db.NewDelete().
		Model((*Membership)(nil)).
		Where("project_id = ?", projectID).
		Exec(ctx)
	r.metrics.Database.RecordQuery(ctx, "delete", "projects_users", time.Since(start), err)
	return apperror.Storage("delete project memberships", err)
}

// ensureOpen fails when the project is missing or already done. The row is share-locked
// so a concurrent completion waits for this transaction.
func (r *Registry) ensureOpen(ctx context.Context, projectID uuid.UUID) error {
	var status string

	start := time.Now()
	err := r.db.NewSelect().
		Table("projects").
		Column("status").
		Where("id = ?", projectID).
		For("SHARE").
		Scan(ctx, &status)
	r.metrics.Database.RecordQuery(ctx, "select", "projects", time.Since(start), err)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperror.ErrProjectNotFound
		}
		return apperror.Storage("select project status", err)
	}
	if status == projectStatusDone {
		return apperror.ErrProjectAlreadyCompleted
	}
	return nil
}

func requireAffected(result sql.Result, op string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return apperror.Storage(op, err)
	}
	if n == 0 {
		return apperror.ErrMembershipNotFound
	}
	return nil
}
