package file

import (
	"context"
	"time"

	"mentorship/common/metrics"
	"mentorship/internal/apperror"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Manager owns the file set of a project.
type Manager struct {
	db      bun.IDB
	metrics *metrics.Metrics
}

func NewManager(db bun.IDB, m *metrics.Metrics) *Manager {
	return &Manager{db: db, metrics: m}
}

func (m *Manager) WithTx(tx bun.IDB) *Manager {
	return &Manager{db: tx, metrics: m.metrics}
}

// AddFiles inserts uploads in order, each with a fresh id.
func (m *Manager) AddFiles(ctx context.Context, projectID uuid.UUID, uploads []Upload) ([]File, error) {
	if len(uploads) == 0 {
		return nil, nil
	}

	files := make([]File, len(uploads))
	for i, u := range uploads {
		files[i] = File{
			ID:        uuid.New(),
			Name:      u.Name,
			Path:      u.Path,
			ProjectID: projectID,
		}
	}

	start := time.Now()
	_, err := m.db.NewInsert().Model(&files).Returning("*").Exec(ctx)
	m.metrics.Database.RecordQuery(ctx, "insert", "files", time.Since(start), err)
	if err != nil {
		return nil, apperror.Storage("insert files", err)
	}
	return files, nil
}

// RemoveFiles deletes the given files of the project. Unknown ids are ignored.
func (m *Manager) RemoveFiles(ctx context.Context, projectID uuid.UUID, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	start := time.Now()
	_, err := m.db.NewDelete().
		Model((*File)(nil)).
		Where("project_id = ?", projectID).
		Where("id IN (?)", bun.In(ids)).
		Exec(ctx)
	m.metrics.Database.RecordQuery(ctx, "delete", "files", time.Since(start), err)
	return apperror.Storage("delete files", err)
}

func (m *Manager) RemoveAll(ctx context.Context, projectID uuid.UUID) error {
	start := time.Now()
	_, err := m.db.NewDelete().
		Model((*File)(nil)).
		Where("project_id = ?", projectID).
		Exec(ctx)
	m.metrics.Database.RecordQuery(ctx, "delete", "files", time.Since(start), err)
	return apperror.Storage("delete project files", err)
}

func (m *Manager) ListByProject(ctx context.Context, projectID uuid.UUID) ([]File, error) {
	start := time.Now()
	files := make([]File, 0)
	err := m.db.NewSelect().
		Model(&files).
		Where("f.project_id = ?", projectID).
		Order("f.seq ASC").
		Scan(ctx)
	m.metrics.Database.RecordQuery(ctx, "select", "files", time.Since(start), err)
	if err != nil {
		return nil, apperror.Storage("select files", err)
	}
	return files, nil
}
