package membership

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Membership is the (project, user) participation record. At most one exists per pair.
type Membership struct {
	bun.BaseModel `bun:"table:projects_users,alias:pu"`

	ProjectID   uuid.UUID  `bun:"project_id,pk,type:uuid" json:"projectId"`
	UserID      uuid.UUID  `bun:"user_id,pk,type:uuid" json:"userId"`
	IsAccepted  bool       `bun:"is_accepted,notnull,default:false" json:"isAccepted"`
	Review      *string    `bun:"review,type:text" json:"review,omitempty"`
	CompletedAt *time.Time `bun:"completed_at,type:timestamptz" json:"completedAt,omitempty"`
	CreatedAt   time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"createdAt"`
}

var _ bun.BeforeCreateTableHook = (*Membership)(nil)

func (*Membership) BeforeCreateTable(_ context.Context, q *bun.CreateTableQuery) error {
	q.ForeignKey(`("project_id") REFERENCES "projects" ("id") ON DELETE CASCADE`).
		ForeignKey(`("user_id") REFERENCES "users" ("id") ON DELETE CASCADE`)
	return nil
}

// Completed reports whether the record belongs to a finished project.
func (m *Membership) Completed() bool {
	return m.CompletedAt != nil
}

// Review is one participant's closing review supplied on completion.
type Review struct {
	UserID uuid.UUID `json:"userId" validate:"required"`
	Review string    `json:"review"`
}

// CompletionReport lists which review entries were applied.
// Skipped holds user ids that had no membership record for the project.
type CompletionReport struct {
	ProjectID   uuid.UUID   `json:"projectId"`
	CompletedAt time.Time   `json:"completedAt"`
	Completed   []uuid.UUID `json:"completed"`
	Skipped     []uuid.UUID `json:"skipped"`
}
