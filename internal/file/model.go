package file

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// File is a project attachment. Bytes live in external storage; only name and path are kept.
type File struct {
	bun.BaseModel `bun:"table:files,alias:f"`

	ID        uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Name      string    `bun:"name,notnull,type:varchar(255)" json:"name"`
	Path      string    `bun:"path,notnull,type:varchar(255)" json:"path"`
	ProjectID uuid.UUID `bun:"project_id,notnull,type:uuid" json:"projectId"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"createdAt"`

	// Seq keeps insertion order within one upload batch.
	Seq int64 `bun:"seq,autoincrement" json:"-"`
}

var _ bun.BeforeCreateTableHook = (*File)(nil)

func (*File) BeforeCreateTable(_ context.Context, q *bun.CreateTableQuery) error {
	q.ForeignKey(`("project_id") REFERENCES "projects" ("id") ON DELETE CASCADE`)
	return nil
}

// Upload is a file reference supplied by the caller.
type Upload struct {
	Name string `json:"name" validate:"required,max=255"`
	Path string `json:"path" validate:"required,max=255"`
}
