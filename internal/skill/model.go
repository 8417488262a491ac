package skill

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const MaxNameLength = 50

type Skill struct {
	bun.BaseModel `bun:"table:skills,alias:s"`

	ID        uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Name      string    `bun:"name,notnull,unique,type:varchar(50)" json:"name"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"-"`
}

// JoinTable names the link table between an owner and skills.
type JoinTable struct {
	Table       string
	OwnerColumn string
}

var (
	ProjectSkills = JoinTable{Table: "projects_skills", OwnerColumn: "project_id"}
	UserSkills    = JoinTable{Table: "users_skills", OwnerColumn: "user_id"}
)

// Taggable is anything skills can be attached to.
type Taggable interface {
	SkillOwnerID() uuid.UUID
	SkillJoin() JoinTable
}

type taggable struct {
	id   uuid.UUID
	join JoinTable
}

func (t taggable) SkillOwnerID() uuid.UUID { return t.id }
func (t taggable) SkillJoin() JoinTable    { return t.join }

// Owner builds a Taggable from an id and its join table.
func Owner(id uuid.UUID, join JoinTable) Taggable {
	return taggable{id: id, join: join}
}

type UserSkill struct {
	bun.BaseModel `bun:"table:users_skills"`

	UserID  uuid.UUID `bun:"user_id,pk,type:uuid"`
	SkillID uuid.UUID `bun:"skill_id,pk,type:uuid"`
}

var _ bun.BeforeCreateTableHook = (*UserSkill)(nil)

func (*UserSkill) BeforeCreateTable(_ context.Context, q *bun.CreateTableQuery) error {
	q.ForeignKey(`("user_id") REFERENCES "users" ("id") ON DELETE CASCADE`).
		ForeignKey(`("skill_id") REFERENCES "skills" ("id") ON DELETE CASCADE`)
	return nil
}
