package project

import (
	"context"
	"time"

	"mentorship/internal/file"
	"mentorship/internal/membership"
	"mentorship/internal/skill"
	"mentorship/internal/user"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Status string

const (
	StatusBacklog    Status = "backlog"
	StatusInProgress Status = "inprogress"
	StatusDone       Status = "done"
)

type Type string

const (
	TypeOngoing Type = "ongoing"
	TypeOnetime Type = "onetime"
	TypeNone    Type = "none"
)

type StudentsCount string

const (
	StudentsOne  StudentsCount = "one"
	StudentsMany StudentsCount = "many"
)

type Duration string

const (
	DurationLessThanOne Duration = "lessone"
	DurationOneToThree  Duration = "onethree"
	DurationThreeToSix  Duration = "threesix"
	DurationOverSix     Duration = "oversix"
)

type Project struct {
	bun.BaseModel `bun:"table:projects,alias:p"`

	ID            uuid.UUID     `bun:"id,pk,type:uuid" json:"id"`
	Title         string        `bun:"title,notnull,type:varchar(200)" json:"title"`
	Description   string        `bun:"description,notnull,type:varchar(2000)" json:"description"`
	Type          Type          `bun:"type,notnull,default:'none'" json:"type"`
	StudentsCount StudentsCount `bun:"students_count,notnull,default:'many'" json:"studentsCount"`
	Duration      Duration      `bun:"duration,notnull,default:'lessone'" json:"duration"`
	Status        Status        `bun:"status,notnull,default:'backlog'" json:"status"`
	UserID        uuid.UUID     `bun:"user_id,notnull,type:uuid" json:"userId"`
	CreatedAt     time.Time     `bun:"created_at,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt     time.Time     `bun:"updated_at,notnull,default:current_timestamp" json:"updatedAt"`

	Owner        *user.User    `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	Files        []file.File   `bun:"rel:has-many,join:id=project_id" json:"files"`
	Skills       []skill.Skill `bun:"m2m:projects_skills,join:Project=Skill" json:"skills"`
	Participants []Participant `bun:"-" json:"participants"`
}

var _ bun.BeforeCreateTableHook = (*Project)(nil)

func (*Project) BeforeCreateTable(_ context.Context, q *bun.CreateTableQuery) error {
	q.ForeignKey(`("user_id") REFERENCES "users" ("id") ON DELETE CASCADE`)
	return nil
}

// ProjectSkill links projects to skills. It must be registered with the DB before
// Project is used so the Skills relation can resolve.
type ProjectSkill struct {
	bun.BaseModel `bun:"table:projects_skills,alias:ps"`

	ProjectID uuid.UUID    `bun:"project_id,pk,type:uuid"`
	Project   *Project     `bun:"rel:belongs-to,join:project_id=id"`
	SkillID   uuid.UUID    `bun:"skill_id,pk,type:uuid"`
	Skill     *skill.Skill `bun:"rel:belongs-to,join:skill_id=id"`
}

var _ bun.BeforeCreateTableHook = (*ProjectSkill)(nil)

func (*ProjectSkill) BeforeCreateTable(_ context.Context, q *bun.CreateTableQuery) error {
	q.ForeignKey(`("project_id") REFERENCES "projects" ("id") ON DELETE CASCADE`).
		ForeignKey(`("skill_id") REFERENCES "skills" ("id") ON DELETE CASCADE`)
	return nil
}

func (p *Project) SkillOwnerID() uuid.UUID    { return p.ID }
func (p *Project) SkillJoin() skill.JoinTable { return skill.ProjectSkills }

func (p *Project) Done() bool {
	return p.Status == StatusDone
}

// Participant is a user attached to a project through its membership record.
type Participant struct {
	user.User
	IsAccepted  bool       `json:"isAccepted"`
	Review      *string    `json:"review,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

func newParticipant(u user.User, m membership.Membership) Participant {
	return Participant{
		User:        u,
		IsAccepted:  m.IsAccepted,
		Review:      m.Review,
		CompletedAt: m.CompletedAt,
	}
}

// ListFilter narrows ListProjects. Zero value lists everything newest first.
type ListFilter struct {
	OwnerID *uuid.UUID
	Status  *Status
}
