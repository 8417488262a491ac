package user

import (
	"time"

	"mentorship/internal/membership"
	"mentorship/internal/skill"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID        uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	FirstName string    `bun:"first_name,notnull,type:varchar(100)" json:"firstName" validate:"required,max=100"`
	LastName  string    `bun:"last_name,notnull,type:varchar(100)" json:"lastName" validate:"required,max=100"`
	Email     string    `bun:"email,notnull,unique,type:varchar(255)" json:"email" validate:"required,email,max=255"`
	Role      Role      `bun:"role,notnull,default:'student'" json:"role" validate:"required,oneof=student teacher"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"-"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp" json:"-"`
}

func (u *User) SkillOwnerID() uuid.UUID    { return u.ID }
func (u *User) SkillJoin() skill.JoinTable { return skill.UserSkills }

// Profile is a user with its reverse relations.
type Profile struct {
	User
	Skills          []skill.Skill           `json:"skills"`
	OwnedProjectIDs []uuid.UUID             `json:"ownedProjectIds"`
	Requested       []membership.Membership `json:"requestedProjects"`
}
