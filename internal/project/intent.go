package project

import (
	"mentorship/internal/file"
	"mentorship/internal/membership"

	"github.com/google/uuid"
)

// CreateProjectIntent carries a new project. Skill names are trimmed and length-checked
// by skill.NormalizeNames after the struct is validated.
type CreateProjectIntent struct {
	OwnerID       uuid.UUID     `json:"ownerId" validate:"required"`
	Title         string        `json:"title" validate:"required,min=2,max=200"`
	Description   string        `json:"description" validate:"max=2000"`
	Type          Type          `json:"type" validate:"omitempty,oneof=ongoing onetime none"`
	StudentsCount StudentsCount `json:"studentsCount" validate:"omitempty,oneof=one many"`
	Duration      Duration      `json:"duration" validate:"omitempty,oneof=lessone onethree threesix oversix"`
	Skills        []string      `json:"skills"`
	Files         []file.Upload `json:"files" validate:"dive"`
}

func (in CreateProjectIntent) project() *Project {
	p := &Project{
		ID:            uuid.New(),
		Title:         in.Title,
		Description:   in.Description,
		Type:          in.Type,
		StudentsCount: in.StudentsCount,
		Duration:      in.Duration,
		Status:        StatusBacklog,
		UserID:        in.OwnerID,
	}
	if p.Type == "" {
		p.Type = TypeNone
	}
	if p.StudentsCount == "" {
		p.StudentsCount = StudentsMany
	}
	if p.Duration == "" {
		p.Duration = DurationLessThanOne
	}
	return p
}

// UpdateProjectIntent patches only non-nil scalar fields. Skills are linked additively;
// RemovedSkills is the only way to unlink. Removals run before additions for both
// skills and files.
type UpdateProjectIntent struct {
	Title         *string        `json:"title" validate:"omitempty,min=2,max=200"`
	Description   *string        `json:"description" validate:"omitempty,max=2000"`
	Type          *Type          `json:"type" validate:"omitempty,oneof=ongoing onetime none"`
	StudentsCount *StudentsCount `json:"studentsCount" validate:"omitempty,oneof=one many"`
	Duration      *Duration      `json:"duration" validate:"omitempty,oneof=lessone onethree threesix oversix"`
	Skills        []string       `json:"skills"`
	RemovedSkills []string       `json:"removedSkills"`
	RemovedFiles  []uuid.UUID    `json:"removedFiles"`
	Files         []file.Upload  `json:"files" validate:"dive"`
}

func (in UpdateProjectIntent) hasScalars() bool {
	return in.Title != nil || in.Description != nil || in.Type != nil ||
		in.StudentsCount != nil || in.Duration != nil
}

type CompleteProjectIntent struct {
	Reviews []membership.Review `json:"reviews" validate:"dive"`
}
