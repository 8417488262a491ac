package project

import (
	"context"
	"log/slog"

	"mentorship/internal/apperror"
	"mentorship/internal/db"
	"mentorship/internal/events"
	"mentorship/internal/file"
	"mentorship/internal/membership"
	"mentorship/internal/metrics"
	"mentorship/internal/skill"
	"mentorship/internal/user"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Service coordinates the project lifecycle. Every mutating call runs as one
// transaction; lifecycle events are published only after commit.
type Service interface {
	CreateProject(ctx context.Context, intent CreateProjectIntent) (*Project, error)
	UpdateProject(ctx context.Context, id uuid.UUID, intent UpdateProjectIntent) (*Project, error)
	RemoveProject(ctx context.Context, id uuid.UUID) error
	GetProject(ctx context.Context, id uuid.UUID) (*Project, error)
	ListProjects(ctx context.Context, filter ListFilter) ([]Project, error)

	Request(ctx context.Context, id, userID uuid.UUID) error
	CancelRequest(ctx context.Context, id, userID uuid.UUID) error
	AcceptUser(ctx context.Context, id, userID uuid.UUID) error
	RemoveRequest(ctx context.Context, id, userID uuid.UUID) error
	Complete(ctx context.Context, id uuid.UUID, intent CompleteProjectIntent) (*membership.CompletionReport, error)
}

// Deps groups the collaborators of the coordinator.
type Deps struct {
	Tx       db.TxRunner
	Repo     Repository
	Users    user.Repository
	Skills   *skill.Linker
	Files    *file.Manager
	Registry *membership.Registry
	Events   events.Publisher
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

type service struct {
	tx       db.TxRunner
	repo     Repository
	users    user.Repository
	skills   *skill.Linker
	files    *file.Manager
	registry *membership.Registry
	events   events.Publisher
	metrics  *metrics.Metrics
	logger   *slog.Logger
	validate *validator.Validate
}

func NewService(d Deps) Service {
	if d.Events == nil {
		d.Events = events.Noop{}
	}
	return &service{
		tx:       d.Tx,
		repo:     d.Repo,
		users:    d.Users,
		skills:   d.Skills,
		files:    d.Files,
		registry: d.Registry,
		events:   d.Events,
		metrics:  d.Metrics,
		logger:   d.Logger,
		validate: apperror.NewValidator(),
	}
}

func (s *service) CreateProject(ctx context.Context, intent CreateProjectIntent) (*Project, error) {
	if err := s.validate.Struct(&intent); err != nil {
		return nil, apperror.FromValidator(err)
	}
	names, err := skill.NormalizeNames("skills", intent.Skills)
	if err != nil {
		return nil, err
	}

	p := intent.project()
	err = s.tx.RunInTx(ctx, "create_project", func(ctx context.Context, tx bun.IDB) error {
		if _, err := s.users.WithTx(tx).GetByID(ctx, intent.OwnerID); err != nil {
			return err
		}
		if err := s.repo.WithTx(tx).Create(ctx, p); err != nil {
			return err
		}
		if _, err := s.skills.WithTx(tx).Attach(ctx, p, names); err != nil {
			return err
		}
		_, err := s.files.WithTx(tx).AddFiles(ctx, p.ID, intent.Files)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "project created", "project_id", p.ID, "owner_id", p.UserID)
	s.metrics.RecordProjectCreated(ctx)
	s.publish(ctx, events.ProjectCreated, p.ID, nil, nil)

	return s.GetProject(ctx, p.ID)
}

func (s *service) UpdateProject(ctx context.Context, id uuid.UUID, intent UpdateProjectIntent) (*Project, error) {
	if err := s.validate.Struct(&intent); err != nil {
		return nil, apperror.FromValidator(err)
	}
	added, err := skill.NormalizeNames("skills", intent.Skills)
	if err != nil {
		return nil, err
	}
	removed, err := skill.NormalizeNames("removedSkills", intent.RemovedSkills)
	if err != nil {
		return nil, err
	}

	err = s.tx.RunInTx(ctx, "update_project", func(ctx context.Context, tx bun.IDB) error {
		repo := s.repo.WithTx(tx)
		p, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := repo.Patch(ctx, id, intent); err != nil {
			return err
		}

		skills := s.skills.WithTx(tx)
		if err := skills.Detach(ctx, p, removed); err != nil {
			return err
		}
		if _, err := skills.Attach(ctx, p, added); err != nil {
			return err
		}

		files := s.files.WithTx(tx)
		if err := files.RemoveFiles(ctx, id, intent.RemovedFiles); err != nil {
			return err
		}
		_, err = files.AddFiles(ctx, id, intent.Files)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "project updated", "project_id", id)
	s.publish(ctx, events.ProjectUpdated, id, nil, nil)

	return s.GetProject(ctx, id)
}

// RemoveProject deletes the project with its files, skill links and memberships.
// Skill rows and users are left in place.
func (s *service) RemoveProject(ctx context.Context, id uuid.UUID) error {
	err := s.tx.RunInTx(ctx, "remove_project", func(ctx context.Context, tx bun.IDB) error {
		repo := s.repo.WithTx(tx)
		p, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := s.files.WithTx(tx).RemoveAll(ctx, id); err != nil {
			return err
		}
		if err := s.skills.WithTx(tx).DetachAll(ctx, p); err != nil {
			return err
		}
		if err := s.registry.WithTx(tx).RemoveAllForProject(ctx, id); err != nil {
			return err
		}
		return repo.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "project removed", "project_id", id)
	s.metrics.RecordProjectRemoved(ctx)
	s.publish(ctx, events.ProjectRemoved, id, nil, nil)
	return nil
}

func (s *service) GetProject(ctx context.Context, id uuid.UUID) (*Project, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	batch := []Project{*p}
	if err := s.hydrate(ctx, batch); err != nil {
		return nil, err
	}
	return &batch[0], nil
}

func (s *service) ListProjects(ctx context.Context, filter ListFilter) ([]Project, error) {
	projects, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if err := s.hydrate(ctx, projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// hydrate attaches participants to loaded projects with one membership query and one
// user query for the whole batch. Files and skills arrive with the project rows.
func (s *service) hydrate(ctx context.Context, projects []Project) error {
	if len(projects) == 0 {
		return nil
	}

	projectIDs := make([]uuid.UUID, len(projects))
	for i := range projects {
		projectIDs[i] = projects[i].ID
	}
	memberships, err := s.registry.ListByProjects(ctx, projectIDs)
	if err != nil {
		return err
	}

	userIDs := make([]uuid.UUID, 0, len(memberships))
	seen := make(map[uuid.UUID]struct{}, len(memberships))
	for _, m := range memberships {
		if _, ok := seen[m.UserID]; ok {
			continue
		}
		seen[m.UserID] = struct{}{}
		userIDs = append(userIDs, m.UserID)
	}
	users, err := s.users.GetByIDs(ctx, userIDs)
	if err != nil {
		return err
	}
	byID := make(map[uuid.UUID]user.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	byProject := make(map[uuid.UUID][]Participant, len(projects))
	for _, m := range memberships {
		if u, ok := byID[m.UserID]; ok {
			byProject[m.ProjectID] = append(byProject[m.ProjectID], newParticipant(u, m))
		}
	}

	for i := range projects {
		p := &projects[i]
		p.Participants = byProject[p.ID]
		if p.Participants == nil {
			p.Participants = []Participant{}
		}
		if p.Files == nil {
			p.Files = []file.File{}
		}
		if p.Skills == nil {
			p.Skills = []skill.Skill{}
		}
	}
	return nil
}

func (s *service) Request(ctx context.Context, id, userID uuid.UUID) error {
	err := s.tx.RunInTx(ctx, "request_participation", func(ctx context.Context, tx bun.IDB) error {
		if _, err := s.users.WithTx(tx).GetByID(ctx, userID); err != nil {
			return err
		}
		_, err := s.registry.WithTx(tx).Request(ctx, id, userID)
		return err
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "participation requested", "project_id", id, "user_id", userID)
	s.metrics.RecordMembershipRequested(ctx)
	s.publish(ctx, events.MembershipRequested, id, &userID, nil)
	return nil
}

func (s *service) CancelRequest(ctx context.Context, id, userID uuid.UUID) error {
	err := s.tx.RunInTx(ctx, "cancel_request", func(ctx context.Context, tx bun.IDB) error {
		return s.registry.WithTx(tx).CancelRequest(ctx, id, userID)
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "participation request canceled", "project_id", id, "user_id", userID)
	s.metrics.RecordMembershipCanceled(ctx)
	s.publish(ctx, events.MembershipCanceled, id, &userID, nil)
	return nil
}

func (s *service) AcceptUser(ctx context.Context, id, userID uuid.UUID) error {
	err := s.tx.RunInTx(ctx, "accept_user", func(ctx context.Context, tx bun.IDB) error {
		return s.registry.WithTx(tx).Accept(ctx, id, userID)
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "participant accepted", "project_id", id, "user_id", userID)
	s.metrics.RecordMembershipAccepted(ctx)
	s.publish(ctx, events.MembershipAccepted, id, &userID, nil)
	return nil
}

func (s *service) RemoveRequest(ctx context.Context, id, userID uuid.UUID) error {
	err := s.tx.RunInTx(ctx, "remove_request", func(ctx context.Context, tx bun.IDB) error {
		return s.registry.WithTx(tx).Remove(ctx, id, userID)
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "participant removed", "project_id", id, "user_id", userID)
	s.metrics.RecordMembershipCanceled(ctx)
	s.publish(ctx, events.MembershipRemoved, id, &userID, nil)
	return nil
}

// Complete marks the project done and stamps the supplied reviews in one transaction.
// Completing a project twice fails with apperror.ErrProjectAlreadyCompleted.
func (s *service) Complete(ctx context.Context, id uuid.UUID, intent CompleteProjectIntent) (*membership.CompletionReport, error) {
	if err := s.validate.Struct(&intent); err != nil {
		return nil, apperror.FromValidator(err)
	}

	var report *membership.CompletionReport
	err := s.tx.RunInTx(ctx, "complete_project", func(ctx context.Context, tx bun.IDB) error {
		if err := s.repo.WithTx(tx).MarkDone(ctx, id); err != nil {
			return err
		}
		var err error
		report, err = s.registry.WithTx(tx).Complete(ctx, id, intent.Reviews)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "project completed",
		"project_id", id,
		"completed", len(report.Completed),
		"skipped", len(report.Skipped),
	)
	s.metrics.RecordProjectCompleted(ctx, len(report.Skipped))
	s.publish(ctx, events.ProjectCompleted, id, nil, report)
	return report, nil
}

// publish is best effort: the transaction has already committed.
func (s *service) publish(ctx context.Context, t events.Type, projectID uuid.UUID, userID *uuid.UUID, payload interface{}) {
	event, err := events.New(t, projectID, userID, payload)
	if err == nil {
		err = s.events.Publish(ctx, event)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "failed to publish lifecycle event",
			"type", t,
			"project_id", projectID,
			"error", err,
		)
	}
}
