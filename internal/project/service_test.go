package project_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"mentorship/common/metrics"
	"mentorship/internal/apperror"
	"mentorship/internal/db"
	"mentorship/internal/events"
	"mentorship/internal/file"
	"mentorship/internal/membership"
	servicemetrics "mentorship/internal/metrics"
	"mentorship/internal/project"
	"mentorship/internal/skill"
	"mentorship/internal/user"
	"mentorship/testing/testdb"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
	p.err = nil
}

// failingTx fails every unit after its steps ran, forcing a rollback.
type failingTx struct {
	db.TxRunner
	failAfter func(ctx context.Context, tx bun.IDB) error
}

func (f failingTx) RunInTx(ctx context.Context, op string, fn db.TxFunc) error {
	return f.TxRunner.RunInTx(ctx, op, func(ctx context.Context, tx bun.IDB) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return f.failAfter(ctx, tx)
	})
}

type env struct {
	db        *bun.DB
	service   project.Service
	publisher *recordingPublisher
	deps      project.Deps
}

func newEnv(database *bun.DB) *env {
	m := metrics.NewMock()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	publisher := &recordingPublisher{}

	deps := project.Deps{
		Tx:       db.NewTxRunner(database, m),
		Repo:     project.NewRepository(database, m),
		Users:    user.NewRepository(database, m),
		Skills:   skill.NewLinker(database, m),
		Files:    file.NewManager(database, m),
		Registry: membership.NewRegistry(database, m, logger),
		Events:   publisher,
		Metrics:  servicemetrics.NewMock(),
		Logger:   logger,
	}
	return &env{db: database, service: project.NewService(deps), publisher: publisher, deps: deps}
}

func (e *env) user(t *testing.T, role user.Role) *user.User {
	t.Helper()
	u := &user.User{
		FirstName: "Barbara",
		LastName:  "Liskov",
		Email:     uuid.NewString() + "@example.com",
		Role:      role,
	}
	require.NoError(t, e.deps.Users.Create(context.Background(), u))
	return u
}

func (e *env) count(t *testing.T, table string) int {
	t.Helper()
	n, err := e.db.NewSelect().TableExpr(table).Count(context.Background())
	require.NoError(t, err)
	return n
}

func skillNames(p *project.Project) []string {
	out := make([]string, len(p.Skills))
	for i, s := range p.Skills {
		out[i] = s.Name
	}
	return out
}

func ptr[T any](v T) *T { return &v }

type countKey struct{}

// queryCounter counts queries issued with a context returned by track.
type queryCounter struct{}

func (*queryCounter) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (*queryCounter) AfterQuery(ctx context.Context, _ *bun.QueryEvent) {
	if n, ok := ctx.Value(countKey{}).(*atomic.Int64); ok {
		n.Add(1)
	}
}

func (*queryCounter) track(ctx context.Context) (context.Context, func() int64) {
	n := new(atomic.Int64)
	return context.WithValue(ctx, countKey{}, n), n.Load
}

func TestService(t *testing.T) {
	pgContainer := testdb.SetupSharedPostgres(t)
	defer pgContainer.Cleanup(t)

	pgContainer.RunMigrations(t)

	ctx := context.Background()
	e := newEnv(pgContainer.DB)
	counter := &queryCounter{}
	pgContainer.DB.AddQueryHook(counter)

	reset := func(t *testing.T) {
		testdb.CleanupTables(t, pgContainer.DB)
		e.publisher.reset()
	}

	t.Run("CreateAppliesDefaultsAndHydrates", func(t *testing.T) {
		reset(t)
		teacher := e.user(t, user.RoleTeacher)

		p, err := e.service.CreateProject(ctx, project.CreateProjectIntent{
			OwnerID:     teacher.ID,
			Title:       "Distributed cache",
			Description: "Build one",
			Skills:      []string{"go", "redis", "go"},
			Files: []file.Upload{
				{Name: "spec.pdf", Path: "/spec.pdf"},
				{Name: "notes.md", Path: "/notes.md"},
			},
		})
		require.NoError(t, err)

		assert.Equal(t, project.TypeNone, p.Type)
		assert.Equal(t, project.StudentsMany, p.StudentsCount)
		assert.Equal(t, project.DurationLessThanOne, p.Duration)
		assert.Equal(t, project.StatusBacklog, p.Status)
		require.NotNil(t, p.Owner)
		assert.Equal(t, teacher.ID, p.Owner.ID)
		assert.Equal(t, []string{"go", "redis"}, skillNames(p))
		require.Len(t, p.Files, 2)
		assert.Equal(t, "spec.pdf", p.Files[0].Name)
		assert.Equal(t, "notes.md", p.Files[1].Name)
		assert.Empty(t, p.Participants)
		assert.False(t, p.CreatedAt.IsZero())

		assert.Equal(t, []events.Type{events.ProjectCreated}, e.publisher.types())
	})

	t.Run("CreateValidation", func(t *testing.T) {
		reset(t)
		teacher := e.user(t, user.RoleTeacher)

		cases := map[string]project.CreateProjectIntent{
			"title":     {OwnerID: teacher.ID, Title: "x"},
			"type":      {OwnerID: teacher.ID, Title: "Valid", Type: "weekly"},
			"ownerId":   {Title: "Valid"},
			"duration":  {OwnerID: teacher.ID, Title: "Valid", Duration: "forever"},
			"skills[0]": {OwnerID: teacher.ID, Title: "Valid", Skills: []string{strings.Repeat("s", 51)}},
			"skills[1]": {OwnerID: teacher.ID, Title: "Valid", Skills: []string{"go", "  "}},
			"files[0].path": {OwnerID: teacher.ID, Title: "Valid", Files: []file.Upload{
				{Name: "a"},
			}},
		}
		for field, intent := range cases {
			_, err := e.service.CreateProject(ctx, intent)
			var verr *apperror.ValidationError
			require.ErrorAs(t, err, &verr, field)
			assert.Contains(t, verr.Fields, field)
		}

		assert.Zero(t, e.count(t, "projects"))
		assert.Empty(t, e.publisher.types())
	})

	t.Run("CreateSkillLengthIsMeasuredAfterTrimming", func(t *testing.T) {
		reset(t)
		teacher := e.user(t, user.RoleTeacher)
		name := strings.Repeat("s", skill.MaxNameLength)

		p, err := e.service.CreateProject(ctx, project.CreateProjectIntent{
			OwnerID: teacher.ID, Title: "Padded", Skills: []string{"  " + name + "  "},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{name}, skillNames(p))
	})

	t.Run("UpdateRejectsBlankRemovedSkill", func(t *testing.T) {
		reset(t)
		teacher := e.user(t, user.RoleTeacher)
		created, err := e.service.CreateProject(ctx, project.CreateProjectIntent{
			OwnerID: teacher.ID, Title: "Blank", Skills: []string{"go"},
		})
		require.NoError(t, err)

		_, err = e.service.UpdateProject(ctx, created.ID, project.UpdateProjectIntent{RemovedSkills: []string{" "}})
		var verr *apperror.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "removedSkills[0]")
	})

	t.Run("CreateTitleLengthCountsCharacters", func(t *testing.T) {
		reset(t)
		teacher := e.user(t, user.RoleTeacher)

		_, err := e.service.CreateProject(ctx, project.CreateProjectIntent{
			OwnerID: teacher.ID, Title: strings.Repeat("ü", 200),
		})
		require.NoError(t, err)

		_, err = e.service.CreateProject(ctx, project.CreateProjectIntent{
			OwnerID: teacher.ID, Title: strings.Repeat("ü", 201),
		})
		assert.ErrorIs(t, err, apperror.ErrValidation)
	})

	t.Run("CreateForUnknownOwner", func(t *testing.T) {
		reset(t)

		_, err := e.service.CreateProject(ctx, project.CreateProjectIntent{OwnerID: uuid.New(), Title: "Orphan"})
		assert.ErrorIs(t, err, apperror.ErrUserNotFound)
		assert.Zero(t, e.count(t, "projects"))
	})

	t.Run("CreateRollsBackOnLateFailure", func(t *testing.T) {
		reset(t)
		teacher := e.user(t, user.RoleTeacher)

		boom := errors.New("storage went away")
		deps := e.deps
		deps.Tx = failingTx{TxRunner: e.deps.Tx, failAfter: func(context.Context, bun.IDB) error { return boom }}
		svc := project.NewService(deps)

		_, err := svc.CreateProject(ctx, project.CreateProjectIntent{
			OwnerID: teacher.ID,
			Title:   "Doomed",
			Skills:  []string{"go"},
			Files:   []file.Upload{{Name: "a", Path: "/a"}},
		})
		assert.ErrorIs(t, err, boom)

		assert.Zero(t, e.count(t, "projects"))
		assert.Zero(t, e.count(t, "files"))
		assert.Zero(t, e.count(t, "projects_skills"))
		assert.Zero(t, e.count(t, "skills"))
		assert.Empty(t, e.publisher.types(), "nothing is published for a rolled back operation")
	})

	t.Run("UpdatePatchesOnlySuppliedFields", func(t *testing.T) {
		reset(t)
		teacher := e.user(t, user.RoleTeacher)
		created, err := e.service.CreateProject(ctx, project.CreateProjectIntent{
			OwnerID:     teacher.ID,
			Title:       "Original",
			Description: "keep me",
			Type:        project.TypeOngoing,
		})
		require.NoError(t, err)

		updated, err := e.service.UpdateProject(ctx, created.ID, project.UpdateProjectIntent{
			Title:    ptr("Renamed"),
			Duration: ptr(project.DurationOverSix),
		})
		require.NoError(t, err)

		assert.Equal(t, "Renamed", updated.Title)
		assert.Equal(t, "keep me", updated.Description)
		assert.Equal(t, project.TypeOngoing, updated.Type)
		assert.Equal(t, project.DurationOverSix, updated.Duration)
		assert.Equal(t, project.StatusBacklog, updated.Status)
		assert.False(t, updated.UpdatedAt.Before(created.UpdatedAt))
	})

	t.Run("UpdateSkillsAreAdditiveUnlessRemoved", func(t *testing.T) {
		reset(t)
		teacher := e.user(t, user.RoleTeacher)
		created, err := e.service.CreateProject(ctx, project.CreateProjectIntent{
			OwnerID: teacher.ID, Title: "Skills", Skills: []string{"go", "sql"},
		})
		require.NoError(t, err)

		updated, err := e.service.UpdateProject(ctx, created.ID, project.UpdateProjectIntent{
			Skills: []string{"docker"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"docker", "go", "sql"}, skillNames(updated))

		updated, err = e.service.UpdateProject(ctx, created.ID, project.UpdateProjectIntent{
			RemovedSkills: []string{"sql"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"docker", "go"}, skillNames(updated))
	})

	t.Run("UpdateReplacesFiles", func(t *testing.T) {
		reset(t)
		teacher := e.user(t, user.RoleTeacher)
		created, err := e.service.CreateProject(ctx, project.CreateProjectIntent{
			OwnerID: teacher.ID, Title: "Files",
			Files: []file.Upload{{Name: "old.txt", Path: "/old.txt"}, {Name: "keep.txt", Path: "/keep.txt"}},
		})
		require.NoError(t, err)

		updated, err := e.service.UpdateProject(ctx, created.ID, project.UpdateProjectIntent{
			RemovedFiles: []uuid.UUID{created.Files[0].ID, uuid.New()},
			Files:        []file.Upload{{Name: "new.txt", Path: "/new.txt"}},
		})
		require.NoError(t, err)

		require.Len(t, updated.Files, 2)
		assert.Equal(t, "keep.txt", updated.Files[0].Name)
		assert.Equal(t, "new.txt", updated.Files[1].Name)
	})

	t.Run("UpdateMissingProject", func(t *testing.T) {
		reset(t)

		_, err := e.service.UpdateProject(ctx, uuid.New(), project.UpdateProjectIntent{Title: ptr("Nope")})
		assert.ErrorIs(t, err, apperror.ErrProjectNotFound)
	})

	t.Run("UpdateValidation", func(t *testing.T) {
		reset(t)
		teacher := e.user(t, user.RoleTeacher)
		created, err := e.service.CreateProject(ctx, project.CreateProjectIntent{OwnerID: teacher.ID, Title: "Valid"})
		require.NoError(t, err)

		_, err = e.service.UpdateProject(ctx, created.ID, project.UpdateProjectIntent{
			Description: ptr(strings.Repeat("d", 2001)),
		})
		assert.ErrorIs(t, err, apperror.ErrValidation)

		got, err := e.service.GetProject(ctx, created.ID)
		require.NoError(t, err)
		assert.Empty(t, got.Description)
	})

	t.Run("RemoveDeletesDependentsButKeepsSkillsAndUsers", func(t *testing.T) {
		reset(t)
		teacher := e.user(t, user.RoleTeacher)
		student := e.user(t, user.RoleStudent)
		created, err := e.service.CreateProject(ctx, project.CreateProjectIntent{
			OwnerID: teacher.ID, Title: "Temporary",
			Skills: []string{"go"},
			Files:  []file.Upload{{Name: "a", Path: "/a"}},
		})
		require.NoError(t, err)
		require.NoError(t, e.service.Request(ctx, created.ID, student.ID))

		require.NoError(t, e.service.RemoveProject(ctx, created.ID))

		_, err = e.service.GetProject(ctx, created.ID)
		assert.ErrorIs(t, err, apperror.ErrProjectNotFound)
		assert.Zero(t, e.count(t, "files"))
		assert.Zero(t, e.count(t, "projects_skills"))
		assert.Zero(t, e.count(t, "projects_users"))
		assert.Equal(t, 1, e.count(t, "skills"))
		assert.Equal(t, 2, e.count(t, "users"))

		assert.ErrorIs(t, e.service.RemoveProject(ctx, created.ID), apperror.ErrProjectNotFound)
	})

	t.Run("MembershipLifecycle", func(t *testing.T) {
		reset(t)
		teacher := e.user(t, user.RoleTeacher)
		student := e.user(t, user.RoleStudent)
		created, err := e.service.CreateProject(ctx, project.CreateProjectIntent{OwnerID: teacher.ID, Title: "Mentored"})
		require.NoError(t, err)

		require.NoError(t, e.service.Request(ctx, created.ID, student.ID))
		assert.ErrorIs(t, e.service.Request(ctx, created.ID, student.ID), apperror.ErrDuplicateMembership)

		got, err := e.service.GetProject(ctx, created.ID)
		require.NoError(t, err)
		require.Len(t, got.Participants, 1)
		assert.Equal(t, student.ID, got.Participants[0].ID)
		assert.False(t, got.Participants[0].IsAccepted)

		require.NoError(t, e.service.AcceptUser(ctx, created.ID, student.ID))
		got, err = e.service.GetProject(ctx, created.ID)
		require.NoError(t, err)
		assert.True(t, got.Participants[0].IsAccepted)

		require.NoError(t, e.service.CancelRequest(ctx, created.ID, student.ID))
		assert.ErrorIs(t, e.service.CancelRequest(ctx, created.ID, student.ID), apperror.ErrMembershipNotFound)

		require.NoError(t, e.service.Request(ctx, created.ID, student.ID))
		require.NoError(t, e.service.RemoveRequest(ctx, created.ID, student.ID))

		assert.Equal(t, []events.Type{
			events.ProjectCreated,
			events.MembershipRequested,
			events.MembershipAccepted,
			events.MembershipCanceled,
			events.MembershipRequested,
			events.MembershipRemoved,
		}, e.publisher.types())
	})

	t.Run("RequestByUnknownUser", func(t *testing.T) {
		reset(t)
		teacher := e.user(t, user.RoleTeacher)
		created, err := e.service.CreateProject(ctx, project.CreateProjectIntent{OwnerID: teacher.ID, Title: "Lonely"})
		require.NoError(t, err)

		assert.ErrorIs(t, e.service.Request(ctx, created.ID, uuid.New()), apperror.ErrUserNotFound)
		assert.ErrorIs(t, e.service.Request(ctx, uuid.New(), teacher.ID), apperror.ErrProjectNotFound)
	})

	t.Run("CompleteScenario", func(t *testing.T) {
		reset(t)
		teacher := e.user(t, user.RoleTeacher)
		s1 := e.user(t, user.RoleStudent)
		s2 := e.user(t, user.RoleStudent)
		outsider := e.user(t, user.RoleStudent)
		created, err := e.service.CreateProject(ctx, project.CreateProjectIntent{OwnerID: teacher.ID, Title: "Capstone"})
		require.NoError(t, err)

		require.NoError(t, e.service.Request(ctx, created.ID, s1.ID))
		require.NoError(t, e.service.Request(ctx, created.ID, s2.ID))
		require.NoError(t, e.service.AcceptUser(ctx, created.ID, s1.ID))

		report, err := e.service.Complete(ctx, created.ID, project.CompleteProjectIntent{Reviews: []membership.Review{
			{UserID: s1.ID, Review: "excellent"},
			{UserID: s2.ID, Review: "good"},
			{UserID: outsider.ID, Review: "ignored"},
		}})
		require.NoError(t, err)
		assert.ElementsMatch(t, []uuid.UUID{s1.ID, s2.ID}, report.Completed)
		assert.Equal(t, []uuid.UUID{outsider.ID}, report.Skipped)

		got, err := e.service.GetProject(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, project.StatusDone, got.Status)
		require.Len(t, got.Participants, 2)
		for _, p := range got.Participants {
			assert.True(t, p.IsAccepted)
			require.NotNil(t, p.Review)
			require.NotNil(t, p.CompletedAt)
		}

		_, err = e.service.Complete(ctx, created.ID, project.CompleteProjectIntent{})
		assert.ErrorIs(t, err, apperror.ErrProjectAlreadyCompleted)

		assert.ErrorIs(t, e.service.Request(ctx, created.ID, outsider.ID), apperror.ErrProjectAlreadyCompleted)
		assert.ErrorIs(t, e.service.CancelRequest(ctx, created.ID, s1.ID), apperror.ErrProjectAlreadyCompleted)
		assert.ErrorIs(t, e.service.AcceptUser(ctx, created.ID, s2.ID), apperror.ErrProjectAlreadyCompleted)
		assert.ErrorIs(t, e.service.RemoveRequest(ctx, created.ID, s2.ID), apperror.ErrProjectAlreadyCompleted)

		// Scalar edits stay allowed and never reopen the project.
		updated, err := e.service.UpdateProject(ctx, created.ID, project.UpdateProjectIntent{Title: ptr("Capstone 2026")})
		require.NoError(t, err)
		assert.Equal(t, project.StatusDone, updated.Status)
	})

	t.Run("CompleteKeepsLongReviews", func(t *testing.T) {
		reset(t)
		teacher := e.user(t, user.RoleTeacher)
		student := e.user(t, user.RoleStudent)
		created, err := e.service.CreateProject(ctx, project.CreateProjectIntent{OwnerID: teacher.ID, Title: "Thesis"})
		require.NoError(t, err)
		require.NoError(t, e.service.Request(ctx, created.ID, student.ID))

		review := strings.Repeat("a", 5000)
		report, err := e.service.Complete(ctx, created.ID, project.CompleteProjectIntent{Reviews: []membership.Review{
			{UserID: student.ID, Review: review},
		}})
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{student.ID}, report.Completed)

		got, err := e.service.GetProject(ctx, created.ID)
		require.NoError(t, err)
		require.Len(t, got.Participants, 1)
		require.NotNil(t, got.Participants[0].Review)
		assert.Len(t, *got.Participants[0].Review, 5000)
	})

	t.Run("CompleteMissingProject", func(t *testing.T) {
		reset(t)

		_, err := e.service.Complete(ctx, uuid.New(), project.CompleteProjectIntent{})
		assert.ErrorIs(t, err, apperror.ErrProjectNotFound)
	})

	t.Run("CompleteRollsBackWhenReviewsFail", func(t *testing.T) {
		reset(t)
		teacher := e.user(t, user.RoleTeacher)
		created, err := e.service.CreateProject(ctx, project.CreateProjectIntent{OwnerID: teacher.ID, Title: "Atomic"})
		require.NoError(t, err)

		boom := errors.New("review write failed")
		deps := e.deps
		deps.Tx = failingTx{TxRunner: e.deps.Tx, failAfter: func(context.Context, bun.IDB) error { return boom }}

		_, err = project.NewService(deps).Complete(ctx, created.ID, project.CompleteProjectIntent{})
		assert.ErrorIs(t, err, boom)

		got, err := e.service.GetProject(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, project.StatusBacklog, got.Status)
	})

	t.Run("ConcurrentRequestsProduceOneMembership", func(t *testing.T) {
		reset(t)
		teacher := e.user(t, user.RoleTeacher)
		student := e.user(t, user.RoleStudent)
		created, err := e.service.CreateProject(ctx, project.CreateProjectIntent{OwnerID: teacher.ID, Title: "Race"})
		require.NoError(t, err)

		const attempts = 6
		var wg sync.WaitGroup
		errs := make([]error, attempts)
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = e.service.Request(ctx, created.ID, student.ID)
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.ErrorIs(t, err, apperror.ErrDuplicateMembership)
		}
		assert.Equal(t, 1, succeeded)
		assert.Equal(t, 1, e.count(t, "projects_users"))
	})

	t.Run("ListProjectsNewestFirstWithFilters", func(t *testing.T) {
		reset(t)
		alice := e.user(t, user.RoleTeacher)
		bob := e.user(t, user.RoleTeacher)

		first, err := e.service.CreateProject(ctx, project.CreateProjectIntent{OwnerID: alice.ID, Title: "First"})
		require.NoError(t, err)
		second, err := e.service.CreateProject(ctx, project.CreateProjectIntent{OwnerID: bob.ID, Title: "Second"})
		require.NoError(t, err)
		third, err := e.service.CreateProject(ctx, project.CreateProjectIntent{OwnerID: alice.ID, Title: "Third"})
		require.NoError(t, err)
		_, err = e.service.Complete(ctx, first.ID, project.CompleteProjectIntent{})
		require.NoError(t, err)

		all, err := e.service.ListProjects(ctx, project.ListFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []uuid.UUID{third.ID, second.ID, first.ID}, []uuid.UUID{all[0].ID, all[1].ID, all[2].ID})

		mine, err := e.service.ListProjects(ctx, project.ListFilter{OwnerID: &alice.ID})
		require.NoError(t, err)
		require.Len(t, mine, 2)
		assert.Equal(t, third.ID, mine[0].ID)

		done, err := e.service.ListProjects(ctx, project.ListFilter{Status: ptr(project.StatusDone)})
		require.NoError(t, err)
		require.Len(t, done, 1)
		assert.Equal(t, first.ID, done[0].ID)

		backlog, err := e.service.ListProjects(ctx, project.ListFilter{OwnerID: &alice.ID, Status: ptr(project.StatusBacklog)})
		require.NoError(t, err)
		require.Len(t, backlog, 1)
		assert.Equal(t, third.ID, backlog[0].ID)
	})

	t.Run("ListProjectsLoadsGraphInConstantQueries", func(t *testing.T) {
		reset(t)
		teacher := e.user(t, user.RoleTeacher)
		students := []*user.User{e.user(t, user.RoleStudent), e.user(t, user.RoleStudent)}

		create := func(title string) *project.Project {
			p, err := e.service.CreateProject(ctx, project.CreateProjectIntent{
				OwnerID: teacher.ID, Title: title,
				Skills: []string{"sql", "go"},
				Files:  []file.Upload{{Name: "b.md", Path: "/b.md"}, {Name: "a.md", Path: "/a.md"}},
			})
			require.NoError(t, err)
			for _, s := range students {
				require.NoError(t, e.service.Request(ctx, p.ID, s.ID))
			}
			return p
		}

		create("Only")
		counted, queries := counter.track(ctx)
		one, err := e.service.ListProjects(counted, project.ListFilter{})
		require.NoError(t, err)
		require.Len(t, one, 1)
		single := queries()

		for _, title := range []string{"Second", "Third", "Fourth"} {
			create(title)
		}
		counted, queries = counter.track(ctx)
		all, err := e.service.ListProjects(counted, project.ListFilter{})
		require.NoError(t, err)
		require.Len(t, all, 4)
		assert.Equal(t, single, queries(), "query count must not grow with the number of projects")
		assert.LessOrEqual(t, single, int64(5))

		for _, p := range all {
			require.NotNil(t, p.Owner)
			assert.Equal(t, teacher.ID, p.Owner.ID)
			assert.Equal(t, []string{"go", "sql"}, skillNames(&p))
			require.Len(t, p.Files, 2)
			assert.Equal(t, "b.md", p.Files[0].Name)
			assert.Equal(t, "a.md", p.Files[1].Name)
			require.Len(t, p.Participants, 2)
			assert.Equal(t, students[0].ID, p.Participants[0].ID)
			assert.Equal(t, students[1].ID, p.Participants[1].ID)
		}
	})

	t.Run("ListProjectsWithoutRelationsReturnsEmptySlices", func(t *testing.T) {
		reset(t)
		teacher := e.user(t, user.RoleTeacher)
		_, err := e.service.CreateProject(ctx, project.CreateProjectIntent{OwnerID: teacher.ID, Title: "Bare"})
		require.NoError(t, err)

		all, err := e.service.ListProjects(ctx, project.ListFilter{})
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.NotNil(t, all[0].Files)
		assert.NotNil(t, all[0].Skills)
		assert.NotNil(t, all[0].Participants)
	})

	t.Run("PublishFailureDoesNotFailOperation", func(t *testing.T) {
		reset(t)
		teacher := e.user(t, user.RoleTeacher)
		e.publisher.err = errors.New("nats down")

		created, err := e.service.CreateProject(ctx, project.CreateProjectIntent{OwnerID: teacher.ID, Title: "Quiet"})
		require.NoError(t, err)
		assert.Equal(t, "Quiet", created.Title)
	})
}
