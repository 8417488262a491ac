package user_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"mentorship/common/metrics"
	"mentorship/internal/apperror"
	"mentorship/internal/membership"
	"mentorship/internal/project"
	"mentorship/internal/skill"
	"mentorship/internal/user"
	"mentorship/testing/testdb"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserService(t *testing.T) {
	pgContainer := testdb.SetupSharedPostgres(t)
	defer pgContainer.Cleanup(t)

	pgContainer.RunMigrations(t)

	ctx := context.Background()
	m := metrics.NewMock()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := user.NewRepository(pgContainer.DB, m)
	registry := membership.NewRegistry(pgContainer.DB, m, logger)
	service := user.NewService(repo, skill.NewLinker(pgContainer.DB, m), registry)

	newUser := func(email string) *user.User {
		return &user.User{FirstName: "Katherine", LastName: "Johnson", Email: email}
	}

	t.Run("CreateDefaultsToStudent", func(t *testing.T) {
		testdb.CleanupTables(t, pgContainer.DB)

		u := newUser("katherine@example.com")
		require.NoError(t, service.CreateUser(ctx, u))
		assert.NotEqual(t, uuid.Nil, u.ID)
		assert.Equal(t, user.RoleStudent, u.Role)

		got, err := service.GetUser(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "katherine@example.com", got.Email)
	})

	t.Run("CreateValidation", func(t *testing.T) {
		testdb.CleanupTables(t, pgContainer.DB)

		err := service.CreateUser(ctx, &user.User{FirstName: "K", Email: "not-an-email"})
		var verr *apperror.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "must be a valid email", verr.Fields["email"])
		assert.Equal(t, "is required", verr.Fields["lastName"])

		err = service.CreateUser(ctx, &user.User{FirstName: "K", LastName: "J", Email: "k@example.com", Role: "admin"})
		assert.ErrorIs(t, err, apperror.ErrValidation)
	})

	t.Run("DuplicateEmail", func(t *testing.T) {
		testdb.CleanupTables(t, pgContainer.DB)

		require.NoError(t, service.CreateUser(ctx, newUser("dup@example.com")))
		err := service.CreateUser(ctx, newUser("dup@example.com"))

		var verr *apperror.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, user.ErrEmailTaken.Error(), verr.Fields["email"])
	})

	t.Run("GetUnknown", func(t *testing.T) {
		testdb.CleanupTables(t, pgContainer.DB)

		_, err := service.GetUser(ctx, uuid.New())
		assert.ErrorIs(t, err, apperror.ErrUserNotFound)
	})

	t.Run("AttachSkills", func(t *testing.T) {
		testdb.CleanupTables(t, pgContainer.DB)
		u := newUser("skills@example.com")
		require.NoError(t, service.CreateUser(ctx, u))

		_, err := service.AttachSkills(ctx, u.ID, []string{"go"})
		require.NoError(t, err)
		skills, err := service.AttachSkills(ctx, u.ID, []string{"sql", "go"})
		require.NoError(t, err)

		require.Len(t, skills, 2)
		assert.Equal(t, "go", skills[0].Name)
		assert.Equal(t, "sql", skills[1].Name)

		_, err = service.AttachSkills(ctx, uuid.New(), []string{"go"})
		assert.ErrorIs(t, err, apperror.ErrUserNotFound)
	})

	t.Run("ProfileListsReverseRelations", func(t *testing.T) {
		testdb.CleanupTables(t, pgContainer.DB)
		teacher := newUser("teacher@example.com")
		teacher.Role = user.RoleTeacher
		require.NoError(t, service.CreateUser(ctx, teacher))
		student := newUser("student@example.com")
		require.NoError(t, service.CreateUser(ctx, student))

		owned := &project.Project{
			ID:            uuid.New(),
			Title:         "Orbit",
			Type:          project.TypeNone,
			StudentsCount: project.StudentsMany,
			Duration:      project.DurationLessThanOne,
			Status:        project.StatusBacklog,
			UserID:        teacher.ID,
		}
		_, err := pgContainer.DB.NewInsert().Model(owned).Exec(ctx)
		require.NoError(t, err)

		_, err = registry.Request(ctx, owned.ID, student.ID)
		require.NoError(t, err)
		_, err = service.AttachSkills(ctx, student.ID, []string{"math"})
		require.NoError(t, err)

		teacherProfile, err := service.GetProfile(ctx, teacher.ID)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{owned.ID}, teacherProfile.OwnedProjectIDs)
		assert.Empty(t, teacherProfile.Requested)

		studentProfile, err := service.GetProfile(ctx, student.ID)
		require.NoError(t, err)
		assert.Empty(t, studentProfile.OwnedProjectIDs)
		require.Len(t, studentProfile.Requested, 1)
		assert.Equal(t, owned.ID, studentProfile.Requested[0].ProjectID)
		require.Len(t, studentProfile.Skills, 1)
		assert.Equal(t, "math", studentProfile.Skills[0].Name)
	})

	t.Run("GetByIDs", func(t *testing.T) {
		testdb.CleanupTables(t, pgContainer.DB)
		a := newUser("a@example.com")
		b := newUser("b@example.com")
		require.NoError(t, service.CreateUser(ctx, a))
		require.NoError(t, service.CreateUser(ctx, b))

		users, err := repo.GetByIDs(ctx, []uuid.UUID{a.ID, b.ID, uuid.New()})
		require.NoError(t, err)
		assert.Len(t, users, 2)

		none, err := repo.GetByIDs(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}
