// Package schema owns the persisted layout: table creation order, constraints and triggers.
package schema

import (
	"context"
	"fmt"

	"mentorship/internal/db"
	"mentorship/internal/file"
	"mentorship/internal/membership"
	"mentorship/internal/project"
	"mentorship/internal/skill"
	"mentorship/internal/user"

	"github.com/uptrace/bun"
)

// Models returns every model in foreign key order.
func Models() []interface{} {
	return []interface{}{
		(*user.User)(nil),
		(*project.Project)(nil),
		(*skill.Skill)(nil),
		(*file.File)(nil),
		(*project.ProjectSkill)(nil),
		(*skill.UserSkill)(nil),
		(*membership.Membership)(nil),
	}
}

// Register makes join models known to db. Call it once right after bun.NewDB.
func Register(db *bun.DB) {
	db.RegisterModel((*project.ProjectSkill)(nil))
}

// Tables lists table names children first, suitable for TRUNCATE.
func Tables() []string {
	return []string{"projects_users", "users_skills", "projects_skills", "files", "skills", "projects", "users"}
}

var checks = []struct {
	table, name, expr string
}{
	{"users", "users_role_check", "role IN ('student', 'teacher')"},
	{"projects", "projects_title_check", "char_length(title) >= 2"},
	{"projects", "projects_type_check", "type IN ('ongoing', 'onetime', 'none')"},
	{"projects", "projects_students_count_check", "students_count IN ('one', 'many')"},
	{"projects", "projects_duration_check", "duration IN ('lessone', 'onethree', 'threesix', 'oversix')"},
	{"projects", "projects_status_check", "status IN ('backlog', 'inprogress', 'done')"},
}

// Migrate creates tables, check constraints and triggers. It is safe to run repeatedly.
func Migrate(ctx context.Context, conn bun.IDB) error {
	if err := db.CreateTables(ctx, conn, Models()...); err != nil {
		return err
	}

	for _, c := range checks {
		_, err := conn.ExecContext(ctx, fmt.Sprintf(`
			DO $$ BEGIN
				ALTER TABLE %s ADD CONSTRAINT %s CHECK (%s);
			EXCEPTION WHEN duplicate_object THEN NULL;
			END $$;
		`, c.table, c.name, c.expr))
		if err != nil {
			return fmt.Errorf("failed to add constraint %s: %w", c.name, err)
		}
	}

	for _, table := range []string{"users", "projects"} {
		if err := db.CreateUpdatedAtTrigger(ctx, conn, table); err != nil {
			return err
		}
	}

	return createStatusGuard(ctx, conn)
}

// createStatusGuard refuses any update that moves a project out of done.
func createStatusGuard(ctx context.Context, conn bun.IDB) error {
	_, err := conn.ExecContext(ctx, `
		CREATE OR REPLACE FUNCTION guard_project_status()
		RETURNS TRIGGER AS $$
		BEGIN
			IF OLD.status = 'done' AND NEW.status <> 'done' THEN
				RAISE EXCEPTION 'project % is already completed', OLD.id;
			END IF;
			RETURN NEW;
		END;
		$$ language 'plpgsql';

		DROP TRIGGER IF EXISTS guard_projects_status ON projects;
		CREATE TRIGGER guard_projects_status
			BEFORE UPDATE OF status ON projects
			FOR EACH ROW
			EXECUTE FUNCTION guard_project_status();
	`)
	if err != nil {
		return fmt.Errorf("failed to create status guard: %w", err)
	}
	return nil
}
