package skill

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"mentorship/common/metrics"
	"mentorship/internal/apperror"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Linker attaches named skills to any Taggable. Attaching is additive and idempotent.
type Linker struct {
	db      bun.IDB
	metrics *metrics.Metrics
}

func NewLinker(db bun.IDB, m *metrics.Metrics) *Linker {
	return &Linker{db: db, metrics: m}
}

// WithTx returns a Linker bound to tx.
func (l *Linker) WithTx(tx bun.IDB) *Linker {
	return &Linker{db: tx, metrics: l.metrics}
}

// NormalizeNames trims surrounding whitespace and drops repeated names. Length is checked
// on the trimmed name; blank names are rejected. Errors are keyed field[index].
func NormalizeNames(field string, names []string) ([]string, error) {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for i, raw := range names {
		key := fmt.Sprintf("%s[%d]", field, i)
		name := strings.TrimSpace(raw)
		if name == "" {
			return nil, apperror.NewValidationError(key, "must not be blank")
		}
		if utf8.RuneCountInString(name) > MaxNameLength {
			return nil, apperror.NewValidationError(key, fmt.Sprintf("must be at most %d characters", MaxNameLength))
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out, nil
}

// Attach resolves every name to a skill, creating missing ones, and links them to owner.
// Already linked skills are left untouched.
func (l *Linker) Attach(ctx context.Context, owner Taggable, names []string) ([]Skill, error) {
	names, err := NormalizeNames("skills", names)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, nil
	}

	skills, err := l.resolve(ctx, names)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, len(skills))
	for i, s := range skills {
		ids[i] = s.ID
	}

	join := owner.SkillJoin()
	start := time.Now()
	_, err = l.db.ExecContext(ctx, `
		INSERT INTO ? (?, skill_id)
		SELECT ?, s.id FROM skills AS s WHERE s.id IN (?)
		ON CONFLICT DO NOTHING`,
		bun.Ident(join.Table), bun.Ident(join.OwnerColumn), owner.SkillOwnerID(), bun.In(ids),
	)
	l.metrics.Database.RecordQuery(ctx, "insert", join.Table, time.Since(start), err)
	if err != nil {
		return nil, apperror.Storage("link skills", err)
	}

	return skills, nil
}

func (l *Linker) resolve(ctx context.Context, names []string) ([]Skill, error) {
	existing, err := l.findByNames(ctx, names)
	if err != nil {
		return nil, err
	}

	known := make(map[string]struct{}, len(existing))
	for _, s := range existing {
		known[s.Name] = struct{}{}
	}

	var missing []Skill
	for _, name := range names {
		if _, ok := known[name]; !ok {
			missing = append(missing, Skill{ID: uuid.New(), Name: name})
		}
	}
	if len(missing) == 0 {
		return existing, nil
	}

	// A concurrent writer may create the same name; the reselect picks up its row.
	start := time.Now()
	_, err = l.db.NewInsert().
		Model(&missing).
		On("CONFLICT (name) DO NOTHING").
		Exec(ctx)
	l.metrics.Database.RecordQuery(ctx, "insert", "skills", time.Since(start), err)
	if err != nil {
		return nil, apperror.Storage("insert skills", err)
	}

	return l.findByNames(ctx, names)
}

func (l *Linker) findByNames(ctx context.Context, names []string) ([]Skill, error) {
	start := time.Now()
	var skills []Skill
	err := l.db.NewSelect().
		Model(&skills).
		Where("s.name IN (?)", bun.In(names)).
		Order("s.name ASC").
		Scan(ctx)
	l.metrics.Database.RecordQuery(ctx, "select", "skills", time.Since(start), err)
	if err != nil {
		return nil, apperror.Storage("select skills", err)
	}
	return skills, nil
}

// Detach unlinks the named skills from owner. Unknown or unlinked names are ignored.
// Skill rows themselves are kept.
func (l *Linker) Detach(ctx context.Context, owner Taggable, names []string) error {
	names, err := NormalizeNames("removedSkills", names)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return nil
	}

	join := owner.SkillJoin()
	start := time.Now()
	_, err = l.db.ExecContext(ctx, `
		DELETE FROM ? WHERE ? = ?
		AND skill_id IN (SELECT id FROM skills WHERE name IN (?))`,
		bun.Ident(join.Table), bun.Ident(join.OwnerColumn), owner.SkillOwnerID(), bun.In(names),
	)
	l.metrics.Database.RecordQuery(ctx, "delete", join.Table, time.Since(start), err)
	return apperror.Storage("unlink skills", err)
}

// DetachAll removes every link of owner.
func (l *Linker) DetachAll(ctx context.Context, owner Taggable) error {
	join := owner.SkillJoin()
	start := time.Now()
	_, err := l.db.ExecContext(ctx, `DELETE FROM ? WHERE ? = ?`,
		bun.Ident(join.Table), bun.Ident(join.OwnerColumn), owner.SkillOwnerID(),
	)
	l.metrics.Database.RecordQuery(ctx, "delete", join.Table, time.Since(start), err)
	return apperror.Storage("unlink all skills", err)
}

func (l *Linker) ListFor(ctx context.Context, owner Taggable) ([]Skill, error) {
	join := owner.SkillJoin()
	start := time.Now()
	skills := make([]Skill, 0)
	err := l.db.NewSelect().
		Model(&skills).
		Join("JOIN ? AS j ON j.skill_id = s.id", bun.Ident(join.Table)).
		Where("j.? = ?", bun.Ident(join.OwnerColumn), owner.SkillOwnerID()).
		Order("s.name ASC").
		Scan(ctx)
	l.metrics.Database.RecordQuery(ctx, "select", join.Table, time.Since(start), err)
	if err != nil {
		return nil, apperror.Storage("select linked skills", err)
	}
	return skills, nil
}

// CountLinks returns how many skills are linked to owner.
func (l *Linker) CountLinks(ctx context.Context, owner Taggable) (int, error) {
	join := owner.SkillJoin()
	start := time.Now()
	count, err := l.db.NewSelect().
		TableExpr("?", bun.Ident(join.Table)).
		Where("? = ?", bun.Ident(join.OwnerColumn), owner.SkillOwnerID()).
		Count(ctx)
	l.metrics.Database.RecordQuery(ctx, "count", join.Table, time.Since(start), err)
	if err != nil {
		return 0, apperror.Storage("count linked skills", err)
	}
	return count, nil
}
