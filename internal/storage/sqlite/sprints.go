package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"scrumboard/internal/models"
)

const sprintColumns = `id, space_id, name, goal, status, start_date, end_date, created_at, updated_at`

func scanSprint(row rowScanner) (models.Sprint, error) {
	var (
		sp         models.Sprint
		start, end sql.NullTime
	)
	if err := row.Scan(&sp.ID, &sp.SpaceID, &sp.Name, &sp.Goal, &sp.Status, &start, &end, &sp.CreatedAt, &sp.UpdatedAt); err != nil {
		return models.Sprint{}, err
	}
	if start.Valid {
		sp.StartDate = &start.Time
	}
	if end.Valid {
		sp.EndDate = &end.Time
	}
	return sp, nil
}

func getSprint(ctx context.Context, q querier, spaceID, sprintID string) (models.Sprint, error) {
	sp, err := scanSprint(q.QueryRowContext(ctx, `SELECT `+sprintColumns+` FROM sprints WHERE id = ? AND space_id = ?`, sprintID, spaceID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Sprint{}, models.NotFound("sprint %s not found in space %s", sprintID, spaceID)
	}
	if err != nil {
		return models.Sprint{}, fmt.Errorf("get sprint: %w", err)
	}
	return sp, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func checkDates(start, end *time.Time) error {
	if start != nil && end != nil && end.Before(*start) {
		return models.Validation("end date must not be before start date")
	}
	return nil
}

// CreateSprint creates a sprint in PLANNING and seeds its board with the
// configured default columns.
func (s *Store) CreateSprint(ctx context.Context, spaceID string, fields models.NewSprint) (models.Sprint, error) {
	if err := requireID("space", spaceID); err != nil {
		return models.Sprint{}, err
	}
	if strings.TrimSpace(fields.Name) == "" {
		return models.Sprint{}, models.Validation("sprint name is required")
	}
	if err := checkDates(fields.StartDate, fields.EndDate); err != nil {
		return models.Sprint{}, err
	}

	now := s.now()
	sp := models.Sprint{
		SpaceID:   spaceID,
		Name:      strings.TrimSpace(fields.Name),
		Goal:      strings.TrimSpace(fields.Goal),
		Status:    models.SprintPlanning,
		StartDate: fields.StartDate,
		EndDate:   fields.EndDate,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.withTx(ctx, "create sprint", func(tx *sql.Tx) error {
		sp.ID = newID()
		_, err := tx.ExecContext(ctx, `INSERT INTO sprints(id, space_id, name, goal, status, start_date, end_date, created_at, updated_at)
            VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sp.ID, sp.SpaceID, sp.Name, sp.Goal, sp.Status, nullTime(sp.StartDate), nullTime(sp.EndDate), sp.CreatedAt, sp.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert sprint: %w", err)
		}
		for _, name := range s.opts.SprintColumns {
			if _, err := s.insertColumn(ctx, tx, spaceID, name, nil, &sp.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return models.Sprint{}, err
	}
	return sp, nil
}

// ListSprints returns the sprints of a space, oldest first.
func (s *Store) ListSprints(ctx context.Context, spaceID string) ([]models.Sprint, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sprintColumns+` FROM sprints WHERE space_id = ? ORDER BY created_at, id`, spaceID)
	if err != nil {
		return nil, fmt.Errorf("list sprints: %w", err)
	}
	defer rows.Close()

	sprints := []models.Sprint{}
	for rows.Next() {
		sp, err := scanSprint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sprint: %w", err)
		}
		sprints = append(sprints, sp)
	}
	return sprints, rows.Err()
}

// GetSprint fetches a single sprint of a space.
func (s *Store) GetSprint(ctx context.Context, spaceID, sprintID string) (models.Sprint, error) {
	return getSprint(ctx, s.db, spaceID, sprintID)
}

// UpdateSprint edits the descriptive fields of a sprint that is not completed.
func (s *Store) UpdateSprint(ctx context.Context, spaceID, sprintID string, patch models.SprintPatch) (models.Sprint, error) {
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return models.Sprint{}, models.Validation("sprint name must not be empty")
	}

	var updated models.Sprint
	err := s.withTx(ctx, "update sprint", func(tx *sql.Tx) error {
		sp, err := getSprint(ctx, tx, spaceID, sprintID)
		if err != nil {
			return err
		}
		if sp.Status == models.SprintCompleted {
			return models.Conflict("sprint %s is completed and can no longer be edited", sp.Name)
		}
		if patch.Name != nil {
			sp.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Goal != nil {
			sp.Goal = strings.TrimSpace(*patch.Goal)
		}
		if patch.StartDate != nil {
			sp.StartDate = patch.StartDate
		}
		if patch.EndDate != nil {
			sp.EndDate = patch.EndDate
		}
		if err := checkDates(sp.StartDate, sp.EndDate); err != nil {
			return err
		}
		sp.UpdatedAt = s.now()
		_, err = tx.ExecContext(ctx, `UPDATE sprints SET name = ?, goal = ?, start_date = ?, end_date = ?, updated_at = ? WHERE id = ?`,
			sp.Name, sp.Goal, nullTime(sp.StartDate), nullTime(sp.EndDate), sp.UpdatedAt, sp.ID)
		if err != nil {
			return fmt.Errorf("update sprint: %w", err)
		}
		updated = sp
		return nil
	})
	return updated, err
}

// StartSprint moves a sprint from PLANNING to ACTIVE and copies the live
// backlog onto its first column. The transition stands once persisted; items
// that cannot be copied are reported in the result and logged.
func (s *Store) StartSprint(ctx context.Context, spaceID, sprintID, actorID string) (models.StartResult, error) {
	var started models.Sprint
	err := s.withTx(ctx, "start sprint", func(tx *sql.Tx) error {
		sp, err := getSprint(ctx, tx, spaceID, sprintID)
		if err != nil {
			return err
		}
		switch sp.Status {
		case models.SprintActive:
			return models.Conflict("sprint %s is already active", sp.Name)
		case models.SprintCompleted:
			return models.Conflict("sprint %s is completed and cannot be started again", sp.Name)
		}

		var activeName string
		err = tx.QueryRowContext(ctx, `SELECT name FROM sprints WHERE space_id = ? AND status = ? AND id <> ?`,
			spaceID, models.SprintActive, sprintID).Scan(&activeName)
		switch {
		case err == nil:
			return models.Conflict("sprint %s is already active; only one active sprint per space", activeName)
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("check active sprint: %w", err)
		}

		now := s.now()
		if sp.StartDate == nil {
			sp.StartDate = &now
		}
		sp.Status = models.SprintActive
		sp.UpdatedAt = now
		_, err = tx.ExecContext(ctx, `UPDATE sprints SET status = ?, start_date = ?, updated_at = ? WHERE id = ?`,
			sp.Status, nullTime(sp.StartDate), sp.UpdatedAt, sp.ID)
		if isConstraint(err) {
			return models.Conflict("another sprint is already active in this space")
		}
		if err != nil {
			return fmt.Errorf("activate sprint: %w", err)
		}
		started = sp
		return nil
	})
	if err != nil {
		return models.StartResult{}, err
	}

	s.logger.Info("sprint started", slog.String("space", spaceID), slog.String("sprint", sprintID))
	result := s.migrateBacklog(ctx, started, actorID)
	result.Sprint = started
	return result, nil
}

// migrateBacklog copies every backlog item that was not already resolved in a
// completed sprint onto the first column of sp. Each copy is its own
// transaction. The sprint is already ACTIVE, so the copies run to the end even
// when the caller's context is cancelled.
func (s *Store) migrateBacklog(ctx context.Context, sp models.Sprint, actorID string) models.StartResult {
	ctx = context.WithoutCancel(ctx)
	result := models.StartResult{
		Migrated: []models.WorkItem{},
		Skipped:  []string{},
		Failures: []models.MigrationFailure{},
	}
	fail := func(item models.WorkItem, err error) {
		s.logger.Warn("backlog migration failed",
			slog.String("sprint", sp.ID), slog.String("item", item.ID), slog.String("error", err.Error()))
		result.Failures = append(result.Failures, models.MigrationFailure{ItemID: item.ID, Title: item.Title, Error: err.Error()})
	}

	resolved, err := s.resolvedItems(ctx, sp.SpaceID)
	if err != nil {
		fail(models.WorkItem{}, err)
		return result
	}
	backlog, err := s.GetBacklog(ctx, sp.SpaceID)
	if err != nil {
		fail(models.WorkItem{}, err)
		return result
	}
	if len(backlog) == 0 {
		return result
	}

	cols, err := listColumns(ctx, s.db, boardScope(sp.SpaceID, &sp.ID))
	if err != nil {
		fail(models.WorkItem{}, err)
		return result
	}
	if len(cols) == 0 {
		noColumn := models.Conflict("sprint %s has no columns", sp.Name)
		for _, item := range backlog {
			fail(item, noColumn)
		}
		return result
	}
	first := cols[0]

	for _, item := range backlog {
		if resolved.contains(item) {
			result.Skipped = append(result.Skipped, item.Title)
			continue
		}
		creator := actorID
		if creator == "" {
			creator = item.CreatedByID
		}
		var card models.WorkItem
		originID := item.ID
		err := s.withTx(ctx, "migrate backlog item", func(tx *sql.Tx) error {
			var err error
			card, err = s.createCardTx(ctx, tx, sp.SpaceID, first.ID, models.NewItem{
				Title:       item.Title,
				Description: item.Description,
				AssigneeID:  item.AssigneeID,
			}, creator, &sp.ID, &originID)
			return err
		})
		if err != nil {
			fail(item, err)
			continue
		}
		result.Migrated = append(result.Migrated, card)
	}

	s.logger.Info("backlog migrated",
		slog.String("sprint", sp.ID),
		slog.Int("migrated", len(result.Migrated)),
		slog.Int("skipped", len(result.Skipped)),
		slog.Int("failed", len(result.Failures)))
	return result
}

// resolvedSet identifies backlog items that already went through a completed
// sprint, by normalized card title and by origin reference.
type resolvedSet struct {
	titles  map[string]struct{}
	origins map[string]struct{}
}

func (r resolvedSet) contains(item models.WorkItem) bool {
	if _, ok := r.origins[item.ID]; ok {
		return true
	}
	_, ok := r.titles[normalizeTitle(item.Title)]
	return ok
}

func (s *Store) resolvedItems(ctx context.Context, spaceID string) (resolvedSet, error) {
	set := resolvedSet{titles: map[string]struct{}{}, origins: map[string]struct{}{}}
	rows, err := s.db.QueryContext(ctx, `SELECT w.title, w.origin_item_id FROM work_items w
        JOIN columns c ON c.id = w.column_id
        JOIN sprints sp ON sp.id = c.sprint_id
        WHERE sp.space_id = ? AND sp.status = ?`, spaceID, models.SprintCompleted)
	if err != nil {
		return set, fmt.Errorf("list resolved cards: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var title string
		var origin sql.NullString
		if err := rows.Scan(&title, &origin); err != nil {
			return set, fmt.Errorf("scan resolved card: %w", err)
		}
		set.titles[normalizeTitle(title)] = struct{}{}
		if origin.Valid {
			set.origins[origin.String] = struct{}{}
		}
	}
	return set, rows.Err()
}

// normalizeTitle trims and case-folds a title for matching.
func normalizeTitle(title string) string {
	return cases.Fold().String(strings.TrimSpace(title))
}

// CompleteSprint moves an ACTIVE sprint to COMPLETED. Its board stays readable.
func (s *Store) CompleteSprint(ctx context.Context, spaceID, sprintID string) (models.Sprint, error) {
	var completed models.Sprint
	err := s.withTx(ctx, "complete sprint", func(tx *sql.Tx) error {
		sp, err := getSprint(ctx, tx, spaceID, sprintID)
		if err != nil {
			return err
		}
		if sp.Status != models.SprintActive {
			return models.Conflict("sprint %s is %s; only an active sprint can be completed", sp.Name, strings.ToLower(string(sp.Status)))
		}
		now := s.now()
		if sp.EndDate == nil {
			sp.EndDate = &now
		}
		sp.Status = models.SprintCompleted
		sp.UpdatedAt = now
		_, err = tx.ExecContext(ctx, `UPDATE sprints SET status = ?, end_date = ?, updated_at = ? WHERE id = ?`,
			sp.Status, nullTime(sp.EndDate), sp.UpdatedAt, sp.ID)
		if err != nil {
			return fmt.Errorf("complete sprint: %w", err)
		}
		completed = sp
		return nil
	})
	if err != nil {
		return models.Sprint{}, err
	}
	s.logger.Info("sprint completed", slog.String("space", spaceID), slog.String("sprint", sprintID))
	return completed, nil
}

// DeleteSprint removes a sprint that is not active together with its board.
func (s *Store) DeleteSprint(ctx context.Context, spaceID, sprintID string) error {
	return s.withTx(ctx, "delete sprint", func(tx *sql.Tx) error {
		sp, err := getSprint(ctx, tx, spaceID, sprintID)
		if err != nil {
			return err
		}
		if sp.Status == models.SprintActive {
			return models.Conflict("sprint %s is active and cannot be deleted", sp.Name)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM work_items WHERE column_id IN (SELECT id FROM columns WHERE sprint_id = ?)`, sp.ID); err != nil {
			return fmt.Errorf("delete sprint cards: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM columns WHERE sprint_id = ?`, sp.ID); err != nil {
			return fmt.Errorf("delete sprint columns: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM sprints WHERE id = ?`, sp.ID); err != nil {
			return fmt.Errorf("delete sprint: %w", err)
		}
		return nil
	})
}
