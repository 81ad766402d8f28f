package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"scrumboard/internal/models"
)

const columnColumns = `id, space_id, sprint_id, name, wip_limit, position, created_at`

func scanColumn(row rowScanner) (models.Column, error) {
	var (
		c      models.Column
		sprint sql.NullString
		limit  sql.NullInt64
	)
	if err := row.Scan(&c.ID, &c.SpaceID, &sprint, &c.Name, &limit, &c.Position, &c.CreatedAt); err != nil {
		return models.Column{}, err
	}
	c.SprintID = stringPtr(sprint)
	if limit.Valid {
		v := limit.Int64
		c.WIPLimit = &v
	}
	return c, nil
}

// loadColumn returns the column when it belongs to the space and, if sprintID
// is given, to that sprint's board.
func loadColumn(ctx context.Context, q querier, spaceID, columnID string, sprintID *string) (models.Column, error) {
	c, err := scanColumn(q.QueryRowContext(ctx, `SELECT `+columnColumns+` FROM columns WHERE id = ? AND space_id = ?`, columnID, spaceID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Column{}, models.NotFound("column %s not found in space %s", columnID, spaceID)
	}
	if err != nil {
		return models.Column{}, fmt.Errorf("get column: %w", err)
	}
	if sprintID != nil && (c.SprintID == nil || *c.SprintID != *sprintID) {
		return models.Column{}, models.NotFound("column %s is not on the board of sprint %s", columnID, *sprintID)
	}
	return c, nil
}

// ensureWritable rejects changes to a column whose sprint is completed.
func ensureWritable(ctx context.Context, q querier, columnID string) error {
	var status sql.NullString
	err := q.QueryRowContext(ctx, `SELECT sp.status FROM columns c
        LEFT JOIN sprints sp ON sp.id = c.sprint_id WHERE c.id = ?`, columnID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("column sprint status: %w", err)
	}
	if status.Valid && models.SprintStatus(status.String) == models.SprintCompleted {
		return models.Conflict("column %s belongs to a completed sprint and is read-only", columnID)
	}
	return nil
}

// loadWritableColumn is loadColumn for columns that are about to change.
func loadWritableColumn(ctx context.Context, q querier, spaceID, columnID string, sprintID *string) (models.Column, error) {
	c, err := loadColumn(ctx, q, spaceID, columnID, sprintID)
	if err != nil {
		return models.Column{}, err
	}
	if err := ensureWritable(ctx, q, c.ID); err != nil {
		return models.Column{}, err
	}
	return c, nil
}

func listColumns(ctx context.Context, q querier, sc scope) ([]models.Column, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+columnColumns+` FROM columns WHERE `+sc.filter+` ORDER BY position, created_at, id`, sc.args...)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer rows.Close()

	var cols []models.Column
	for rows.Next() {
		c, err := scanColumn(rows)
		if err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func normalizeLimit(limit *int64) (*int64, error) {
	if limit == nil {
		return nil, nil
	}
	if *limit < 0 {
		return nil, models.Validation("wip limit must not be negative")
	}
	if *limit == 0 {
		return nil, nil
	}
	v := *limit
	return &v, nil
}

func (s *Store) insertColumn(ctx context.Context, tx *sql.Tx, spaceID, name string, wipLimit *int64, sprintID *string) (models.Column, error) {
	sc := boardScope(spaceID, sprintID)
	pos, err := sc.count(ctx, tx)
	if err != nil {
		return models.Column{}, err
	}
	c := models.Column{
		ID:        newID(),
		SpaceID:   spaceID,
		SprintID:  sprintID,
		Name:      strings.TrimSpace(name),
		WIPLimit:  wipLimit,
		Position:  pos,
		CreatedAt: s.now(),
	}
	var limit any
	if wipLimit != nil {
		limit = *wipLimit
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO columns(id, space_id, sprint_id, name, wip_limit, position, created_at) VALUES(?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.SpaceID, nullable(c.SprintID), c.Name, limit, c.Position, c.CreatedAt)
	if err != nil {
		return models.Column{}, fmt.Errorf("insert column: %w", err)
	}
	return c, nil
}

// AddColumn appends a column to the Kanban board, or to a sprint's board when
// sprintID is set.
func (s *Store) AddColumn(ctx context.Context, spaceID, name string, wipLimit *int64, sprintID *string) (models.Column, error) {
	if err := requireID("space", spaceID); err != nil {
		return models.Column{}, err
	}
	if strings.TrimSpace(name) == "" {
		return models.Column{}, models.Validation("column name is required")
	}
	limit, err := normalizeLimit(wipLimit)
	if err != nil {
		return models.Column{}, err
	}

	var created models.Column
	err = s.withTx(ctx, "add column", func(tx *sql.Tx) error {
		if sprintID != nil {
			sp, err := getSprint(ctx, tx, spaceID, *sprintID)
			if err != nil {
				return err
			}
			if sp.Status == models.SprintCompleted {
				return models.Conflict("sprint %s is completed and its board is read-only", sp.Name)
			}
		}
		var err error
		created, err = s.insertColumn(ctx, tx, spaceID, name, limit, sprintID)
		return err
	})
	return created, err
}

// UpdateColumn renames a column or changes its WIP limit.
func (s *Store) UpdateColumn(ctx context.Context, spaceID, columnID string, patch models.ColumnPatch, sprintID *string) (models.Column, error) {
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return models.Column{}, models.Validation("column name must not be empty")
	}
	var limit *int64
	if patch.WIPLimit != nil {
		var err error
		if limit, err = normalizeLimit(patch.WIPLimit); err != nil {
			return models.Column{}, err
		}
	}

	var updated models.Column
	err := s.withTx(ctx, "update column", func(tx *sql.Tx) error {
		c, err := loadWritableColumn(ctx, tx, spaceID, columnID, sprintID)
		if err != nil {
			return err
		}
		if patch.Name != nil {
			c.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.WIPLimit != nil {
			c.WIPLimit = limit
		}
		var dbLimit any
		if c.WIPLimit != nil {
			dbLimit = *c.WIPLimit
		}
		if _, err := tx.ExecContext(ctx, `UPDATE columns SET name = ?, wip_limit = ? WHERE id = ?`, c.Name, dbLimit, c.ID); err != nil {
			return fmt.Errorf("update column: %w", err)
		}
		updated = c
		return nil
	})
	return updated, err
}

// RenameColumn changes only the column name.
func (s *Store) RenameColumn(ctx context.Context, spaceID, columnID, name string, sprintID *string) (models.Column, error) {
	return s.UpdateColumn(ctx, spaceID, columnID, models.ColumnPatch{Name: &name}, sprintID)
}

// MoveColumn changes the column order of a board.
func (s *Store) MoveColumn(ctx context.Context, spaceID, columnID string, toPosition int64, sprintID *string) (models.Column, error) {
	if toPosition < 0 {
		return models.Column{}, models.Validation("position must not be negative")
	}
	var moved models.Column
	err := s.withTx(ctx, "move column", func(tx *sql.Tx) error {
		c, err := loadWritableColumn(ctx, tx, spaceID, columnID, sprintID)
		if err != nil {
			return err
		}
		c.Position, err = boardScope(spaceID, c.SprintID).moveWithin(ctx, tx, c.ID, c.Position, toPosition)
		moved = c
		return err
	})
	return moved, err
}

// RemoveColumn deletes a column with all of its cards and compacts the board.
func (s *Store) RemoveColumn(ctx context.Context, spaceID, columnID string, sprintID *string) error {
	return s.withTx(ctx, "remove column", func(tx *sql.Tx) error {
		c, err := loadWritableColumn(ctx, tx, spaceID, columnID, sprintID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM work_items WHERE column_id = ?`, c.ID); err != nil {
			return fmt.Errorf("delete column cards: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM columns WHERE id = ?`, c.ID); err != nil {
			return fmt.Errorf("delete column: %w", err)
		}
		return boardScope(spaceID, c.SprintID).closeGap(ctx, tx, c.Position)
	})
}

// checkCapacity rejects adding one more card to a full column in strict mode.
func (s *Store) checkCapacity(ctx context.Context, tx *sql.Tx, c models.Column) error {
	if s.opts.WIPEnforcement != models.WIPStrict || c.WIPLimit == nil {
		return nil
	}
	n, err := columnScope(c.ID).count(ctx, tx)
	if err != nil {
		return err
	}
	if n >= *c.WIPLimit {
		return models.ErrWIPLimit
	}
	return nil
}

func (s *Store) createCardTx(ctx context.Context, tx *sql.Tx, spaceID, columnID string, fields models.NewItem, creatorID string, sprintID, originID *string) (models.WorkItem, error) {
	c, err := loadWritableColumn(ctx, tx, spaceID, columnID, sprintID)
	if err != nil {
		return models.WorkItem{}, err
	}
	if err := s.checkCapacity(ctx, tx, c); err != nil {
		return models.WorkItem{}, err
	}
	return s.insertItem(ctx, tx, columnScope(c.ID), models.WorkItem{
		SpaceID:      spaceID,
		ColumnID:     &c.ID,
		Title:        fields.Title,
		Description:  fields.Description,
		AssigneeID:   fields.AssigneeID,
		CreatedByID:  creatorID,
		OriginItemID: originID,
	})
}

// CreateCard appends a card to a column of the space.
func (s *Store) CreateCard(ctx context.Context, spaceID, columnID string, fields models.NewItem, creatorID string, sprintID *string) (models.WorkItem, error) {
	if err := validateNewItem(spaceID, fields, creatorID); err != nil {
		return models.WorkItem{}, err
	}
	if err := requireID("column", columnID); err != nil {
		return models.WorkItem{}, err
	}

	var created models.WorkItem
	err := s.withTx(ctx, "create card", func(tx *sql.Tx) error {
		var err error
		created, err = s.createCardTx(ctx, tx, spaceID, columnID, fields, creatorID, sprintID, nil)
		return err
	})
	return created, err
}

// UpdateCard edits title, description or assignee of a card.
func (s *Store) UpdateCard(ctx context.Context, spaceID, cardID string, patch models.ItemPatch) (models.WorkItem, error) {
	var updated models.WorkItem
	err := s.withTx(ctx, "update card", func(tx *sql.Tx) error {
		it, err := getItem(ctx, tx, spaceID, cardID, true)
		if err != nil {
			return err
		}
		if err := ensureWritable(ctx, tx, *it.ColumnID); err != nil {
			return err
		}
		updated, err = s.patchItem(ctx, tx, it, patch)
		return err
	})
	return updated, err
}

// MoveCard places a card at toPosition of toColumnID, which may be its current
// column. Positions past the end are clamped to the end.
func (s *Store) MoveCard(ctx context.Context, spaceID, cardID, toColumnID string, toPosition int64) (models.WorkItem, error) {
	if toPosition < 0 {
		return models.WorkItem{}, models.Validation("position must not be negative")
	}

	var moved models.WorkItem
	err := s.withTx(ctx, "move card", func(tx *sql.Tx) error {
		card, err := getItem(ctx, tx, spaceID, cardID, true)
		if err != nil {
			return err
		}
		if err := ensureWritable(ctx, tx, *card.ColumnID); err != nil {
			return err
		}
		dest, err := loadWritableColumn(ctx, tx, spaceID, toColumnID, nil)
		if err != nil {
			return err
		}

		if *card.ColumnID == dest.ID {
			card.Position, err = columnScope(dest.ID).moveWithin(ctx, tx, card.ID, card.Position, toPosition)
			moved = card
			return err
		}

		if err := s.checkCapacity(ctx, tx, dest); err != nil {
			return err
		}
		pos, err := moveAcross(ctx, tx, columnScope(*card.ColumnID), card.Position, columnScope(dest.ID), toPosition)
		if err != nil {
			return err
		}
		card.UpdatedAt = s.now()
		if _, err := tx.ExecContext(ctx, `UPDATE work_items SET column_id = ?, position = ?, updated_at = ? WHERE id = ?`,
			dest.ID, pos, card.UpdatedAt, card.ID); err != nil {
			return fmt.Errorf("reassign card: %w", err)
		}
		card.ColumnID = &dest.ID
		card.Position = pos
		moved = card
		return nil
	})
	if err != nil {
		return models.WorkItem{}, err
	}
	s.logger.Debug("card moved", slog.String("card", cardID), slog.String("column", toColumnID), slog.Int64("position", moved.Position))
	return moved, nil
}

// DeleteCard removes a card and compacts its column.
func (s *Store) DeleteCard(ctx context.Context, spaceID, cardID string) error {
	return s.withTx(ctx, "delete card", func(tx *sql.Tx) error {
		card, err := getItem(ctx, tx, spaceID, cardID, true)
		if err != nil {
			return err
		}
		if err := ensureWritable(ctx, tx, *card.ColumnID); err != nil {
			return err
		}
		return deleteItem(ctx, tx, columnScope(*card.ColumnID), card)
	})
}

// GetBoard assembles the Kanban board (sprintID nil) or a sprint's board.
func (s *Store) GetBoard(ctx context.Context, spaceID string, sprintID *string) (models.Board, error) {
	if sprintID != nil {
		if _, err := getSprint(ctx, s.db, spaceID, *sprintID); err != nil {
			return models.Board{}, err
		}
	}
	return boardTx(ctx, s.db, spaceID, sprintID)
}

func boardTx(ctx context.Context, q querier, spaceID string, sprintID *string) (models.Board, error) {
	sc := boardScope(spaceID, sprintID)
	cols, err := listColumns(ctx, q, sc)
	if err != nil {
		return models.Board{}, err
	}

	cards, err := queryItems(ctx, q, `SELECT `+prefixed("w.", itemColumns)+` FROM work_items w
        JOIN columns c ON c.id = w.column_id
        WHERE `+prefixedFilter("c.", sc.filter)+`
        ORDER BY c.position, w.position, w.id`, sc.args...)
	if err != nil {
		return models.Board{}, err
	}
	byColumn := make(map[string][]models.WorkItem, len(cols))
	for _, card := range cards {
		byColumn[*card.ColumnID] = append(byColumn[*card.ColumnID], card)
	}

	board := models.Board{SpaceID: spaceID, SprintID: sprintID, Columns: make([]models.BoardColumn, 0, len(cols))}
	for _, c := range cols {
		bc := models.BoardColumn{Column: c, Cards: byColumn[c.ID]}
		if bc.Cards == nil {
			bc.Cards = []models.WorkItem{}
		}
		bc.CardCount = len(bc.Cards)
		bc.OverLimit = c.WIPLimit != nil && int64(bc.CardCount) > *c.WIPLimit
		board.Columns = append(board.Columns, bc)
	}
	return board, nil
}

func prefixed(prefix, list string) string {
	parts := strings.Split(list, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// prefixedFilter qualifies the space_id and sprint_id references of a board filter.
func prefixedFilter(prefix, filter string) string {
	r := strings.NewReplacer("space_id", prefix+"space_id", "sprint_id", prefix+"sprint_id")
	return r.Replace(filter)
}
