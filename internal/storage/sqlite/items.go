package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"scrumboard/internal/models"
)

const itemColumns = `id, space_id, column_id, sequence_number, position, title, description, assignee_id, created_by_id, origin_item_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (models.WorkItem, error) {
	var (
		it       models.WorkItem
		column   sql.NullString
		assignee sql.NullString
		origin   sql.NullString
	)
	err := row.Scan(&it.ID, &it.SpaceID, &column, &it.SequenceNumber, &it.Position, &it.Title,
		&it.Description, &assignee, &it.CreatedByID, &origin, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return models.WorkItem{}, err
	}
	it.ColumnID = stringPtr(column)
	it.AssigneeID = stringPtr(assignee)
	it.OriginItemID = stringPtr(origin)
	return it, nil
}

func queryItems(ctx context.Context, q querier, query string, args ...any) ([]models.WorkItem, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	items := []models.WorkItem{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// getItem loads an item by id, restricted to the backlog (card=false) or to
// the cards of the space (card=true).
func getItem(ctx context.Context, q querier, spaceID, id string, card bool) (models.WorkItem, error) {
	where := "column_id IS NULL"
	kind := "backlog item"
	if card {
		where = "column_id IS NOT NULL"
		kind = "card"
	}
	row := q.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM work_items WHERE id = ? AND space_id = ? AND `+where, id, spaceID)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.WorkItem{}, models.NotFound("%s %s not found in space %s", kind, id, spaceID)
	}
	if err != nil {
		return models.WorkItem{}, fmt.Errorf("get item: %w", err)
	}
	return it, nil
}

func validateNewItem(spaceID string, fields models.NewItem, creatorID string) error {
	if err := requireID("space", spaceID); err != nil {
		return err
	}
	if strings.TrimSpace(fields.Title) == "" {
		return models.Validation("title is required")
	}
	if strings.TrimSpace(creatorID) == "" {
		return models.Validation("creator is required")
	}
	return nil
}

// insertItem assigns a sequence number and the append position of sc.
func (s *Store) insertItem(ctx context.Context, tx *sql.Tx, sc scope, it models.WorkItem) (models.WorkItem, error) {
	seq, err := nextSequence(ctx, tx, it.SpaceID)
	if err != nil {
		return models.WorkItem{}, err
	}
	pos, err := sc.count(ctx, tx)
	if err != nil {
		return models.WorkItem{}, err
	}

	now := s.now()
	it.ID = newID()
	it.SequenceNumber = seq
	it.Position = pos
	it.Title = strings.TrimSpace(it.Title)
	it.Description = strings.TrimSpace(it.Description)
	it.CreatedAt = now
	it.UpdatedAt = now

	_, err = tx.ExecContext(ctx, `INSERT INTO work_items(id, space_id, column_id, sequence_number, position, title, description, assignee_id, created_by_id, origin_item_id, created_at, updated_at)
        VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		it.ID, it.SpaceID, nullable(it.ColumnID), it.SequenceNumber, it.Position, it.Title, it.Description,
		nullable(it.AssigneeID), it.CreatedByID, nullable(it.OriginItemID), it.CreatedAt, it.UpdatedAt)
	if err != nil {
		return models.WorkItem{}, fmt.Errorf("insert item: %w", err)
	}
	return it, nil
}

// patchItem applies the non-nil fields of p and persists them.
func (s *Store) patchItem(ctx context.Context, tx *sql.Tx, it models.WorkItem, p models.ItemPatch) (models.WorkItem, error) {
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return models.WorkItem{}, models.Validation("title must not be empty")
		}
		it.Title = title
	}
	if p.Description != nil {
		it.Description = strings.TrimSpace(*p.Description)
	}
	if p.AssigneeID != nil {
		if *p.AssigneeID == "" {
			it.AssigneeID = nil
		} else {
			assignee := *p.AssigneeID
			it.AssigneeID = &assignee
		}
	}
	it.UpdatedAt = s.now()

	_, err := tx.ExecContext(ctx, `UPDATE work_items SET title = ?, description = ?, assignee_id = ?, updated_at = ? WHERE id = ?`,
		it.Title, it.Description, nullable(it.AssigneeID), it.UpdatedAt, it.ID)
	if err != nil {
		return models.WorkItem{}, fmt.Errorf("update item: %w", err)
	}
	return it, nil
}

// deleteItem removes it and compacts the scope it lived in.
func deleteItem(ctx context.Context, tx *sql.Tx, sc scope, it models.WorkItem) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM work_items WHERE id = ?`, it.ID); err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return sc.closeGap(ctx, tx, it.Position)
}
