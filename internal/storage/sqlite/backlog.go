package sqlite

import (
	"context"
	"database/sql"
	"log/slog"

	"scrumboard/internal/models"
)

// GetBacklog returns the backlog of a space in display order.
func (s *Store) GetBacklog(ctx context.Context, spaceID string) ([]models.WorkItem, error) {
	return queryItems(ctx, s.db, `SELECT `+itemColumns+` FROM work_items
        WHERE space_id = ? AND column_id IS NULL ORDER BY position, id`, spaceID)
}

// CreateBacklogItem appends a new item to the end of the space's backlog.
func (s *Store) CreateBacklogItem(ctx context.Context, spaceID string, fields models.NewItem, creatorID string) (models.WorkItem, error) {
	if err := validateNewItem(spaceID, fields, creatorID); err != nil {
		return models.WorkItem{}, err
	}

	var created models.WorkItem
	err := s.withTx(ctx, "create backlog item", func(tx *sql.Tx) error {
		var err error
		created, err = s.insertItem(ctx, tx, backlogScope(spaceID), models.WorkItem{
			SpaceID:     spaceID,
			Title:       fields.Title,
			Description: fields.Description,
			AssigneeID:  fields.AssigneeID,
			CreatedByID: creatorID,
		})
		return err
	})
	if err != nil {
		return models.WorkItem{}, err
	}
	s.logger.Debug("backlog item created", slog.String("space", spaceID), slog.Int64("sequence", created.SequenceNumber))
	return created, nil
}

// UpdateBacklogItem edits title, description or assignee of a backlog item.
func (s *Store) UpdateBacklogItem(ctx context.Context, spaceID, itemID string, patch models.ItemPatch) (models.WorkItem, error) {
	var updated models.WorkItem
	err := s.withTx(ctx, "update backlog item", func(tx *sql.Tx) error {
		it, err := getItem(ctx, tx, spaceID, itemID, false)
		if err != nil {
			return err
		}
		updated, err = s.patchItem(ctx, tx, it, patch)
		return err
	})
	return updated, err
}

// DeleteBacklogItem removes an item and closes the gap it leaves.
func (s *Store) DeleteBacklogItem(ctx context.Context, spaceID, itemID string) error {
	return s.withTx(ctx, "delete backlog item", func(tx *sql.Tx) error {
		it, err := getItem(ctx, tx, spaceID, itemID, false)
		if err != nil {
			return err
		}
		return deleteItem(ctx, tx, backlogScope(spaceID), it)
	})
}

// ReorderBacklog assigns positions 0..N-1 in the order of orderedIDs. The ids
// must be exactly the current backlog, otherwise models.ErrInvalidReorder is
// returned and nothing changes.
func (s *Store) ReorderBacklog(ctx context.Context, spaceID string, orderedIDs []string) ([]models.WorkItem, error) {
	err := s.withTx(ctx, "reorder backlog", func(tx *sql.Tx) error {
		return backlogScope(spaceID).reorderAll(ctx, tx, orderedIDs)
	})
	if err != nil {
		return nil, err
	}
	return s.GetBacklog(ctx, spaceID)
}
