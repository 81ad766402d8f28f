package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// nextSequence issues the next human-facing number for a space inside tx. The
// counter row survives deletions, so numbers are never reused. A space without
// a counter row is seeded from its highest stored number.
func nextSequence(ctx context.Context, tx *sql.Tx, spaceID string) (int64, error) {
	var next int64
	err := tx.QueryRowContext(ctx, `INSERT INTO space_sequences(space_id, last_value)
        VALUES(?, COALESCE((SELECT MAX(sequence_number) FROM work_items WHERE space_id = ?), 0) + 1)
        ON CONFLICT(space_id) DO UPDATE SET last_value = last_value + 1
        RETURNING last_value`, spaceID, spaceID).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next sequence: %w", err)
	}
	return next, nil
}
