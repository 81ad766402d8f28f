package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"scrumboard/internal/models"
)

// scope is one densely ordered collection: a space's backlog, a column's
// cards, or a board's columns. Positions inside a scope are always 0..N-1.
type scope struct {
	table  string
	filter string
	args   []any
}

func backlogScope(spaceID string) scope {
	return scope{table: "work_items", filter: "space_id = ? AND column_id IS NULL", args: []any{spaceID}}
}

func columnScope(columnID string) scope {
	return scope{table: "work_items", filter: "column_id = ?", args: []any{columnID}}
}

func boardScope(spaceID string, sprintID *string) scope {
	if sprintID == nil {
		return scope{table: "columns", filter: "space_id = ? AND sprint_id IS NULL", args: []any{spaceID}}
	}
	return scope{table: "columns", filter: "space_id = ? AND sprint_id = ?", args: []any{spaceID, *sprintID}}
}

func (sc scope) with(args ...any) []any {
	out := make([]any, 0, len(args)+len(sc.args))
	out = append(out, args...)
	return append(out, sc.args...)
}

// count is also the append position of the scope.
func (sc scope) count(ctx context.Context, q querier) (int64, error) {
	var n int64
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s`, sc.table, sc.filter)
	if err := q.QueryRowContext(ctx, query, sc.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", sc.table, err)
	}
	return n, nil
}

// ids lists the members of the scope in display order.
func (sc scope) ids(ctx context.Context, q querier) ([]string, error) {
	query := fmt.Sprintf(`SELECT id FROM %s WHERE %s ORDER BY position, created_at, id`, sc.table, sc.filter)
	rows, err := q.QueryContext(ctx, query, sc.args...)
	if err != nil {
		return nil, fmt.Errorf("list %s ids: %w", sc.table, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// closeGap shifts every member after pos down by one. The member at pos must
// already be gone or be leaving the scope.
func (sc scope) closeGap(ctx context.Context, tx *sql.Tx, pos int64) error {
	query := fmt.Sprintf(`UPDATE %s SET position = position - 1 WHERE position > ? AND %s`, sc.table, sc.filter)
	if _, err := tx.ExecContext(ctx, query, sc.with(pos)...); err != nil {
		return fmt.Errorf("close gap in %s: %w", sc.table, err)
	}
	return nil
}

// openGap shifts every member at or after pos up by one.
func (sc scope) openGap(ctx context.Context, tx *sql.Tx, pos int64) error {
	query := fmt.Sprintf(`UPDATE %s SET position = position + 1 WHERE position >= ? AND %s`, sc.table, sc.filter)
	if _, err := tx.ExecContext(ctx, query, sc.with(pos)...); err != nil {
		return fmt.Errorf("open gap in %s: %w", sc.table, err)
	}
	return nil
}

func (sc scope) place(ctx context.Context, tx *sql.Tx, id string, pos int64) error {
	query := fmt.Sprintf(`UPDATE %s SET position = ? WHERE id = ?`, sc.table)
	if _, err := tx.ExecContext(ctx, query, pos, id); err != nil {
		return fmt.Errorf("place %s: %w", sc.table, err)
	}
	return nil
}

// moveWithin moves the member at from to to, shifting the members in between.
// to is clamped to the scope. It returns the final position.
func (sc scope) moveWithin(ctx context.Context, tx *sql.Tx, id string, from, to int64) (int64, error) {
	n, err := sc.count(ctx, tx)
	if err != nil {
		return 0, err
	}
	to = clamp(to, 0, n-1)
	if from == to {
		return to, nil
	}

	var query string
	var args []any
	if to < from {
		query = fmt.Sprintf(`UPDATE %s SET position = position + 1 WHERE position >= ? AND position < ? AND %s`, sc.table, sc.filter)
		args = sc.with(to, from)
	} else {
		query = fmt.Sprintf(`UPDATE %s SET position = position - 1 WHERE position > ? AND position <= ? AND %s`, sc.table, sc.filter)
		args = sc.with(from, to)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return 0, fmt.Errorf("shift %s: %w", sc.table, err)
	}
	if err := sc.place(ctx, tx, id, to); err != nil {
		return 0, err
	}
	return to, nil
}

// moveAcross removes the slot at fromPos in from and opens one at toPos in to,
// clamped to the destination size. The caller reassigns the member itself in
// the same transaction.
func moveAcross(ctx context.Context, tx *sql.Tx, from scope, fromPos int64, to scope, toPos int64) (int64, error) {
	if err := from.closeGap(ctx, tx, fromPos); err != nil {
		return 0, err
	}
	n, err := to.count(ctx, tx)
	if err != nil {
		return 0, err
	}
	toPos = clamp(toPos, 0, n)
	if err := to.openGap(ctx, tx, toPos); err != nil {
		return 0, err
	}
	return toPos, nil
}

// reorderAll assigns positions from orderedIDs, which must be exactly the
// current members of the scope.
func (sc scope) reorderAll(ctx context.Context, tx *sql.Tx, orderedIDs []string) error {
	current, err := sc.ids(ctx, tx)
	if err != nil {
		return err
	}
	if !sameMembers(current, orderedIDs) {
		return models.ErrInvalidReorder
	}
	for i, id := range orderedIDs {
		if err := sc.place(ctx, tx, id, int64(i)); err != nil {
			return err
		}
	}
	return nil
}

// renumber rewrites the scope densely in its current order and returns how
// many members changed position.
func (sc scope) renumber(ctx context.Context, tx *sql.Tx) (int, error) {
	query := fmt.Sprintf(`SELECT id, position FROM %s WHERE %s ORDER BY position, created_at, id`, sc.table, sc.filter)
	rows, err := tx.QueryContext(ctx, query, sc.args...)
	if err != nil {
		return 0, fmt.Errorf("scan %s positions: %w", sc.table, err)
	}
	type slot struct {
		id  string
		pos int64
	}
	var slots []slot
	for rows.Next() {
		var sl slot
		if err := rows.Scan(&sl.id, &sl.pos); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan position: %w", err)
		}
		slots = append(slots, sl)
	}
	if err := rows.Close(); err != nil {
		return 0, err
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	fixed := 0
	for i, sl := range slots {
		if sl.pos == int64(i) {
			continue
		}
		if err := sc.place(ctx, tx, sl.id, int64(i)); err != nil {
			return fixed, err
		}
		fixed++
	}
	return fixed, nil
}

// RepairPositions re-derives dense positions for every backlog, column and
// board from the stored order. It is the reconciliation pass for data written
// outside the engine.
func (s *Store) RepairPositions(ctx context.Context) (int, error) {
	total := 0
	err := s.withTx(ctx, "repair positions", func(tx *sql.Tx) error {
		total = 0
		scopes, err := s.allScopes(ctx, tx)
		if err != nil {
			return err
		}
		for _, sc := range scopes {
			fixed, err := sc.renumber(ctx, tx)
			if err != nil {
				return err
			}
			total += fixed
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if total > 0 {
		s.logger.Warn("repaired positions", slog.Int("rows", total))
	}
	return total, nil
}

func (s *Store) allScopes(ctx context.Context, tx *sql.Tx) ([]scope, error) {
	var scopes []scope

	spaces, err := distinctStrings(ctx, tx, `SELECT DISTINCT space_id FROM work_items WHERE column_id IS NULL`)
	if err != nil {
		return nil, err
	}
	for _, id := range spaces {
		scopes = append(scopes, backlogScope(id))
	}

	columnIDs, err := distinctStrings(ctx, tx, `SELECT id FROM columns`)
	if err != nil {
		return nil, err
	}
	for _, id := range columnIDs {
		scopes = append(scopes, columnScope(id))
	}

	rows, err := tx.QueryContext(ctx, `SELECT DISTINCT space_id, sprint_id FROM columns`)
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var spaceID string
		var sprintID sql.NullString
		if err := rows.Scan(&spaceID, &sprintID); err != nil {
			return nil, fmt.Errorf("scan board: %w", err)
		}
		scopes = append(scopes, boardScope(spaceID, stringPtr(sprintID)))
	}
	return scopes, rows.Err()
}

func distinctStrings(ctx context.Context, q querier, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func sameMembers(current, proposed []string) bool {
	if len(current) != len(proposed) {
		return false
	}
	members := make(map[string]bool, len(current))
	for _, id := range current {
		members[id] = false
	}
	for _, id := range proposed {
		seen, ok := members[id]
		if !ok || seen {
			return false
		}
		members[id] = true
	}
	return true
}

func clamp(v, lo, hi int64) int64 {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
