package sqlite

import (
	"context"
	"testing"
	"time"

	"scrumboard/internal/models"
)

func mustSprint(t *testing.T, s *Store, spaceID, name string) models.Sprint {
	t.Helper()
	sp, err := s.CreateSprint(context.Background(), spaceID, models.NewSprint{Name: name})
	if err != nil {
		t.Fatalf("create sprint %q: %v", name, err)
	}
	return sp
}

func TestSprintLifecycle(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()
	sp := mustSprint(t, s, "space", "Sprint 1")
	if sp.Status != models.SprintPlanning {
		t.Fatalf("new sprints are in planning, got %s", sp.Status)
	}

	if _, err := s.CompleteSprint(ctx, "space", sp.ID); !models.IsKind(err, models.KindConflict) {
		t.Fatalf("completing a planning sprint must conflict, got %v", err)
	}

	res, err := s.StartSprint(ctx, "space", sp.ID, "alice")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if res.Sprint.Status != models.SprintActive || res.Sprint.StartDate == nil {
		t.Fatalf("unexpected started sprint %+v", res.Sprint)
	}
	if _, err := s.StartSprint(ctx, "space", sp.ID, "alice"); !models.IsKind(err, models.KindConflict) {
		t.Fatalf("starting an active sprint must conflict, got %v", err)
	}
	if err := s.DeleteSprint(ctx, "space", sp.ID); !models.IsKind(err, models.KindConflict) {
		t.Fatalf("deleting an active sprint must conflict, got %v", err)
	}

	done, err := s.CompleteSprint(ctx, "space", sp.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != models.SprintCompleted || done.EndDate == nil {
		t.Fatalf("unexpected completed sprint %+v", done)
	}
	if _, err := s.StartSprint(ctx, "space", sp.ID, "alice"); !models.IsKind(err, models.KindConflict) {
		t.Fatalf("restarting a completed sprint must conflict, got %v", err)
	}
	if _, err := s.UpdateSprint(ctx, "space", sp.ID, models.SprintPatch{Goal: ptr("late edit")}); !models.IsKind(err, models.KindConflict) {
		t.Fatalf("editing a completed sprint must conflict, got %v", err)
	}

	board, err := s.GetBoard(ctx, "space", &sp.ID)
	if err != nil {
		t.Fatalf("completed sprint board must stay readable: %v", err)
	}
	if len(board.Columns) != 3 {
		t.Fatalf("expected 3 columns, got %d", len(board.Columns))
	}

	if err := s.DeleteSprint(ctx, "space", sp.ID); err != nil {
		t.Fatalf("delete completed sprint: %v", err)
	}
	if _, err := s.GetSprint(ctx, "space", sp.ID); !models.IsKind(err, models.KindNotFound) {
		t.Fatalf("expected deleted sprint to be gone, got %v", err)
	}
	var columns int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM columns WHERE sprint_id = ?`, sp.ID).Scan(&columns); err != nil {
		t.Fatalf("count columns: %v", err)
	}
	if columns != 0 {
		t.Fatalf("deleting a sprint must remove its board, %d columns left", columns)
	}
}

func TestSingleActiveSprintPerSpace(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()
	x := mustSprint(t, s, "space", "X")
	y := mustSprint(t, s, "space", "Y")
	z := mustSprint(t, s, "elsewhere", "Z")

	if _, err := s.StartSprint(ctx, "space", x.ID, "alice"); err != nil {
		t.Fatalf("start X: %v", err)
	}
	if _, err := s.StartSprint(ctx, "space", y.ID, "alice"); !models.IsKind(err, models.KindConflict) {
		t.Fatalf("starting Y while X is active must conflict, got %v", err)
	}
	if _, err := s.StartSprint(ctx, "elsewhere", z.ID, "alice"); err != nil {
		t.Fatalf("sprints in other spaces are independent: %v", err)
	}
	if _, err := s.StartSprint(ctx, "elsewhere", y.ID, "alice"); !models.IsKind(err, models.KindNotFound) {
		t.Fatalf("sprint addressed through the wrong space must be not found, got %v", err)
	}

	y, err := s.GetSprint(ctx, "space", y.ID)
	if err != nil {
		t.Fatalf("get Y: %v", err)
	}
	if y.Status != models.SprintPlanning {
		t.Fatalf("rejected start must not change state, got %s", y.Status)
	}

	if _, err := s.CompleteSprint(ctx, "space", x.ID); err != nil {
		t.Fatalf("complete X: %v", err)
	}
	if _, err := s.StartSprint(ctx, "space", y.ID, "alice"); err != nil {
		t.Fatalf("start Y after X completed: %v", err)
	}
}

func TestStartSprintMigratesLiveBacklog(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	first := mustSprint(t, s, "space", "Sprint 1")
	if _, err := s.StartSprint(ctx, "space", first.ID, "alice"); err != nil {
		t.Fatalf("start first: %v", err)
	}
	firstBoard, err := s.GetBoard(ctx, "space", &first.ID)
	if err != nil {
		t.Fatalf("first board: %v", err)
	}
	if _, err := s.CreateCard(ctx, "space", firstBoard.Columns[2].ID, models.NewItem{Title: "  fix LOGIN bug "}, "alice", &first.ID); err != nil {
		t.Fatalf("card on first sprint: %v", err)
	}
	if _, err := s.CompleteSprint(ctx, "space", first.ID); err != nil {
		t.Fatalf("complete first: %v", err)
	}

	resolved := mustBacklogItem(t, s, "space", "Fix login bug")
	assignee := "bob"
	live, err := s.CreateBacklogItem(ctx, "space", models.NewItem{Title: "Add logout button", Description: "top right", AssigneeID: &assignee}, "carol")
	if err != nil {
		t.Fatalf("create live item: %v", err)
	}

	second := mustSprint(t, s, "space", "Sprint 2")
	res, err := s.StartSprint(ctx, "space", second.ID, "alice")
	if err != nil {
		t.Fatalf("start second: %v", err)
	}
	if len(res.Migrated) != 1 || len(res.Skipped) != 1 || len(res.Failures) != 0 {
		t.Fatalf("unexpected migration result %+v", res)
	}
	card := res.Migrated[0]
	if card.Title != live.Title || card.Description != "top right" || card.AssigneeID == nil || *card.AssigneeID != "bob" {
		t.Fatalf("migrated card lost fields: %+v", card)
	}
	if card.OriginItemID == nil || *card.OriginItemID != live.ID {
		t.Fatalf("migrated card must reference its backlog item")
	}
	if card.SequenceNumber <= live.SequenceNumber {
		t.Fatalf("migrated card gets its own sequence number, got %d", card.SequenceNumber)
	}

	board, err := s.GetBoard(ctx, "space", &second.ID)
	if err != nil {
		t.Fatalf("second board: %v", err)
	}
	if got := titles(board.Columns[0].Cards); !equalStrings(got, []string{"Add logout button"}) {
		t.Fatalf("first column of the new sprint: %v", got)
	}

	backlog, err := s.GetBacklog(ctx, "space")
	if err != nil {
		t.Fatalf("backlog: %v", err)
	}
	if !equalStrings(titles(backlog), []string{resolved.Title, live.Title}) {
		t.Fatalf("migration copies, the backlog must be untouched: %v", titles(backlog))
	}
}

func TestMigrationSkipsItemsCopiedIntoCompletedSprints(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()
	item := mustBacklogItem(t, s, "space", "Write docs")

	first := mustSprint(t, s, "space", "Sprint 1")
	res, err := s.StartSprint(ctx, "space", first.ID, "alice")
	if err != nil || len(res.Migrated) != 1 {
		t.Fatalf("start first: %v %+v", err, res)
	}
	if _, err := s.UpdateCard(ctx, "space", res.Migrated[0].ID, models.ItemPatch{Title: ptr("Write the docs")}); err != nil {
		t.Fatalf("rename card: %v", err)
	}
	if _, err := s.CompleteSprint(ctx, "space", first.ID); err != nil {
		t.Fatalf("complete first: %v", err)
	}

	second := mustSprint(t, s, "space", "Sprint 2")
	res, err = s.StartSprint(ctx, "space", second.ID, "alice")
	if err != nil {
		t.Fatalf("start second: %v", err)
	}
	if len(res.Migrated) != 0 || len(res.Skipped) != 1 || res.Skipped[0] != item.Title {
		t.Fatalf("renamed card should still resolve its origin item: %+v", res)
	}
}

func TestMigrationIsBestEffort(t *testing.T) {
	s := newTestStore(t, Options{WIPEnforcement: models.WIPStrict})
	ctx := context.Background()
	mustBacklogItem(t, s, "space", "A")
	mustBacklogItem(t, s, "space", "B")
	mustBacklogItem(t, s, "space", "C")

	sp := mustSprint(t, s, "space", "Sprint 1")
	board, err := s.GetBoard(ctx, "space", &sp.ID)
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	if _, err := s.UpdateColumn(ctx, "space", board.Columns[0].ID, models.ColumnPatch{WIPLimit: ptr(int64(2))}, &sp.ID); err != nil {
		t.Fatalf("set limit: %v", err)
	}

	res, err := s.StartSprint(ctx, "space", sp.ID, "alice")
	if err != nil {
		t.Fatalf("a partial migration must not fail the transition: %v", err)
	}
	if res.Sprint.Status != models.SprintActive {
		t.Fatalf("sprint must be active, got %s", res.Sprint.Status)
	}
	if len(res.Migrated) != 2 || len(res.Failures) != 1 || res.Failures[0].Title != "C" {
		t.Fatalf("unexpected migration result %+v", res)
	}
	assertDense(t, s, columnScope(board.Columns[0].ID))
}

func TestMigrationWithoutColumnsReportsFailures(t *testing.T) {
	s := newTestStore(t, Options{SprintColumns: []string{}})
	ctx := context.Background()
	mustBacklogItem(t, s, "space", "A")
	sp := mustSprint(t, s, "space", "Bare")

	res, err := s.StartSprint(ctx, "space", sp.ID, "alice")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(res.Failures) != 1 || len(res.Migrated) != 0 {
		t.Fatalf("expected one failure, got %+v", res)
	}
}

func TestCreateAndUpdateSprint(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 14)

	if _, err := s.CreateSprint(ctx, "space", models.NewSprint{Name: " "}); !models.IsKind(err, models.KindValidation) {
		t.Fatalf("expected validation error for blank name, got %v", err)
	}
	if _, err := s.CreateSprint(ctx, "space", models.NewSprint{Name: "Backwards", StartDate: &end, EndDate: &start}); !models.IsKind(err, models.KindValidation) {
		t.Fatalf("expected validation error for reversed dates, got %v", err)
	}

	sp, err := s.CreateSprint(ctx, "space", models.NewSprint{Name: "Sprint 1", Goal: "ship", StartDate: &start, EndDate: &end})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := s.GetSprint(ctx, "space", sp.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.StartDate == nil || !got.StartDate.Equal(start) || got.EndDate == nil || !got.EndDate.Equal(end) {
		t.Fatalf("dates not persisted: %+v", got)
	}

	updated, err := s.UpdateSprint(ctx, "space", sp.ID, models.SprintPatch{Name: ptr("Sprint One"), Goal: ptr("ship it")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "Sprint One" || updated.Goal != "ship it" {
		t.Fatalf("unexpected update %+v", updated)
	}

	mustSprint(t, s, "space", "Sprint 2")
	list, err := s.ListSprints(ctx, "space")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != sp.ID {
		t.Fatalf("unexpected sprint list %+v", list)
	}
}

func TestDeletePlanningSprintRemovesBoard(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()
	sp := mustSprint(t, s, "space", "Sprint 1")
	board, err := s.GetBoard(ctx, "space", &sp.ID)
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	card, err := s.CreateCard(ctx, "space", board.Columns[0].ID, models.NewItem{Title: "planned"}, "alice", &sp.ID)
	if err != nil {
		t.Fatalf("card: %v", err)
	}

	if err := s.DeleteSprint(ctx, "space", sp.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteCard(ctx, "space", card.ID); !models.IsKind(err, models.KindNotFound) {
		t.Fatalf("sprint cards must be deleted with the sprint, got %v", err)
	}
	if _, err := s.GetBoard(ctx, "space", &sp.ID); !models.IsKind(err, models.KindNotFound) {
		t.Fatalf("board of a deleted sprint must be not found, got %v", err)
	}
}

func TestNormalizeTitle(t *testing.T) {
	if normalizeTitle("  Fix LOGIN Bug ") != normalizeTitle("fix login bug") {
		t.Fatalf("titles should match case-insensitively after trimming")
	}
	if normalizeTitle("ÉCOLE") != normalizeTitle("école") {
		t.Fatalf("case folding should handle non-ASCII letters")
	}
	if normalizeTitle("fix login") == normalizeTitle("fix login bug") {
		t.Fatalf("different titles must not match")
	}
}

func TestCompletedSprintBoardIsReadOnly(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	sp := mustSprint(t, s, "space", "Sprint 1")
	if _, err := s.StartSprint(ctx, "space", sp.ID, "alice"); err != nil {
		t.Fatalf("start: %v", err)
	}
	board, err := s.GetBoard(ctx, "space", &sp.ID)
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	done := board.Columns[2]
	card, err := s.CreateCard(ctx, "space", done.ID, models.NewItem{Title: "Fix login bug"}, "alice", &sp.ID)
	if err != nil {
		t.Fatalf("card: %v", err)
	}
	if _, err := s.CompleteSprint(ctx, "space", sp.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	kanban := mustColumn(t, s, "space", "Todo", nil)

	conflict := func(what string, err error) {
		t.Helper()
		if !models.IsKind(err, models.KindConflict) {
			t.Fatalf("%s on a completed board must conflict, got %v", what, err)
		}
	}
	_, err = s.MoveCard(ctx, "space", card.ID, kanban.ID, 0)
	conflict("moving a card out", err)
	_, err = s.MoveCard(ctx, "space", card.ID, done.ID, 0)
	conflict("moving a card inside", err)
	_, err = s.CreateCard(ctx, "space", done.ID, models.NewItem{Title: "Late card"}, "alice", &sp.ID)
	conflict("creating a card", err)
	_, err = s.UpdateCard(ctx, "space", card.ID, models.ItemPatch{Title: ptr("Renamed")})
	conflict("editing a card", err)
	conflict("deleting a card", s.DeleteCard(ctx, "space", card.ID))
	_, err = s.AddColumn(ctx, "space", "Extra", nil, &sp.ID)
	conflict("adding a column", err)
	_, err = s.RenameColumn(ctx, "space", done.ID, "Finished", &sp.ID)
	conflict("renaming a column", err)
	_, err = s.MoveColumn(ctx, "space", done.ID, 0, &sp.ID)
	conflict("moving a column", err)
	conflict("removing a column", s.RemoveColumn(ctx, "space", done.ID, &sp.ID))

	after, err := s.GetBoard(ctx, "space", &sp.ID)
	if err != nil {
		t.Fatalf("board after: %v", err)
	}
	if len(after.Columns) != 3 || !equalStrings(titles(after.Columns[2].Cards), []string{"Fix login bug"}) {
		t.Fatalf("completed board changed: %+v", after)
	}
	kanbanBoard, err := s.GetBoard(ctx, "space", nil)
	if err != nil {
		t.Fatalf("kanban board: %v", err)
	}
	if len(kanbanBoard.Columns[0].Cards) != 0 {
		t.Fatalf("kanban column must stay empty, got %v", titles(kanbanBoard.Columns[0].Cards))
	}

	mustBacklogItem(t, s, "space", "Fix login bug")
	next := mustSprint(t, s, "space", "Sprint 2")
	res, err := s.StartSprint(ctx, "space", next.ID, "alice")
	if err != nil {
		t.Fatalf("start next: %v", err)
	}
	if len(res.Migrated) != 0 || !equalStrings(res.Skipped, []string{"Fix login bug"}) {
		t.Fatalf("resolved item must not come back: %+v", res)
	}
}

func TestMigrationOutlivesCallerCancellation(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	sp := mustSprint(t, s, "space", "Sprint 1")
	if _, err := s.StartSprint(ctx, "space", sp.ID, "alice"); err != nil {
		t.Fatalf("start: %v", err)
	}
	started, err := s.GetSprint(ctx, "space", sp.ID)
	if err != nil {
		t.Fatalf("get sprint: %v", err)
	}
	mustBacklogItem(t, s, "space", "A")
	mustBacklogItem(t, s, "space", "B")

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	res := s.migrateBacklog(cancelled, started, "alice")
	if len(res.Failures) != 0 || len(res.Migrated) != 2 {
		t.Fatalf("migration must finish after the caller goes away: %+v", res)
	}
	board, err := s.GetBoard(ctx, "space", &sp.ID)
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	if got := titles(board.Columns[0].Cards); !equalStrings(got, []string{"A", "B"}) {
		t.Fatalf("first column %v", got)
	}
	assertDense(t, s, columnScope(board.Columns[0].ID))
}
