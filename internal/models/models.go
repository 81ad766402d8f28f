package models

import "time"

// WorkItem is a backlog item or a board card. Items without a column live in
// their space's backlog.
type WorkItem struct {
	ID             string    `json:"id"`
	SpaceID        string    `json:"space_id"`
	ColumnID       *string   `json:"column_id,omitempty"`
	SequenceNumber int64     `json:"sequence_number"`
	Position       int64     `json:"position"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	AssigneeID     *string   `json:"assignee_id,omitempty"`
	CreatedByID    string    `json:"created_by_id"`
	OriginItemID   *string   `json:"origin_item_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Column is one list of a board. A nil SprintID marks the Kanban board.
type Column struct {
	ID        string    `json:"id"`
	SpaceID   string    `json:"space_id"`
	SprintID  *string   `json:"sprint_id,omitempty"`
	Name      string    `json:"name"`
	WIPLimit  *int64    `json:"wip_limit,omitempty"`
	Position  int64     `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

// BoardColumn is a column as shown on a board read, with its ordered cards.
type BoardColumn struct {
	Column
	Cards     []WorkItem `json:"cards"`
	CardCount int        `json:"card_count"`
	OverLimit bool       `json:"over_limit"`
}

// Board is assembled on read from the columns of (space, sprint).
type Board struct {
	SpaceID  string        `json:"space_id"`
	SprintID *string       `json:"sprint_id,omitempty"`
	Columns  []BoardColumn `json:"columns"`
}

// SprintStatus is the lifecycle state of a sprint.
type SprintStatus string

const (
	SprintPlanning  SprintStatus = "PLANNING"
	SprintActive    SprintStatus = "ACTIVE"
	SprintCompleted SprintStatus = "COMPLETED"
)

// Sprint is a time box whose board receives the backlog when it starts.
type Sprint struct {
	ID        string       `json:"id"`
	SpaceID   string       `json:"space_id"`
	Name      string       `json:"name"`
	Goal      string       `json:"goal"`
	Status    SprintStatus `json:"status"`
	StartDate *time.Time   `json:"start_date,omitempty"`
	EndDate   *time.Time   `json:"end_date,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// NewItem carries the caller supplied fields of a backlog item or card.
type NewItem struct {
	Title       string
	Description string
	AssigneeID  *string
}

// ItemPatch holds partial updates. An empty AssigneeID clears the assignee.
type ItemPatch struct {
	Title       *string
	Description *string
	AssigneeID  *string
}

// ColumnPatch holds partial column updates. A zero WIPLimit clears the limit.
type ColumnPatch struct {
	Name     *string
	WIPLimit *int64
}

// NewSprint carries the fields of a sprint in planning.
type NewSprint struct {
	Name      string
	Goal      string
	StartDate *time.Time
	EndDate   *time.Time
}

// SprintPatch holds partial sprint updates.
type SprintPatch struct {
	Name      *string
	Goal      *string
	StartDate *time.Time
	EndDate   *time.Time
}

// MigrationFailure records one backlog item that could not be copied.
type MigrationFailure struct {
	ItemID string `json:"item_id"`
	Title  string `json:"title"`
	Error  string `json:"error"`
}

// StartResult reports the outcome of starting a sprint.
type StartResult struct {
	Sprint   Sprint             `json:"sprint"`
	Migrated []WorkItem         `json:"migrated"`
	Skipped  []string           `json:"skipped"`
	Failures []MigrationFailure `json:"failures"`
}

// WIPEnforcement selects how column WIP limits are applied.
type WIPEnforcement string

const (
	WIPAdvisory WIPEnforcement = "advisory"
	WIPStrict   WIPEnforcement = "strict"
)

// ValidWIPEnforcement enumerates the supported enforcement modes.
var ValidWIPEnforcement = map[WIPEnforcement]struct{}{
	WIPAdvisory: {},
	WIPStrict:   {},
}
