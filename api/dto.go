/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupled from the
  domain types in package chores.

ENVELOPE:
  Every response is wrapped:
    {"success": true,  "data": ...}
    {"success": false, "error": "message", "errors": {"field": "message"}}

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/chore-engine/chores"
)

// =============================================================================
// ENVELOPE
// =============================================================================

type Envelope struct {
	Success bool              `json:"success"`
	Data    any               `json:"data,omitempty"`
	Error   string            `json:"error,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// =============================================================================
// AUTH
// =============================================================================

type PinRequest struct {
	Pin string `json:"pin"`
}

// PinCheckResponse is returned unwrapped, next to "success", for clients
// that read the token straight off the top level.
type PinCheckResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
	Role    string `json:"role"`
	UserID  string `json:"userId"`
	ChildID string `json:"childId,omitempty"`
}

// =============================================================================
// TASKS
// =============================================================================

type TaskDTO struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Points      int64   `json:"points"`
	DueDate     string  `json:"dueDate"`
	Status      string  `json:"status"`
	CompletedAt *string `json:"completedAt,omitempty"`
	ChildID     string  `json:"childId,omitempty"`
	ChildName   string  `json:"childName,omitempty"`
}

// CreateTaskRequest uses pointers so a missing field can be told apart
// from a zero value.
type CreateTaskRequest struct {
	ChildID     *string `json:"childId"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Points      *int64  `json:"points"`
	DueDate     string  `json:"dueDate"`
}

type CompletionDTO struct {
	TaskID      string `json:"taskId"`
	NewPoints   int64  `json:"newPoints"`
	CompletedAt string `json:"completedAt"`
}

// =============================================================================
// POINTS
// =============================================================================

type PointsDTO struct {
	Points int64 `json:"points"`
}

type ChildDTO struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Points int64  `json:"points"`
}

type LedgerEntryDTO struct {
	ID        string  `json:"id"`
	Amount    int64   `json:"amount"`
	Reason    string  `json:"reason"`
	TaskID    *string `json:"taskId"`
	CreatedAt string  `json:"createdAt"`
}

// =============================================================================
// PUSH
// =============================================================================

type SubscribeRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toTaskDTO(t chores.Task) TaskDTO {
	dto := TaskDTO{
		ID:          string(t.ID),
		Title:       t.Title,
		Description: t.Description,
		Points:      t.Points,
		DueDate:     t.DueAt.Format(time.RFC3339),
		Status:      string(t.Status),
	}
	if t.CompletedAt != nil {
		s := t.CompletedAt.Format(time.RFC3339)
		dto.CompletedAt = &s
	}
	return dto
}

func toEntryDTO(e chores.LedgerEntry) LedgerEntryDTO {
	dto := LedgerEntryDTO{
		ID:        string(e.ID),
		Amount:    e.Amount,
		Reason:    e.Reason,
		CreatedAt: e.CreatedAt.Format(time.RFC3339),
	}
	if e.TaskID != nil {
		s := string(*e.TaskID)
		dto.TaskID = &s
	}
	return dto
}
