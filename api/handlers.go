/*
handlers.go - HTTP API handlers for the chore service

PURPOSE:
  Exposes chores.Service over JSON. Handlers parse the request, call one
  service operation, and serialize the result. No business rules live here.

ENDPOINTS:
  Auth:
    POST   /api/pin/check                  PIN -> session token

  Child (bearer token; self or admin):
    GET    /api/child/{childId}/tasks      Tasks, soonest due first
    GET    /api/child/{childId}/points     Current balance
    GET    /api/child/{childId}/history    Ledger entries
    POST   /api/child/tasks/{id}/complete  Complete own task (PIN required)

  Admin (bearer token, admin role):
    GET    /api/admin/children             Children with balances
    GET    /api/admin/tasks                All tasks
    POST   /api/admin/tasks                Create task
    DELETE /api/admin/tasks/{id}           Delete task

  Push (bearer token):
    GET    /api/push/vapid-public-key
    POST   /api/push/subscribe
    POST   /api/push/unsubscribe

ERROR HANDLING:
  Service errors map 1:1 to status codes (see statusFor):
  - 401: PIN mismatch, missing/invalid token
  - 403: Authenticated but not permitted
  - 404: Absent, or not visible to the caller
  - 409: Task already completed
  - 422: Validation errors, zero-point credits
  - 500: Everything else (details are logged, not returned)

SEE ALSO:
  - dto.go: Request/response data structures
  - middleware.go: Session token checks
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/chore-engine/auth"
	"github.com/warp/chore-engine/chores"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service        *chores.Service
	Sessions       *auth.Sessions
	VAPIDPublicKey string
}

func NewHandler(svc *chores.Service, sessions *auth.Sessions, vapidPublicKey string) *Handler {
	return &Handler{Service: svc, Sessions: sessions, VAPIDPublicKey: vapidPublicKey}
}

// =============================================================================
// AUTH
// =============================================================================

// CheckPin authenticates a PIN and issues a session token.
// POST /api/pin/check
func (h *Handler) CheckPin(w http.ResponseWriter, r *http.Request) {
	var req PinRequest
	if !decodeBody(w, r, &req) {
		return
	}

	id, err := h.Service.Authenticate(r.Context(), req.Pin)
	if err != nil {
		if errors.Is(err, chores.ErrUnauthorized) {
			writeError(w, http.StatusUnauthorized, "Invalid PIN", nil)
			return
		}
		writeServiceError(w, err)
		return
	}

	token, err := h.Sessions.Issue(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := PinCheckResponse{
		Success: true,
		Token:   token,
		Role:    "child",
		UserID:  string(id.PrincipalID),
	}
	if id.IsAdmin {
		resp.Role = "admin"
	} else {
		resp.ChildID = string(id.PrincipalID)
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// CHILD ENDPOINTS
// =============================================================================

// ListChildTasks returns a child's tasks.
// GET /api/child/{childId}/tasks
func (h *Handler) ListChildTasks(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	childID := chores.PrincipalID(chi.URLParam(r, "childId"))

	tasks, err := h.Service.ListTasksFor(r.Context(), childID, claims.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	dtos := make([]TaskDTO, len(tasks))
	for i, t := range tasks {
		dtos[i] = toTaskDTO(t)
	}
	writeData(w, http.StatusOK, dtos)
}

// GetPoints returns a child's balance.
// GET /api/child/{childId}/points
func (h *Handler) GetPoints(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	childID := chores.PrincipalID(chi.URLParam(r, "childId"))

	balance, err := h.Service.GetBalance(r.Context(), childID, claims.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, PointsDTO{Points: balance})
}

// GetHistory returns a child's ledger entries, oldest first.
// GET /api/child/{childId}/history
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	childID := chores.PrincipalID(chi.URLParam(r, "childId"))

	entries, err := h.Service.History(r.Context(), childID, claims.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	dtos := make([]LedgerEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	writeData(w, http.StatusOK, dtos)
}

// CompleteTask completes the caller's own task after re-checking the PIN.
// POST /api/child/tasks/{id}/complete
func (h *Handler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	taskID := chores.TaskID(chi.URLParam(r, "id"))

	var req PinRequest
	if !decodeBody(w, r, &req) {
		return
	}

	done, err := h.Service.CompleteTask(r.Context(), taskID, claims.UserID, req.Pin)
	if errors.Is(err, chores.ErrUnauthorized) {
		writeError(w, http.StatusUnauthorized, "Invalid PIN", nil)
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeData(w, http.StatusOK, CompletionDTO{
		TaskID:      string(done.Task.ID),
		NewPoints:   done.NewBalance,
		CompletedAt: done.CompletedAt.Format(time.RFC3339),
	})
}

// =============================================================================
// ADMIN ENDPOINTS
// =============================================================================

// ListChildren returns every child with its balance.
// GET /api/admin/children
func (h *Handler) ListChildren(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	children, err := h.Service.ListChildren(r.Context(), claims.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	dtos := make([]ChildDTO, len(children))
	for i, c := range children {
		dtos[i] = ChildDTO{ID: string(c.ID), Name: c.Name, Points: c.Balance}
	}
	writeData(w, http.StatusOK, dtos)
}

// ListTasks returns all tasks with the owning child's name.
// GET /api/admin/tasks
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := claimsFrom(ctx)

	tasks, err := h.Service.ListAllTasks(ctx, claims.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	children, err := h.Service.ListChildren(ctx, claims.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	names := make(map[chores.PrincipalID]string, len(children))
	for _, c := range children {
		names[c.ID] = c.Name
	}

	dtos := make([]TaskDTO, len(tasks))
	for i, t := range tasks {
		dtos[i] = toTaskDTO(t)
		dtos[i].ChildID = string(t.OwnerID)
		dtos[i].ChildName = names[t.OwnerID]
	}
	writeData(w, http.StatusOK, dtos)
}

// CreateTask creates a task for a child.
// POST /api/admin/tasks
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	var req CreateTaskRequest
	if !decodeBody(w, r, &req) {
		return
	}

	draft := chores.TaskDraft{
		Title:       req.Title,
		Description: req.Description,
		DueAt:       req.DueDate,
	}
	if req.ChildID != nil {
		draft.OwnerID = chores.PrincipalID(*req.ChildID)
	}
	if req.Points != nil {
		draft.Points = *req.Points
	}

	task, err := h.Service.CreateTask(r.Context(), claims.UserID, draft)
	if err != nil {
		var verr *chores.ValidationError
		if errors.As(err, &verr) && req.Points == nil {
			verr.Fields["points"] = "points are required"
		}
		writeServiceError(w, err)
		return
	}

	writeData(w, http.StatusCreated, toTaskDTO(task))
}

// DeleteTask deletes a task; its ledger entries are kept.
// DELETE /api/admin/tasks/{id}
func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	taskID := chores.TaskID(chi.URLParam(r, "id"))

	if err := h.Service.DeleteTask(r.Context(), claims.UserID, taskID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true})
}

// =============================================================================
// PUSH ENDPOINTS
// =============================================================================

// GetVAPIDPublicKey returns the key browsers need to subscribe.
// GET /api/push/vapid-public-key
func (h *Handler) GetVAPIDPublicKey(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]string{"key": h.VAPIDPublicKey})
}

// Subscribe stores the caller's push subscription.
// POST /api/push/subscribe
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	var req SubscribeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	sub := chores.Subscription{
		Endpoint: req.Endpoint,
		Keys:     chores.SubscriptionKeys{P256dh: req.Keys.P256dh, Auth: req.Keys.Auth},
	}
	if err := h.Service.Subscribe(r.Context(), claims.UserID, sub); err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]bool{"subscribed": true})
}

// Unsubscribe clears the caller's push subscription.
// POST /api/push/unsubscribe
func (h *Handler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	if err := h.Service.Unsubscribe(r.Context(), claims.UserID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]bool{"subscribed": false})
}

// =============================================================================
// HELPERS
// =============================================================================

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", nil)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string, fields map[string]string) {
	writeJSON(w, status, Envelope{Success: false, Error: message, Errors: fields})
}

// statusFor maps a service error to its HTTP status and public message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, chores.ErrValidation):
		return http.StatusUnprocessableEntity, "Validation failed"
	case errors.Is(err, chores.ErrInvalidAmount):
		return http.StatusUnprocessableEntity, "Point amount must not be 0"
	case errors.Is(err, chores.ErrUnauthorized):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, chores.ErrForbidden):
		return http.StatusForbidden, "Access denied"
	case errors.Is(err, chores.ErrNotFound):
		return http.StatusNotFound, "Resource not found"
	case errors.Is(err, chores.ErrConflict):
		return http.StatusConflict, "Task already completed"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	status, message := statusFor(err)
	if !chores.IsClientError(err) {
		log.Printf("api: internal error: %v", err)
	}

	var verr *chores.ValidationError
	if errors.As(err, &verr) {
		writeError(w, status, message, verr.Fields)
		return
	}
	writeError(w, status, message, nil)
}
