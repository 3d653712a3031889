package handlers

import (
	"log/slog"
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"barberq/internal/services"
	"barberq/internal/status"
	"barberq/models"
)

type QueueHandler struct {
	app          *pocketbase.PocketBase
	queueService *services.QueueService
}

func NewQueueHandler(app *pocketbase.PocketBase, queueService *services.QueueService) *QueueHandler {
	return &QueueHandler{
		app:          app,
		queueService: queueService,
	}
}

// apiError maps engine sentinels onto HTTP errors, attaching the
// machine-readable kind so clients can branch without parsing messages.
func apiError(err error) error {
	kind := status.Kind(err)
	data := map[string]string{"kind": kind}

	switch {
	case status.NotFound(err):
		return apis.NewNotFoundError(err.Error(), data)
	case kind == "internal":
		return apis.NewApiError(http.StatusInternalServerError, "Something went wrong", data)
	default:
		return apis.NewBadRequestError(err.Error(), data)
	}
}

// JoinQueue - customer joins a shop's queue
func (h *QueueHandler) JoinQueue(e *core.RequestEvent) error {
	var req struct {
		ShopID   string                    `json:"shop_id"`
		UserID   string                    `json:"user_id"`
		Name     string                    `json:"name"`
		Phone    string                    `json:"phone"`
		BarberID string                    `json:"barber_id"`
		Services []models.RequestedService `json:"services"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.ShopID == "" {
		return apis.NewBadRequestError("Shop ID required", nil)
	}

	in := services.AddEntryInput{
		ShopID:           req.ShopID,
		AccountIDHint:    req.UserID,
		GuestName:        req.Name,
		GuestPhone:       req.Phone,
		AssignedBarberID: req.BarberID,
		Services:         req.Services,
	}
	if e.Auth != nil {
		in.AuthAccountID = e.Auth.Id
	}

	entry, err := h.queueService.AddEntry(e.Request.Context(), in)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"message": "Successfully joined queue",
		"entry":   entry,
	})
}

// AddWalkIn - staff registers a walk-in guest
func (h *QueueHandler) AddWalkIn(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		ShopID   string                    `json:"shop_id"`
		Name     string                    `json:"name"`
		Phone    string                    `json:"phone"`
		BarberID string                    `json:"barber_id"`
		Services []models.RequestedService `json:"services"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.ShopID == "" {
		return apis.NewBadRequestError("Shop ID required", nil)
	}

	actingBarber := req.BarberID
	if e.Auth.Collection().Name == "barbers" {
		actingBarber = e.Auth.Id
	}

	entry, err := h.queueService.AddWalkIn(e.Request.Context(), services.WalkInInput{
		ShopID:         req.ShopID,
		CustomerName:   req.Name,
		CustomerPhone:  req.Phone,
		Services:       req.Services,
		ActingBarberID: actingBarber,
	})
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"message": "Walk-in added to queue",
		"entry":   entry,
	})
}

// CancelEntry - cancel an entry and close the gap behind it
func (h *QueueHandler) CancelEntry(e *core.RequestEvent) error {
	entryID := e.Request.PathValue("id")
	if entryID == "" {
		return apis.NewBadRequestError("Entry ID required", nil)
	}

	entry, err := h.queueService.Cancel(e.Request.Context(), entryID)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"message": "Queue entry cancelled",
		"entry":   entry,
	})
}

// UpdateStatus - move an entry to in-progress or completed
func (h *QueueHandler) UpdateStatus(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	entryID := e.Request.PathValue("id")
	if entryID == "" {
		return apis.NewBadRequestError("Entry ID required", nil)
	}

	var req struct {
		Status   string `json:"status"`
		BarberID string `json:"barber_id"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	barberID := req.BarberID
	if barberID == "" && e.Auth.Collection().Name == "barbers" {
		barberID = e.Auth.Id
	}

	entry, err := h.queueService.UpdateStatus(e.Request.Context(), entryID, req.Status, barberID)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"message": "Status updated",
		"entry":   entry,
	})
}

// UpdateServices - replace a pending entry's requested services
func (h *QueueHandler) UpdateServices(e *core.RequestEvent) error {
	entryID := e.Request.PathValue("id")
	if entryID == "" {
		return apis.NewBadRequestError("Entry ID required", nil)
	}

	var req struct {
		Services []models.RequestedService `json:"services"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	entry, err := h.queueService.UpdateServices(e.Request.Context(), entryID, req.Services)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"message": "Services updated",
		"entry":   entry,
	})
}

// MoveDown - swap an entry with the next one in line
func (h *QueueHandler) MoveDown(e *core.RequestEvent) error {
	entryID := e.Request.PathValue("id")
	if entryID == "" {
		return apis.NewBadRequestError("Entry ID required", nil)
	}

	moved, swapped, err := h.queueService.MoveDown(e.Request.Context(), entryID)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"message": "Moved down in queue",
		"entry":   moved,
		"swapped": swapped,
	})
}

// GetShopQueue - active entries of a shop in queue order
func (h *QueueHandler) GetShopQueue(e *core.RequestEvent) error {
	shopID := e.Request.PathValue("shopId")

	entries, err := h.queueService.GetShopQueue(e.Request.Context(), shopID)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"queue": entries,
		"count": len(entries),
	})
}

// GetBarberQueue - active entries assigned to a barber
func (h *QueueHandler) GetBarberQueue(e *core.RequestEvent) error {
	barberID := e.Request.PathValue("barberId")

	entries, err := h.queueService.GetBarberQueue(e.Request.Context(), barberID)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"queue": entries,
		"count": len(entries),
	})
}

// LookupByCode - resolve a queue entry from its customer-facing code
func (h *QueueHandler) LookupByCode(e *core.RequestEvent) error {
	code := e.Request.PathValue("code")
	if code == "" {
		return apis.NewBadRequestError("Code required", nil)
	}

	entry, err := h.queueService.LookupByCode(e.Request.Context(), code)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, entry)
}

// GetQueuePosition - the caller's cached position in a shop's queue
func (h *QueueHandler) GetQueuePosition(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	shopID := e.Request.URL.Query().Get("shop_id")
	if shopID == "" {
		return apis.NewBadRequestError("Shop ID required", nil)
	}

	position, err := h.queueService.CachedPosition(e.Request.Context(), shopID, e.Auth.Id)
	if err != nil {
		slog.Warn("position lookup failed", "shop", shopID, "user", e.Auth.Id, "error", err)
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"shop_id":  shopID,
		"position": position,
	})
}
