package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/servicebay/servicebay/libs/httpx"
	"github.com/servicebay/servicebay/services/booking-service/internal/schedule"
)

// MinBusyWindow is the shortest busy period a provider may declare.
const MinBusyWindow = 15 * time.Minute

type WorkingHoursStore interface {
	WorkingHours(ctx context.Context, providerID string) (schedule.Week, error)
	ReplaceWeek(ctx context.Context, providerID string, week schedule.Week) error
}

type BusyStatusStore interface {
	BusyOverride(ctx context.Context, providerID string) (*schedule.BusyOverride, error)
	Set(ctx context.Context, o schedule.BusyOverride) (schedule.BusyOverride, error)
}

type ProviderHandler struct {
	hours  WorkingHoursStore
	busy   BusyStatusStore
	logger *slog.Logger
	now    func() time.Time
}

func NewProviderHandler(hours WorkingHoursStore, busy BusyStatusStore, logger *slog.Logger) *ProviderHandler {
	return &ProviderHandler{hours: hours, busy: busy, logger: logger, now: time.Now}
}

type workingHoursBody struct {
	ProviderID string         `json:"provider_id"`
	Days       []schedule.Day `json:"days"`
}

type busyStatusBody struct {
	ProviderID string     `json:"provider_id"`
	IsBusy     bool       `json:"is_busy"`
	BusyUntil  *time.Time `json:"busy_until,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

func (h *ProviderHandler) WorkingHours(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.getWorkingHours(w, r)
	case http.MethodPut:
		h.putWorkingHours(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *ProviderHandler) getWorkingHours(w http.ResponseWriter, r *http.Request) {
	providerID := providerIDFrom(r)
	if providerID == "" {
		http.Error(w, "provider_id required", http.StatusBadRequest)
		return
	}
	week, err := h.hours.WorkingHours(r.Context(), providerID)
	if err != nil {
		h.logger.Error("load working hours failed", "provider_id", providerID, "err", err)
		http.Error(w, "working hours unavailable", http.StatusServiceUnavailable)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, workingHoursBody{ProviderID: providerID, Days: week.Days()})
}

func (h *ProviderHandler) putWorkingHours(w http.ResponseWriter, r *http.Request) {
	var body workingHoursBody
	if err := httpx.DecodeJSON(r, &body); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	providerID := bodyProviderID(r, body.ProviderID)
	if providerID == "" {
		http.Error(w, "provider_id required", http.StatusBadRequest)
		return
	}

	week := schedule.Week{}
	for _, d := range body.Days {
		if _, dup := week[d.Weekday]; dup {
			http.Error(w, "duplicate weekday "+d.Weekday.String(), http.StatusBadRequest)
			return
		}
		week[d.Weekday] = d
	}
	if err := week.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.hours.ReplaceWeek(r.Context(), providerID, week); err != nil {
		if errors.Is(err, schedule.ErrInvalidSchedule) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("save working hours failed", "provider_id", providerID, "err", err)
		http.Error(w, "failed to save working hours", http.StatusInternalServerError)
		return
	}
	h.logger.Info("working hours updated", "provider_id", providerID, "days", len(week))
	httpx.WriteJSON(w, http.StatusOK, workingHoursBody{ProviderID: providerID, Days: week.Days()})
}

func (h *ProviderHandler) BusyStatus(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.getBusyStatus(w, r)
	case http.MethodPut:
		h.putBusyStatus(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *ProviderHandler) getBusyStatus(w http.ResponseWriter, r *http.Request) {
	providerID := providerIDFrom(r)
	if providerID == "" {
		http.Error(w, "provider_id required", http.StatusBadRequest)
		return
	}
	o, err := h.busy.BusyOverride(r.Context(), providerID)
	if err != nil {
		h.logger.Error("load busy status failed", "provider_id", providerID, "err", err)
		http.Error(w, "busy status unavailable", http.StatusServiceUnavailable)
		return
	}
	if o == nil {
		httpx.WriteJSON(w, http.StatusOK, busyStatusBody{ProviderID: providerID})
		return
	}
	updated := o.UpdatedAt
	httpx.WriteJSON(w, http.StatusOK, busyStatusBody{
		ProviderID: providerID,
		IsBusy:     o.IsBusy,
		BusyUntil:  o.BusyUntil,
		Reason:     o.Reason,
		UpdatedAt:  &updated,
	})
}

func (h *ProviderHandler) putBusyStatus(w http.ResponseWriter, r *http.Request) {
	var body busyStatusBody
	if err := httpx.DecodeJSON(r, &body); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	providerID := bodyProviderID(r, body.ProviderID)
	if providerID == "" {
		http.Error(w, "provider_id required", http.StatusBadRequest)
		return
	}
	if body.IsBusy && body.BusyUntil != nil && body.BusyUntil.Before(h.now().Add(MinBusyWindow)) {
		http.Error(w, "busy_until must be at least 15 minutes from now", http.StatusUnprocessableEntity)
		return
	}

	saved, err := h.busy.Set(r.Context(), schedule.BusyOverride{
		ProviderID: providerID,
		IsBusy:     body.IsBusy,
		BusyUntil:  body.BusyUntil,
		Reason:     strings.TrimSpace(body.Reason),
	})
	if err != nil {
		h.logger.Error("save busy status failed", "provider_id", providerID, "err", err)
		http.Error(w, "failed to save busy status", http.StatusInternalServerError)
		return
	}
	h.logger.Info("busy status updated", "provider_id", providerID, "is_busy", saved.IsBusy)
	updated := saved.UpdatedAt
	httpx.WriteJSON(w, http.StatusOK, busyStatusBody{
		ProviderID: providerID,
		IsBusy:     saved.IsBusy,
		BusyUntil:  saved.BusyUntil,
		Reason:     saved.Reason,
		UpdatedAt:  &updated,
	})
}

// bodyProviderID prefers the authenticated X-Provider-Id header over the request body.
func bodyProviderID(r *http.Request, fromBody string) string {
	if id := strings.TrimSpace(r.Header.Get("X-Provider-Id")); id != "" {
		return id
	}
	if id := strings.TrimSpace(fromBody); id != "" {
		return id
	}
	return strings.TrimSpace(r.URL.Query().Get("provider_id"))
}
