package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/servicebay/servicebay/libs/httpx"
	"github.com/servicebay/servicebay/services/booking-service/internal/availability"
	"github.com/servicebay/servicebay/services/booking-service/internal/model"
	"github.com/servicebay/servicebay/services/booking-service/internal/storage"
)

const dateLayout = "2006-01-02"

type AppointmentStore interface {
	List(ctx context.Context, f storage.ListFilter) ([]model.Appointment, error)
	UpdateStatus(ctx context.Context, providerID, appointmentID string, next model.Status, completionNotes string) (model.Appointment, error)
}

type BookingHandler struct {
	resolver     *availability.Resolver
	guard        *availability.Guard
	appointments AppointmentStore
	logger       *slog.Logger
	horizonDays  int
	now          func() time.Time
}

func NewBookingHandler(resolver *availability.Resolver, guard *availability.Guard, appointments AppointmentStore, logger *slog.Logger, horizonDays int) *BookingHandler {
	if horizonDays <= 0 {
		horizonDays = 30
	}
	return &BookingHandler{
		resolver:     resolver,
		guard:        guard,
		appointments: appointments,
		logger:       logger,
		horizonDays:  horizonDays,
		now:          time.Now,
	}
}

type bookRequest struct {
	ProviderID    string `json:"provider_id"`
	ClientID      string `json:"client_id"`
	VehicleID     string `json:"vehicle_id"`
	ServiceID     string `json:"service_id"`
	ScheduledTime string `json:"scheduled_time"`
	Notes         string `json:"notes"`
}

type appointmentItem struct {
	AppointmentID   string `json:"appointment_id"`
	ProviderID      string `json:"provider_id"`
	ClientID        string `json:"client_id,omitempty"`
	VehicleID       string `json:"vehicle_id,omitempty"`
	ServiceID       string `json:"service_id,omitempty"`
	ScheduledTime   string `json:"scheduled_time"`
	Status          string `json:"status"`
	Notes           string `json:"notes,omitempty"`
	CompletionNotes string `json:"completion_notes,omitempty"`
	CreatedAt       string `json:"created_at,omitempty"`
	UpdatedAt       string `json:"updated_at,omitempty"`
}

type statusRequest struct {
	AppointmentID   string `json:"appointment_id"`
	Status          string `json:"status"`
	CompletionNotes string `json:"completion_notes"`
}

func toItem(a model.Appointment) appointmentItem {
	item := appointmentItem{
		AppointmentID:   a.ID,
		ProviderID:      a.ProviderID,
		ClientID:        a.ClientID,
		VehicleID:       a.VehicleID,
		ServiceID:       a.ServiceID,
		ScheduledTime:   a.ScheduledTime.UTC().Format(time.RFC3339),
		Status:          string(a.Status),
		Notes:           a.Notes,
		CompletionNotes: a.CompletionNotes,
	}
	if !a.CreatedAt.IsZero() {
		item.CreatedAt = a.CreatedAt.UTC().Format(time.RFC3339)
	}
	if !a.UpdatedAt.IsZero() {
		item.UpdatedAt = a.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return item
}

// Slots serves the day's candidate slots, booked ones included unless available_only=true.
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	providerID := strings.TrimSpace(q.Get("provider_id"))
	dateStr := strings.TrimSpace(q.Get("date"))
	if providerID == "" || dateStr == "" {
		http.Error(w, "provider_id and date are required", http.StatusBadRequest)
		return
	}
	date, err := time.ParseInLocation(dateLayout, dateStr, h.resolver.Location())
	if err != nil {
		http.Error(w, "invalid date (expected YYYY-MM-DD)", http.StatusBadRequest)
		return
	}
	if !h.withinHorizon(date) {
		http.Error(w, "date is outside the booking horizon", http.StatusUnprocessableEntity)
		return
	}
	availableOnly, _ := strconv.ParseBool(q.Get("available_only"))

	slots, err := h.resolver.Resolve(r.Context(), providerID, date)
	if err != nil {
		h.writeAvailabilityError(w, err)
		return
	}
	if availableOnly {
		filtered := make([]availability.Slot, 0, len(slots))
		for _, s := range slots {
			if s.Available {
				filtered = append(filtered, s)
			}
		}
		slots = filtered
	}
	httpx.WriteJSON(w, http.StatusOK, slots)
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req bookRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ProviderID = strings.TrimSpace(req.ProviderID)
	req.ClientID = strings.TrimSpace(req.ClientID)
	if req.ProviderID == "" || req.ClientID == "" || strings.TrimSpace(req.ScheduledTime) == "" {
		http.Error(w, "provider_id, client_id and scheduled_time are required", http.StatusBadRequest)
		return
	}
	scheduled, err := time.Parse(time.RFC3339, strings.TrimSpace(req.ScheduledTime))
	if err != nil {
		http.Error(w, "invalid scheduled_time (expected RFC3339)", http.StatusBadRequest)
		return
	}
	if !h.withinHorizon(scheduled) {
		http.Error(w, "scheduled_time is outside the booking horizon", http.StatusUnprocessableEntity)
		return
	}

	appt, err := h.guard.TryBook(r.Context(), availability.BookingRequest{
		ProviderID:    req.ProviderID,
		ClientID:      req.ClientID,
		VehicleID:     strings.TrimSpace(req.VehicleID),
		ServiceID:     strings.TrimSpace(req.ServiceID),
		Notes:         strings.TrimSpace(req.Notes),
		ScheduledTime: scheduled,
	})
	if err != nil {
		h.writeAvailabilityError(w, err)
		return
	}
	h.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"provider_id", appt.ProviderID,
		"scheduled_time", appt.ScheduledTime.UTC().Format(time.RFC3339),
	)
	httpx.WriteJSON(w, http.StatusCreated, toItem(appt))
}

// List returns a provider's appointments in every status. With date it covers that day,
// otherwise today through the booking horizon.
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	providerID := providerIDFrom(r)
	if providerID == "" {
		http.Error(w, "provider_id required", http.StatusBadRequest)
		return
	}

	from, to := h.resolver.DayBounds(h.now())
	to = from.AddDate(0, 0, h.horizonDays+1)
	if dateStr := strings.TrimSpace(r.URL.Query().Get("date")); dateStr != "" {
		date, err := time.ParseInLocation(dateLayout, dateStr, h.resolver.Location())
		if err != nil {
			http.Error(w, "invalid date (expected YYYY-MM-DD)", http.StatusBadRequest)
			return
		}
		from, to = h.resolver.DayBounds(date)
	}

	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	appts, err := h.appointments.List(r.Context(), storage.ListFilter{ProviderID: providerID, From: from, To: to, Limit: limit})
	if err != nil {
		h.logger.Error("list appointments failed", "provider_id", providerID, "err", err)
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}
	items := make([]appointmentItem, 0, len(appts))
	for _, a := range appts {
		items = append(items, toItem(a))
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

// UpdateStatus confirms, starts, completes or cancels one of the caller's appointments.
func (h *BookingHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	providerID := providerIDFrom(r)
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if providerID == "" || req.AppointmentID == "" {
		http.Error(w, "provider_id and appointment_id are required", http.StatusBadRequest)
		return
	}
	next, err := model.ParseStatus(strings.TrimSpace(req.Status))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	appt, err := h.appointments.UpdateStatus(r.Context(), providerID, req.AppointmentID, next, strings.TrimSpace(req.CompletionNotes))
	if err != nil {
		switch {
		case storage.IsNotFound(err):
			http.Error(w, "appointment not found", http.StatusNotFound)
		case errors.Is(err, storage.ErrInvalidTransition):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			h.logger.Error("update appointment status failed", "provider_id", providerID, "appointment_id", req.AppointmentID, "err", err)
			http.Error(w, "failed to update appointment", http.StatusInternalServerError)
		}
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toItem(appt))
}

// withinHorizon accepts dates from today through today+horizonDays in the service location.
func (h *BookingHandler) withinHorizon(t time.Time) bool {
	today, _ := h.resolver.DayBounds(h.now())
	day, _ := h.resolver.DayBounds(t)
	return !day.Before(today) && !day.After(today.AddDate(0, 0, h.horizonDays))
}

func (h *BookingHandler) writeAvailabilityError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, availability.ErrSlotConflict):
		http.Error(w, "time slot already booked", http.StatusConflict)
	case errors.Is(err, availability.ErrNotBookable):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, availability.ErrDependencyUnavailable):
		h.logger.Warn("availability dependency unavailable", "err", err)
		http.Error(w, "availability service unavailable", http.StatusServiceUnavailable)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		http.Error(w, "request cancelled", http.StatusServiceUnavailable)
	default:
		h.logger.Error("booking failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func providerIDFrom(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-Provider-Id")); id != "" {
		return id
	}
	return strings.TrimSpace(r.URL.Query().Get("provider_id"))
}
