package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/room-booking/internal/application"
	"github.com/example/room-booking/internal/persistence"
)

type bookingService interface {
	CreateBooking(ctx context.Context, params application.CreateBookingParams) (persistence.Event, error)
	UpdateBooking(ctx context.Context, params application.UpdateBookingParams) (persistence.Event, error)
	DeleteBooking(ctx context.Context, params application.DeleteBookingParams) error
	GetBooking(ctx context.Context, id string) (persistence.Event, error)
	ListBookings(ctx context.Context, filter persistence.EventFilter) ([]persistence.Event, error)
	CheckAvailability(ctx context.Context, query application.AvailabilityQuery) (application.Availability, error)
}

type BookingHandler struct {
	service   bookingService
	responder responder
	logger    *slog.Logger
}

func NewBookingHandler(service bookingService, logger *slog.Logger) *BookingHandler {
	base := defaultLogger(logger)
	return &BookingHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *BookingHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "BookingHandler", operation, attrs...)
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var req bookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode booking request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Create", "room_id", req.RoomID)
	booking, err := h.service.CreateBooking(r.Context(), application.CreateBookingParams{
		Principal: principal,
		Input:     req.toInput(),
	})
	if err != nil {
		logServiceFailure(r.Context(), logger, "booking creation failed", err)
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("booking_id", booking.ID).InfoContext(r.Context(), "booking created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, bookingResponse{Booking: toBookingDTO(booking)})
}

func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	booking, err := h.service.GetBooking(r.Context(), id)
	if err != nil {
		logServiceFailure(r.Context(), h.log(r.Context(), "Get", "booking_id", id), "booking lookup failed", err)
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, bookingResponse{Booking: toBookingDTO(booking)})
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseEventFilter(r)
	if err != nil {
		h.log(r.Context(), "List", "error_kind", "bad_request").WarnContext(r.Context(), "invalid booking query", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidQuery)
		return
	}

	logger := h.log(r.Context(), "List")
	bookings, err := h.service.ListBookings(r.Context(), filter)
	if err != nil {
		logServiceFailure(r.Context(), logger, "booking list failed", err)
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("result_count", len(bookings)).DebugContext(r.Context(), "bookings listed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listBookingsResponse{Bookings: toBookingDTOs(bookings)})
}

func (h *BookingHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidBookingID)
		return
	}
	principal, _ := PrincipalFromContext(r.Context())

	var req bookingPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Update", "booking_id", id, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode booking update", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Update", "booking_id", id)
	booking, err := h.service.UpdateBooking(r.Context(), application.UpdateBookingParams{
		Principal: principal,
		BookingID: id,
		Patch:     req.toPatch(),
	})
	if err != nil {
		logServiceFailure(r.Context(), logger, "booking update failed", err)
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("status", booking.Status).InfoContext(r.Context(), "booking updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, bookingResponse{Booking: toBookingDTO(booking)})
}

func (h *BookingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	principal, _ := PrincipalFromContext(r.Context())

	logger := h.log(r.Context(), "Delete", "booking_id", id)
	if err := h.service.DeleteBooking(r.Context(), application.DeleteBookingParams{Principal: principal, BookingID: id}); err != nil {
		logServiceFailure(r.Context(), logger, "booking delete failed", err)
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "booking deleted")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *BookingHandler) Availability(w http.ResponseWriter, r *http.Request) {
	var req availabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Availability", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode availability request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	result, err := h.service.CheckAvailability(r.Context(), application.AvailabilityQuery{
		RoomID:           strings.TrimSpace(req.RoomID),
		EventDate:        strings.TrimSpace(req.EventDate),
		StartTime:        strings.TrimSpace(req.StartTime),
		EndTime:          strings.TrimSpace(req.EndTime),
		ExcludeBookingID: strings.TrimSpace(req.ExcludeBookingID),
	})
	if err != nil {
		logServiceFailure(r.Context(), h.log(r.Context(), "Availability", "room_id", req.RoomID), "availability check failed", err)
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, availabilityResponse{
		Available: result.Available,
		Conflicts: toBookingDTOs(result.Conflicts),
	})
}

func parseEventFilter(r *http.Request) (persistence.EventFilter, error) {
	q := r.URL.Query()
	filter := persistence.EventFilter{
		Status:      persistence.EventStatus(strings.TrimSpace(q.Get("status"))),
		RoomID:      strings.TrimSpace(q.Get("room_id")),
		OrganizerID: strings.TrimSpace(q.Get("organizer_id")),
		FromDate:    strings.TrimSpace(q.Get("from_date")),
		ToDate:      strings.TrimSpace(q.Get("to_date")),
		Search:      strings.TrimSpace(q.Get("search")),
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return persistence.EventFilter{}, err
		}
		filter.Limit = limit
	}
	return filter, nil
}

type resourceLineDTO struct {
	ResourceID string `json:"resource_id"`
	Quantity   int    `json:"quantity"`
}

func toLineInputs(lines []resourceLineDTO) []application.ResourceLineInput {
	if len(lines) == 0 {
		return nil
	}
	out := make([]application.ResourceLineInput, len(lines))
	for i, line := range lines {
		out[i] = application.ResourceLineInput{ResourceID: strings.TrimSpace(line.ResourceID), Quantity: line.Quantity}
	}
	return out
}

type bookingRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	RoomID      string            `json:"room_id"`
	EventDate   string            `json:"event_date"`
	StartTime   string            `json:"start_time"`
	EndTime     string            `json:"end_time"`
	Resources   []resourceLineDTO `json:"resources"`
	OrganizerID string            `json:"organizer_id"`
	Attendees   int               `json:"attendees"`
}

func (r bookingRequest) toInput() application.BookingInput {
	return application.BookingInput{
		Name:        strings.TrimSpace(r.Name),
		Description: r.Description,
		RoomID:      strings.TrimSpace(r.RoomID),
		EventDate:   strings.TrimSpace(r.EventDate),
		StartTime:   strings.TrimSpace(r.StartTime),
		EndTime:     strings.TrimSpace(r.EndTime),
		Resources:   toLineInputs(r.Resources),
		OrganizerID: strings.TrimSpace(r.OrganizerID),
		Attendees:   r.Attendees,
	}
}

type bookingPatchRequest struct {
	Name        *string            `json:"name"`
	Description *string            `json:"description"`
	RoomID      *string            `json:"room_id"`
	EventDate   *string            `json:"event_date"`
	StartTime   *string            `json:"start_time"`
	EndTime     *string            `json:"end_time"`
	Status      *string            `json:"status"`
	Resources   *[]resourceLineDTO `json:"resources"`
	Attendees   *int               `json:"attendees"`
}

func (r bookingPatchRequest) toPatch() application.BookingPatch {
	patch := application.BookingPatch{
		Name:        r.Name,
		Description: r.Description,
		RoomID:      trimmed(r.RoomID),
		EventDate:   trimmed(r.EventDate),
		StartTime:   trimmed(r.StartTime),
		EndTime:     trimmed(r.EndTime),
		Attendees:   r.Attendees,
	}
	if r.Status != nil {
		status := persistence.EventStatus(strings.ToLower(strings.TrimSpace(*r.Status)))
		patch.Status = &status
	}
	if r.Resources != nil {
		lines := toLineInputs(*r.Resources)
		if lines == nil {
			lines = []application.ResourceLineInput{}
		}
		patch.Resources = &lines
	}
	return patch
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	return &v
}

type availabilityRequest struct {
	RoomID           string `json:"room_id"`
	EventDate        string `json:"event_date"`
	StartTime        string `json:"start_time"`
	EndTime          string `json:"end_time"`
	ExcludeBookingID string `json:"exclude_booking_id"`
}

type availabilityResponse struct {
	Available bool         `json:"available"`
	Conflicts []bookingDTO `json:"conflicts"`
}

type bookingResponse struct {
	Booking bookingDTO `json:"booking"`
}

type listBookingsResponse struct {
	Bookings []bookingDTO `json:"bookings"`
}

type bookingDTO struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	RoomID      string            `json:"room_id"`
	EventDate   string            `json:"event_date"`
	StartTime   string            `json:"start_time"`
	EndTime     string            `json:"end_time"`
	Status      string            `json:"status"`
	Resources   []resourceLineDTO `json:"resources"`
	OrganizerID string            `json:"organizer_id"`
	Attendees   int               `json:"attendees"`
	ClaimsHeld  bool              `json:"claims_held"`
	CreatedAt   string            `json:"created_at"`
	UpdatedAt   string            `json:"updated_at"`
}

func toBookingDTO(e persistence.Event) bookingDTO {
	lines := make([]resourceLineDTO, 0, len(e.Resources))
	for _, line := range e.Resources {
		lines = append(lines, resourceLineDTO{ResourceID: line.ResourceID, Quantity: line.Quantity})
	}
	return bookingDTO{
		ID:          e.ID,
		Name:        e.Name,
		Description: e.Description,
		RoomID:      e.RoomID,
		EventDate:   e.EventDate,
		StartTime:   e.StartTime,
		EndTime:     e.EndTime,
		Status:      string(e.Status),
		Resources:   lines,
		OrganizerID: e.OrganizerID,
		Attendees:   e.Attendees,
		ClaimsHeld:  e.ClaimsHeld,
		CreatedAt:   e.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:   e.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func toBookingDTOs(events []persistence.Event) []bookingDTO {
	out := make([]bookingDTO, 0, len(events))
	for _, e := range events {
		out = append(out, toBookingDTO(e))
	}
	return out
}
