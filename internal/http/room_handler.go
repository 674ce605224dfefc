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

type roomService interface {
	CreateRoom(ctx context.Context, params application.CreateRoomParams) (persistence.Room, error)
	GetRoom(ctx context.Context, id string) (persistence.Room, error)
	ListRooms(ctx context.Context, filter persistence.RoomFilter) ([]persistence.Room, error)
	SetRoomAvailability(ctx context.Context, params application.SetAvailabilityParams) (persistence.Room, error)
	DeleteRoom(ctx context.Context, principal application.Principal, id string) error
}

type RoomHandler struct {
	service   roomService
	responder responder
	logger    *slog.Logger
}

func NewRoomHandler(service roomService, logger *slog.Logger) *RoomHandler {
	base := defaultLogger(logger)
	return &RoomHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *RoomHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "RoomHandler", operation, attrs...)
}

func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var req roomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode room request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Create")
	room, err := h.service.CreateRoom(r.Context(), application.CreateRoomParams{
		Principal: principal,
		Input:     req.toInput(),
	})
	if err != nil {
		logServiceFailure(r.Context(), logger, "room creation failed", err)
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("room_id", room.ID).InfoContext(r.Context(), "room created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, roomResponse{Room: toRoomDTO(room)})
}

func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	room, err := h.service.GetRoom(r.Context(), id)
	if err != nil {
		logServiceFailure(r.Context(), h.log(r.Context(), "Get", "room_id", id), "room lookup failed", err)
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, roomResponse{Room: toRoomDTO(room)})
}

func (h *RoomHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseRoomFilter(r)
	if err != nil {
		h.log(r.Context(), "List", "error_kind", "bad_request").WarnContext(r.Context(), "invalid room query", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidQuery)
		return
	}

	rooms, err := h.service.ListRooms(r.Context(), filter)
	if err != nil {
		logServiceFailure(r.Context(), h.log(r.Context(), "List"), "room list failed", err)
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listRoomsResponse{Rooms: toRoomDTOs(rooms)})
}

func (h *RoomHandler) SetAvailability(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	principal, _ := PrincipalFromContext(r.Context())

	var req availabilityFlagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Available == nil {
		h.log(r.Context(), "SetAvailability", "room_id", id, "error_kind", "bad_request").WarnContext(r.Context(), "invalid availability payload", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "SetAvailability", "room_id", id, "available", *req.Available)
	room, err := h.service.SetRoomAvailability(r.Context(), application.SetAvailabilityParams{
		Principal: principal,
		ID:        id,
		Available: *req.Available,
	})
	if err != nil {
		logServiceFailure(r.Context(), logger, "room availability update failed", err)
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "room availability updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, roomResponse{Room: toRoomDTO(room)})
}

func (h *RoomHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	principal, _ := PrincipalFromContext(r.Context())

	logger := h.log(r.Context(), "Delete", "room_id", id)
	if err := h.service.DeleteRoom(r.Context(), principal, id); err != nil {
		logServiceFailure(r.Context(), logger, "room delete failed", err)
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "room deleted")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

type availabilityFlagRequest struct {
	Available *bool `json:"available"`
}

type roomRequest struct {
	Name     string `json:"name"`
	Location string `json:"location"`
	Capacity int    `json:"capacity"`
}

func (r roomRequest) toInput() application.RoomInput {
	return application.RoomInput{
		Name:     strings.TrimSpace(r.Name),
		Location: strings.TrimSpace(r.Location),
		Capacity: r.Capacity,
	}
}

type roomResponse struct {
	Room roomDTO `json:"room"`
}

type listRoomsResponse struct {
	Rooms []roomDTO `json:"rooms"`
}

type roomDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Location    string `json:"location"`
	Capacity    int    `json:"capacity"`
	IsAvailable bool   `json:"is_available"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func toRoomDTO(room persistence.Room) roomDTO {
	return roomDTO{
		ID:          room.ID,
		Name:        room.Name,
		Location:    room.Location,
		Capacity:    room.Capacity,
		IsAvailable: room.IsAvailable,
		CreatedAt:   room.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:   room.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func toRoomDTOs(rooms []persistence.Room) []roomDTO {
	out := make([]roomDTO, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, toRoomDTO(room))
	}
	return out
}

func parseRoomFilter(r *http.Request) (persistence.RoomFilter, error) {
	q := r.URL.Query()
	filter := persistence.RoomFilter{Search: strings.TrimSpace(q.Get("search"))}
	if raw := strings.TrimSpace(q.Get("available")); raw != "" {
		available, err := strconv.ParseBool(raw)
		if err != nil {
			return persistence.RoomFilter{}, err
		}
		filter.OnlyAvailable = available
	}
	if raw := strings.TrimSpace(q.Get("min_capacity")); raw != "" {
		capacity, err := strconv.Atoi(raw)
		if err != nil {
			return persistence.RoomFilter{}, err
		}
		filter.MinCapacity = capacity
	}
	return filter, nil
}
