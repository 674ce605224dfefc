package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/room-booking/internal/application"
)

var (
	errBadRequestBody   = errors.New("無効なリクエスト形式です。")
	errInvalidBookingID = errors.New("無効な予約 ID です。")
	errInvalidQuery     = errors.New("検索条件が正しくありません。")
	errMissingPrincipal = errors.New("利用者情報 (X-User-ID) を指定してください。")
)

// retryAfterSeconds is sent with 503 responses for retryable failures.
const retryAfterSeconds = "1"

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := localizedStatusMessage(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).WarnContext(ctx, "request rejected", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	var (
		vErr         *application.ValidationError
		conflict     *application.ConflictError
		unavailable  *application.UnavailableError
		insufficient *application.InsufficientQuantityError
		inUse        *application.InUseError
	)
	switch {
	case errors.As(err, &vErr):
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
			ErrorCode: "VALIDATION_FAILED",
			Message:   "入力内容に誤りがあります。",
			Errors:    localizeValidationErrors(vErr),
		})
	case errors.Is(err, application.ErrUnauthorized):
		r.writeJSON(ctx, w, http.StatusForbidden, errorResponse{
			ErrorCode: "AUTH_FORBIDDEN",
			Message:   "この操作を実行する権限がありません。",
		})
	case errors.Is(err, application.ErrNotFound):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{
			ErrorCode: "NOT_FOUND",
			Message:   "指定されたリソースが見つかりません。",
		})
	case errors.As(err, &conflict):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: "SCHEDULING_CONFLICT",
			Message:   "指定された時間帯は既に予約されています。",
			Conflict: &conflictDTO{
				BookingID:   conflict.BookingID,
				Name:        conflict.Name,
				RoomID:      conflict.RoomID,
				EventDate:   conflict.Date,
				StartTime:   conflict.StartTime,
				EndTime:     conflict.EndTime,
				OrganizerID: conflict.OrganizerID,
				Detail:      conflict.Error(),
			},
		})
	case errors.As(err, &unavailable):
		code, message := "RESOURCE_UNAVAILABLE", "指定された備品は現在利用できません。"
		if errors.Is(err, application.ErrRoomUnavailable) {
			code, message = "ROOM_UNAVAILABLE", "指定された会議室は現在利用できません。"
		}
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{ErrorCode: code, Message: message})
	case errors.As(err, &insufficient):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: "INSUFFICIENT_QUANTITY",
			Message:   "備品の在庫が不足しています。",
			Shortage: &shortageDTO{
				ResourceID: insufficient.ResourceID,
				Requested:  insufficient.Requested,
				Available:  insufficient.Available,
			},
		})
	case errors.As(err, &inUse):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: "IN_USE",
			Message:   "予約で使用中のため削除できません。",
		})
	case errors.Is(err, application.ErrRetryable):
		w.Header().Set("Retry-After", retryAfterSeconds)
		r.writeJSON(ctx, w, http.StatusServiceUnavailable, errorResponse{
			ErrorCode: "RETRY_LATER",
			Message:   "混み合っています。しばらくしてから再度お試しください。",
		})
	default:
		r.loggerFor(ctx).ErrorContext(ctx, "unexpected service error", "error", err)
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Message: "サーバー内部でエラーが発生しました。"})
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

func localizedStatusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "リクエスト内容が正しくありません。"
	case http.StatusUnauthorized:
		return "認証が必要です。"
	case http.StatusForbidden:
		return "この操作を実行する権限がありません。"
	case http.StatusNotFound:
		return "指定されたリソースが見つかりません。"
	case http.StatusConflict:
		return "要求はリソースの現在の状態と競合しています。"
	case http.StatusUnprocessableEntity:
		return "入力内容に誤りがあります。"
	case http.StatusServiceUnavailable:
		return "サービスを一時的に利用できません。"
	default:
		return "サーバー内部でエラーが発生しました。"
	}
}

func localizeValidationErrors(vErr *application.ValidationError) map[string]string {
	if vErr == nil || len(vErr.FieldErrors) == 0 {
		return nil
	}

	translated := make(map[string]string, len(vErr.FieldErrors))
	for field, msg := range vErr.FieldErrors {
		translated[field] = translateValidationMessage(msg)
	}
	return translated
}

func translateValidationMessage(message string) string {
	switch message {
	case "name is required":
		return "名称は必須です。"
	case "room is required":
		return "会議室を指定してください。"
	case "organizer is required":
		return "主催者を指定してください。"
	case "capacity must be positive":
		return "収容人数は正の整数で指定してください。"
	case "event date must be YYYY-MM-DD":
		return "開催日は YYYY-MM-DD 形式で指定してください。"
	case "start time must be HH:MM":
		return "開始時刻は HH:MM 形式で指定してください。"
	case "end time must be HH:MM":
		return "終了時刻は HH:MM 形式で指定してください。"
	case "end time must be after start time":
		return "終了時刻は開始時刻より後である必要があります。"
	case "attendees cannot be negative":
		return "参加人数は 0 以上で指定してください。"
	case "resource is required":
		return "備品を指定してください。"
	case "quantity must be at least 1":
		return "数量は 1 以上で指定してください。"
	case "total quantity cannot be negative":
		return "総数は 0 以上で指定してください。"
	case "quantity is too large":
		return "数量が大きすぎます。"
	case "capacity is too large":
		return "収容人数が大きすぎます。"
	case "attendees is too large":
		return "参加人数が大きすぎます。"
	case "unknown status":
		return "不明なステータスです。"
	default:
		if strings.HasPrefix(message, "attendees exceed room capacity") {
			return "参加人数が会議室の収容人数を超えています。"
		}
		if strings.HasPrefix(message, "total quantity cannot be below") {
			return "総数は予約済みの数量を下回ることはできません。"
		}
		return message
	}
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
	Conflict  *conflictDTO      `json:"conflict,omitempty"`
	Shortage  *shortageDTO      `json:"shortage,omitempty"`
}

type conflictDTO struct {
	BookingID   string `json:"booking_id"`
	Name        string `json:"name,omitempty"`
	RoomID      string `json:"room_id"`
	EventDate   string `json:"event_date"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	OrganizerID string `json:"organizer_id"`
	Detail      string `json:"detail"`
}

type shortageDTO struct {
	ResourceID string `json:"resource_id"`
	Requested  int    `json:"requested"`
	Available  int    `json:"available"`
}
