package application

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/example/room-booking/internal/logging"
)

func TestDefaultLogger(t *testing.T) {
	t.Parallel()

	custom := slog.New(slog.NewTextHandler(io.Discard, nil))
	if got := defaultLogger(custom); got != custom {
		t.Fatalf("expected custom logger to be returned")
	}

	if got := defaultLogger(nil); got != slog.Default() {
		t.Fatalf("expected default logger when none provided")
	}
}

func TestServiceLoggerPrefersContextLogger(t *testing.T) {
	t.Parallel()

	var base, scoped bytes.Buffer
	baseLogger := slog.New(slog.NewTextHandler(&base, nil))
	ctx := logging.ContextWithLogger(context.Background(), slog.New(slog.NewTextHandler(&scoped, nil)))

	serviceLogger(ctx, baseLogger, "BookingService", "CreateBooking", "room_id", "r1").Info("hello")

	if base.Len() != 0 {
		t.Fatalf("expected base logger to stay silent, got %q", base.String())
	}
	out := scoped.String()
	for _, want := range []string{"service=BookingService", "operation=CreateBooking", "room_id=r1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
}

func TestLogOutcomeLevels(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := context.Background()

	logOutcome(ctx, logger, &ConflictError{BookingID: "b1"}, "failed to create booking")
	if !strings.Contains(buf.String(), "level=WARN") || !strings.Contains(buf.String(), "error_kind=scheduling_conflict") {
		t.Fatalf("expected warn entry for expected failure, got %q", buf.String())
	}

	buf.Reset()
	logOutcome(ctx, logger, errors.New("disk on fire"), "failed to create booking")
	if !strings.Contains(buf.String(), "level=ERROR") || !strings.Contains(buf.String(), "error_kind=unexpected") {
		t.Fatalf("expected error entry for unexpected failure, got %q", buf.String())
	}
}
