package application

import (
	"math"
	"testing"

	"github.com/example/room-booking/internal/ledger"
	"github.com/example/room-booking/internal/persistence"
)

func TestValidateBookingInput(t *testing.T) {
	t.Parallel()

	valid := BookingInput{
		Name:        "Standup",
		RoomID:      "room-1",
		EventDate:   "2024-06-01",
		StartTime:   "09:00",
		EndTime:     "09:15",
		OrganizerID: "alice",
		Resources:   []ResourceLineInput{{ResourceID: "x", Quantity: 1}},
	}

	t.Run("accepts a complete booking", func(t *testing.T) {
		if vErr := validateBookingInput(valid); vErr.HasErrors() {
			t.Fatalf("expected no errors, got %v", vErr.FieldErrors)
		}
	})

	cases := []struct {
		name   string
		mutate func(*BookingInput)
		field  string
	}{
		{"blank name", func(in *BookingInput) { in.Name = "  " }, "name"},
		{"missing room", func(in *BookingInput) { in.RoomID = "" }, "room_id"},
		{"impossible date", func(in *BookingInput) { in.EventDate = "2024-02-30" }, "event_date"},
		{"malformed start", func(in *BookingInput) { in.StartTime = "9am" }, "start_time"},
		{"end out of range", func(in *BookingInput) { in.EndTime = "24:00" }, "end_time"},
		{"empty window", func(in *BookingInput) { in.EndTime = in.StartTime }, "end_time"},
		{"negative attendees", func(in *BookingInput) { in.Attendees = -1 }, "attendees"},
		{"zero quantity", func(in *BookingInput) { in.Resources[0].Quantity = 0 }, "resources[0].quantity"},
		{"blank resource", func(in *BookingInput) { in.Resources[0].ResourceID = "" }, "resources[0].resource_id"},
		{"attendees beyond storage range", func(in *BookingInput) { in.Attendees = ledger.MaxQuantity + 1 }, "attendees"},
		{"quantity beyond storage range", func(in *BookingInput) { in.Resources[0].Quantity = math.MaxInt }, "resources[0].quantity"},
		{"summed quantity beyond storage range", func(in *BookingInput) {
			in.Resources = []ResourceLineInput{
				{ResourceID: "x", Quantity: ledger.MaxQuantity},
				{ResourceID: "x", Quantity: ledger.MaxQuantity},
			}
		}, "resources"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := valid
			input.Resources = append([]ResourceLineInput(nil), valid.Resources...)
			tc.mutate(&input)

			vErr := validateBookingInput(input)
			if _, ok := vErr.FieldErrors[tc.field]; !ok {
				t.Fatalf("expected error on %s, got %v", tc.field, vErr.FieldErrors)
			}
		})
	}
}

func TestValidateFilter(t *testing.T) {
	t.Parallel()

	if vErr := validateFilter(persistence.EventFilter{Status: persistence.StatusApproved, FromDate: "2024-06-01"}); vErr.HasErrors() {
		t.Fatalf("expected valid filter, got %v", vErr.FieldErrors)
	}

	vErr := validateFilter(persistence.EventFilter{Status: "archived", ToDate: "June", Limit: -1})
	for _, field := range []string{"status", "to_date", "limit"} {
		if _, ok := vErr.FieldErrors[field]; !ok {
			t.Fatalf("expected error on %s, got %v", field, vErr.FieldErrors)
		}
	}
}
