package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() Notification {
	return Notification{
		ID:          "n-1",
		Type:        BookingCreated,
		BookingID:   "evt-1",
		RoomID:      "room-1",
		EventDate:   "2024-06-01",
		StartTime:   "10:00",
		EndTime:     "11:00",
		Status:      "pending",
		OrganizerID: "alice",
		Resources:   []Line{{ResourceID: "proj", Quantity: 2}},
		OccurredAt:  time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestBuildRecord(t *testing.T) {
	record, err := buildRecord("booking-events", "room-booking", sample())
	require.NoError(t, err)

	assert.Equal(t, "booking-events", record.Topic)
	assert.Equal(t, []byte("evt-1"), record.Key)

	headers := map[string]string{}
	for _, h := range record.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "booking.created", headers["event_type"])
	assert.Equal(t, "n-1", headers["event_id"])
	assert.Equal(t, "room-booking", headers["source"])

	var payload map[string]any
	require.NoError(t, json.Unmarshal(record.Value, &payload))
	assert.Equal(t, "room-1", payload["room_id"])
	assert.Equal(t, "2024-06-01", payload["event_date"])
}

func TestNewKafkaRequiresBrokers(t *testing.T) {
	_, err := NewKafka(KafkaConfig{})
	require.Error(t, err)
}

func TestRecorder(t *testing.T) {
	var r Recorder
	require.NoError(t, r.Publish(context.Background(), sample()))
	assert.Len(t, r.Sent(), 1)

	boom := errors.New("broker down")
	r.FailWith(boom)
	require.ErrorIs(t, r.Publish(context.Background(), sample()), boom)
	assert.Len(t, r.Sent(), 1)
}

func TestNoop(t *testing.T) {
	var p Publisher = Noop{}
	require.NoError(t, p.Publish(context.Background(), sample()))
	require.NoError(t, p.Close())
}
