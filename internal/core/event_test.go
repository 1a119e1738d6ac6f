package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadEventCopiesRoom(t *testing.T) {
	room := NewRoom("room-3")
	room.Select("carol", "Queen")

	ev := NewPayloadEvent("replica-a", room)
	room.Select("dave", "Jack")

	assert.Equal(t, EventPayload, ev.Kind)
	assert.Equal(t, map[string]string{"carol": "Queen"}, ev.Payload.Selections)
	assert.NotEmpty(t, ev.ID)
}

func TestEventWireFormat(t *testing.T) {
	ev := NewInvalidateEvent("replica-a", "room-1")
	ev.ID = "e1"

	data, err := ev.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"e1","type":"INVALIDATE","roomId":"room-1","origin":"replica-a"}`, string(data))

	room := NewRoom("room-3")
	room.Select("carol", "Queen")
	ev = NewPayloadEvent("replica-b", room)
	data, err = ev.Encode()
	require.NoError(t, err)

	decoded, err := DecodeEvent(data)
	require.NoError(t, err)
	assert.Equal(t, ev, decoded)
}

func TestDecodeEventRejectsMalformed(t *testing.T) {
	tests := map[string]string{
		"not json":              `{`,
		"no room":               `{"type":"INVALIDATE"}`,
		"unknown type":          `{"type":"DELETE","roomId":"r"}`,
		"payload without room":  `{"type":"PAYLOAD","roomId":"r"}`,
		"payload room mismatch": `{"type":"PAYLOAD","roomId":"r","payload":{"roomId":"x"}}`,
		"invalidate with room":  `{"type":"INVALIDATE","roomId":"r","payload":{"roomId":"r"}}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeEvent([]byte(raw))
			assert.ErrorIs(t, err, ErrBadRequest)
		})
	}
}

func TestDecodePayloadWithoutSelections(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"type":"PAYLOAD","roomId":"r","payload":{"roomId":"r"}}`))
	require.NoError(t, err)
	assert.NotNil(t, ev.Payload.Selections)
	assert.True(t, ev.Payload.Empty())
}
