package action

import (
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	xerrors "Parry-QV/internal/errors"
)

func TestEnvelopeRoundTripCarriesActionID(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msg, err := encodeEnvelope("a-42", now)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if msg.MessageId != "a-42" || msg.Type != envelopeType || msg.DeliveryMode != amqp.Persistent {
		t.Fatalf("unexpected publishing headers: %+v", msg)
	}
	id, err := decodeEnvelope(amqp.Delivery{ContentType: msg.ContentType, Body: msg.Body})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if id != "a-42" {
		t.Fatalf("expected a-42, got %q", id)
	}
}

func TestDecodeEnvelopeAcceptsPlainTextAndRejectsGarbage(t *testing.T) {
	id, err := decodeEnvelope(amqp.Delivery{ContentType: "text/plain", Body: []byte(" a-7\n")})
	if err != nil || id != "a-7" {
		t.Fatalf("expected plain text id a-7, got %q (%v)", id, err)
	}

	cases := []amqp.Delivery{
		{ContentType: "text/plain", Body: []byte("  ")},
		{ContentType: "application/json", Body: []byte("{not json")},
		{ContentType: "application/json", Body: []byte(`{"published_at":"2026-03-01T12:00:00Z"}`)},
	}
	for i, msg := range cases {
		if _, err := decodeEnvelope(msg); !xerrors.HasCode(err, xerrors.CodeQueueFailure) {
			t.Fatalf("case %d: expected QUEUE_FAILURE, got %v", i, err)
		}
	}
}
