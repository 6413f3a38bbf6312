package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"malipo/internal/dbx"

	"github.com/google/uuid"
)

// Event types recorded against a queued payment.
const (
	EventRequest  = "request"
	EventResponse = "response"
	EventCallback = "callback"
	EventSettled  = "settled"
	EventError    = "error"
)

// PaymentEvent is an append-only audit record of everything the gateways
// told us about a queued payment. Raw provider payloads land here, not in
// user-facing responses.
type PaymentEvent struct {
	ID              string    `json:"id"`
	QueuedPaymentID int64     `json:"queued_payment_id"`
	ContextID       int64     `json:"context_id"`
	Gateway         string    `json:"gateway"`
	EventType       string    `json:"event_type"`
	Payload         any       `json:"payload,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

type EventsStore struct {
	q dbx.Querier
}

func (s *EventsStore) Insert(ctx context.Context, e *PaymentEvent) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	var payload []byte
	if e.Payload != nil {
		b, err := json.Marshal(e.Payload)
		if err == nil {
			payload = b
		}
	}

	_, err := s.q.Exec(ctx, `
		INSERT INTO payment_events (id, queued_payment_id, context_id, gateway, event_type, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ID, e.QueuedPaymentID, e.ContextID, e.Gateway, e.EventType, payload)
	if err != nil {
		return fmt.Errorf("insert payment event: %w", err)
	}
	return nil
}

func (s *EventsStore) ListByPayment(ctx context.Context, queuedPaymentID int64) ([]PaymentEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	rows, err := s.q.Query(ctx, `
		SELECT id, queued_payment_id, context_id, gateway, event_type, payload, created_at
		  FROM payment_events
		 WHERE queued_payment_id = $1
		 ORDER BY created_at ASC
	`, queuedPaymentID)
	if err != nil {
		return nil, fmt.Errorf("list payment events: %w", err)
	}
	defer rows.Close()

	var out []PaymentEvent
	for rows.Next() {
		var e PaymentEvent
		var payload []byte
		if err := rows.Scan(&e.ID, &e.QueuedPaymentID, &e.ContextID, &e.Gateway, &e.EventType, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment event: %w", err)
		}
		if len(payload) > 0 {
			var v any
			if err := json.Unmarshal(payload, &v); err == nil {
				e.Payload = v
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
