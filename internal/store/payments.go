package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"malipo/internal/dbx"

	"github.com/jackc/pgx/v5"
)

// Payment lifecycle. A queued payment is created pending by the host and is
// settled exactly once: pending -> completed or pending -> failed.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

// QueuedPayment is the host-owned pending-fee record. The service reads it
// and signals completion; it never rewrites amount or payer fields.
type QueuedPayment struct {
	ID          int64      `json:"id"`
	ContextID   int64      `json:"context_id"`
	PayerName   string     `json:"payer_name"`
	PayerEmail  string     `json:"payer_email"`
	Amount      float64    `json:"amount"`
	Currency    string     `json:"currency"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Provider    *string    `json:"provider,omitempty"`
	ProviderRef *string    `json:"provider_ref,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	SettledAt   *time.Time `json:"settled_at,omitempty"`
}

func (p *QueuedPayment) Free() bool { return p.Amount <= 0 }

type QueuedPaymentsStore struct {
	q dbx.Querier
}

func (s *QueuedPaymentsStore) GetByID(ctx context.Context, queuedPaymentID int64) (*QueuedPayment, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var p QueuedPayment
	err := s.q.QueryRow(ctx, `
		SELECT id, context_id, payer_name, payer_email, amount, currency,
		       description, status, provider, provider_ref,
		       created_at, updated_at, settled_at
		  FROM queued_payments
		 WHERE id = $1
	`, queuedPaymentID).Scan(
		&p.ID, &p.ContextID, &p.PayerName, &p.PayerEmail, &p.Amount, &p.Currency,
		&p.Description, &p.Status, &p.Provider, &p.ProviderRef,
		&p.CreatedAt, &p.UpdatedAt, &p.SettledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get queued payment: %w", err)
	}
	return &p, nil
}

func (s *QueuedPaymentsStore) SetProviderRef(ctx context.Context, queuedPaymentID int64, provider, ref string) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	_, err := s.q.Exec(ctx, `
		UPDATE queued_payments
		   SET provider = $2, provider_ref = $3, updated_at = now()
		 WHERE id = $1
	`, queuedPaymentID, provider, ref)
	if err != nil {
		return fmt.Errorf("set provider ref: %w", err)
	}
	return nil
}

func (s *QueuedPaymentsStore) MarkCompleted(ctx context.Context, queuedPaymentID int64, provider, ref string) (bool, error) {
	return s.settle(ctx, queuedPaymentID, PaymentStatusCompleted, provider, ref)
}

func (s *QueuedPaymentsStore) MarkFailed(ctx context.Context, queuedPaymentID int64, provider, reason string) (bool, error) {
	return s.settle(ctx, queuedPaymentID, PaymentStatusFailed, provider, reason)
}

// settle applies a terminal status only while the row is still pending.
// Concurrent callbacks for the same queued payment therefore record exactly
// one outcome; the losers see zero rows affected.
func (s *QueuedPaymentsStore) settle(ctx context.Context, queuedPaymentID int64, status, provider, ref string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	tag, err := s.q.Exec(ctx, `
		UPDATE queued_payments
		   SET status = $2,
		       provider = $3,
		       provider_ref = COALESCE(NULLIF($4, ''), provider_ref),
		       settled_at = now(),
		       updated_at = now()
		 WHERE id = $1
		   AND status = $5
	`, queuedPaymentID, status, provider, ref, PaymentStatusPending)
	if err != nil {
		return false, fmt.Errorf("settle queued payment: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
