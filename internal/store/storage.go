package store

import (
	"context"
	"errors"
	"time"

	"malipo/internal/dbx"
)

var (
	ErrNotFound          = errors.New("resource not found")
	QueryTimeoutDuration = time.Second * 5
)

type Storage struct {
	Payments interface {
		GetByID(ctx context.Context, queuedPaymentID int64) (*QueuedPayment, error)
		SetProviderRef(ctx context.Context, queuedPaymentID int64, provider, ref string) error
		// MarkCompleted and MarkFailed only transition a payment that is
		// still pending. The returned bool reports whether this call won
		// the transition, so callers run settlement side effects once.
		MarkCompleted(ctx context.Context, queuedPaymentID int64, provider, ref string) (bool, error)
		MarkFailed(ctx context.Context, queuedPaymentID int64, provider, reason string) (bool, error)
	}
	Settings interface {
		Get(ctx context.Context, contextID int64, name string) (string, error)
		All(ctx context.Context, contextID int64) (map[string]string, error)
		Upsert(ctx context.Context, contextID int64, name, value string) error
	}
	Events interface {
		Insert(ctx context.Context, e *PaymentEvent) error
		ListByPayment(ctx context.Context, queuedPaymentID int64) ([]PaymentEvent, error)
	}
}

func NewStorage(q dbx.Querier) Storage {
	return Storage{
		Payments: &QueuedPaymentsStore{q},
		Settings: &SettingsStore{q},
		Events:   &EventsStore{q},
	}
}
