package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"malipo/internal/auth"
	"malipo/internal/payments"
	"malipo/internal/ratelimiter"
	"malipo/internal/reference"
	"malipo/internal/settings"
	"malipo/internal/store"

	"go.uber.org/zap"
)

// fakePaymentsStore keeps queued payments in memory and enforces the same
// pending-only transition rule as the SQL store.
type fakePaymentsStore struct {
	mu          sync.Mutex
	records     map[int64]*store.QueuedPayment
	completions int
	failures    int
}

func (f *fakePaymentsStore) GetByID(_ context.Context, id int64) (*store.QueuedPayment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	qp, ok := f.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *qp
	return &cp, nil
}

func (f *fakePaymentsStore) SetProviderRef(_ context.Context, id int64, provider, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if qp, ok := f.records[id]; ok {
		qp.Provider = &provider
		qp.ProviderRef = &ref
	}
	return nil
}

func (f *fakePaymentsStore) MarkCompleted(_ context.Context, id int64, provider, ref string) (bool, error) {
	return f.settle(id, store.PaymentStatusCompleted, provider, ref, &f.completions)
}

func (f *fakePaymentsStore) MarkFailed(_ context.Context, id int64, provider, reason string) (bool, error) {
	return f.settle(id, store.PaymentStatusFailed, provider, reason, &f.failures)
}

func (f *fakePaymentsStore) settle(id int64, status, provider, ref string, counter *int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	qp, ok := f.records[id]
	if !ok || qp.Status != store.PaymentStatusPending {
		return false, nil
	}
	qp.Status = status
	qp.Provider = &provider
	if ref != "" {
		qp.ProviderRef = &ref
	}
	now := time.Now()
	qp.SettledAt = &now
	*counter++
	return true, nil
}

type fakeSettingsStore struct {
	mu     sync.Mutex
	values map[int64]map[string]string
}

func (f *fakeSettingsStore) Get(_ context.Context, contextID int64, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[contextID][name], nil
}

func (f *fakeSettingsStore) All(_ context.Context, contextID int64) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]string{}
	for k, v := range f.values[contextID] {
		out[k] = v
	}
	return out, nil
}

func (f *fakeSettingsStore) Upsert(_ context.Context, contextID int64, name, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.values == nil {
		f.values = map[int64]map[string]string{}
	}
	if f.values[contextID] == nil {
		f.values[contextID] = map[string]string{}
	}
	f.values[contextID][name] = value
	return nil
}

type fakeEventsStore struct {
	mu     sync.Mutex
	events []store.PaymentEvent
}

func (f *fakeEventsStore) Insert(_ context.Context, e *store.PaymentEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, *e)
	return nil
}

func (f *fakeEventsStore) ListByPayment(_ context.Context, id int64) ([]store.PaymentEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.PaymentEvent
	for _, e := range f.events {
		if e.QueuedPaymentID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

// stubGateway stands in for a provider adapter behind the manager.
type stubGateway struct {
	mu           sync.Mutex
	calls        int
	lastCheckout payments.CheckoutRequest
	checkoutResp payments.CheckoutResponse
	checkoutErr  error
	statusResp   payments.StatusResult
	statusErr    error
}

func (s *stubGateway) InitiateCheckout(_ context.Context, req payments.CheckoutRequest) (payments.CheckoutResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastCheckout = req
	if s.checkoutErr != nil {
		return payments.CheckoutResponse{}, s.checkoutErr
	}
	return s.checkoutResp, nil
}

func (s *stubGateway) QueryStatus(_ context.Context, _ payments.StatusRequest) (payments.StatusResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.statusErr != nil {
		return payments.StatusResult{}, s.statusErr
	}
	return s.statusResp, nil
}

func (s *stubGateway) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type testHarness struct {
	app      *application
	payments *fakePaymentsStore
	settings *fakeSettingsStore
	events   *fakeEventsStore
	mpesa    *stubGateway
	stripe   *stubGateway
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	fp := &fakePaymentsStore{records: map[int64]*store.QueuedPayment{}}
	fs := &fakeSettingsStore{values: map[int64]map[string]string{}}
	fe := &fakeEventsStore{}
	mpesa := &stubGateway{}
	stripe := &stubGateway{}

	manager := payments.NewManager()
	manager.Register(payments.GatewayMpesa, func(ctx context.Context, contextID int64) (payments.Gateway, error) {
		return mpesa, nil
	})
	manager.Register(payments.GatewayStripe, func(ctx context.Context, contextID int64) (payments.Gateway, error) {
		return stripe, nil
	})

	refs, err := reference.NewGenerator("test-salt", "MLP")
	if err != nil {
		t.Fatalf("reference generator: %v", err)
	}

	app := &application{
		config: config{
			addr:        ":0",
			env:         "test",
			apiURL:      "http://localhost:8080",
			pluginName:  "malipo",
			rateLimiter: ratelimiter.Config{Enabled: false},
			auth: authConfig{
				token: tokenConfig{secret: "test-secret", refreshSecret: "test-refresh", iss: "malipo"},
			},
		},
		store:         store.Storage{Payments: fp, Settings: fs, Events: fe},
		logger:        zap.NewNop().Sugar(),
		payments:      manager,
		settings:      settings.NewService(fs),
		authenticator: auth.NewJWTAuthenticator("test-secret", "test-refresh", "malipo", "malipo", time.Hour, time.Hour),
		rateLimiter:   ratelimiter.NewFixedWindowLimiter(1000, time.Second),
		refs:          refs,
	}

	return &testHarness{app: app, payments: fp, settings: fs, events: fe, mpesa: mpesa, stripe: stripe}
}

func (h *testHarness) addPayment(qp store.QueuedPayment) {
	h.payments.mu.Lock()
	defer h.payments.mu.Unlock()
	cp := qp
	h.payments.records[qp.ID] = &cp
}

func (h *testHarness) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.app.mount().ServeHTTP(rr, req)
	return rr
}

func pendingPayment(id, contextID int64, amount float64) store.QueuedPayment {
	return store.QueuedPayment{
		ID:          id,
		ContextID:   contextID,
		PayerName:   "Jane Author",
		PayerEmail:  "jane@example.com",
		Amount:      amount,
		Currency:    "USD",
		Description: "Article processing fee",
		Status:      store.PaymentStatusPending,
	}
}
