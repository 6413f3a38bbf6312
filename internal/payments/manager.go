package payments

import (
	"context"
	"fmt"
)

// Factory builds a configured adapter for one context. Resolving the
// per-context credentials here means a misconfigured gateway fails before
// any network call is made.
type Factory func(ctx context.Context, contextID int64) (Gateway, error)

// Manager dispatches checkout and status calls to the selected gateway.
type Manager struct {
	factories map[string]Factory
}

func NewManager() *Manager {
	return &Manager{factories: make(map[string]Factory)}
}

func (m *Manager) Register(name string, f Factory) {
	m.factories[name] = f
}

// Names lists the registered gateways, for the chooser payload.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.factories))
	for name := range m.factories {
		names = append(names, name)
	}
	return names
}

func (m *Manager) Known(name string) bool {
	_, ok := m.factories[name]
	return ok
}

func (m *Manager) gateway(ctx context.Context, name string, contextID int64) (Gateway, error) {
	f, ok := m.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGateway, name)
	}
	return f(ctx, contextID)
}

func (m *Manager) InitiateCheckout(ctx context.Context, name string, contextID int64, req CheckoutRequest) (CheckoutResponse, error) {
	gw, err := m.gateway(ctx, name, contextID)
	if err != nil {
		return CheckoutResponse{}, err
	}
	return gw.InitiateCheckout(ctx, req)
}

func (m *Manager) QueryStatus(ctx context.Context, name string, contextID int64, req StatusRequest) (StatusResult, error) {
	gw, err := m.gateway(ctx, name, contextID)
	if err != nil {
		return StatusResult{}, err
	}
	return gw.QueryStatus(ctx, req)
}
