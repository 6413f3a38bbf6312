package payments

import (
	"context"
	"errors"
	"testing"

	"malipo/internal/settings"
)

type fakeGateway struct {
	checkoutReq  CheckoutRequest
	checkoutResp CheckoutResponse
	statusReq    StatusRequest
	statusResp   StatusResult
	calls        int
}

func (f *fakeGateway) InitiateCheckout(_ context.Context, req CheckoutRequest) (CheckoutResponse, error) {
	f.calls++
	f.checkoutReq = req
	return f.checkoutResp, nil
}

func (f *fakeGateway) QueryStatus(_ context.Context, req StatusRequest) (StatusResult, error) {
	f.calls++
	f.statusReq = req
	return f.statusResp, nil
}

func staticFactory(gw Gateway) Factory {
	return func(ctx context.Context, contextID int64) (Gateway, error) {
		return gw, nil
	}
}

func TestManagerDispatch(t *testing.T) {
	mpesa := &fakeGateway{checkoutResp: CheckoutResponse{Data: map[string]string{"checkout_request_id": "ws_CO_1"}}}
	stripe := &fakeGateway{checkoutResp: CheckoutResponse{ClientSecret: "cs_1"}}

	m := NewManager()
	m.Register(GatewayMpesa, staticFactory(mpesa))
	m.Register(GatewayStripe, staticFactory(stripe))

	resp, err := m.InitiateCheckout(context.Background(), GatewayStripe, 1, CheckoutRequest{AmountMinor: 500})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.ClientSecret != "cs_1" {
		t.Errorf("got client secret %q, want cs_1", resp.ClientSecret)
	}
	if stripe.calls != 1 || mpesa.calls != 0 {
		t.Errorf("dispatch hit the wrong gateway: stripe=%d mpesa=%d", stripe.calls, mpesa.calls)
	}
	if stripe.checkoutReq.AmountMinor != 500 {
		t.Errorf("request not forwarded, amount = %d", stripe.checkoutReq.AmountMinor)
	}
}

func TestManagerUnknownGateway(t *testing.T) {
	m := NewManager()
	m.Register(GatewayMpesa, staticFactory(&fakeGateway{}))

	_, err := m.InitiateCheckout(context.Background(), "paypal", 1, CheckoutRequest{})
	if !errors.Is(err, ErrUnknownGateway) {
		t.Fatalf("got %v, want ErrUnknownGateway", err)
	}

	_, err = m.QueryStatus(context.Background(), "", 1, StatusRequest{})
	if !errors.Is(err, ErrUnknownGateway) {
		t.Fatalf("got %v, want ErrUnknownGateway", err)
	}
}

func TestManagerFactoryErrorStopsBeforeGateway(t *testing.T) {
	cfgErr := &settings.ConfigError{Gateway: GatewayMpesa, Fields: []string{settings.KeyMpesaConsumerID}}

	m := NewManager()
	m.Register(GatewayMpesa, func(ctx context.Context, contextID int64) (Gateway, error) {
		return nil, cfgErr
	})

	_, err := m.InitiateCheckout(context.Background(), GatewayMpesa, 1, CheckoutRequest{})
	var got *settings.ConfigError
	if !errors.As(err, &got) {
		t.Fatalf("got %v, want ConfigError", err)
	}
	if got.Gateway != GatewayMpesa {
		t.Errorf("got gateway %q, want mpesa", got.Gateway)
	}
}

func TestManagerKnown(t *testing.T) {
	m := NewManager()
	m.Register(GatewayStripe, staticFactory(&fakeGateway{}))

	if !m.Known(GatewayStripe) {
		t.Error("stripe should be known")
	}
	if m.Known(GatewayMpesa) {
		t.Error("mpesa should not be known")
	}
	if names := m.Names(); len(names) != 1 || names[0] != GatewayStripe {
		t.Errorf("Names() = %v", names)
	}
}
