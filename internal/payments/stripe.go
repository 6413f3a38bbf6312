package payments

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"malipo/internal/settings"

	stripe "github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/client"
)

// StripeAdapter drives Stripe embedded hosted checkout. Each adapter holds
// its own client so contexts with different secret keys never share state.
type StripeAdapter struct {
	api            *client.API
	publishableKey string
}

func NewStripeAdapter(cfg settings.Stripe) *StripeAdapter {
	api := &client.API{}
	api.Init(cfg.SecretKey, nil)
	return &StripeAdapter{api: api, publishableKey: cfg.PublishableKey}
}

// InitiateCheckout creates an embedded checkout session for a single line
// item and hands the client secret back for the browser-side SDK. Never
// retried automatically: a second session is a second charge attempt.
func (s *StripeAdapter) InitiateCheckout(ctx context.Context, req CheckoutRequest) (CheckoutResponse, error) {
	if req.ReturnURL == "" {
		return CheckoutResponse{}, fmt.Errorf("stripe checkout requires a return url")
	}

	qty := req.Quantity
	if qty <= 0 {
		qty = 1
	}

	params := &stripe.CheckoutSessionParams{
		Params:    stripe.Params{Context: ctx},
		ReturnURL: stripe.String(req.ReturnURL),
		// Carried back on the webhook event to locate the queued payment.
		ClientReferenceID: stripe.String(strconv.FormatInt(req.QueuedPaymentID, 10)),
		Mode:      stripe.String(string(stripe.CheckoutSessionModePayment)),
		UIMode:    stripe.String(string(stripe.CheckoutSessionUIModeEmbedded)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(qty),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(req.Currency),
					UnitAmount: stripe.Int64(req.AmountMinor),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
				},
			},
		},
	}

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return CheckoutResponse{}, wrapStripeErr("create session", err)
	}

	return CheckoutResponse{
		ClientSecret:   sess.ClientSecret,
		PublishableKey: s.publishableKey,
		Data: map[string]string{
			"session_id": sess.ID,
		},
	}, nil
}

// QueryStatus retrieves a checkout session by ID. A tampered or unknown
// session ID comes back as a GatewayError, never a panic or raw provider
// text.
func (s *StripeAdapter) QueryStatus(ctx context.Context, req StatusRequest) (StatusResult, error) {
	if req.SessionID == "" {
		return StatusResult{}, fmt.Errorf("stripe status query requires a session id")
	}

	sess, err := s.api.CheckoutSessions.Get(req.SessionID, &stripe.CheckoutSessionParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return StatusResult{}, wrapStripeErr("retrieve session", err)
	}

	status := string(sess.Status)
	return StatusResult{
		State:       status,
		Success:     sess.Status == stripe.CheckoutSessionStatusComplete,
		Terminal:    sess.Status == stripe.CheckoutSessionStatusComplete || sess.Status == stripe.CheckoutSessionStatusExpired,
		AmountMinor: sess.AmountTotal,
		Currency:    string(sess.Currency),
		Raw: map[string]any{
			"session_id":     sess.ID,
			"payment_status": string(sess.PaymentStatus),
		},
	}, nil
}

func wrapStripeErr(op string, err error) error {
	var sErr *stripe.Error
	if errors.As(err, &sErr) {
		return &GatewayError{
			Gateway:    GatewayStripe,
			Operation:  op,
			StatusCode: sErr.HTTPStatusCode,
			Body:       sErr.Msg,
			Err:        err,
		}
	}
	return &GatewayError{Gateway: GatewayStripe, Operation: op, Err: err}
}
