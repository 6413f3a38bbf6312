package payments

import "context"

// Gateway names as they appear in checkout requests and stored settings.
const (
	GatewayMpesa  = "mpesa"
	GatewayStripe = "stripe"
)

// Gateway is the common surface of a payment provider adapter.
//
// InitiateCheckout starts one payment attempt: a Stripe adapter creates an
// embedded checkout session, a Daraja adapter fires an STK push. The
// provider's initial response only confirms submission; completion is
// observed later via QueryStatus or a provider callback.
type Gateway interface {
	InitiateCheckout(ctx context.Context, req CheckoutRequest) (CheckoutResponse, error)
	QueryStatus(ctx context.Context, req StatusRequest) (StatusResult, error)
}
