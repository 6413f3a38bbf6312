package payments

// CheckoutRequest carries one payment attempt. Adapters read the fields
// that apply to their provider and ignore the rest.
type CheckoutRequest struct {
	QueuedPaymentID int64
	ContextID       int64

	// AmountMinor is the amount in minor units (cents). Kept integral end
	// to end so no floating point drift reaches a provider.
	AmountMinor int64
	Currency    string
	Description string
	Quantity    int64

	// Hosted checkout.
	ReturnURL string

	// Mobile money push.
	PhoneNumber      string
	CallbackURL      string
	AccountReference string
}

// CheckoutResponse is what the front end needs to continue the attempt.
type CheckoutResponse struct {
	// ClientSecret and PublishableKey are set by hosted-checkout gateways;
	// the browser-side SDK renders checkout from them.
	ClientSecret   string
	PublishableKey string

	// Data carries provider-specific fields, e.g. the Daraja
	// CheckoutRequestID the status query needs later.
	Data map[string]string
}

type StatusRequest struct {
	// SessionID identifies a hosted-checkout session.
	SessionID string
	// CheckoutRequestID identifies an STK push.
	CheckoutRequestID string
}

// StatusResult is the provider's view of an attempt, normalized enough for
// reconciliation to act on.
type StatusResult struct {
	// State is the provider's own status word (complete, expired, ...).
	State string
	// Success is true only for a confirmed, paid attempt.
	Success bool
	// Terminal reports whether the provider can still move this attempt.
	Terminal bool

	AmountMinor int64
	Currency    string

	Raw map[string]any
}
