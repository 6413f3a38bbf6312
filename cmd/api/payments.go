package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"malipo/internal/payments"
	"malipo/internal/store"

	"github.com/go-chi/chi/v5"
	stripe "github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/webhook"
)

// paymentRouteIDs pulls the context and queued payment IDs off the route.
func paymentRouteIDs(r *http.Request) (contextID, queuedPaymentID int64, err error) {
	contextID, err = strconv.ParseInt(chi.URLParam(r, "contextID"), 10, 64)
	if err != nil || contextID <= 0 {
		return 0, 0, fmt.Errorf("invalid context ID")
	}
	queuedPaymentID, err = strconv.ParseInt(chi.URLParam(r, "queuedPaymentID"), 10, 64)
	if err != nil || queuedPaymentID <= 0 {
		return 0, 0, fmt.Errorf("invalid queued payment ID")
	}
	return contextID, queuedPaymentID, nil
}

// queuedPayment resolves the record before anything else happens on a
// payment path. An unknown ID must fail here, before any provider call.
func (app *application) queuedPayment(ctx context.Context, contextID, queuedPaymentID int64) (*store.QueuedPayment, error) {
	qp, err := app.store.Payments.GetByID(ctx, queuedPaymentID)
	if err != nil {
		return nil, err
	}
	if qp.ContextID != contextID {
		return nil, store.ErrNotFound
	}
	return qp, nil
}

func (app *application) pluginURL(contextID int64, action string, queuedPaymentID int64) string {
	return fmt.Sprintf("%s/v1/payment/%d/%s/%s/%d",
		app.config.apiURL, contextID, app.config.pluginName, action, queuedPaymentID)
}

// paymentFormHandler returns the data the host templates need to render
// either the gateway chooser or a gateway-specific payment form.
//
//	@Summary	Payment form data
//	@Produce	json
//	@Param		contextID		path	int		true	"Context ID"
//	@Param		queuedPaymentID	path	int		true	"Queued payment ID"
//	@Param		gateway			query	string	false	"Gateway (mpesa|stripe)"
//	@Router		/payment/{contextID}/malipo/payment-form/{queuedPaymentID} [post]
func (app *application) paymentFormHandler(w http.ResponseWriter, r *http.Request) {
	contextID, queuedPaymentID, err := paymentRouteIDs(r)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	qp, err := app.queuedPayment(r.Context(), contextID, queuedPaymentID)
	if err != nil {
		app.paymentErrorResponse(w, r, err)
		return
	}

	form := map[string]any{
		"itemName":        qp.Description,
		"queuedPaymentId": qp.ID,
		"pluginName":      app.config.pluginName,
		"mpesaLogoUrl":    app.gatewayLogoURL(payments.GatewayMpesa),
		"stripeLogoUrl":   app.gatewayLogoURL(payments.GatewayStripe),
	}
	// Amount fields stay null for free items.
	if !qp.Free() {
		form["itemAmount"] = qp.Amount
		form["itemCurrencyCode"] = qp.Currency
	} else {
		form["itemAmount"] = nil
		form["itemCurrencyCode"] = nil
	}

	gateway := r.URL.Query().Get("gateway")
	switch gateway {
	case "":
		// No selection yet: chooser payload. This is default UX, not a
		// gateway outcome.
		form["template"] = "choose_gateway"
		form["gateways"] = app.payments.Names()
	case payments.GatewayMpesa:
		form["template"] = "mpesa_request_payment"
		form["submitUrl"] = app.pluginURL(contextID, "init-payment-intent", qp.ID) + "?gateway=" + payments.GatewayMpesa
	case payments.GatewayStripe:
		form["template"] = "init_payment_intent"
		form["stripeSubmitUrl"] = app.pluginURL(contextID, "init-payment-intent", qp.ID) + "?gateway=" + payments.GatewayStripe
	default:
		app.badRequestResponse(w, r, fmt.Errorf("%s: %q", "unrecognized gateway", gateway))
		return
	}

	app.jsonResponse(w, http.StatusOK, form)
}

type stkInitPayload struct {
	PhoneNumber string `json:"phoneNumber" validate:"required,kenyanphone"`
}

// initPaymentIntentHandler starts one checkout attempt on the selected
// gateway. For stripe it answers the raw browser payload
// {"clientSecret":...,"publishableKey":...}; for mpesa it answers the
// provider's submission payload.
//
//	@Summary	Initiate a payment attempt
//	@Accept		json
//	@Produce	json
//	@Param		gateway	query	string	true	"Gateway (mpesa|stripe)"
//	@Router		/payment/{contextID}/malipo/init-payment-intent/{queuedPaymentID} [post]
func (app *application) initPaymentIntentHandler(w http.ResponseWriter, r *http.Request) {
	contextID, queuedPaymentID, err := paymentRouteIDs(r)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	qp, err := app.queuedPayment(ctx, contextID, queuedPaymentID)
	if err != nil {
		app.paymentErrorResponse(w, r, err)
		return
	}
	if qp.Status != store.PaymentStatusPending {
		app.conflictResponse(w, r, fmt.Errorf("payment %d is already settled", qp.ID))
		return
	}

	gateway := r.URL.Query().Get("gateway")
	if !app.payments.Known(gateway) {
		app.badRequestResponse(w, r, fmt.Errorf("%w: %q", payments.ErrUnknownGateway, gateway))
		return
	}

	// Free items never touch a provider: settle locally and report done.
	if qp.Free() {
		app.settleCompleted(ctx, qp, "none", "", map[string]any{"free": true})
		writeJSON(w, http.StatusOK, map[string]string{"status": "complete"})
		return
	}

	switch gateway {
	case payments.GatewayStripe:
		app.initStripeSession(ctx, w, r, qp)
	case payments.GatewayMpesa:
		app.initSTKPush(ctx, w, r, qp)
	}
}

func (app *application) initStripeSession(ctx context.Context, w http.ResponseWriter, r *http.Request, qp *store.QueuedPayment) {
	returnURL := app.pluginURL(qp.ContextID, "stripe-callback", qp.ID) + "?session_id={CHECKOUT_SESSION_ID}"

	req := payments.CheckoutRequest{
		QueuedPaymentID: qp.ID,
		ContextID:       qp.ContextID,
		AmountMinor:     payments.MinorUnits(qp.Amount),
		Currency:        qp.Currency,
		Description:     qp.Description,
		Quantity:        1,
		ReturnURL:       returnURL,
	}

	resp, err := app.payments.InitiateCheckout(ctx, payments.GatewayStripe, qp.ContextID, req)
	if err != nil {
		app.recordEvent(ctx, qp, payments.GatewayStripe, store.EventError, map[string]string{"error": err.Error()})
		app.paymentErrorResponse(w, r, err)
		return
	}

	if sessionID := resp.Data["session_id"]; sessionID != "" {
		if err := app.store.Payments.SetProviderRef(ctx, qp.ID, payments.GatewayStripe, sessionID); err != nil {
			app.logger.Errorw("failed to save session ref", "payment", qp.ID, "error", err.Error())
		}
	}
	app.recordEvent(ctx, qp, payments.GatewayStripe, store.EventRequest, map[string]any{
		"session_id":   resp.Data["session_id"],
		"amount_minor": req.AmountMinor,
		"currency":     req.Currency,
	})

	// Raw browser payload, by contract with the embedded checkout JS.
	writeJSON(w, http.StatusOK, map[string]string{
		"clientSecret":   resp.ClientSecret,
		"publishableKey": resp.PublishableKey,
	})
}

func (app *application) initSTKPush(ctx context.Context, w http.ResponseWriter, r *http.Request, qp *store.QueuedPayment) {
	var payload stkInitPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	accountRef, err := app.refs.Encode(qp.ContextID, qp.ID)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	req := payments.CheckoutRequest{
		QueuedPaymentID:  qp.ID,
		ContextID:        qp.ContextID,
		AmountMinor:      payments.MinorUnits(qp.Amount),
		Currency:         qp.Currency,
		Description:      qp.Description,
		PhoneNumber:      payload.PhoneNumber,
		CallbackURL:      app.pluginURL(qp.ContextID, "daraja-callback", qp.ID),
		AccountReference: accountRef,
	}

	resp, err := app.payments.InitiateCheckout(ctx, payments.GatewayMpesa, qp.ContextID, req)
	if err != nil {
		app.recordEvent(ctx, qp, payments.GatewayMpesa, store.EventError, map[string]string{"error": err.Error()})
		app.paymentErrorResponse(w, r, err)
		return
	}

	if ref := resp.Data["checkout_request_id"]; ref != "" {
		if err := app.store.Payments.SetProviderRef(ctx, qp.ID, payments.GatewayMpesa, ref); err != nil {
			app.logger.Errorw("failed to save checkout request ref", "payment", qp.ID, "error", err.Error())
		}
	}
	// The provider's submission payload, as received.
	app.recordEvent(ctx, qp, payments.GatewayMpesa, store.EventResponse, resp.Data)

	// Submission only: the push landed on the payer's phone, nothing is
	// paid yet. Completion arrives via daraja-callback or stk-status.
	writeJSON(w, http.StatusOK, resp.Data)
}

type stripeCallbackPayload struct {
	SessionID string `json:"session_id" validate:"required"`
}

// stripeCallbackHandler is where the embedded checkout returns the payer.
// It re-queries Stripe for the session (the redirect itself proves
// nothing) and settles on a complete session.
//
//	@Summary	Stripe return callback
//	@Accept		json
//	@Produce	json
//	@Router		/payment/{contextID}/malipo/stripe-callback/{queuedPaymentID} [post]
func (app *application) stripeCallbackHandler(w http.ResponseWriter, r *http.Request) {
	contextID, queuedPaymentID, err := paymentRouteIDs(r)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	qp, err := app.queuedPayment(ctx, contextID, queuedPaymentID)
	if err != nil {
		app.paymentErrorResponse(w, r, err)
		return
	}

	var payload stripeCallbackPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	status, err := app.payments.QueryStatus(ctx, payments.GatewayStripe, contextID, payments.StatusRequest{
		SessionID: payload.SessionID,
	})
	if err != nil {
		app.recordEvent(ctx, qp, payments.GatewayStripe, store.EventError, map[string]string{"error": err.Error()})
		app.paymentErrorResponse(w, r, err)
		return
	}

	app.recordEvent(ctx, qp, payments.GatewayStripe, store.EventCallback, status.Raw)

	if status.Success {
		app.settleCompleted(ctx, qp, payments.GatewayStripe, payload.SessionID, status.Raw)
	}

	app.jsonResponse(w, http.StatusOK, map[string]any{
		"sessionStatus": status.State,
		"amountTotal":   status.AmountMinor,
		"currency":      status.Currency,
		"paymentName":   qp.Description,
	})
}

// stripeWebhookHandler settles from Stripe's server-to-server
// checkout.session.completed event, so a payer who never returns to the
// journal still gets reconciled. Signature is verified against the
// per-context webhook secret.
func (app *application) stripeWebhookHandler(w http.ResponseWriter, r *http.Request) {
	contextID, err := strconv.ParseInt(chi.URLParam(r, "contextID"), 10, 64)
	if err != nil || contextID <= 0 {
		app.badRequestResponse(w, r, fmt.Errorf("invalid context ID"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	cfg, err := app.settings.Stripe(ctx, contextID)
	if err != nil || cfg.WebhookSecret == "" {
		app.logger.Warnw("stripe webhook received but not configured", "context", contextID)
		writeJSONError(w, http.StatusBadRequest, "webhook not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 65536)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	event, err := webhook.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), cfg.WebhookSecret)
	if err != nil {
		app.logger.Warnw("stripe webhook signature verification failed", "error", err.Error())
		writeJSONError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	if event.Type == "checkout.session.completed" {
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			app.badRequestResponse(w, r, err)
			return
		}

		queuedPaymentID, err := strconv.ParseInt(session.ClientReferenceID, 10, 64)
		if err != nil || queuedPaymentID <= 0 {
			app.logger.Warnw("stripe webhook without queued payment reference", "session", session.ID)
			w.WriteHeader(http.StatusOK)
			return
		}

		qp, err := app.queuedPayment(ctx, contextID, queuedPaymentID)
		if err != nil {
			app.paymentErrorResponse(w, r, err)
			return
		}

		app.recordEvent(ctx, qp, payments.GatewayStripe, store.EventCallback, map[string]any{
			"source":         "webhook",
			"session_id":     session.ID,
			"payment_status": string(session.PaymentStatus),
		})
		if session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
			app.settleCompleted(ctx, qp, payments.GatewayStripe, session.ID, map[string]any{"session_id": session.ID})
		}
	}

	w.WriteHeader(http.StatusOK)
}

// darajaCallback is the stkCallback envelope Safaricom posts back after
// the payer acts on the push.
type darajaCallback struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string `json:"Name"`
					Value any    `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

func (c *darajaCallback) metadata(name string) any {
	for _, item := range c.Body.StkCallback.CallbackMetadata.Item {
		if item.Name == name {
			return item.Value
		}
	}
	return nil
}

// darajaCallbackHandler reconciles an STK push. ResultCode 0 completes the
// queued payment, anything else fails it; either way the transition only
// applies while the record is pending, so Safaricom's retries and
// duplicate deliveries are acknowledged without a second outcome.
func (app *application) darajaCallbackHandler(w http.ResponseWriter, r *http.Request) {
	contextID, queuedPaymentID, err := paymentRouteIDs(r)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	qp, err := app.queuedPayment(ctx, contextID, queuedPaymentID)
	if err != nil {
		app.paymentErrorResponse(w, r, err)
		return
	}

	var callback darajaCallback
	if err := readJSON(w, r, &callback); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	stk := callback.Body.StkCallback
	app.recordEvent(ctx, qp, payments.GatewayMpesa, store.EventCallback, callback)

	if stk.ResultCode == 0 {
		receipt, _ := callback.metadata("MpesaReceiptNumber").(string)
		app.settleCompleted(ctx, qp, payments.GatewayMpesa, receipt, callback)
	} else {
		app.settleFailed(ctx, qp, payments.GatewayMpesa, stk.ResultDesc)
	}

	// Always acknowledge so the provider stops retrying.
	writeJSON(w, http.StatusOK, map[string]any{
		"ResultCode": 0,
		"ResultDesc": "Accepted",
	})
}

type stkStatusPayload struct {
	CheckoutRequestID string `json:"checkoutRequestId"`
}

// stkStatusHandler lets the front end poll an STK push when the callback
// is slow to arrive.
//
//	@Summary	Query STK push status
//	@Accept		json
//	@Produce	json
//	@Router		/payment/{contextID}/malipo/stk-status/{queuedPaymentID} [post]
func (app *application) stkStatusHandler(w http.ResponseWriter, r *http.Request) {
	contextID, queuedPaymentID, err := paymentRouteIDs(r)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	qp, err := app.queuedPayment(ctx, contextID, queuedPaymentID)
	if err != nil {
		app.paymentErrorResponse(w, r, err)
		return
	}

	var payload stkStatusPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if payload.CheckoutRequestID == "" && qp.ProviderRef != nil {
		payload.CheckoutRequestID = *qp.ProviderRef
	}
	if payload.CheckoutRequestID == "" {
		app.badRequestResponse(w, r, fmt.Errorf("missing checkout request id"))
		return
	}

	status, err := app.payments.QueryStatus(ctx, payments.GatewayMpesa, contextID, payments.StatusRequest{
		CheckoutRequestID: payload.CheckoutRequestID,
	})
	if err != nil {
		app.paymentErrorResponse(w, r, err)
		return
	}

	if status.Success {
		app.settleCompleted(ctx, qp, payments.GatewayMpesa, payload.CheckoutRequestID, status.Raw)
	} else if status.Terminal {
		app.settleFailed(ctx, qp, payments.GatewayMpesa, status.State)
	}

	app.jsonResponse(w, http.StatusOK, map[string]any{
		"state":    status.State,
		"success":  status.Success,
		"terminal": status.Terminal,
	})
}
