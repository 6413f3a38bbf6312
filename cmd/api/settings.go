package main

import (
	"fmt"
	"net/http"
	"strconv"

	"malipo/internal/settings"

	"github.com/go-chi/chi/v5"
)

// Admin settings API. This is how gateway credentials get into the
// per-context store; the checkout paths only ever read them.

type mpesaSettingsPayload struct {
	TestMode          bool   `json:"testMode"`
	ConsumerID        string `json:"consumerId" validate:"required"`
	ConsumerSecret    string `json:"consumerSecret" validate:"required"`
	PassKey           string `json:"passKey" validate:"required"`
	BusinessShortCode string `json:"businessShortCode" validate:"required,numeric"`
}

type stripeSettingsPayload struct {
	TestMode       bool   `json:"testMode"`
	PublishableKey string `json:"publishableKey" validate:"required"`
	SecretKey      string `json:"secretKey" validate:"required"`
	WebhookSecret  string `json:"webhookSecret"`
}

type updateSettingsPayload struct {
	Mpesa  *mpesaSettingsPayload  `json:"mpesa,omitempty"`
	Stripe *stripeSettingsPayload `json:"stripe,omitempty"`
}

func settingsContextID(r *http.Request) (int64, error) {
	contextID, err := strconv.ParseInt(chi.URLParam(r, "contextID"), 10, 64)
	if err != nil || contextID <= 0 {
		return 0, fmt.Errorf("invalid context ID")
	}
	return contextID, nil
}

// getPaymentSettingsHandler godoc
//
//	@Summary	Read gateway settings for a context
//	@Produce	json
//	@Security	ApiKeyAuth
//	@Router		/contexts/{contextID}/payment-settings [get]
func (app *application) getPaymentSettingsHandler(w http.ResponseWriter, r *http.Request) {
	contextID, err := settingsContextID(r)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	all, err := app.store.Settings.All(r.Context(), contextID)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	// Secrets are write-only through this API: report presence, not value.
	masked := make(map[string]string, len(all))
	for name, value := range all {
		switch name {
		case settings.KeyMpesaConsumerSecret, settings.KeyMpesaPassKey,
			settings.KeyStripeSecretKey, settings.KeyStripeWebhookSecret:
			if value != "" {
				masked[name] = "********"
			}
		default:
			masked[name] = value
		}
	}

	app.jsonResponse(w, http.StatusOK, masked)
}

// updatePaymentSettingsHandler validates and persists gateway settings.
// Validation happens before any write, so a bad payload can't leave a
// context half-configured.
//
//	@Summary	Update gateway settings for a context
//	@Accept		json
//	@Produce	json
//	@Security	ApiKeyAuth
//	@Router		/contexts/{contextID}/payment-settings [put]
func (app *application) updatePaymentSettingsHandler(w http.ResponseWriter, r *http.Request) {
	contextID, err := settingsContextID(r)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	var payload updateSettingsPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if payload.Mpesa == nil && payload.Stripe == nil {
		app.badRequestResponse(w, r, fmt.Errorf("no gateway settings in payload"))
		return
	}
	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	values := map[string]string{}
	if payload.Mpesa != nil {
		values[settings.KeyMpesaTestMode] = boolSetting(payload.Mpesa.TestMode)
		values[settings.KeyMpesaConsumerID] = payload.Mpesa.ConsumerID
		values[settings.KeyMpesaConsumerSecret] = payload.Mpesa.ConsumerSecret
		values[settings.KeyMpesaPassKey] = payload.Mpesa.PassKey
		values[settings.KeyMpesaBusinessShortCode] = payload.Mpesa.BusinessShortCode
	}
	if payload.Stripe != nil {
		values[settings.KeyStripeTestMode] = boolSetting(payload.Stripe.TestMode)
		values[settings.KeyStripePublishableKey] = payload.Stripe.PublishableKey
		values[settings.KeyStripeSecretKey] = payload.Stripe.SecretKey
		values[settings.KeyStripeWebhookSecret] = payload.Stripe.WebhookSecret
	}

	for name, value := range values {
		if err := app.store.Settings.Upsert(r.Context(), contextID, name, value); err != nil {
			app.internalServerError(w, r, err)
			return
		}
	}

	app.logger.Infow("payment settings updated", "context", contextID, "keys", len(values))
	app.jsonResponse(w, http.StatusOK, map[string]any{"updated": len(values)})
}

// Booleans are stored the way the host historically stored them.
func boolSetting(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
