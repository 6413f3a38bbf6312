package main

import (
	"errors"
	"net/http"

	"malipo/internal/payments"
	"malipo/internal/settings"
	"malipo/internal/store"
)

func (app *application) internalServerError(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Errorw("internal error", "method", r.Method, "path", r.URL.Path, "error", err.Error())
	writeJSONError(w, http.StatusInternalServerError, "the server encountered a problem")
}

func (app *application) badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Warnw("bad request", "method", r.Method, "path", r.URL.Path, "error", err.Error())
	writeJSONError(w, http.StatusBadRequest, err.Error())
}

func (app *application) notFoundResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Warnw("not found", "method", r.Method, "path", r.URL.Path, "error", err.Error())
	writeJSONError(w, http.StatusNotFound, "not found")
}

func (app *application) conflictResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Warnw("conflict", "method", r.Method, "path", r.URL.Path, "error", err.Error())
	writeJSONError(w, http.StatusConflict, err.Error())
}

func (app *application) unauthorizedErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Warnw("unauthorized", "method", r.Method, "path", r.URL.Path, "error", err.Error())
	writeJSONError(w, http.StatusUnauthorized, "unauthorized")
}

func (app *application) unauthorizedBasicErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Warnw("unauthorized basic", "method", r.Method, "path", r.URL.Path, "error", err.Error())
	w.Header().Set("WWW-Authenticate", `Basic realm="restricted", charset="UTF-8"`)
	writeJSONError(w, http.StatusUnauthorized, "unauthorized")
}

func (app *application) rateLimitExceededResponse(w http.ResponseWriter, r *http.Request, retryAfter string) {
	app.logger.Warnw("rate limit exceeded", "path", r.URL.Path)
	w.Header().Set("Retry-After", retryAfter)
	writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded, retry after: "+retryAfter)
}

// paymentErrorResponse maps the payment error taxonomy onto safe,
// payer-facing responses. Raw provider error text only ever reaches the
// log.
func (app *application) paymentErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	var cfgErr *settings.ConfigError
	var gwErr *payments.GatewayError

	switch {
	case errors.Is(err, store.ErrNotFound):
		app.notFoundResponse(w, r, err)

	case errors.Is(err, payments.ErrUnknownGateway):
		app.badRequestResponse(w, r, err)

	case errors.As(err, &cfgErr):
		// Recoverable: the admin fixes credentials in settings; the payer
		// just sees that the method is unavailable.
		app.logger.Warnw("gateway misconfigured", "gateway", cfgErr.Gateway, "fields", cfgErr.Fields)
		writeJSONError(w, http.StatusServiceUnavailable, "this payment method is not available right now")

	case errors.As(err, &gwErr):
		app.logger.Errorw("gateway call failed",
			"gateway", gwErr.Gateway, "op", gwErr.Operation,
			"status", gwErr.StatusCode, "body", gwErr.Body, "error", err.Error())
		if gwErr.Timeout() {
			writeJSONError(w, http.StatusGatewayTimeout, "the payment provider took too long, please try again")
			return
		}
		writeJSONError(w, http.StatusBadGateway, "the payment could not be processed, please try again")

	default:
		app.internalServerError(w, r, err)
	}
}
