package main

import (
	"net/http"
)

// listPaymentEventsHandler exposes the audit trail of a queued payment to
// the admin: every provider request, callback, and settlement recorded
// against it.
//
//	@Summary	List payment events
//	@Produce	json
//	@Security	ApiKeyAuth
//	@Router		/contexts/{contextID}/payments/{queuedPaymentID}/events [get]
func (app *application) listPaymentEventsHandler(w http.ResponseWriter, r *http.Request) {
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

	events, err := app.store.Events.ListByPayment(r.Context(), qp.ID)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	app.jsonResponse(w, http.StatusOK, map[string]any{
		"queuedPaymentId": qp.ID,
		"status":          qp.Status,
		"events":          events,
	})
}
