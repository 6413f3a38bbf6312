package main

import (
	"context"
	"fmt"

	"malipo/internal/mailer"
	"malipo/internal/notifications"
	"malipo/internal/store"
)

// recordEvent appends to the audit trail. Best effort: an audit failure is
// logged, never propagated into the payment flow.
func (app *application) recordEvent(ctx context.Context, qp *store.QueuedPayment, gateway, eventType string, payload any) {
	err := app.store.Events.Insert(ctx, &store.PaymentEvent{
		QueuedPaymentID: qp.ID,
		ContextID:       qp.ContextID,
		Gateway:         gateway,
		EventType:       eventType,
		Payload:         payload,
	})
	if err != nil {
		app.logger.Errorw("failed to record payment event",
			"payment", qp.ID, "gateway", gateway, "type", eventType, "error", err.Error())
	}
}

// settleCompleted records the terminal outcome for a queued payment and,
// only if this call won the pending->completed transition, runs the
// side effects. A replayed callback or a racing second session therefore
// produces no duplicate receipt, push, or event.
func (app *application) settleCompleted(ctx context.Context, qp *store.QueuedPayment, provider, ref string, payload any) {
	changed, err := app.store.Payments.MarkCompleted(ctx, qp.ID, provider, ref)
	if err != nil {
		app.logger.Errorw("failed to mark payment completed", "payment", qp.ID, "error", err.Error())
		return
	}
	if !changed {
		app.logger.Infow("payment already settled, skipping side effects", "payment", qp.ID, "provider", provider)
		return
	}

	app.recordEvent(ctx, qp, provider, store.EventSettled, payload)
	app.logger.Infow("payment completed", "payment", qp.ID, "provider", provider, "ref", ref)

	app.sendReceipt(qp, ref)
	app.notifyAdmins(ctx, notifications.PaymentCompleted, qp)
}

func (app *application) settleFailed(ctx context.Context, qp *store.QueuedPayment, provider, reason string) {
	changed, err := app.store.Payments.MarkFailed(ctx, qp.ID, provider, reason)
	if err != nil {
		app.logger.Errorw("failed to mark payment failed", "payment", qp.ID, "error", err.Error())
		return
	}
	if !changed {
		return
	}

	app.recordEvent(ctx, qp, provider, store.EventSettled, map[string]string{"outcome": "failed", "reason": reason})
	app.logger.Infow("payment failed", "payment", qp.ID, "provider", provider, "reason", reason)

	app.notifyAdmins(ctx, notifications.PaymentFailed, qp)
}

func (app *application) sendReceipt(qp *store.QueuedPayment, ref string) {
	if app.mailer == nil || qp.PayerEmail == "" {
		return
	}

	data := struct {
		PayerName   string
		PaymentName string
		Amount      string
		Currency    string
		Reference   string
	}{
		PayerName:   qp.PayerName,
		PaymentName: qp.Description,
		Amount:      fmt.Sprintf("%.2f", qp.Amount),
		Currency:    qp.Currency,
		Reference:   ref,
	}

	status, err := app.mailer.Send(mailer.PaymentReceiptTemplate, qp.PayerName, qp.PayerEmail, data)
	if err != nil {
		app.logger.Errorw("failed to send receipt email", "payment", qp.ID, "error", err.Error())
		return
	}
	app.logger.Infow("receipt email sent", "payment", qp.ID, "status", status)
}

func (app *application) notifyAdmins(ctx context.Context, event notifications.PaymentEvent, qp *store.QueuedPayment) {
	if app.push == nil || len(app.config.push.adminTokens) == 0 {
		return
	}

	err := notifications.SendPaymentNotification(ctx, app.push, app.config.push.adminTokens,
		event, qp.Description, qp.Amount, qp.Currency)
	if err != nil {
		app.logger.Errorw("failed to send payment push", "payment", qp.ID, "error", err.Error())
	}
}
