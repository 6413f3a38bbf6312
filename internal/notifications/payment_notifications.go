package notifications

import (
	"context"
	"errors"
	"fmt"

	"github.com/9ssi7/exponent"
)

type PaymentEvent string

const (
	PaymentCompleted PaymentEvent = "COMPLETED"
	PaymentFailed    PaymentEvent = "FAILED"
)

// SendPaymentNotification tells the configured admin devices that a queued
// payment settled. Best effort: a push failure never blocks settlement.
func SendPaymentNotification(ctx context.Context, push PushSender, deviceTokens []string, event PaymentEvent, paymentName string, amount float64, currency string) error {
	if len(deviceTokens) == 0 {
		return errors.New("no push tokens configured")
	}

	var title, body string
	switch event {
	case PaymentCompleted:
		title = "Payment received"
		body = fmt.Sprintf("%s — %.2f %s has been paid.", paymentName, amount, currency)
	case PaymentFailed:
		title = "Payment failed"
		body = fmt.Sprintf("%s — %.2f %s could not be collected.", paymentName, amount, currency)
	default:
		title = "Payment update"
		body = fmt.Sprintf("%s has an update.", paymentName)
	}

	msgs := make([]*exponent.Message, 0, len(deviceTokens))
	for _, t := range deviceTokens {
		token := exponent.Token(t)
		msgs = append(msgs, &exponent.Message{
			To:    []*exponent.Token{&token},
			Title: title,
			Body:  body,
			Sound: "default",
		})
	}

	_, err := push.Publish(ctx, msgs)
	return err
}
