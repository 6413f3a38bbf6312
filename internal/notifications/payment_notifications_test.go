package notifications

import (
	"context"
	"testing"

	"github.com/9ssi7/exponent"
)

type capturePush struct {
	msgs []*exponent.Message
}

func (c *capturePush) Publish(_ context.Context, msgs []*exponent.Message) ([]*exponent.MessageResponse, error) {
	c.msgs = append(c.msgs, msgs...)
	return nil, nil
}

func (c *capturePush) PublishSingle(_ context.Context, msg *exponent.Message) ([]*exponent.MessageResponse, error) {
	c.msgs = append(c.msgs, msg)
	return nil, nil
}

func TestSendPaymentNotification(t *testing.T) {
	push := &capturePush{}
	tokens := []string{"ExponentPushToken[aaa]", "ExponentPushToken[bbb]"}

	err := SendPaymentNotification(context.Background(), push, tokens, PaymentCompleted, "Article processing fee", 150.00, "KES")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(push.msgs) != 2 {
		t.Fatalf("sent %d messages, want one per device", len(push.msgs))
	}
	msg := push.msgs[0]
	if msg.Title != "Payment received" {
		t.Errorf("title = %q", msg.Title)
	}
	if len(msg.To) != 1 || string(*msg.To[0]) != tokens[0] {
		t.Errorf("to = %v", msg.To)
	}
}

func TestSendPaymentNotificationNoTokens(t *testing.T) {
	push := &capturePush{}
	err := SendPaymentNotification(context.Background(), push, nil, PaymentCompleted, "fee", 1, "KES")
	if err == nil {
		t.Fatal("expected error with no tokens")
	}
	if len(push.msgs) != 0 {
		t.Errorf("sent %d messages, want none", len(push.msgs))
	}
}

func TestSendPaymentNotificationFailedEvent(t *testing.T) {
	push := &capturePush{}
	err := SendPaymentNotification(context.Background(), push, []string{"ExponentPushToken[aaa]"}, PaymentFailed, "fee", 150.00, "KES")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if push.msgs[0].Title != "Payment failed" {
		t.Errorf("title = %q", push.msgs[0].Title)
	}
}
