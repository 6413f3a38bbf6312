package notifications

import (
	"context"

	"github.com/9ssi7/exponent"
)

// PushSender is what settlement needs from a push backend. Tests swap in a
// capture fake; production uses ExpoAdapter.
type PushSender interface {
	Publish(ctx context.Context, msgs []*exponent.Message) ([]*exponent.MessageResponse, error)
	PublishSingle(ctx context.Context, msg *exponent.Message) ([]*exponent.MessageResponse, error)
}
