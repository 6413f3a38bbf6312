package settings

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Setting names as persisted per context. These match what the admin
// settings form writes, so an existing installation keeps working.
const (
	KeyMpesaTestMode          = "mpesaTestMode"
	KeyMpesaConsumerID        = "mpesaConsumerId"
	KeyMpesaConsumerSecret    = "mpesaConsumerSecret"
	KeyMpesaPassKey           = "mpesaPassKey"
	KeyMpesaBusinessShortCode = "mpesaBusinessShortCode"

	KeyStripeTestMode       = "stripeTestMode"
	KeyStripePublishableKey = "stripePublishableKey"
	KeyStripeSecretKey      = "stripeSecretKey"
	KeyStripeWebhookSecret  = "stripeWebhookSecret"
)

// Store is the subset of the host settings store the loader needs.
type Store interface {
	Get(ctx context.Context, contextID int64, name string) (string, error)
	All(ctx context.Context, contextID int64) (map[string]string, error)
}

// ConfigError reports missing or invalid gateway credentials. It is
// recoverable: handlers surface it to the admin, never to the payer, and
// never terminate the process.
type ConfigError struct {
	Gateway string
	Fields  []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s gateway is not configured: check %s", e.Gateway, strings.Join(e.Fields, ", "))
}

type Mpesa struct {
	TestMode       bool
	ConsumerID     string `validate:"required"`
	ConsumerSecret string `validate:"required"`
	PassKey        string `validate:"required"`
	ShortCode      string `validate:"required,numeric"`
}

type Stripe struct {
	TestMode       bool
	PublishableKey string `validate:"required"`
	SecretKey      string `validate:"required"`
	// WebhookSecret is only needed when the stripe-webhook route is in use.
	WebhookSecret string
}

// Service loads typed, validated gateway settings for a context.
type Service struct {
	store    Store
	validate *validator.Validate
}

func NewService(store Store) *Service {
	return &Service{
		store:    store,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (s *Service) Mpesa(ctx context.Context, contextID int64) (Mpesa, error) {
	all, err := s.store.All(ctx, contextID)
	if err != nil {
		return Mpesa{}, fmt.Errorf("load mpesa settings: %w", err)
	}

	cfg := Mpesa{
		TestMode:       parseBool(all[KeyMpesaTestMode]),
		ConsumerID:     all[KeyMpesaConsumerID],
		ConsumerSecret: all[KeyMpesaConsumerSecret],
		PassKey:        all[KeyMpesaPassKey],
		ShortCode:      all[KeyMpesaBusinessShortCode],
	}

	if err := s.validate.Struct(cfg); err != nil {
		return Mpesa{}, &ConfigError{Gateway: "mpesa", Fields: invalidFields(err, mpesaKeys)}
	}
	return cfg, nil
}

func (s *Service) Stripe(ctx context.Context, contextID int64) (Stripe, error) {
	all, err := s.store.All(ctx, contextID)
	if err != nil {
		return Stripe{}, fmt.Errorf("load stripe settings: %w", err)
	}

	cfg := Stripe{
		TestMode:       parseBool(all[KeyStripeTestMode]),
		PublishableKey: all[KeyStripePublishableKey],
		SecretKey:      all[KeyStripeSecretKey],
		WebhookSecret:  all[KeyStripeWebhookSecret],
	}

	if err := s.validate.Struct(cfg); err != nil {
		return Stripe{}, &ConfigError{Gateway: "stripe", Fields: invalidFields(err, stripeKeys)}
	}
	return cfg, nil
}

var mpesaKeys = map[string]string{
	"ConsumerID":     KeyMpesaConsumerID,
	"ConsumerSecret": KeyMpesaConsumerSecret,
	"PassKey":        KeyMpesaPassKey,
	"ShortCode":      KeyMpesaBusinessShortCode,
}

var stripeKeys = map[string]string{
	"PublishableKey": KeyStripePublishableKey,
	"SecretKey":      KeyStripeSecretKey,
	"WebhookSecret":  KeyStripeWebhookSecret,
}

func invalidFields(err error, names map[string]string) []string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{"settings"}
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if key, ok := names[fe.Field()]; ok {
			fields = append(fields, key)
		} else {
			fields = append(fields, fe.Field())
		}
	}
	return fields
}

// The host form historically stored booleans as "1"/"0", newer installs
// write "true"/"false". Accept both.
func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}
