package settings

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
)

type fakeStore struct {
	values map[int64]map[string]string
	err    error
}

func (f *fakeStore) Get(_ context.Context, contextID int64, name string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.values[contextID][name], nil
}

func (f *fakeStore) All(_ context.Context, contextID int64) (map[string]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.values[contextID], nil
}

func validMpesaValues() map[string]string {
	return map[string]string{
		KeyMpesaTestMode:          "1",
		KeyMpesaConsumerID:        "consumer-key",
		KeyMpesaConsumerSecret:    "consumer-secret",
		KeyMpesaPassKey:           "pass-key",
		KeyMpesaBusinessShortCode: "174379",
	}
}

func TestMpesaSettingsLoad(t *testing.T) {
	svc := NewService(&fakeStore{values: map[int64]map[string]string{1: validMpesaValues()}})

	cfg, err := svc.Mpesa(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.TestMode {
		t.Error("testMode=1 should map to sandbox")
	}
	if cfg.ShortCode != "174379" || cfg.ConsumerID != "consumer-key" {
		t.Errorf("loaded %+v", cfg)
	}
}

func TestMpesaSettingsMissingFields(t *testing.T) {
	values := validMpesaValues()
	delete(values, KeyMpesaConsumerID)
	delete(values, KeyMpesaPassKey)

	svc := NewService(&fakeStore{values: map[int64]map[string]string{1: values}})

	_, err := svc.Mpesa(context.Background(), 1)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("got %v, want ConfigError", err)
	}
	if cfgErr.Gateway != "mpesa" {
		t.Errorf("gateway = %q", cfgErr.Gateway)
	}
	// The error names the stored setting keys the admin has to fix.
	for _, want := range []string{KeyMpesaConsumerID, KeyMpesaPassKey} {
		if !slices.Contains(cfgErr.Fields, want) {
			t.Errorf("fields %v missing %q", cfgErr.Fields, want)
		}
	}
}

func TestMpesaShortCodeMustBeNumeric(t *testing.T) {
	values := validMpesaValues()
	values[KeyMpesaBusinessShortCode] = "not-a-number"

	svc := NewService(&fakeStore{values: map[int64]map[string]string{1: values}})

	_, err := svc.Mpesa(context.Background(), 1)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("got %v, want ConfigError", err)
	}
	if !slices.Contains(cfgErr.Fields, KeyMpesaBusinessShortCode) {
		t.Errorf("fields = %v", cfgErr.Fields)
	}
}

func TestStripeSettingsLoad(t *testing.T) {
	svc := NewService(&fakeStore{values: map[int64]map[string]string{7: {
		KeyStripeTestMode:       "false",
		KeyStripePublishableKey: "pk_live_1",
		KeyStripeSecretKey:      "sk_live_1",
	}}})

	cfg, err := svc.Stripe(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.TestMode {
		t.Error("testMode=false should map to live")
	}
	// The webhook secret is optional; the webhook route just stays off.
	if cfg.WebhookSecret != "" {
		t.Errorf("webhook secret = %q", cfg.WebhookSecret)
	}
}

func TestStripeSettingsMissingKeys(t *testing.T) {
	svc := NewService(&fakeStore{values: map[int64]map[string]string{7: {}}})

	_, err := svc.Stripe(context.Background(), 7)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("got %v, want ConfigError", err)
	}
	for _, want := range []string{KeyStripePublishableKey, KeyStripeSecretKey} {
		if !slices.Contains(cfgErr.Fields, want) {
			t.Errorf("fields %v missing %q", cfgErr.Fields, want)
		}
	}
}

func TestStoreErrorIsNotConfigError(t *testing.T) {
	svc := NewService(&fakeStore{err: fmt.Errorf("connection refused")})

	_, err := svc.Mpesa(context.Background(), 1)
	if err == nil {
		t.Fatal("expected error")
	}
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		t.Errorf("a store failure must not read as misconfiguration: %v", err)
	}
}

func TestParseBool(t *testing.T) {
	for _, v := range []string{"1", "true", "True", "on", "yes", " 1 "} {
		if !parseBool(v) {
			t.Errorf("parseBool(%q) = false", v)
		}
	}
	for _, v := range []string{"", "0", "false", "off", "no"} {
		if parseBool(v) {
			t.Errorf("parseBool(%q) = true", v)
		}
	}
}
