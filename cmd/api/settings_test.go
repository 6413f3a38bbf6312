package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"malipo/internal/settings"

	"golang.org/x/crypto/bcrypt"
)

func adminToken(t *testing.T, h *testHarness) string {
	t.Helper()
	access, _, err := h.app.authenticator.GenerateTokens("admin@example.com", "admin")
	if err != nil {
		t.Fatalf("generate tokens: %v", err)
	}
	return access
}

func TestSettingsRequireAuth(t *testing.T) {
	h := newTestHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/contexts/1/payment-settings", nil)
	if rr := h.do(req); rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 without a token", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/contexts/1/payment-settings", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	if rr := h.do(req); rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 for a bad token", rr.Code)
	}
}

func TestUpdateAndReadSettings(t *testing.T) {
	h := newTestHarness(t)
	token := adminToken(t, h)

	payload := `{
		"mpesa": {
			"testMode": true,
			"consumerId": "consumer-key",
			"consumerSecret": "consumer-secret",
			"passKey": "pass-key",
			"businessShortCode": "174379"
		}
	}`
	req := httptest.NewRequest(http.MethodPut, "/v1/contexts/1/payment-settings", strings.NewReader(payload))
	req.Header.Set("Authorization", "Bearer "+token)
	rr := h.do(req)
	if rr.Code != http.StatusOK {
		t.Fatalf("update: status = %d, body = %s", rr.Code, rr.Body.String())
	}

	// Typed loader sees the stored values.
	cfg, err := h.app.settings.Mpesa(context.Background(), 1)
	if err != nil {
		t.Fatalf("load after update: %v", err)
	}
	if !cfg.TestMode || cfg.ShortCode != "174379" {
		t.Errorf("loaded %+v", cfg)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/contexts/1/payment-settings", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = h.do(req)
	if rr.Code != http.StatusOK {
		t.Fatalf("read: status = %d", rr.Code)
	}

	var envelope struct {
		Data map[string]string `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if envelope.Data[settings.KeyMpesaConsumerID] != "consumer-key" {
		t.Errorf("consumer id = %q", envelope.Data[settings.KeyMpesaConsumerID])
	}
	// Secrets read back masked.
	if envelope.Data[settings.KeyMpesaConsumerSecret] != "********" {
		t.Errorf("consumer secret read back as %q", envelope.Data[settings.KeyMpesaConsumerSecret])
	}
	if envelope.Data[settings.KeyMpesaPassKey] != "********" {
		t.Errorf("pass key read back as %q", envelope.Data[settings.KeyMpesaPassKey])
	}
}

func TestUpdateSettingsRejectsIncompletePayload(t *testing.T) {
	h := newTestHarness(t)
	token := adminToken(t, h)

	payload := `{"mpesa": {"consumerId": "consumer-key"}}`
	req := httptest.NewRequest(http.MethodPut, "/v1/contexts/1/payment-settings", strings.NewReader(payload))
	req.Header.Set("Authorization", "Bearer "+token)
	rr := h.do(req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	// Validation failed before any write.
	if all, _ := h.settings.All(context.Background(), 1); len(all) != 0 {
		t.Errorf("partial payload persisted: %v", all)
	}
}

func TestCreateToken(t *testing.T) {
	h := newTestHarness(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse battery"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	h.app.config.auth.admin = adminConfig{email: "admin@example.com", passwordHash: string(hash)}

	body := `{"email":"admin@example.com","password":"correct horse battery"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/authentication/token", strings.NewReader(body))
	rr := h.do(req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var envelope struct {
		Data tokenPairResponse `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if envelope.Data.AccessToken == "" || envelope.Data.RefreshToken == "" {
		t.Error("expected a token pair")
	}

	// The issued access token passes the settings middleware.
	req = httptest.NewRequest(http.MethodGet, "/v1/contexts/1/payment-settings", nil)
	req.Header.Set("Authorization", "Bearer "+envelope.Data.AccessToken)
	if rr := h.do(req); rr.Code != http.StatusOK {
		t.Errorf("issued token rejected: status = %d", rr.Code)
	}
}

func TestCreateTokenRejectsWrongPassword(t *testing.T) {
	h := newTestHarness(t)

	hash, _ := bcrypt.GenerateFromPassword([]byte("correct horse battery"), bcrypt.MinCost)
	h.app.config.auth.admin = adminConfig{email: "admin@example.com", passwordHash: string(hash)}

	body := `{"email":"admin@example.com","password":"wrong password"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/authentication/token", strings.NewReader(body))
	rr := h.do(req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}
}
