package payments

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"malipo/internal/settings"
)

const (
	darajaSandboxURL = "https://sandbox.safaricom.co.ke"
	darajaLiveURL    = "https://api.safaricom.co.ke"

	darajaTransactionType = "CustomerPayBillOnline"
)

// Daraja timestamps are EAT regardless of where the service runs; the
// password derivation breaks if the merchant's server timezone leaks in.
var darajaZone = time.FixedZone("EAT", 3*60*60)

// DarajaAdapter talks to the Safaricom M-Pesa Daraja API: OAuth token
// exchange, STK push, and push status query.
type DarajaAdapter struct {
	cfg settings.Mpesa

	// BaseURL overrides the sandbox/live selection, for tests.
	BaseURL string

	httpClient *http.Client
	now        func() time.Time
}

func NewDarajaAdapter(cfg settings.Mpesa) *DarajaAdapter {
	return &DarajaAdapter{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}
}

func (d *DarajaAdapter) baseURL() string {
	if d.BaseURL != "" {
		return d.BaseURL
	}
	if d.cfg.TestMode {
		return darajaSandboxURL
	}
	return darajaLiveURL
}

// darajaTimestamp formats t the way Daraja expects: YYYYMMDDHHMMSS in EAT.
func darajaTimestamp(t time.Time) string {
	return t.In(darajaZone).Format("20060102150405")
}

// darajaPassword derives the STK password: base64(shortcode+passkey+timestamp).
func darajaPassword(shortCode, passKey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passKey + timestamp))
}

// GenerateToken exchanges the consumer credentials for a short-lived bearer
// token. Tokens are fetched fresh per attempt and never cached; the
// provider-defined lifetime is not relied on.
func (d *DarajaAdapter) GenerateToken(ctx context.Context) (string, error) {
	if d.cfg.ConsumerID == "" || d.cfg.ConsumerSecret == "" {
		return "", &settings.ConfigError{
			Gateway: GatewayMpesa,
			Fields:  []string{settings.KeyMpesaConsumerID, settings.KeyMpesaConsumerSecret},
		}
	}

	url := d.baseURL() + "/oauth/v1/generate?grant_type=client_credentials"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(d.cfg.ConsumerID, d.cfg.ConsumerSecret)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", &GatewayError{Gateway: GatewayMpesa, Operation: "token", Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", &GatewayError{Gateway: GatewayMpesa, Operation: "token", StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || body.AccessToken == "" {
		return "", &GatewayError{Gateway: GatewayMpesa, Operation: "token", StatusCode: resp.StatusCode, Body: string(raw), Err: err}
	}
	return body.AccessToken, nil
}

type stkPushBody struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResult struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// InitiateCheckout fires an STK push to the payer's phone. The response
// only confirms submission; the debit is confirmed later through the
// callback or a status query. Never retried: a duplicate push is a
// duplicate charge prompt.
func (d *DarajaAdapter) InitiateCheckout(ctx context.Context, req CheckoutRequest) (CheckoutResponse, error) {
	// M-Pesa debits whole shillings. Truncating a fractional amount would
	// silently undercharge, so it is rejected outright.
	if req.AmountMinor%100 != 0 {
		return CheckoutResponse{}, fmt.Errorf("mpesa amount must be whole shillings, got %.2f", float64(req.AmountMinor)/100)
	}

	token, err := d.GenerateToken(ctx)
	if err != nil {
		return CheckoutResponse{}, err
	}

	ts := darajaTimestamp(d.now())
	body := stkPushBody{
		BusinessShortCode: d.cfg.ShortCode,
		Password:          darajaPassword(d.cfg.ShortCode, d.cfg.PassKey, ts),
		Timestamp:         ts,
		TransactionType:   darajaTransactionType,
		Amount:            req.AmountMinor / 100,
		PartyA:            req.PhoneNumber,
		PartyB:            d.cfg.ShortCode,
		PhoneNumber:       req.PhoneNumber,
		CallBackURL:       req.CallbackURL,
		AccountReference:  req.AccountReference,
		TransactionDesc:   req.Description,
	}

	var result stkPushResult
	status, raw, err := d.post(ctx, token, "/mpesa/stkpush/v1/processrequest", body, &result)
	if err != nil {
		return CheckoutResponse{}, &GatewayError{Gateway: GatewayMpesa, Operation: "stkpush", Err: err}
	}
	if status != http.StatusOK || result.ResponseCode != "0" {
		return CheckoutResponse{}, &GatewayError{Gateway: GatewayMpesa, Operation: "stkpush", StatusCode: status, Body: string(raw)}
	}

	return CheckoutResponse{
		Data: map[string]string{
			"merchant_request_id": result.MerchantRequestID,
			"checkout_request_id": result.CheckoutRequestID,
			"response_code":       result.ResponseCode,
			"customer_message":    result.CustomerMessage,
		},
	}, nil
}

type stkQueryResult struct {
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResultCode          string `json:"ResultCode"`
	ResultDesc          string `json:"ResultDesc"`
}

// QueryStatus asks Daraja what became of an STK push. The query is
// idempotent, so a transport failure is retried once before surfacing a
// typed error.
func (d *DarajaAdapter) QueryStatus(ctx context.Context, req StatusRequest) (StatusResult, error) {
	if req.CheckoutRequestID == "" {
		return StatusResult{}, fmt.Errorf("mpesa status query requires a checkout request id")
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		res, err := d.queryOnce(ctx, req.CheckoutRequestID)
		if err == nil {
			return res, nil
		}
		lastErr = err

		var gwErr *GatewayError
		transient := errors.As(err, &gwErr) && (gwErr.Err != nil || gwErr.StatusCode >= 500)
		if !transient || ctx.Err() != nil {
			break
		}
	}
	return StatusResult{}, lastErr
}

func (d *DarajaAdapter) queryOnce(ctx context.Context, checkoutRequestID string) (StatusResult, error) {
	token, err := d.GenerateToken(ctx)
	if err != nil {
		return StatusResult{}, err
	}

	ts := darajaTimestamp(d.now())
	body := map[string]string{
		"BusinessShortCode": d.cfg.ShortCode,
		"Password":          darajaPassword(d.cfg.ShortCode, d.cfg.PassKey, ts),
		"Timestamp":         ts,
		"CheckoutRequestID": checkoutRequestID,
	}

	var result stkQueryResult
	status, raw, err := d.post(ctx, token, "/mpesa/stkpushquery/v1/query", body, &result)
	if err != nil {
		return StatusResult{}, &GatewayError{Gateway: GatewayMpesa, Operation: "stkquery", Err: err}
	}
	if status != http.StatusOK {
		return StatusResult{}, &GatewayError{Gateway: GatewayMpesa, Operation: "stkquery", StatusCode: status, Body: string(raw)}
	}

	return mapStkResult(result, raw), nil
}

// mapStkResult normalizes Daraja result codes. 0 is the only success;
// 1032 is user cancel, 1037 is prompt timeout, 1 is insufficient funds.
// An empty ResultCode means the push is still in flight.
func mapStkResult(r stkQueryResult, raw []byte) StatusResult {
	res := StatusResult{
		State: strings.TrimSpace(r.ResultDesc),
		Raw: map[string]any{
			"body": json.RawMessage(raw),
		},
	}
	switch strings.TrimSpace(r.ResultCode) {
	case "0":
		res.Success = true
		res.Terminal = true
	case "":
		// still processing
	default:
		res.Terminal = true
	}
	return res
}

func (d *DarajaAdapter) post(ctx context.Context, token, path string, body any, out any) (int, []byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL()+path, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusOK && out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, raw, err
		}
	}
	return resp.StatusCode, raw, nil
}
