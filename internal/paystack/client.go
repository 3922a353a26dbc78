package paystack

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/grovia/settlement/pkg/config"
	"github.com/grovia/settlement/pkg/logger"
)

// ErrUnavailable covers network failures, timeouts and 5xx answers from
// Paystack. Callers treat it as a dependency failure, never as success.
var ErrUnavailable = errors.New("payment gateway unavailable")

// ErrRejected means Paystack answered but declined the request.
var ErrRejected = errors.New("payment gateway rejected the request")

const (
	retryAttempts = 3
	retryBackoff  = 250 * time.Millisecond
)

type Client struct {
	baseURL       string
	secret        string
	webhookSecret string
	callbackURL   string
	currency      string
	http          *http.Client
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		baseURL:       strings.TrimRight(cfg.PaystackBaseURL, "/"),
		secret:        cfg.PaystackSecret,
		webhookSecret: cfg.PaystackWebhookSecret,
		callbackURL:   cfg.PaystackCallbackURL,
		currency:      cfg.Currency,
		http:          &http.Client{Timeout: time.Duration(cfg.PaystackTimeoutSeconds) * time.Second},
	}
}

type InitializedTransaction struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
	Raw              map[string]interface{}
}

type VerifiedTransaction struct {
	Status string
	Raw    map[string]interface{}
}

type Bank struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

type ResolvedAccount struct {
	AccountName   string
	AccountNumber string
	Raw           map[string]interface{}
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// InitializeTransaction starts a hosted checkout session. Not retried: a
// timed-out initialize is treated as failure by the caller.
func (c *Client) InitializeTransaction(ctx context.Context, email, reference string, amount decimal.Decimal, metadata map[string]interface{}) (*InitializedTransaction, error) {
	body := map[string]interface{}{
		"email":        email,
		"amount":       toKobo(amount),
		"currency":     c.currency,
		"reference":    reference,
		"callback_url": c.callbackURL,
		"metadata":     metadata,
	}

	raw, err := c.post(ctx, "/transaction/initialize", body)
	if err != nil {
		logger.Error("Paystack initialize failed", logger.Fields{"error": err.Error(), "reference": reference})
		return nil, err
	}

	var data struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	}
	rawMap := decodeData(raw, &data)

	return &InitializedTransaction{
		AuthorizationURL: data.AuthorizationURL,
		AccessCode:       data.AccessCode,
		Reference:        data.Reference,
		Raw:              rawMap,
	}, nil
}

// VerifyTransaction is read-only and safe to retry.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*VerifiedTransaction, error) {
	raw, err := c.get(ctx, "/transaction/verify/"+url.PathEscape(reference), nil)
	if err != nil {
		logger.Error("Paystack verify failed", logger.Fields{"error": err.Error(), "reference": reference})
		return nil, err
	}

	var data struct {
		Status string `json:"status"`
	}
	rawMap := decodeData(raw, &data)

	return &VerifiedTransaction{
		Status: strings.ToLower(data.Status),
		Raw:    rawMap,
	}, nil
}

func (c *Client) ListBanks(ctx context.Context) ([]Bank, error) {
	raw, err := c.get(ctx, "/bank", url.Values{"country": {"nigeria"}, "currency": {"NGN"}})
	if err != nil {
		logger.Error("Paystack list banks failed", logger.WithError(err))
		return nil, err
	}

	var banks []Bank
	if err := json.Unmarshal(raw.Data, &banks); err != nil {
		return nil, fmt.Errorf("%w: malformed bank list", ErrUnavailable)
	}
	return banks, nil
}

func (c *Client) ResolveBankAccount(ctx context.Context, accountNumber, bankCode string) (*ResolvedAccount, error) {
	raw, err := c.get(ctx, "/bank/resolve", url.Values{
		"account_number": {accountNumber},
		"bank_code":      {bankCode},
	})
	if err != nil {
		logger.Error("Paystack resolve account failed", logger.Fields{
			"error":          err.Error(),
			"account_number": accountNumber,
			"bank_code":      bankCode,
		})
		return nil, err
	}

	var data struct {
		AccountName   string `json:"account_name"`
		AccountNumber string `json:"account_number"`
	}
	rawMap := decodeData(raw, &data)

	return &ResolvedAccount{
		AccountName:   data.AccountName,
		AccountNumber: data.AccountNumber,
		Raw:           rawMap,
	}, nil
}

func (c *Client) CreateTransferRecipient(ctx context.Context, name, accountNumber, bankCode string) (string, error) {
	raw, err := c.post(ctx, "/transferrecipient", map[string]interface{}{
		"type":           "nuban",
		"name":           name,
		"account_number": accountNumber,
		"bank_code":      bankCode,
		"currency":       "NGN",
	})
	if err != nil {
		logger.Error("Paystack transfer recipient failed", logger.Fields{
			"error":          err.Error(),
			"account_number": accountNumber,
			"bank_code":      bankCode,
		})
		return "", err
	}

	var data struct {
		RecipientCode string `json:"recipient_code"`
	}
	decodeData(raw, &data)

	if data.RecipientCode == "" {
		return "", fmt.Errorf("%w: no transfer recipient code returned", ErrRejected)
	}
	return data.RecipientCode, nil
}

// InitiateTransfer is not retried: a timeout here must surface as failure so
// the caller can reverse the pre-debit.
func (c *Client) InitiateTransfer(ctx context.Context, recipientCode, reference string, amount decimal.Decimal, reason string) (map[string]interface{}, error) {
	raw, err := c.post(ctx, "/transfer", map[string]interface{}{
		"source":    "balance",
		"amount":    toKobo(amount),
		"recipient": recipientCode,
		"reference": reference,
		"reason":    reason,
	})
	if err != nil {
		logger.Error("Paystack transfer failed", logger.Fields{"error": err.Error(), "reference": reference})
		return nil, err
	}

	var rawMap map[string]interface{}
	decodeData(raw, &rawMap)
	return rawMap, nil
}

// VerifyWebhookSignature checks the x-paystack-signature header: an
// HMAC-SHA512 of the raw body under the shared secret, compared in
// constant time.
func (c *Client) VerifyWebhookSignature(payload []byte, signature string) bool {
	if c.webhookSecret == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha512.New, []byte(c.webhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (*envelope, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		env, err := c.do(req)
		if err == nil {
			return env, nil
		}
		if !errors.Is(err, ErrUnavailable) {
			return nil, err
		}

		lastErr = err
		if attempt < retryAttempts {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			case <-time.After(time.Duration(attempt) * retryBackoff):
			}
		}
	}
	return nil, lastErr
}

func (c *Client) post(ctx context.Context, path string, body map[string]interface{}) (*envelope, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRejected, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

func (c *Client) do(req *http.Request) (*envelope, error) {
	req.Header.Set("Authorization", "Bearer "+c.secret)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: malformed response", ErrUnavailable)
	}

	if !env.Status {
		return nil, fmt.Errorf("%w: %s", ErrRejected, env.Message)
	}
	return &env, nil
}

// decodeData unpacks the envelope's data payload into dst and also returns
// the full envelope as a generic map for audit storage.
func decodeData(env *envelope, dst interface{}) map[string]interface{} {
	if dst != nil && len(env.Data) > 0 {
		json.Unmarshal(env.Data, dst)
	}

	rawMap := map[string]interface{}{
		"status":  env.Status,
		"message": env.Message,
	}
	if len(env.Data) > 0 {
		var data interface{}
		if err := json.Unmarshal(env.Data, &data); err == nil {
			rawMap["data"] = data
		}
	}
	return rawMap
}

func toKobo(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
