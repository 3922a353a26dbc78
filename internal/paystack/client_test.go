package paystack

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovia/settlement/pkg/config"
)

func newTestClient(serverURL string) *Client {
	return NewClient(config.Config{
		PaystackBaseURL:        serverURL,
		PaystackSecret:         "sk_test_secret",
		PaystackWebhookSecret:  "whsec_test",
		PaystackCallbackURL:    "https://app.example/callback",
		Currency:               "NGN",
		PaystackTimeoutSeconds: 5,
	})
}

func TestInitializeTransaction(t *testing.T) {
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transaction/initialize", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  true,
			"message": "Authorization URL created",
			"data": map[string]interface{}{
				"authorization_url": "https://checkout.paystack.com/abc123",
				"access_code":       "abc123",
				"reference":         "WDP-20260901120000-AAAAAAAA",
			},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	result, err := client.InitializeTransaction(context.Background(),
		"ada@example.com", "WDP-20260901120000-AAAAAAAA", decimal.NewFromInt(500), nil)
	require.NoError(t, err)

	assert.Equal(t, "https://checkout.paystack.com/abc123", result.AuthorizationURL)
	assert.Equal(t, "abc123", result.AccessCode)
	assert.Equal(t, float64(50000), gotBody["amount"], "amount sent in kobo")
	assert.Equal(t, "NGN", gotBody["currency"])
}

func TestInitializeTransaction_Declined(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  false,
			"message": "Invalid amount",
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.InitializeTransaction(context.Background(),
		"ada@example.com", "ref", decimal.NewFromInt(500), nil)
	assert.ErrorIs(t, err, ErrRejected)
}

func TestInitializeTransaction_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.InitializeTransaction(context.Background(),
		"ada@example.com", "ref", decimal.NewFromInt(500), nil)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestVerifyTransaction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transaction/verify/GRV-ORD-1-ABCDEF", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  true,
			"message": "Verification successful",
			"data": map[string]interface{}{
				"status": "success",
				"amount": 560000,
			},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	result, err := client.VerifyTransaction(context.Background(), "GRV-ORD-1-ABCDEF")
	require.NoError(t, err)
	assert.Equal(t, "success", result.Status)
}

func TestVerifyTransaction_RetriesOnServerError(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": true,
			"data":   map[string]interface{}{"status": "success"},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	result, err := client.VerifyTransaction(context.Background(), "ref")
	require.NoError(t, err)
	assert.Equal(t, "success", result.Status)
	assert.Equal(t, 3, attempts)
}

func TestListBanks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bank", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": true,
			"data": []map[string]interface{}{
				{"name": "First Bank", "code": "011"},
				{"name": "GTBank", "code": "058"},
			},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	banks, err := client.ListBanks(context.Background())
	require.NoError(t, err)
	require.Len(t, banks, 2)
	assert.Equal(t, "GTBank", banks[1].Name)
	assert.Equal(t, "058", banks[1].Code)
}

func TestResolveBankAccount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bank/resolve", r.URL.Path)
		assert.Equal(t, "0123456789", r.URL.Query().Get("account_number"))
		assert.Equal(t, "011", r.URL.Query().Get("bank_code"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": true,
			"data": map[string]interface{}{
				"account_name":   "ADA LOVELACE",
				"account_number": "0123456789",
			},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	resolved, err := client.ResolveBankAccount(context.Background(), "0123456789", "011")
	require.NoError(t, err)
	assert.Equal(t, "ADA LOVELACE", resolved.AccountName)
}

func TestInitiateTransfer(t *testing.T) {
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transfer", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": true,
			"data":   map[string]interface{}{"status": "pending", "transfer_code": "TRF_x"},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.InitiateTransfer(context.Background(), "RCP_1", "WWD-ref", decimal.NewFromInt(2000), "rent")
	require.NoError(t, err)
	assert.Equal(t, float64(200000), gotBody["amount"], "amount sent in kobo")
	assert.Equal(t, "RCP_1", gotBody["recipient"])
}

func TestVerifyWebhookSignature(t *testing.T) {
	client := newTestClient("http://unused")
	payload := []byte(`{"event":"charge.success"}`)

	mac := hmac.New(sha512.New, []byte("whsec_test"))
	mac.Write(payload)
	valid := hex.EncodeToString(mac.Sum(nil))

	assert.True(t, client.VerifyWebhookSignature(payload, valid))
	assert.False(t, client.VerifyWebhookSignature(payload, "deadbeef"))
	assert.False(t, client.VerifyWebhookSignature(payload, ""))
	assert.False(t, client.VerifyWebhookSignature([]byte("tampered"), valid))
}

func TestToKobo(t *testing.T) {
	assert.Equal(t, int64(50000), toKobo(decimal.NewFromInt(500)))
	assert.Equal(t, int64(56099), toKobo(decimal.RequireFromString("560.99")))
}
