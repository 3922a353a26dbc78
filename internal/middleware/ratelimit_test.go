package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"

	"github.com/grovia/settlement/pkg/config"
)

func hitFrom(handler http.Handler, ip string) int {
	req := httptest.NewRequest("POST", "/api/checkout", nil)
	req.RemoteAddr = ip + ":1234"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w.Code
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiter_ThrottlesPerIP(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(2), 2)
	handler := rl.Limit(okHandler())

	ip := "192.168.1.1"
	assert.Equal(t, http.StatusOK, hitFrom(handler, ip))
	assert.Equal(t, http.StatusOK, hitFrom(handler, ip))
	assert.Equal(t, http.StatusTooManyRequests, hitFrom(handler, ip), "burst exhausted")

	assert.Equal(t, http.StatusOK, hitFrom(handler, "192.168.1.2"), "other clients unaffected")
}

func TestNewRateLimiterFromConfig(t *testing.T) {
	rl := NewRateLimiterFromConfig(config.Config{RateLimitRPS: 5, RateLimitBurst: 1})
	handler := rl.Limit(okHandler())

	ip := "10.0.0.7"
	assert.Equal(t, http.StatusOK, hitFrom(handler, ip))
	assert.Equal(t, http.StatusTooManyRequests, hitFrom(handler, ip))
}
