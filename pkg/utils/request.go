package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

const maxIdempotencyKeyLength = 100

var ErrMissingIdempotencyKey = errors.New("a valid Idempotency-Key header is required")

func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) (int, error) {
	if r.Header.Get("Content-Type") != "application/json" {
		return http.StatusUnsupportedMediaType, fmt.Errorf("Content-Type header is not application/json")
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1048576)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&dst); err != nil {
		return http.StatusBadRequest, err
	}

	return http.StatusOK, nil
}

// IdempotencyKey extracts the required Idempotency-Key header. An absent or
// oversized key is a client error, not a retryable condition.
func IdempotencyKey(r *http.Request) (string, error) {
	key := r.Header.Get("Idempotency-Key")
	if key == "" || len(key) > maxIdempotencyKeyLength {
		return "", ErrMissingIdempotencyKey
	}
	return key, nil
}
