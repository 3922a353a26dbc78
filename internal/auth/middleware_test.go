package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/grovia/settlement/internal/user"
	"github.com/grovia/settlement/pkg/config"
	"github.com/grovia/settlement/pkg/utils"
)

type fakeUserRepo struct {
	users map[string]*user.User
}

func (f *fakeUserRepo) FindByID(id string) (*user.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUserRepo) FindByReferralCode(string) (*user.User, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUserRepo) ListReferredBy(string) ([]user.User, error) { return nil, nil }

func (f *fakeUserRepo) UpdateReferralCode(string, string) error { return nil }

func signToken(t *testing.T, secret, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		utils.UserIDKey: userID,
		utils.ExpKey:    time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestJWTMiddleware(t *testing.T) {
	cfg := config.Config{JWTSecret: "test-secret"}
	knownID := uuid.New()
	repo := &fakeUserRepo{users: map[string]*user.User{
		knownID.String(): {ID: knownID, Name: "Ada", Email: "ada@example.com"},
	}}

	var seenUser *user.User
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u, ok := r.Context().Value(utils.UserKey).(user.User); ok {
			seenUser = &u
		}
		w.WriteHeader(http.StatusOK)
	})
	handler := JWTMiddleware(cfg, repo)(next)

	tests := []struct {
		name           string
		authHeader     string
		expectedStatus int
	}{
		{
			name:           "valid token",
			authHeader:     "Bearer " + signToken(t, "test-secret", knownID.String()),
			expectedStatus: http.StatusOK,
		},
		{
			name:           "missing header",
			authHeader:     "",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "wrong secret",
			authHeader:     "Bearer " + signToken(t, "other-secret", knownID.String()),
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "unknown user",
			authHeader:     "Bearer " + signToken(t, "test-secret", uuid.New().String()),
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "garbage token",
			authHeader:     "Bearer not-a-token",
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seenUser = nil
			req := httptest.NewRequest("GET", "/", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedStatus, rr.Code)
			if tt.expectedStatus == http.StatusOK {
				require.NotNil(t, seenUser)
				assert.Equal(t, knownID, seenUser.ID)
			}
		})
	}
}
