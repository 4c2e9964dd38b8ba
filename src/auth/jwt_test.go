package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "test-signing-key"

func TestIssueAndParseToken(t *testing.T) {
	token, err := IssueToken(testKey, "partner-1", time.Hour)
	require.NoError(t, err)

	caller, err := ParseToken(testKey, token)
	require.NoError(t, err)
	assert.Equal(t, "partner-1", caller.ID)
	assert.Equal(t, token, caller.Token)

	_, err = ParseToken("other-key", token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseTokenRejects(t *testing.T) {
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"_id": "partner-1",
		"exp": time.Now().Add(-time.Minute).Unix(),
	}).SignedString([]byte(testKey))
	require.NoError(t, err)

	noCaller, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}).SignedString([]byte(testKey))
	require.NoError(t, err)

	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"_id": "partner-1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired":   expired,
		"no caller": noCaller,
		"none alg":  noneAlg,
		"garbage":   "not-a-token",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseToken(testKey, token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestMiddleware(t *testing.T) {
	var seen *Caller
	protected := Middleware(testKey)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = GetCallerFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("missing header", func(t *testing.T) {
		rr := httptest.NewRecorder()
		protected.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/atc/price", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("bad token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/atc/price", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rr := httptest.NewRecorder()
		protected.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		token, err := IssueToken(testKey, "partner-9", 0)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/atc/price", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		protected.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code)
		require.NotNil(t, seen)
		assert.Equal(t, "partner-9", seen.ID)
	})
}
