package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	logger "github.com/sirupsen/logrus"
)

// callerClaim carries the API client's id, as issued to existing clients.
const callerClaim = "_id"

var ErrInvalidToken = errors.New("invalid token")

// IssueToken signs a bearer token for callerID. A zero ttl issues a token without expiry.
func IssueToken(key, callerID string, ttl time.Duration) (string, error) {
	if key == "" {
		return "", errors.New("empty signing key")
	}
	claims := jwt.MapClaims{
		callerClaim: callerID,
		"iat":       time.Now().Unix(),
	}
	if ttl > 0 {
		claims["exp"] = time.Now().Add(ttl).Unix()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
}

// ParseToken verifies tokenString with key and returns the caller it was issued to.
func ParseToken(key, tokenString string) (*Caller, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(key), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	id, ok := claims[callerClaim].(string)
	if !ok || id == "" {
		return nil, ErrInvalidToken
	}
	return &Caller{ID: id, Token: tokenString}, nil
}

// Middleware rejects requests without a valid bearer token and stores the caller in the
// request context.
func Middleware(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			tokenString := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
			if header == "" || tokenString == "" {
				http.Error(w, "Not authorized to access this resource", http.StatusUnauthorized)
				return
			}

			caller, err := ParseToken(key, tokenString)
			if err != nil {
				logger.WithError(err).WithField("path", r.URL.Path).Warn("rejected bearer token")
				http.Error(w, "Not authorized to access this resource", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}
