package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/anonto42/nano-midea/notifier/internal/models"
	"github.com/anonto42/nano-midea/notifier/internal/repositories"
	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret, userID string, expires time.Time) string {
	t.Helper()
	claims := &models.JwtCustomClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

// run sends one request through mw and returns the user id the handler saw.
func run(t *testing.T, mw echo.MiddlewareFunc, authHeader string) (string, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	c := e.NewContext(req, httptest.NewRecorder())

	var seen string
	err := mw(func(c echo.Context) error {
		seen, _ = c.Get(UserIDKey).(string)
		return nil
	})(c)
	return seen, err
}

func assertStatus(t *testing.T, err error, status int) {
	t.Helper()
	var he *echo.HTTPError
	require.True(t, errors.As(err, &he), "want *echo.HTTPError, got %v", err)
	assert.Equal(t, status, he.Code)
}

func TestJWTAuthMiddleware(t *testing.T) {
	mw := JWTAuthMiddleware(testSecret)

	t.Run("valid token", func(t *testing.T) {
		userID, err := run(t, mw, "Bearer "+signToken(t, testSecret, "bob", time.Now().Add(time.Hour)))
		require.NoError(t, err)
		assert.Equal(t, "bob", userID)
	})

	t.Run("missing header", func(t *testing.T) {
		_, err := run(t, mw, "")
		assertStatus(t, err, http.StatusUnauthorized)
	})

	t.Run("wrong scheme", func(t *testing.T) {
		_, err := run(t, mw, "Basic abc")
		assertStatus(t, err, http.StatusUnauthorized)
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := run(t, mw, "Bearer "+signToken(t, "other", "bob", time.Now().Add(time.Hour)))
		assertStatus(t, err, http.StatusUnauthorized)
	})

	t.Run("expired", func(t *testing.T) {
		_, err := run(t, mw, "Bearer "+signToken(t, testSecret, "bob", time.Now().Add(-time.Hour)))
		assertStatus(t, err, http.StatusUnauthorized)
	})

	t.Run("no user id", func(t *testing.T) {
		_, err := run(t, mw, "Bearer "+signToken(t, testSecret, "", time.Now().Add(time.Hour)))
		assertStatus(t, err, http.StatusUnauthorized)
	})
}

type fakeVerifier map[string]string

func (f fakeVerifier) VerifyIDToken(_ context.Context, idToken string) (*auth.Token, error) {
	uid, ok := f[idToken]
	if !ok {
		return nil, errors.New("token expired")
	}
	return &auth.Token{UID: uid}, nil
}

func TestFirebaseAuthMiddleware(t *testing.T) {
	users := repositories.NewMemoryUserRepository(models.User{ID: "bob", FirebaseUID: "fb-bob"})
	mw := FirebaseAuthMiddleware(fakeVerifier{"good": "fb-bob", "stranger": "fb-nobody"}, users)

	userID, err := run(t, mw, "Bearer good")
	require.NoError(t, err)
	assert.Equal(t, "bob", userID)

	_, err = run(t, mw, "Bearer forged")
	assertStatus(t, err, http.StatusUnauthorized)

	_, err = run(t, mw, "Bearer stranger")
	assertStatus(t, err, http.StatusUnauthorized)
}
