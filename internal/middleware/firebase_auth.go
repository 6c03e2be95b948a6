package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"firebase.google.com/go/v4/auth"
	"github.com/anonto42/nano-midea/notifier/internal/models"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

// TokenVerifier verifies Firebase ID tokens. *auth.Client implements it.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// UserLookup maps a Firebase UID to the local user record.
type UserLookup interface {
	GetUserByFirebaseUID(ctx context.Context, firebaseUID string) (*models.User, error)
}

// FirebaseAuthMiddleware creates an Echo middleware to verify Firebase ID tokens
// and resolve them to local user ids
func FirebaseAuthMiddleware(verifier TokenVerifier, users UserLookup) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			idToken, err := bearerToken(c)
			if err != nil {
				return err
			}

			ctx := c.Request().Context()
			token, err := verifier.VerifyIDToken(ctx, idToken)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, fmt.Sprintf("Invalid or expired ID token: %v", err))
			}

			user, err := users.GetUserByFirebaseUID(ctx, token.UID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return echo.NewHTTPError(http.StatusUnauthorized, "No account for this Firebase user")
				}
				return echo.NewHTTPError(http.StatusServiceUnavailable, "User lookup failed").SetInternal(err)
			}

			c.Set(FirebaseUIDKey, token.UID)
			c.Set(UserIDKey, user.ID)

			return next(c)
		}
	}
}
