// Package middleware contains reusable HTTP middleware.  The core
// never validates identities itself: authentication is an external
// collaborator, and the middleware here only extracts the opaque
// holder token the engine compares for equality.
package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// HolderIDKey is the echo context key under which the authenticated
// holder identity is stored.
const HolderIDKey = "holder_id"

// HolderAuth returns an Echo middleware that validates a Bearer access
// token and injects the token's subject into the request context as
// the holder identity.  The provided secret must match the one used by
// the authentication service when issuing tokens.  Handlers read the
// identity via c.Get(middleware.HolderIDKey).
func HolderAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			// Parse with HS256 and our secret; any other signing
			// method is rejected.
			tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, echo.ErrUnauthorized
				}
				return []byte(secret), nil
			})
			if err != nil || !tok.Valid {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			claims, ok := tok.Claims.(jwt.MapClaims)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
			}
			sub, _ := claims["sub"].(string)
			if sub == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing subject"})
			}

			c.Set(HolderIDKey, sub)
			return next(c)
		}
	}
}
