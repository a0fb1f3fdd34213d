package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// HeaderRelayKey carries the relay token presented by clients.
const HeaderRelayKey = "X-Nova-Key"

// CheckAccess reports whether presented satisfies the configured relay token.
// An empty configured token disables the gate. Otherwise the match is exact
// and case-sensitive.
func CheckAccess(presented, configured string) bool {
	if configured == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(configured)) == 1
}

// RelayToken returns an Echo middleware that rejects requests whose
// X-Nova-Key header does not match token with 401 "bad token".
func RelayToken(token string, logger *slog.Logger) echo.MiddlewareFunc {
	logger = logger.With("component", "access_gate")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !CheckAccess(c.Request().Header.Get(HeaderRelayKey), token) {
				logger.Warn("relay token rejected",
					"path", c.Request().URL.Path,
					"remote_ip", c.RealIP(),
				)
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"detail": "bad token",
				})
			}
			return next(c)
		}
	}
}
