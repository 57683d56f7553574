package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"
)

// TokenFromCtx extracts the authenticated admin token set by APIKeyMiddleware.
func TokenFromCtx(c echo.Context) (string, bool) {
	v := c.Get("admin_token")
	tok, ok := v.(string)
	return tok, ok
}

// APIKeyMiddleware authenticates admin requests using the X-API-Key header
// against the configured token list. With no tokens configured everything is
// rejected; the admin API never runs open.
func APIKeyMiddleware(tokens []string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := strings.TrimSpace(c.Request().Header.Get("X-API-Key"))
			if key == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing api key"})
			}
			for _, t := range tokens {
				if subtle.ConstantTimeCompare([]byte(key), []byte(t)) == 1 {
					c.Set("admin_token", t)
					return next(c)
				}
			}
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid api key"})
		}
	}
}
