package middleware

// identity.go defines helper functions shared across middleware files:
// extraction of the authenticated user ID and token version from values
// stashed in the Echo context by JWTAuth.

import (
	"errors"
	"strconv"

	"github.com/labstack/echo/v4"
)

// contextUserID extracts the user_id stored in context and converts it to
// uint64. JSON numbers arrive as float64 after jwt.MapClaims decoding.
func contextUserID(c echo.Context) (uint64, error) {
	return contextUint(c, "user_id")
}

// contextTokenVersion extracts the tv claim stored in context.
func contextTokenVersion(c echo.Context) (uint32, error) {
	v, err := contextUint(c, "token_version")
	return uint32(v), err
}

func contextUint(c echo.Context, key string) (uint64, error) {
	v := c.Get(key)
	switch t := v.(type) {
	case uint64:
		return t, nil
	case uint32:
		return uint64(t), nil
	case int:
		return uint64(t), nil
	case int64:
		return uint64(t), nil
	case float64:
		return uint64(t), nil
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("missing or invalid " + key + " in context")
}

// rateLimitUserID returns a string form of the authenticated user for rate
// limit keying, or "anon" when unauthenticated.
func rateLimitUserID(c echo.Context) string {
	if id, err := contextUserID(c); err == nil {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
