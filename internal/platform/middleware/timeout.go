package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ehr/bodymap/internal/platform/fhir"
)

// RequestTimeout puts a deadline on the request context. When a handler
// gives up because the deadline passed and has not written a response, the
// client gets 504 with an OperationOutcome. Paths under any of the skip
// prefixes (long-lived websocket connections) are left alone.
func RequestTimeout(timeout time.Duration, skipPrefixes ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			for _, p := range skipPrefixes {
				if strings.HasPrefix(path, p) {
					return next(c)
				}
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Response().Committed {
				return c.JSON(http.StatusGatewayTimeout, fhir.NewOperationOutcome("error", "timeout",
					"Request processing exceeded the allowed time limit"))
			}
			return err
		}
	}
}
