package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lyzr/slurmplan/internal/ratelimit"
)

// operatorRateLimit checks the X-Operator-ID header against the
// operator-scoped limiter. A request with no operator header skips
// the check entirely rather than being rejected or bucketed together
// under one shared key — an anonymous caller has no operator identity
// to throttle by.
func operatorRateLimit(limiter *ratelimit.Limiter, limit int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			operatorID := c.Request().Header.Get("X-Operator-ID")
			if operatorID == "" || limiter == nil {
				return next(c)
			}

			result, err := limiter.CheckOperator(c.Request().Context(), operatorID, limit)
			if err != nil {
				return next(c)
			}
			if !result.Allowed {
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"error":               "operator_rate_limit_exceeded",
					"limit":               result.Limit,
					"current_count":       result.CurrentCount,
					"retry_after_seconds": result.RetryAfterSeconds,
				})
			}
			return next(c)
		}
	}
}
