package middleware

import (
	"github.com/Ramsey-B/trellis/pkg/context"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Context stamps every request with a request id (taken from X-Request-Id when the caller
// sent one) and the request metadata the logger and error handler read back.
func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			ctx := context.SetRequestID(req.Context(), requestID)
			ctx = context.SetMethod(ctx, req.Method)
			ctx = context.SetRoute(ctx, c.Path())
			ctx = context.SetRemoteIP(ctx, c.RealIP())

			trace.SpanFromContext(ctx).SetAttributes(attribute.String("request.id", requestID))

			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}
