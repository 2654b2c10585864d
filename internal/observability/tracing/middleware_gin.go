package tracing

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/accounts/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// GinMiddleware opens a server span per request. Organization and user
// identifiers attached by later handlers are copied onto the span when the
// request completes.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer("accounts/http")
	return func(c *gin.Context) {
		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		method := strings.ToUpper(c.Request.Method)

		ctx, span := tracer.Start(ctx, "HTTP "+method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()
		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			span.SetAttributes(attribute.String("request_id", requestID))
		}

		c.Request = c.Request.WithContext(ctx)
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		span.SetName("HTTP " + method + " " + route)
		span.SetAttributes(
			attribute.String("http.method", method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
			attribute.Int64("http.server_duration_ms", time.Since(start).Milliseconds()),
		)
		span.SetAttributes(identityAttributes(c.Request.Context())...)

		switch {
		case status >= http.StatusInternalServerError:
			if lastErr := c.Errors.Last(); lastErr != nil {
				span.RecordError(SafeError(lastErr.Err))
			}
			span.SetStatus(codes.Error, "request error")
		case status == http.StatusPaymentRequired:
			span.AddEvent("payment_failed")
		}
	}
}

func identityAttributes(ctx context.Context) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if org := obscontext.OrgIDFromContext(ctx); org != "" {
		attrs = append(attrs, attribute.String("accounts.organization", org))
	}
	if kind, id := obscontext.ActorFromContext(ctx); id != "" {
		attrs = append(attrs, attribute.String("enduser.id", id), attribute.String("enduser.kind", kind))
	}
	return attrs
}

// StartSpan starts an internal span under the request span.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer("accounts").Start(ctx, name, trace.WithAttributes(attrs...))
}

// SafeError keeps the error text but drops wrapped values that may carry
// request payloads.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	return errors.New(err.Error())
}
