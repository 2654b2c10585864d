package observability

import (
	"github.com/smallbiznis/accounts/internal/observability/logger"
	"github.com/smallbiznis/accounts/internal/observability/metrics"
	"github.com/smallbiznis/accounts/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		Config.loggerConfig,
		Config.tracingConfig,
		Config.metricsConfig,
		logger.New,
		tracing.NewProvider,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
	),
	// the tracer provider must be built so the global propagator is installed
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)
