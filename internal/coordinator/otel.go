package coordinator

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/atcwatch/skyguard/internal/coordinator"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}
