package resolver

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/atcwatch/skyguard/internal/resolver"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}
