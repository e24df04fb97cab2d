package car

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/alamak-sim/copsimcar/internal/car"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

type metrics struct {
	captureAttempts metric.Int64Histogram
	captureFailures metric.Int64Counter
	actuatorErrors  metric.Int64Counter
}

func newMetrics() (*metrics, error) {
	m := meter()
	var (
		out metrics
		err error
	)

	out.captureAttempts, err = m.Int64Histogram(
		"car.capture.attempts",
		metric.WithDescription("Buffered reads needed to capture one camera frame"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating capture attempts histogram: %w", err)
	}

	out.captureFailures, err = m.Int64Counter(
		"car.capture.failures",
		metric.WithDescription("Camera captures that did not deliver a frame"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating capture failures counter: %w", err)
	}

	out.actuatorErrors, err = m.Int64Counter(
		"car.actuator.failures",
		metric.WithDescription("Actuator commands the simulator did not accept"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating actuator failures counter: %w", err)
	}

	return &out, nil
}

func (m *metrics) captureFailed(reason string) {
	m.captureFailures.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *metrics) actuatorFailed(actuator string) {
	m.actuatorErrors.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("actuator", actuator)))
}
