package submission

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

const metricNamespace = "finitefield.org/trademark-web/internal/submission"

type instruments struct {
	deliveries       metric.Int64Counter
	deliveryFailures metric.Int64Counter
}

func newInstruments(meter metric.Meter, logger *zap.Logger) instruments {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(metricNamespace)
	}
	ins := instruments{}
	var err error
	ins.deliveries, err = meter.Int64Counter(
		"submission.deliveries",
		metric.WithDescription("Count of leads accepted by the backend"),
	)
	if err != nil {
		logger.Warn("submission: unable to register delivery metric", zap.Error(err))
		ins.deliveries = noop.Int64Counter{}
	}
	ins.deliveryFailures, err = meter.Int64Counter(
		"submission.delivery_failures",
		metric.WithDescription("Count of failed backend deliveries; lenient failures are only in the local backup"),
	)
	if err != nil {
		logger.Warn("submission: unable to register delivery failure metric", zap.Error(err))
		ins.deliveryFailures = noop.Int64Counter{}
	}
	return ins
}

func (i instruments) delivered(ctx context.Context, kind string) {
	i.deliveries.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (i instruments) failed(ctx context.Context, kind string, policy Policy, swallowed bool) {
	i.deliveryFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("policy", string(policy)),
		attribute.Bool("swallowed", swallowed),
	))
}
