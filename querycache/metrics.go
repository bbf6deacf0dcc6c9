package querycache

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	hits    metric.Int64Counter
	misses  metric.Int64Counter
	flushes metric.Int64Counter
	errors  metric.Int64Counter
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	m := &metrics{}
	var err error

	m.hits, err = meter.Int64Counter("querycache.hits",
		metric.WithDescription("Number of query results served from cache"),
		metric.WithUnit("{query}"))
	if err != nil {
		return nil, err
	}

	m.misses, err = meter.Int64Counter("querycache.misses",
		metric.WithDescription("Number of queries that ran the producer"),
		metric.WithUnit("{query}"))
	if err != nil {
		return nil, err
	}

	m.flushes, err = meter.Int64Counter("querycache.flushes",
		metric.WithDescription("Number of entity type flushes"),
		metric.WithUnit("{flush}"))
	if err != nil {
		return nil, err
	}

	m.errors, err = meter.Int64Counter("querycache.errors",
		metric.WithDescription("Number of cache failures"),
		metric.WithUnit("{error}"))
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (m *metrics) hit(ctx context.Context, driver, entity string) {
	m.hits.Add(ctx, 1, metric.WithAttributes(
		attribute.String("driver", driver),
		attribute.String("entity", entity),
	))
}

func (m *metrics) miss(ctx context.Context, driver, entity string) {
	m.misses.Add(ctx, 1, metric.WithAttributes(
		attribute.String("driver", driver),
		attribute.String("entity", entity),
	))
}

func (m *metrics) flush(ctx context.Context, entity string, keys int) {
	m.flushes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.Int("keys", keys),
	))
}

func (m *metrics) failure(ctx context.Context, op string) {
	m.errors.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}
