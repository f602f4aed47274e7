package worker

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/jzx17/taskserve/pkg/worker"

// dispatcherMetrics holds the instruments recorded by the dispatcher
type dispatcherMetrics struct {
	serviced  metric.Int64Counter
	failed    metric.Int64Counter
	cancelled metric.Int64Counter
	workers   metric.Int64UpDownCounter
}

func newDispatcherMetrics(provider metric.MeterProvider) (*dispatcherMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(meterName)

	serviced, err := meter.Int64Counter("taskserve.tasks.serviced",
		metric.WithDescription("Tasks serviced without error"),
		metric.WithUnit("{task}"))
	if err != nil {
		return nil, err
	}
	failed, err := meter.Int64Counter("taskserve.tasks.failed",
		metric.WithDescription("Tasks whose service returned an error or panicked"),
		metric.WithUnit("{task}"))
	if err != nil {
		return nil, err
	}
	cancelled, err := meter.Int64Counter("taskserve.tasks.cancelled",
		metric.WithDescription("Tasks cancelled before being serviced"),
		metric.WithUnit("{task}"))
	if err != nil {
		return nil, err
	}
	workers, err := meter.Int64UpDownCounter("taskserve.workers",
		metric.WithDescription("Live dispatcher workers"),
		metric.WithUnit("{worker}"))
	if err != nil {
		return nil, err
	}

	return &dispatcherMetrics{
		serviced:  serviced,
		failed:    failed,
		cancelled: cancelled,
		workers:   workers,
	}, nil
}

func (m *dispatcherMetrics) taskServiced() { m.serviced.Add(context.Background(), 1) }
func (m *dispatcherMetrics) taskFailed()   { m.failed.Add(context.Background(), 1) }
func (m *dispatcherMetrics) taskCancelled(n int) {
	if n > 0 {
		m.cancelled.Add(context.Background(), int64(n))
	}
}
func (m *dispatcherMetrics) workerStarted() { m.workers.Add(context.Background(), 1) }
func (m *dispatcherMetrics) workerExited()  { m.workers.Add(context.Background(), -1) }
