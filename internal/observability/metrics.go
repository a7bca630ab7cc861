package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

const meterName = "github.com/hackgods/dental-clinic-scheduling"

// Metrics holds the application instruments. Instruments come from the
// global meter provider, so they are no-ops until SetupMetrics installs one.
type Metrics struct {
	Bookings            metric.Int64Counter
	StatusChanges       metric.Int64Counter
	AvailabilityLatency metric.Float64Histogram
	ReportCacheHits     metric.Int64Counter
	ReportCacheMisses   metric.Int64Counter
	RequestDuration     metric.Float64Histogram
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

// GetMetrics returns the process-wide instruments.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		m, err := newMetrics(otel.Meter(meterName))
		if err != nil {
			// Instrument creation only fails on invalid names.
			panic(err)
		}
		metrics = m
	})
	return metrics
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	bookings, err := meter.Int64Counter(
		"appointment.bookings",
		metric.WithDescription("Booking attempts by outcome"),
	)
	if err != nil {
		return nil, err
	}

	statusChanges, err := meter.Int64Counter(
		"appointment.status_changes",
		metric.WithDescription("Appointment status transitions"),
	)
	if err != nil {
		return nil, err
	}

	availabilityLatency, err := meter.Float64Histogram(
		"availability.compute.duration",
		metric.WithDescription("Time to compute a day's slots"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	cacheHits, err := meter.Int64Counter(
		"report.cache.hit",
		metric.WithDescription("Report summary served from cache"),
	)
	if err != nil {
		return nil, err
	}

	cacheMisses, err := meter.Int64Counter(
		"report.cache.miss",
		metric.WithDescription("Report summary recomputed"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		Bookings:            bookings,
		StatusChanges:       statusChanges,
		AvailabilityLatency: availabilityLatency,
		ReportCacheHits:     cacheHits,
		ReportCacheMisses:   cacheMisses,
		RequestDuration:     requestDuration,
	}, nil
}

// SetupMetrics installs an OTLP gRPC meter provider. It returns a shutdown
// func that flushes pending points.
func SetupMetrics(ctx context.Context, serviceName, version, endpoint string) (func(context.Context) error, error) {
	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("service.version", version),
	)

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(15*time.Second))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(provider)

	return provider.Shutdown, nil
}

func RecordBooking(ctx context.Context, outcome string) {
	GetMetrics().Bookings.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func RecordStatusChange(ctx context.Context, from, to string) {
	GetMetrics().StatusChanges.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

func RecordAvailability(ctx context.Context, d time.Duration, slots int) {
	GetMetrics().AvailabilityLatency.Record(ctx, float64(d.Microseconds())/1000,
		metric.WithAttributes(attribute.Int("slots", slots)))
}

func RecordReportCache(ctx context.Context, hit bool) {
	if hit {
		GetMetrics().ReportCacheHits.Add(ctx, 1)
		return
	}
	GetMetrics().ReportCacheMisses.Add(ctx, 1)
}

func RecordRequest(ctx context.Context, method, route string, status int, d time.Duration) {
	GetMetrics().RequestDuration.Record(ctx, float64(d.Microseconds())/1000, metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.Int("http.status_code", status),
	))
}
