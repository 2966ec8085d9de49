package middleware

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/commutedeck/commutedeck/internal/api/middleware"

// Metrics holds the OpenTelemetry HTTP server instruments.
type Metrics struct {
	duration     metric.Float64Histogram
	inFlight     metric.Int64UpDownCounter
	responseSize metric.Int64Histogram
	upstreamFail metric.Int64Counter
}

// NewMetrics creates the HTTP server instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	if m.duration, err = meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("Duration of HTTP server requests"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if m.inFlight, err = meter.Int64UpDownCounter(
		"http.server.active_requests",
		metric.WithDescription("Number of HTTP requests currently being served"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}

	if m.responseSize, err = meter.Int64Histogram(
		"http.server.response.body.size",
		metric.WithDescription("Size of HTTP response bodies"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}

	if m.upstreamFail, err = meter.Int64Counter(
		"commutedeck.api.upstream_unavailable",
		metric.WithDescription("Requests answered with 502 or 503 because a data source was down"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// Middleware records the duration, size and outcome of every request except
// probes. Requests are labelled with the chi route pattern, so coordinates in
// the path or query never become metric dimensions.
func (m *Metrics) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isProbe(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			start := time.Now()

			method := metric.WithAttributes(attribute.String("http.request.method", r.Method))
			m.inFlight.Add(ctx, 1, method)
			defer m.inFlight.Add(ctx, -1, method)

			wrapped := newStatusRecorder(w)
			next.ServeHTTP(wrapped, r)

			route := routePattern(r)
			attrs := []attribute.KeyValue{
				attribute.String("http.request.method", r.Method),
				attribute.String("http.route", route),
				attribute.Int("http.response.status_code", wrapped.statusCode),
			}
			if wrapped.statusCode >= 500 {
				attrs = append(attrs, attribute.String("error.type", http.StatusText(wrapped.statusCode)))
			}

			opt := metric.WithAttributes(attrs...)
			m.duration.Record(ctx, time.Since(start).Seconds(), opt)
			m.responseSize.Record(ctx, wrapped.written, opt)

			if wrapped.statusCode == http.StatusBadGateway || wrapped.statusCode == http.StatusServiceUnavailable {
				m.upstreamFail.Add(ctx, 1, metric.WithAttributes(attribute.String("http.route", route)))
			}
		})
	}
}
