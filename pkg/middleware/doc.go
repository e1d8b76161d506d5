// Package middleware provides net/http middleware for the chatd status
// endpoint.
//
// This package includes:
//   - Prometheus request metrics
//   - OpenTelemetry request tracing
//   - Structured request logging through slog
//
// The middlewares are plain func(http.Handler) http.Handler values and
// compose with any router:
//
//	r := chi.NewRouter()
//	r.Use(middleware.Prometheus(middleware.WithRegistry(reg)))
//	r.Use(middleware.OpenTelemetry())
//	r.Use(middleware.Logger(logger))
//
// # Prometheus Metrics
//
//   - chatd_http_requests_total: requests by route and status code
//   - chatd_http_request_duration_seconds: request duration by route
//
// Routes are labelled with the chi route pattern when one matched, so
// path parameters do not create new series.
//
// # OpenTelemetry
//
// Each request gets a server span named after its method and route. The
// span is stored in the request context:
//
//	func handler(w http.ResponseWriter, r *http.Request) {
//	    trace.SpanFromContext(r.Context()).SetAttributes(attribute.Int("chats", n))
//	}
package middleware
