// Package observability provides structured logging and Prometheus metrics
// for the OpenDesk service.
//
// Logging uses stdlib slog with a JSON handler. Loggers are immutable;
// WithField/WithFields/WithError return derived loggers carrying extra
// context. Request-scoped loggers travel through the context and are
// recovered with FromContext.
//
// Metrics cover the HTTP surface, the permission engine (checks by outcome
// and denial reason), the permission cache (hits, misses, evictions, size)
// and store operations. All metrics are registered against an explicit
// *prometheus.Registry owned by the composition root, never the global one,
// so tests can construct isolated registries.
package observability
