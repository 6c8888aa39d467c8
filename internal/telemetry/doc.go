// Package telemetry обеспечивает наблюдаемость системы.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики claim loop и стадий
//   - tracing.go — OpenTelemetry спаны вокруг прогона сделки и стадий
//
// Все процессы используют единый формат логирования
// и экспортируют метрики на /metrics endpoint.
// Экспорт трейсов включается только при заданном OTLP endpoint.
package telemetry
