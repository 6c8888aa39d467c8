// Package repo хранит сделки, выходы стадий и вердикты.
//
// Структура:
//   - db.go        — пул соединений pgx
//   - migrate.go   — миграции goose, встроенные в бинарник
//   - deal_repo.go — DealRepo поверх PostgreSQL
//   - memstore.go  — MemStore, та же семантика в памяти
//
// Единственная координация между воркерами — claim через
// FOR UPDATE SKIP LOCKED. Переходы PROCESSING → FINALIZED|FAILED
// проверяют текущий статус в том же запросе.
package repo
