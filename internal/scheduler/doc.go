// Package scheduler — продюсер синтетических сделок.
//
// Producer по cron-расписанию (по умолчанию @every 6s) генерирует сделки
// по отраслевым профилям, вставляет их в статусе NEW и будит воркеры
// сообщением deal.new.
//
// Структура:
//   - producer.go  — Producer (Tick, Produce, Start/Stop)
//   - generator.go — генерация сделки по профилю отрасли
//   - cron.go      — разбор расписаний
//
// Leader Election:
//
// При нескольких продюсерах тик выполняет только лидер.
// Проверка передаётся через Config.Leader (в main — repo.Leader
// на pg_try_advisory_lock).
package scheduler
