// Package orchestrator — claim loop воркера.
//
// Orchestrator запускает Concurrency независимых циклов. Каждый цикл:
//   - Захватывает одну сделку NEW (repo.Store.ClaimNext)
//   - Прогоняет её через workflow (engine.Machine)
//   - Записывает результат одним commit или переводит сделку в FAILED
//   - Публикует событие в шину, если она подключена
//
// Циклы не разделяют состояние и координируются только через хранилище.
// Когда работы нет, цикл ждёт с растущей задержкой или до сигнала wake.
package orchestrator
