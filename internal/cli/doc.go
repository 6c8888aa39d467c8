// Package cli реализует операторскую утилиту DealFlow (dealflowctl).
//
// # Обзор
//
// CLI работает напрямую с хранилищем: HTTP API у DealFlow нет.
// Команды создаются фабричными функциями, принимающими storeFn и
// outputFn — замыкания для ленивого открытия хранилища и создания
// Output после парсинга PersistentFlags.
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: dealflowctl deals list --json | jq .
//
// ## Commands
//
//   - migrate: up, down, version
//   - recover --older-than
//   - deals: list, show, stats
//   - seed --count
package cli
