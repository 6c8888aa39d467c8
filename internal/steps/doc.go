// Package steps содержит стадии оценки сделки.
//
// # Обзор
//
// Стадия — это описание одного шага цикла оценки. Каждая стадия:
//   - Строит промпт из CycleState (факт-лист сделки, выходы предыдущих
//     стадий, память о прошлом цикле)
//   - Разбирает ответ коллаборатора в типизированный отчёт
//   - Проверяет ответ на соответствие схеме и качеству
//
// Вызов коллаборатора, таймауты и повторы выполняет worker.Runner.
//
// # Интерфейс Stage
//
//	type Stage interface {
//	    Name() domain.StageName
//	    System() string
//	    Prompt(state domain.CycleState, feedback string) string
//	    Parse(state domain.CycleState, raw string) (domain.StageOutput, error)
//	}
//
// Пустой промпт означает вычислительную стадию: Runner не вызывает
// коллаборатор и сразу передаёт пустой ответ в Parse.
//
// # Стадии
//
// ## Scout (scout.go)
//
// Оценка scout всегда детерминированная (decision.Metrics).
// При включённой аннотации коллаборатор пишет анализ,
// ровно 3 сильные стороны и ровно 3 риска. Оценки в ответе нет.
//
// ## Contrarian (contrarian.go)
//
// Стресс-тест. Жёсткие флаги (leverage, cash burn, concentration)
// вычисляются заранее. Ответ: минимум один red flag, резюме,
// bearish_confidence в [0, 1]. Направленная оценка = 1 - bearish.
//
// ## Judge (judge.go)
//
// Арбитраж. Судья видит оценку Decision Engine.
// Ответ: ACCEPT или REJECT, уверенность в [0, 1], обоснование
// не короче 60 символов.
//
// # Схемы
//
// Инструкции о формате генерируются из wire-структур через
// invopop/jsonschema. Ответ разбирается после снятия markdown-ограждений;
// любое нарушение схемы возвращается как ошибка, оборачивающая ErrSchema,
// и её текст уходит в следующую попытку как feedback.
//
// # Registry
//
//	registry := steps.DefaultRegistry(opts)  // scout, contrarian, judge
//	seq, err := registry.Sequence()          // в порядке выполнения
//
// # Файлы пакета
//
//   - stage.go      — интерфейс Stage, Options, ошибки
//   - registry.go   — Registry
//   - schema.go     — JSON Schema, извлечение и разбор JSON
//   - factsheet.go  — факт-лист сделки и память о прошлом цикле
//   - scout.go, contrarian.go, judge.go — стадии
package steps
