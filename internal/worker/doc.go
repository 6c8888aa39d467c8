// Package worker выполняет отдельные стадии оценки сделки.
//
// # Обзор
//
// Runner — stateless исполнитель одной стадии. Он не знает о порядке
// стадий и циклах: этим управляет пакет engine. Runner отвечает за:
//
//   - Построение промпта стадии из CycleState
//   - Вызов reasoning-коллаборатора с таймаутом на каждый вызов
//   - Разбор и валидацию ответа (steps.Stage.Parse)
//   - Повтор при невалидном ответе с текстом ошибки в промпте
//
// # Использование
//
//	runner := worker.NewRunner(worker.Config{
//	    Client:      client,          // reasoning.Client
//	    MaxAttempts: 2,
//	    CallTimeout: 60 * time.Second,
//	    Logger:      logger,
//	})
//
//	out, err := runner.Run(ctx, stage, state)
//
// # Повторы
//
// Повторяется только невалидный ответ: не JSON, нарушение схемы,
// проверка качества. Между попытками паузы нет.
//
//  1. attempt 1: промпт стадии
//  2. attempt N: промпт + "PREVIOUS ATTEMPT FAILED: <ошибка>"
//  3. после MaxAttempts — ErrValidationExhausted
//
// Ошибка коллаборатора (ErrStageFailed) и таймаут вызова (ErrStageTimeout)
// завершают стадию сразу, без повтора.
//
// # Ошибки
//
// Все ошибки Run — *StageError. Категория проверяется через errors.Is:
//
//	if errors.Is(err, worker.ErrValidationExhausted) { ... }
//
// Исходная ошибка (например steps.ErrSchema или reasoning.ErrCircuitOpen)
// также доступна через errors.Is / errors.As.
//
// # Файлы пакета
//
//   - runner.go — Runner
//   - errors.go — ошибки и StageError
package worker
