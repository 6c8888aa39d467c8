package steps

import (
	"errors"

	"github.com/shaiso/DealFlow/internal/decision"
	"github.com/shaiso/DealFlow/internal/domain"
)

// Ошибки стадий.
var (
	// ErrStageNotFound — стадия не найдена в реестре.
	ErrStageNotFound = errors.New("stage not found")

	// ErrSchema — ответ коллаборатора не соответствует схеме стадии.
	ErrSchema = errors.New("stage output schema violation")
)

// Stage — одна стадия оценки сделки.
//
// Стадия не делает вызовов сама: она строит промпт и разбирает ответ.
// Вызов коллаборатора и повторы выполняет worker.Runner.
type Stage interface {
	// Name возвращает имя стадии.
	Name() domain.StageName

	// System возвращает системную инструкцию для коллаборатора.
	System() string

	// Prompt строит вход стадии из состояния цикла.
	// feedback — текст ошибки валидации предыдущей попытки (пустой на первой).
	// Пустой промпт означает, что стадия вычисляется без коллаборатора.
	Prompt(state domain.CycleState, feedback string) string

	// Parse разбирает и валидирует ответ, возвращая выход стадии.
	// Для вычислительной стадии raw пустой.
	// Ошибки валидации оборачивают ErrSchema.
	Parse(state domain.CycleState, raw string) (domain.StageOutput, error)
}

// Options — параметры стадий.
type Options struct {
	// Params — параметры Decision Engine (флаги риска, метрики, оценка для судьи).
	Params decision.Params

	// Annotate — запрашивать нарратив scout у коллаборатора.
	Annotate bool

	// DisagreementThreshold — порог расхождения для классификации конфликта.
	DisagreementThreshold float64
}

// DefaultOptions возвращает параметры по умолчанию.
func DefaultOptions() Options {
	return Options{
		Params:                decision.DefaultParams(),
		Annotate:              true,
		DisagreementThreshold: 0.40,
	}
}
