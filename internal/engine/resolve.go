package engine

import "github.com/shaiso/DealFlow/internal/domain"

// Resolve выбирает итоговое решение.
//
// На терминальном цикле (cycle == MaxCycles) решение Decision Engine
// заменяет решение судьи, если они расходятся. До терминального цикла
// решение судьи остаётся в силе.
func Resolve(cycle int, p Policy, judge, engine domain.Decision) (domain.Decision, domain.VerdictSource) {
	if judge == engine {
		return judge, domain.SourceJudgeAgrees
	}
	if cycle >= p.MaxCycles {
		return engine, domain.SourceDeterministicOverride
	}
	return judge, domain.SourceJudgeStands
}
