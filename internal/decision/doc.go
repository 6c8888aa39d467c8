// Package decision реализует детерминированный Decision Engine.
//
// Engine вычисляет score сделки только из её сырых атрибутов:
// четыре количественных сигнала (growth, margin, cashflow, efficiency)
// и жёсткие флаги риска (leverage, cash burn, concentration).
// Выходы reasoning-стадий в расчёт не входят.
//
// Все веса и пороги задаются через Params; DefaultParams содержит
// значения по умолчанию.
//
// На терминальном цикле решение Engine заменяет решение судьи,
// если они расходятся (см. пакет engine).
package decision
