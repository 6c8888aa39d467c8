// Package engine содержит машину состояний оценки сделки.
//
// Включает:
//   - state.go   — состояния и чистая функция перехода Next
//   - resolve.go — арбитраж между судьёй и Decision Engine
//   - machine.go — Machine, прогон сделки через стадии с ограничением циклов
//
// Переходы:
//
//	SCOUTING → CONTRARIAN_REVIEW → ARBITRATION → FINALIZE
//	                                    ↓ (конфликт, cycle < MaxCycles)
//	                                LOOP_BACK → SCOUTING (cycle+1)
//
// Любая ошибка стадии ведёт в ABORT. FINALIZE и ABORT терминальные.
package engine
