package domain

// CycleRecord — завершённый цикл оценки, сохранённый в истории.
type CycleRecord struct {
	Cycle      int
	Scout      *StageOutput
	Contrarian *StageOutput
	Judge      *StageOutput

	// Conflict — зафиксированное на арбитраже расхождение, из-за которого
	// был сделан возврат на первую стадию.
	Conflict bool
	Gap      float64
}

// CycleState — состояние прогона сделки между стадиями.
//
// Значение неизменяемое: каждый переход возвращает новое состояние.
// Указатели на StageOutput разделяются между копиями, поэтому сами
// выходы стадий после добавления не модифицируются.
// В БД не сохраняется.
type CycleState struct {
	Deal  Deal
	Cycle int

	Scout      *StageOutput
	Contrarian *StageOutput
	Judge      *StageOutput

	History []CycleRecord
}

// NewCycleState создаёт состояние первого цикла.
func NewCycleState(deal Deal) CycleState {
	return CycleState{Deal: deal, Cycle: 1}
}

// With возвращает состояние с добавленным выходом стадии.
func (s CycleState) With(out StageOutput) CycleState {
	next := s
	o := out
	switch out.Stage {
	case StageScout:
		next.Scout = &o
	case StageContrarian:
		next.Contrarian = &o
	case StageJudge:
		next.Judge = &o
	}
	return next
}

// Output возвращает выход стадии текущего цикла или nil.
func (s CycleState) Output(stage StageName) *StageOutput {
	switch stage {
	case StageScout:
		return s.Scout
	case StageContrarian:
		return s.Contrarian
	case StageJudge:
		return s.Judge
	default:
		return nil
	}
}

// LoopBack переносит текущий цикл в историю и начинает следующий.
func (s CycleState) LoopBack(conflict bool, gap float64) CycleState {
	history := make([]CycleRecord, len(s.History), len(s.History)+1)
	copy(history, s.History)
	history = append(history, CycleRecord{
		Cycle:      s.Cycle,
		Scout:      s.Scout,
		Contrarian: s.Contrarian,
		Judge:      s.Judge,
		Conflict:   conflict,
		Gap:        gap,
	})

	return CycleState{
		Deal:    s.Deal,
		Cycle:   s.Cycle + 1,
		History: history,
	}
}

// Previous возвращает предыдущий цикл или nil на первом цикле.
func (s CycleState) Previous() *CycleRecord {
	if len(s.History) == 0 {
		return nil
	}
	rec := s.History[len(s.History)-1]
	return &rec
}

// Outputs возвращает все выходы стадий прогона в порядке выполнения.
func (s CycleState) Outputs() []StageOutput {
	var outs []StageOutput
	add := func(o *StageOutput) {
		if o != nil {
			outs = append(outs, *o)
		}
	}
	for _, rec := range s.History {
		add(rec.Scout)
		add(rec.Contrarian)
		add(rec.Judge)
	}
	add(s.Scout)
	add(s.Contrarian)
	add(s.Judge)
	return outs
}

// Scores возвращает направленные оценки scout и contrarian текущего цикла.
// ok = false, если какой-то из стадий ещё нет.
func (s CycleState) Scores() (scout, contrarian float64, ok bool) {
	if s.Scout == nil || s.Contrarian == nil {
		return 0, 0, false
	}
	return s.Scout.Score, s.Contrarian.Score, true
}
