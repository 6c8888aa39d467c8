package domain

import "testing"

func TestCycleState_WithIsImmutable(t *testing.T) {
	s0 := NewCycleState(Deal{Sector: "Technology"})
	s1 := s0.With(StageOutput{Stage: StageScout, Score: 0.7})

	if s0.Scout != nil {
		t.Error("original state must not change")
	}
	if s1.Scout == nil || s1.Scout.Score != 0.7 {
		t.Errorf("expected scout score 0.7, got %+v", s1.Scout)
	}
	if s1.Cycle != 1 {
		t.Errorf("expected cycle 1, got %d", s1.Cycle)
	}
}

func TestCycleState_LoopBackCarriesHistory(t *testing.T) {
	s := NewCycleState(Deal{})
	s = s.With(StageOutput{Stage: StageScout, Seq: 1, Score: 0.74})
	s = s.With(StageOutput{Stage: StageContrarian, Seq: 2, Score: 0.28})
	s = s.With(StageOutput{Stage: StageJudge, Seq: 3})

	next := s.LoopBack(true, 0.46)

	if next.Cycle != 2 {
		t.Fatalf("expected cycle 2, got %d", next.Cycle)
	}
	if next.Scout != nil || next.Contrarian != nil || next.Judge != nil {
		t.Error("current cycle outputs must be reset")
	}

	prev := next.Previous()
	if prev == nil {
		t.Fatal("expected previous cycle")
	}
	if !prev.Conflict || prev.Gap != 0.46 || prev.Scout.Score != 0.74 {
		t.Errorf("unexpected previous cycle: %+v", prev)
	}

	// История исходного состояния не меняется
	if len(s.History) != 0 {
		t.Error("loop back must not modify original history")
	}
}

func TestCycleState_OutputsOrdered(t *testing.T) {
	s := NewCycleState(Deal{})
	for i, st := range Stages {
		s = s.With(StageOutput{Stage: st, Seq: i + 1})
	}
	s = s.LoopBack(true, 0.5)
	s = s.With(StageOutput{Stage: StageScout, Seq: 4})

	outs := s.Outputs()
	if len(outs) != 4 {
		t.Fatalf("expected 4 outputs, got %d", len(outs))
	}
	for i, o := range outs {
		if o.Seq != i+1 {
			t.Errorf("output %d: expected seq %d, got %d", i, i+1, o.Seq)
		}
	}
}

func TestCycleState_Scores(t *testing.T) {
	s := NewCycleState(Deal{})
	if _, _, ok := s.Scores(); ok {
		t.Error("expected no scores on empty state")
	}

	s = s.With(StageOutput{Stage: StageScout, Score: 0.6})
	s = s.With(StageOutput{Stage: StageContrarian, Score: 0.4})

	scout, contrarian, ok := s.Scores()
	if !ok || scout != 0.6 || contrarian != 0.4 {
		t.Errorf("unexpected scores: %v %v %v", scout, contrarian, ok)
	}
}

func TestStageOutput_PayloadRoundTrip(t *testing.T) {
	out := StageOutput{
		Stage: StageJudge,
		Judge: &JudgeReport{Decision: DecisionAccept, Confidence: 0.8, Reasoning: "ok"},
	}

	data, err := out.Payload()
	if err != nil {
		t.Fatalf("payload: %v", err)
	}

	restored := StageOutput{Stage: StageJudge}
	if err := restored.SetPayload(data); err != nil {
		t.Fatalf("set payload: %v", err)
	}
	if restored.Judge == nil || restored.Judge.Decision != DecisionAccept {
		t.Errorf("unexpected judge report: %+v", restored.Judge)
	}
}

func TestDealStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status DealStatus
		want   bool
	}{
		{DealStatusNew, false},
		{DealStatusProcessing, false},
		{DealStatusFinalized, true},
		{DealStatusFailed, true},
	}

	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.want {
			t.Errorf("%s.IsTerminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestDeal_NetDebtToEBITDA(t *testing.T) {
	d := Deal{Revenue: 10_000_000, EBITDAMargin: 0.2, NetDebt: 9_000_000}

	ratio, ok := d.NetDebtToEBITDA()
	if !ok {
		t.Fatal("expected defined ratio")
	}
	if ratio < 4.49 || ratio > 4.51 {
		t.Errorf("expected ratio 4.5, got %v", ratio)
	}

	d = Deal{EBITDA: -100, NetDebt: 1000}
	if _, ok := d.NetDebtToEBITDA(); ok {
		t.Error("ratio must be undefined for negative EBITDA")
	}
}
