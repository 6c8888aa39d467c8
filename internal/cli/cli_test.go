package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/DealFlow/internal/domain"
	"github.com/shaiso/DealFlow/internal/repo"
)

type harness struct {
	store  *repo.MemStore
	stdout bytes.Buffer
	stderr bytes.Buffer
	json   bool
}

func newHarness() *harness {
	return &harness{store: repo.NewMemStore()}
}

func (h *harness) root() *cobra.Command {
	storeFn := func(context.Context) (repo.Repository, error) { return h.store, nil }
	outputFn := func() *Output { return NewOutputTo(h.json, &h.stdout, &h.stderr) }

	root := &cobra.Command{Use: "dealflowctl", SilenceUsage: true, SilenceErrors: true}
	root.AddCommand(
		NewDealsCmd(storeFn, outputFn),
		NewRecoverCmd(storeFn, outputFn),
		NewSeedCmd(storeFn, outputFn),
	)
	return root
}

func (h *harness) run(t *testing.T, args ...string) error {
	t.Helper()
	root := h.root()
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

func TestSeed_InsertsDeals(t *testing.T) {
	h := newHarness()

	if err := h.run(t, "seed", "--count", "5", "--seed", "7"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(h.stderr.String(), "Inserted 5 deal(s)") {
		t.Errorf("unexpected stderr: %q", h.stderr.String())
	}

	counts, _ := h.store.CountByStatus(context.Background())
	if counts[domain.DealStatusNew] != 5 {
		t.Errorf("expected 5 NEW deals, got %d", counts[domain.DealStatusNew])
	}
}

func TestSeed_RejectsNonPositiveCount(t *testing.T) {
	h := newHarness()
	if err := h.run(t, "seed", "--count", "0"); err == nil {
		t.Fatal("expected error")
	}
}

func TestDealsList_Table(t *testing.T) {
	h := newHarness()
	if err := h.run(t, "seed", "--count", "3", "--seed", "1"); err != nil {
		t.Fatal(err)
	}

	if err := h.run(t, "deals", "list"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(h.stdout.String()), "\n")
	// заголовок, разделитель и три строки
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %d:\n%s", len(lines), h.stdout.String())
	}
	if !strings.HasPrefix(lines[0], "ID") || !strings.Contains(lines[0], "STATUS") {
		t.Errorf("unexpected header: %q", lines[0])
	}
}

func TestDealsList_StatusFilterJSON(t *testing.T) {
	h := newHarness()
	if err := h.run(t, "seed", "--count", "4", "--seed", "2"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.store.ClaimNext(context.Background()); err != nil {
		t.Fatal(err)
	}

	h.json = true
	if err := h.run(t, "deals", "list", "--status", "processing"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var deals []domain.Deal
	if err := json.Unmarshal(h.stdout.Bytes(), &deals); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(deals) != 1 || deals[0].Status != domain.DealStatusProcessing {
		t.Errorf("expected one PROCESSING deal, got %+v", deals)
	}
}

func TestDealsList_UnknownStatus(t *testing.T) {
	h := newHarness()
	if err := h.run(t, "deals", "list", "--status", "DONE"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestDealsShow_Finalized(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	if err := h.run(t, "seed", "--count", "1"); err != nil {
		t.Fatal(err)
	}
	deal, err := h.store.ClaimNext(ctx)
	if err != nil {
		t.Fatal(err)
	}

	verdict := domain.Verdict{
		ID:             uuid.New(),
		DealID:         deal.ID,
		Decision:       domain.DecisionReject,
		Score:          0.31,
		Confidence:     0.8,
		Cycles:         1,
		Source:         domain.SourceJudgeAgrees,
		JudgeDecision:  domain.DecisionReject,
		EngineDecision: domain.DecisionReject,
		Reasoning:      "leverage",
	}
	outputs := []domain.StageOutput{
		{ID: uuid.New(), Stage: domain.StageScout, Cycle: 1, Seq: 1, Score: 0.3, Scout: &domain.ScoutReport{}},
		{ID: uuid.New(), Stage: domain.StageContrarian, Cycle: 1, Seq: 2, Score: 0.25, Attempts: 1, Contrarian: &domain.ContrarianReport{}},
		{ID: uuid.New(), Stage: domain.StageJudge, Cycle: 1, Seq: 3, Score: 0.2, Attempts: 1, Judge: &domain.JudgeReport{}},
	}
	if err := h.store.CommitResult(ctx, deal.ID, outputs, verdict); err != nil {
		t.Fatal(err)
	}

	if err := h.run(t, "deals", "show", deal.ID.String()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := h.stdout.String()
	for _, want := range []string{"VERDICT", "REJECT", "JUDGE_AGREES", "STAGES", "contrarian"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestDealsShow_InvalidID(t *testing.T) {
	h := newHarness()
	if err := h.run(t, "deals", "show", "not-a-uuid"); err == nil {
		t.Fatal("expected error")
	}
}

func TestDealsShow_NotFound(t *testing.T) {
	h := newHarness()
	err := h.run(t, "deals", "show", uuid.NewString())
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestDealsStats(t *testing.T) {
	h := newHarness()
	if err := h.run(t, "seed", "--count", "3"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.store.ClaimNext(context.Background()); err != nil {
		t.Fatal(err)
	}

	h.json = true
	if err := h.run(t, "deals", "stats"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var counts map[domain.DealStatus]int64
	if err := json.Unmarshal(h.stdout.Bytes(), &counts); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if counts[domain.DealStatusNew] != 2 || counts[domain.DealStatusProcessing] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}
}

func TestRecover_NothingStuck(t *testing.T) {
	h := newHarness()
	if err := h.run(t, "seed", "--count", "1"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.store.ClaimNext(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := h.run(t, "recover", "--older-than", "1h"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(h.stderr.String(), "Recovered 0 deal(s)") {
		t.Errorf("unexpected stderr: %q", h.stderr.String())
	}
}

func TestRecover_RejectsZeroDuration(t *testing.T) {
	h := newHarness()
	if err := h.run(t, "recover", "--older-than", "0s"); err == nil {
		t.Fatal("expected error")
	}
}

func TestOutput_Table(t *testing.T) {
	var buf bytes.Buffer
	out := NewOutputTo(false, &buf, &buf)

	if err := out.Table([]string{"A", "LONG"}, [][]string{{"1", "2"}}); err != nil {
		t.Fatal(err)
	}
	want := "A  LONG\n-  ----\n1  2\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}
