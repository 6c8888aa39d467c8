package scheduler

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/DealFlow/internal/domain"
	"github.com/shaiso/DealFlow/internal/repo"
	"github.com/shaiso/DealFlow/internal/telemetry"
)

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu  sync.Mutex
	ids []uuid.UUID
	err error
}

func (n *recordingNotifier) PublishDealNew(_ context.Context, id uuid.UUID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ids = append(n.ids, id)
	return n.err
}

func newProducer(t *testing.T, cfg Config) *Producer {
	t.Helper()
	cfg.Logger = telemetry.Discard()
	cfg.Now = func() time.Time { return testNow }
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("new producer: %v", err)
	}
	return p
}

// --- Generate ---

func TestGenerate_Deterministic(t *testing.T) {
	a := Generate(NewRand(42), testNow)
	b := Generate(NewRand(42), testNow)

	if a.Sector != b.Sector || a.Revenue != b.Revenue || a.FreeCashFlow != b.FreeCashFlow {
		t.Error("same seed must produce the same deal")
	}
}

func TestGenerate_Ranges(t *testing.T) {
	rng := NewRand(7)

	for range 500 {
		d := Generate(rng, testNow)

		if !slices.Contains(Sectors, d.Sector) {
			t.Fatalf("unknown sector %q", d.Sector)
		}
		if d.Status != domain.DealStatusNew {
			t.Fatalf("expected NEW, got %s", d.Status)
		}
		if d.Revenue < 1_000_000 || d.Revenue > 80_000_000 {
			t.Errorf("revenue out of range: %v", d.Revenue)
		}
		if d.EBITDAMargin >= d.GrossMargin {
			t.Errorf("EBITDA margin %v must be below gross margin %v", d.EBITDAMargin, d.GrossMargin)
		}
		if d.RevenueCAGR3Y < -0.20 || d.RevenueCAGR3Y > 0.60 {
			t.Errorf("CAGR out of range: %v", d.RevenueCAGR3Y)
		}
		if d.EmployeeCount < 5 {
			t.Errorf("employee count below 5: %d", d.EmployeeCount)
		}
		if d.FoundingYear < 1985 || d.FoundingYear >= testNow.Year() {
			t.Errorf("founding year out of range: %d", d.FoundingYear)
		}
	}
}

// --- Schedule ---

func TestValidateSchedule(t *testing.T) {
	for _, spec := range []string{"@every 6s", "*/5 * * * *", "@hourly"} {
		if err := ValidateSchedule(spec); err != nil {
			t.Errorf("%q: unexpected error %v", spec, err)
		}
	}
	if err := ValidateSchedule("every six seconds"); err == nil {
		t.Error("expected error for invalid schedule")
	}
}

func TestNextRun_Every(t *testing.T) {
	next, err := NextRun("@every 6s", testNow)
	if err != nil {
		t.Fatal(err)
	}
	if got := next.Sub(testNow); got != 6*time.Second {
		t.Errorf("expected 6s, got %v", got)
	}
}

func TestNew_InvalidSchedule(t *testing.T) {
	_, err := New(Config{Store: repo.NewMemStore(), Schedule: "nope"})
	if err == nil {
		t.Error("expected error for invalid schedule")
	}
}

// --- Tick ---

func TestTick_InsertsAndNotifies(t *testing.T) {
	ctx := context.Background()
	store := repo.NewMemStore()
	notifier := &recordingNotifier{}

	p := newProducer(t, Config{Store: store, Notifier: notifier, BatchSize: 3, Seed: 1})

	n, err := p.Tick(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 deals, got %d", n)
	}

	counts, _ := store.CountByStatus(ctx)
	if counts[domain.DealStatusNew] != 3 {
		t.Errorf("expected 3 NEW deals, got %v", counts)
	}
	if len(notifier.ids) != 3 {
		t.Errorf("expected 3 wake-ups, got %d", len(notifier.ids))
	}
}

func TestTick_NotifyFailureIgnored(t *testing.T) {
	store := repo.NewMemStore()
	notifier := &recordingNotifier{err: errors.New("bus down")}

	p := newProducer(t, Config{Store: store, Notifier: notifier})

	n, err := p.Tick(context.Background())
	if err != nil || n != 1 {
		t.Errorf("expected (1, nil), got (%d, %v)", n, err)
	}
}

func TestTick_NotLeader(t *testing.T) {
	store := repo.NewMemStore()
	p := newProducer(t, Config{
		Store:  store,
		Leader: func(context.Context) (bool, error) { return false, nil },
	})

	n, err := p.Tick(context.Background())
	if err != nil || n != 0 {
		t.Errorf("expected (0, nil), got (%d, %v)", n, err)
	}
}

func TestTick_LeaderError(t *testing.T) {
	p := newProducer(t, Config{
		Store:  repo.NewMemStore(),
		Leader: func(context.Context) (bool, error) { return false, errors.New("db down") },
	})

	if _, err := p.Tick(context.Background()); err == nil {
		t.Error("expected leader check error")
	}
}

func TestStartStop(t *testing.T) {
	p := newProducer(t, Config{Store: repo.NewMemStore(), Schedule: "@every 1h"})

	if err := p.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	p.Stop()
}
