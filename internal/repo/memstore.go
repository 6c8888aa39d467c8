package repo

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/DealFlow/internal/domain"
)

// MemStore — хранилище в памяти с семантикой DealRepo.
//
// Используется в тестах и при Database.Driver = "memory".
// Все операции выполняются под одним мьютексом, поэтому claim
// и commit атомарны так же, как в PostgreSQL.
type MemStore struct {
	mu sync.Mutex

	deals    map[uuid.UUID]*domain.Deal
	outputs  map[uuid.UUID][]domain.StageOutput
	verdicts map[uuid.UUID]domain.Verdict

	now func() time.Time
}

// NewMemStore создаёт пустой MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		deals:    make(map[uuid.UUID]*domain.Deal),
		outputs:  make(map[uuid.UUID][]domain.StageOutput),
		verdicts: make(map[uuid.UUID]domain.Verdict),
		now:      time.Now,
	}
}

// Insert сохраняет новую сделку в статусе NEW.
func (m *MemStore) Insert(_ context.Context, d *domain.Deal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.deals[d.ID]; ok {
		return ErrAlreadyExists
	}

	now := m.now()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = d.CreatedAt
	d.Status = domain.DealStatusNew

	stored := *d
	m.deals[d.ID] = &stored
	return nil
}

// ClaimNext захватывает самую старую сделку NEW.
func (m *MemStore) ClaimNext(_ context.Context) (*domain.Deal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var next *domain.Deal
	for _, d := range m.deals {
		if d.Status != domain.DealStatusNew {
			continue
		}
		if next == nil || older(d, next) {
			next = d
		}
	}
	if next == nil {
		return nil, ErrNoWork
	}

	next.MarkProcessing(m.now())
	return copyDeal(next), nil
}

// CommitResult записывает результат прогона атомарно.
func (m *MemStore) CommitResult(_ context.Context, dealID uuid.UUID, outputs []domain.StageOutput, verdict domain.Verdict) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.deals[dealID]
	if !ok {
		return ErrNotFound
	}
	if _, exists := m.verdicts[dealID]; exists {
		return ErrAlreadyExists
	}
	if d.Status != domain.DealStatusProcessing {
		return ErrInvalidState
	}

	verdict.DealID = dealID
	m.outputs[dealID] = slices.Clone(outputs)
	m.verdicts[dealID] = verdict
	d.MarkFinalized(verdict.Cycles, m.now())
	return nil
}

// MarkFailed переводит сделку PROCESSING → FAILED.
func (m *MemStore) MarkFailed(_ context.Context, dealID uuid.UUID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.deals[dealID]
	if !ok {
		return ErrNotFound
	}
	if d.Status != domain.DealStatusProcessing {
		return ErrInvalidState
	}

	d.MarkFailed(reason, m.now())
	return nil
}

// ResetStuck возвращает в NEW сделки, захваченные раньше now-olderThan.
func (m *MemStore) ResetStuck(_ context.Context, olderThan time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-olderThan)

	var n int64
	for _, d := range m.deals {
		if d.Status != domain.DealStatusProcessing || d.ClaimedAt == nil || !d.ClaimedAt.Before(cutoff) {
			continue
		}
		d.Status = domain.DealStatusNew
		d.ClaimedAt = nil
		d.UpdatedAt = now
		n++
	}
	return n, nil
}

// GetByID возвращает сделку по ID.
func (m *MemStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Deal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.deals[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyDeal(d), nil
}

// List возвращает сделки с фильтрацией, новые первыми.
func (m *MemStore) List(_ context.Context, filter DealFilter) ([]domain.Deal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deals []domain.Deal
	for _, d := range m.deals {
		if filter.Status != "" && d.Status != filter.Status {
			continue
		}
		if filter.Sector != "" && d.Sector != filter.Sector {
			continue
		}
		deals = append(deals, *copyDeal(d))
	}

	slices.SortFunc(deals, func(a, b domain.Deal) int {
		if older(&a, &b) {
			return 1
		}
		if older(&b, &a) {
			return -1
		}
		return 0
	})

	if filter.Offset >= len(deals) {
		return nil, nil
	}
	deals = deals[filter.Offset:]
	if limit := filter.limit(); len(deals) > limit {
		deals = deals[:limit]
	}
	return deals, nil
}

// GetVerdict возвращает вердикт сделки.
func (m *MemStore) GetVerdict(_ context.Context, dealID uuid.UUID) (*domain.Verdict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.verdicts[dealID]
	if !ok {
		return nil, ErrNotFound
	}
	return &v, nil
}

// ListStageOutputs возвращает выходы стадий сделки в порядке выполнения.
func (m *MemStore) ListStageOutputs(_ context.Context, dealID uuid.UUID) ([]domain.StageOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return slices.Clone(m.outputs[dealID]), nil
}

// CountByStatus возвращает число сделок в каждом статусе.
func (m *MemStore) CountByStatus(_ context.Context) (map[domain.DealStatus]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[domain.DealStatus]int64)
	for _, d := range m.deals {
		counts[d.Status]++
	}
	return counts, nil
}

// older — порядок claim: created_at, затем id.
func older(a, b *domain.Deal) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID.String() < b.ID.String()
}

func copyDeal(d *domain.Deal) *domain.Deal {
	c := *d
	if d.ClaimedAt != nil {
		t := *d.ClaimedAt
		c.ClaimedAt = &t
	}
	return &c
}
