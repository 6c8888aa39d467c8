package repo

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/DealFlow/internal/domain"
)

// Store — операции, через которые claim loop меняет состояние сделки.
//
// Реализации: DealRepo (PostgreSQL) и MemStore.
type Store interface {
	// ClaimNext атомарно переводит самую старую сделку NEW в PROCESSING.
	// ErrNoWork, если таких сделок нет.
	ClaimNext(ctx context.Context) (*domain.Deal, error)

	// CommitResult записывает выходы, вердикт и FINALIZED одной транзакцией.
	CommitResult(ctx context.Context, dealID uuid.UUID, outputs []domain.StageOutput, verdict domain.Verdict) error

	// MarkFailed переводит сделку из PROCESSING в FAILED.
	MarkFailed(ctx context.Context, dealID uuid.UUID, reason string) error
}

// Repository — полный набор операций хранилища (CLI, продюсер, тесты).
type Repository interface {
	Store

	Insert(ctx context.Context, deal *domain.Deal) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Deal, error)
	List(ctx context.Context, filter DealFilter) ([]domain.Deal, error)
	GetVerdict(ctx context.Context, dealID uuid.UUID) (*domain.Verdict, error)
	ListStageOutputs(ctx context.Context, dealID uuid.UUID) ([]domain.StageOutput, error)
	CountByStatus(ctx context.Context) (map[domain.DealStatus]int64, error)
	ResetStuck(ctx context.Context, olderThan time.Duration) (int64, error)
}

// DealFilter — параметры фильтрации сделок.
type DealFilter struct {
	Status domain.DealStatus
	Sector string
	Limit  int
	Offset int
}

// defaultListLimit — лимит List, если не задан.
const defaultListLimit = 50

func (f DealFilter) limit() int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}

var (
	_ Repository = (*DealRepo)(nil)
	_ Repository = (*MemStore)(nil)
)
