package steps

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shaiso/DealFlow/internal/domain"
)

// Registry — реестр стадий.
//
// Позволяет регистрировать и получать реализации Stage по имени.
// Потокобезопасен.
type Registry struct {
	mu     sync.RWMutex
	stages map[domain.StageName]Stage
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		stages: make(map[domain.StageName]Stage),
	}
}

// DefaultRegistry создаёт реестр со стадиями scout, contrarian и judge.
func DefaultRegistry(opts Options) *Registry {
	r := NewRegistry()

	r.Register(NewScoutStage(opts))
	r.Register(NewContrarianStage(opts))
	r.Register(NewJudgeStage(opts))

	return r
}

// Register регистрирует стадию в реестре.
// Если стадия с таким именем уже существует, она будет перезаписана.
func (r *Registry) Register(stage Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages[stage.Name()] = stage
}

// Get возвращает стадию по имени.
// Возвращает ErrStageNotFound, если стадия не найдена.
func (r *Registry) Get(name domain.StageName) (Stage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stage, exists := r.stages[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrStageNotFound, name)
	}

	return stage, nil
}

// Sequence возвращает стадии одного цикла в порядке выполнения.
// Ошибка, если какой-то из стадий нет в реестре.
func (r *Registry) Sequence() ([]Stage, error) {
	seq := make([]Stage, 0, len(domain.Stages))
	for _, name := range domain.Stages {
		stage, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		seq = append(seq, stage)
	}
	return seq, nil
}

// Has проверяет, зарегистрирована ли стадия.
func (r *Registry) Has(name domain.StageName) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.stages[name]
	return exists
}

// Names возвращает отсортированный список имён зарегистрированных стадий.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.stages))
	for n := range r.stages {
		names = append(names, string(n))
	}
	sort.Strings(names)
	return names
}

// Count возвращает количество зарегистрированных стадий.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stages)
}
