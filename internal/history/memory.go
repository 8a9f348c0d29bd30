// Package history keeps a summary of every reconciliation pass.
package history

import (
	"context"
	"sync"

	"order-lifecycle-reconciler/internal/model"
)

const DefaultCapacity = 50

// Memory keeps the most recent runs in process memory.
type Memory struct {
	mu       sync.Mutex
	capacity int
	nextID   int64
	runs     []model.RunRecord
}

func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Memory{capacity: capacity}
}

func (m *Memory) Record(_ context.Context, rec model.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	rec.ID = m.nextID
	m.runs = append(m.runs, rec)
	if over := len(m.runs) - m.capacity; over > 0 {
		m.runs = append(m.runs[:0:0], m.runs[over:]...)
	}
	return nil
}

func (m *Memory) Latest(_ context.Context) (*model.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.runs) == 0 {
		return nil, nil
	}
	last := m.runs[len(m.runs)-1]
	return &last, nil
}

// Recent returns up to n runs, newest first.
func (m *Memory) Recent(_ context.Context, n int) ([]model.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n <= 0 || n > len(m.runs) {
		n = len(m.runs)
	}
	out := make([]model.RunRecord, 0, n)
	for i := len(m.runs) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.runs[i])
	}
	return out, nil
}
