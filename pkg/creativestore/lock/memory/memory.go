// Package memory provides an in-process lock manager for tests and
// single-node deployments.
package memory

import (
	"context"
	"sync"

	"github.com/creativestore/creative-store/pkg/creativestore"
)

// Manager implements creativestore.LockManager over a process-local map.
type Manager struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// New creates an empty in-process lock manager.
func New() *Manager {
	return &Manager{held: make(map[string]struct{})}
}

var _ creativestore.LockManager = (*Manager)(nil)

func (m *Manager) Acquire(ctx context.Context, key string) (creativestore.Lock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.held[key]; taken {
		return nil, creativestore.ErrLockAlreadyExists
	}
	m.held[key] = struct{}{}
	return &lock{manager: m, key: key}, nil
}

func (m *Manager) IsLocked(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, taken := m.held[key]
	return taken, nil
}

type lock struct {
	manager *Manager
	key     string
	once    sync.Once
}

func (l *lock) Release(ctx context.Context) {
	l.once.Do(func() {
		l.manager.mu.Lock()
		defer l.manager.mu.Unlock()
		delete(l.manager.held, l.key)
	})
}
