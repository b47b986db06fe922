package breaker

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// StateChangeFunc is notified after a breaker changes state. Listeners are
// called on their own goroutine, outside any breaker lock.
type StateChangeFunc func(name string, from, to CircuitState)

// Manager is a named registry of circuit breakers. It exclusively owns the
// breakers it creates. The manager lock guards only the name map and is never
// held while a breaker's own lock is taken.
type Manager struct {
	mu        sync.RWMutex
	breakers  map[string]*CircuitBreaker
	listeners []StateChangeFunc
	logger    *zap.Logger
}

// NewManager creates an empty registry.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		breakers: make(map[string]*CircuitBreaker),
		logger:   logger,
	}
}

// GetOrCreate returns the breaker registered under name, creating it with cfg
// on first use. The first registration wins: cfg is ignored when the name
// already exists. Concurrent first registrations yield exactly one instance.
func (m *Manager) GetOrCreate(name string, cfg Config) (*CircuitBreaker, error) {
	m.mu.RLock()
	if cb, ok := m.breakers[name]; ok {
		m.mu.RUnlock()
		return cb, nil
	}
	m.mu.RUnlock()

	cb, err := New(name, cfg, m.logger)
	if err != nil {
		return nil, err
	}
	cb.onChange = m.notify

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring the write lock: another caller may have
	// registered the name while we were constructing.
	if existing, ok := m.breakers[name]; ok {
		return existing, nil
	}
	m.breakers[name] = cb

	m.logger.Info("registered circuit breaker",
		zap.String("breaker", name),
		zap.String("type", cfg.Type.String()),
		zap.Int("failure_threshold", cfg.FailureThreshold),
		zap.Duration("open_duration", cfg.OpenDuration))

	return cb, nil
}

// Get returns the breaker registered under name, or a *NotFoundError.
func (m *Manager) Get(name string) (*CircuitBreaker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cb, ok := m.breakers[name]
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	return cb, nil
}

// Reset forces the named breaker back to closed with zeroed counters.
func (m *Manager) Reset(name string) error {
	cb, err := m.Get(name)
	if err != nil {
		return err
	}
	cb.Reset()
	return nil
}

// ResetAll resets every registered breaker.
func (m *Manager) ResetAll() {
	for _, cb := range m.all() {
		cb.Reset()
	}
	m.logger.Info("reset all circuit breakers")
}

// StatusSnapshot returns a read-only view of every breaker's state.
func (m *Manager) StatusSnapshot() map[string]CircuitState {
	snapshot := make(map[string]CircuitState)
	for _, cb := range m.all() {
		snapshot[cb.Name()] = cb.State()
	}
	return snapshot
}

// Names returns the registered breaker names in sorted order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.breakers))
	for name := range m.breakers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OnStateChange registers a listener for state transitions of any breaker
// owned by this manager.
func (m *Manager) OnStateChange(fn StateChangeFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// all copies the breaker list so callers iterate without holding the map lock.
func (m *Manager) all() []*CircuitBreaker {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]*CircuitBreaker, 0, len(m.breakers))
	for _, cb := range m.breakers {
		list = append(list, cb)
	}
	return list
}

func (m *Manager) notify(name string, from, to CircuitState) {
	m.mu.RLock()
	listeners := make([]StateChangeFunc, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.RUnlock()

	for _, fn := range listeners {
		fn(name, from, to)
	}
}
