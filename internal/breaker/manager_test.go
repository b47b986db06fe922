package breaker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestManagerGetOrCreateIdempotent(t *testing.T) {
	m := NewManager(zap.NewNop())

	first, err := m.GetOrCreate("api", testConfig())
	require.NoError(t, err)

	// The second config differs; the first registration wins.
	other := testConfig()
	other.FailureThreshold = 99
	second, err := m.GetOrCreate("api", other)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 3, second.Config().FailureThreshold)
}

func TestManagerGetOrCreateInvalidConfig(t *testing.T) {
	m := NewManager(zap.NewNop())

	cfg := testConfig()
	cfg.FailureThreshold = 0
	_, err := m.GetOrCreate("bad", cfg)
	assert.Error(t, err)

	// Nothing was registered.
	_, err = m.Get("bad")
	assert.True(t, IsNotFound(err))
}

func TestManagerConcurrentGetOrCreate(t *testing.T) {
	m := NewManager(zap.NewNop())

	const workers = 32
	results := make([]*CircuitBreaker, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cb, err := m.GetOrCreate("shared", testConfig())
			assert.NoError(t, err)
			results[i] = cb
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		assert.Same(t, results[0], results[i])
	}
	assert.Equal(t, []string{"shared"}, m.Names())
}

func TestManagerGetNotFound(t *testing.T) {
	m := NewManager(zap.NewNop())

	_, err := m.Get("missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	var nfe *NotFoundError
	require.ErrorAs(t, err, &nfe)
	assert.Equal(t, "missing", nfe.Name)

	assert.Error(t, m.Reset("missing"))
}

func TestManagerResetAndSnapshot(t *testing.T) {
	m := NewManager(zap.NewNop())

	cb, err := m.GetOrCreate("api", testConfig())
	require.NoError(t, err)
	_, err = m.GetOrCreate("db", testConfig())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}

	snapshot := m.StatusSnapshot()
	assert.Equal(t, StateOpen, snapshot["api"])
	assert.Equal(t, StateClosed, snapshot["db"])

	require.NoError(t, m.Reset("api"))
	assert.Equal(t, StateClosed, cb.State())

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	m.ResetAll()
	for name, state := range m.StatusSnapshot() {
		assert.Equal(t, StateClosed, state, name)
	}
}

func TestManagerNamesSorted(t *testing.T) {
	m := NewManager(zap.NewNop())

	for _, name := range []string{"zeta", "alpha", "mid"} {
		_, err := m.GetOrCreate(name, testConfig())
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, m.Names())
}

func TestManagerStateChangeListener(t *testing.T) {
	m := NewManager(zap.NewNop())

	type event struct {
		name     string
		from, to CircuitState
	}
	events := make(chan event, 4)
	m.OnStateChange(func(name string, from, to CircuitState) {
		events <- event{name, from, to}
	})

	cb, err := m.GetOrCreate("api", testConfig())
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}

	// Listeners run asynchronously off the breaker lock.
	select {
	case e := <-events:
		assert.Equal(t, "api", e.name)
		assert.Equal(t, StateClosed, e.from)
		assert.Equal(t, StateOpen, e.to)
	case <-time.After(time.Second):
		t.Fatal("state change listener was not notified")
	}
}
