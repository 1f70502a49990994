package nasr

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// refreshInterval is how often the manager re-checks for a new cycle.
const refreshInterval = 24 * time.Hour

// Status summarizes the loaded cycle for the status endpoint.
type Status struct {
	Cycle    string         `json:"cycle"`
	Next     string         `json:"next"`
	LoadedAt time.Time      `json:"loadedAt"`
	Counts   map[string]int `json:"counts"`
	LastErr  string         `json:"lastError,omitempty"`
}

// Manager owns the current index and swaps in a new one when the cycle
// rolls over. Readers get the index by pointer and never see a partially
// built one.
type Manager struct {
	dir    string
	client *http.Client
	log    *slog.Logger

	mu      sync.RWMutex
	idx     *Index
	lastErr error

	// onSwap is invoked after each successful load, so dependent caches
	// (the route resolver's, notably) can invalidate.
	onSwap []func(*Index)
}

// NewManager returns a manager caching extracted cycles under dir.
func NewManager(dir string, client *http.Client, log *slog.Logger) *Manager {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Manager{dir: dir, client: client, log: log}
}

// OnSwap registers a callback run after each successful index swap.
// Register before Run; registration is not synchronized against it.
func (m *Manager) OnSwap(fn func(*Index)) {
	m.onSwap = append(m.onSwap, fn)
}

// Index returns the current index, or nil before the first load completes.
func (m *Manager) Index() *Index {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idx
}

// Status reports the loaded cycle and last load error.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := Status{Next: NextCycle(time.Now()).Format("2006-01-02")}
	if m.idx != nil {
		st.Cycle = m.idx.Cycle.Format("2006-01-02")
		st.LoadedAt = m.idx.LoadedAt
		st.Counts = m.idx.Counts()
	}
	if m.lastErr != nil {
		st.LastErr = m.lastErr.Error()
	}
	return st
}

// Run loads the current cycle, then refreshes daily until the context is
// cancelled. The first load is synchronous so callers can depend on an
// index existing once Run has started the ticker; a failed first load is
// only logged, the feeds work without aeronautical data.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.Refresh(ctx); err != nil {
		m.log.Error("nasr: initial load failed", "error", err)
	}

	t := time.NewTicker(refreshInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if err := m.Refresh(ctx); err != nil {
				m.log.Error("nasr: refresh failed", "error", err)
			}
		}
	}
}

// Refresh loads the current cycle if it is not the one already indexed.
func (m *Manager) Refresh(ctx context.Context) error {
	effective := CurrentCycle(time.Now())

	m.mu.RLock()
	cur := m.idx
	m.mu.RUnlock()
	if cur != nil && cur.Cycle.Equal(effective) {
		return nil
	}

	if !cycleCached(m.dir, effective) {
		m.log.Info("nasr: fetching cycle", "cycle", cycleDirName(effective))
		if err := fetchCycle(ctx, m.client, m.dir, effective); err != nil {
			m.setErr(err)
			return err
		}
	}

	idx, err := Load(m.dir, effective)
	if err != nil {
		m.setErr(err)
		return err
	}

	m.mu.Lock()
	m.idx = idx
	m.lastErr = nil
	m.mu.Unlock()

	counts := idx.Counts()
	m.log.Info("nasr: cycle loaded",
		"cycle", cycleDirName(effective),
		"navaids", counts["navaids"],
		"fixes", counts["fixes"],
		"airports", counts["airports"],
		"airways", counts["airways"],
		"procedures", counts["procedures"],
		"centerlines", counts["centerlines"])

	for _, fn := range m.onSwap {
		fn(idx)
	}
	return nil
}

func (m *Manager) setErr(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}
