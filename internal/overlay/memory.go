package overlay

import (
	"sync"
	"sync/atomic"

	"github.com/andresmejia3/veil/internal/types"
)

// MemorySurface is a headless Surface that only tracks which elements exist.
// Dismiss may be called from any goroutine.
type MemorySurface struct {
	mu        sync.Mutex
	nextID    uint64
	live      map[uint64]Element
	created   uint64
	destroyed uint64
	dismissed atomic.Bool
}

func NewMemorySurface() *MemorySurface {
	return &MemorySurface{live: make(map[uint64]Element)}
}

func (m *MemorySurface) Alive() bool { return !m.dismissed.Load() }

// Dismiss marks the surface gone; later reconciles become no-ops.
func (m *MemorySurface) Dismiss() { m.dismissed.Store(true) }

func (m *MemorySurface) Create(kind Kind, rect types.Rect) Element {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	el := Element{ID: m.nextID, Kind: kind, Rect: rect}
	m.live[el.ID] = el
	m.created++
	return el
}

func (m *MemorySurface) Destroy(el Element) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.live[el.ID]; !ok {
		return
	}
	delete(m.live, el.ID)
	m.destroyed++
}

// Live is the number of elements created and not yet destroyed.
func (m *MemorySurface) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// Counts returns lifetime create and destroy totals.
func (m *MemorySurface) Counts() (created, destroyed uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.created, m.destroyed
}
