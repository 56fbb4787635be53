// Package pins tracks sticky markers on memory entries. Pin state is owned
// here, outside the storage backends: a backend consults the tracker when
// listing entries and notifies it when paths are removed or renamed.
package pins

import "sync"

// Tracker is the collaborator interface storage backends consult and
// notify. Implementations must tolerate paths they have never seen.
type Tracker interface {
	// IsPinned reports whether path currently carries a pin.
	IsPinned(path string) bool

	// Pin marks path as pinned.
	Pin(path string)

	// Unpin clears any pin on path.
	Unpin(path string)

	// OnRename moves any pin from oldPath to newPath.
	OnRename(oldPath, newPath string)

	// OnRemove drops any pin on path.
	OnRemove(path string)
}

// Memory is an in-process Tracker.
type Memory struct {
	pinned map[string]bool
	mu     sync.RWMutex
}

// NewMemory creates an empty in-process tracker.
func NewMemory() *Memory {
	return &Memory{
		pinned: make(map[string]bool),
	}
}

// IsPinned reports whether path is pinned.
func (m *Memory) IsPinned(path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pinned[path]
}

// Pin marks path as pinned.
func (m *Memory) Pin(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pinned[path] = true
}

// Unpin clears any pin on path.
func (m *Memory) Unpin(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pinned, path)
}

// OnRename carries a pin across a rename.
func (m *Memory) OnRename(oldPath, newPath string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pinned[oldPath] {
		delete(m.pinned, oldPath)
		m.pinned[newPath] = true
	}
}

// OnRemove drops any pin on a removed path.
func (m *Memory) OnRemove(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pinned, path)
}
