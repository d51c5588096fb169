package services

import (
	"sync"

	"github.com/Ananth-NQI/wamirror-backend/internal/models"
	"github.com/Ananth-NQI/wamirror-backend/internal/whatsapp"
)

// sessionEntry is the in-process state of one session with a client handle.
// All fields below mu are guarded by it.
type sessionEntry struct {
	name string

	mu        sync.Mutex
	sessionID uint
	status    models.SessionStatus
	pairing   *string
	handle    whatsapp.Handle
	removed   bool

	first     chan struct{} // closed on the first pairing code or ready event
	firstOnce sync.Once
}

func newSessionEntry(name string) *sessionEntry {
	return &sessionEntry{
		name:   name,
		status: models.StatusInitializing,
		first:  make(chan struct{}),
	}
}

func (e *sessionEntry) signalFirst() {
	e.firstOnce.Do(func() { close(e.first) })
}

func (e *sessionEntry) snapshot() (models.SessionStatus, *string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status, copyString(e.pairing)
}

// liveHandle returns the handle when the session is CONNECTED or SYNCING
func (e *sessionEntry) liveHandle() (whatsapp.Handle, uint, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed || e.handle == nil || !e.status.IsLive() {
		return nil, 0, false
	}
	return e.handle, e.sessionID, true
}

// detach marks the entry removed and hands back its handle. Only the first
// caller gets the handle.
func (e *sessionEntry) detach() (whatsapp.Handle, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return nil, false
	}
	e.removed = true
	h := e.handle
	e.handle = nil
	return h, true
}

func (e *sessionEntry) isRemoved() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.removed
}

// registry maps session names to entries. reserve is the only way to add an
// entry, which makes concurrent starts of the same name collapse into one.
type registry struct {
	mu      sync.Mutex
	entries map[string]*sessionEntry
	closed  bool
}

func newRegistry() *registry {
	return &registry{entries: make(map[string]*sessionEntry)}
}

// reserve inserts a fresh entry for name unless one exists. The boolean
// reports whether the returned entry was created by this call. A closed
// registry returns nil.
func (r *registry) reserve(name string) (*sessionEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, false
	}
	if e, ok := r.entries[name]; ok {
		return e, false
	}
	e := newSessionEntry(name)
	r.entries[name] = e
	return e, true
}

func (r *registry) get(name string) (*sessionEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	return e, ok
}

// remove deletes name only while it still maps to e
func (r *registry) remove(name string, e *sessionEntry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.entries[name]; ok && cur == e {
		delete(r.entries, name)
		return true
	}
	return false
}

// current reports whether e is still the registered entry for its name
func (r *registry) current(e *sessionEntry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[e.name] == e
}

// whenAbsent runs fn while holding the registry lock, if name has no entry
func (r *registry) whenAbsent(name string, fn func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; ok {
		return false
	}
	fn()
	return true
}

// closeAll stops further reservations and returns the entries held so far
func (r *registry) closeAll() []*sessionEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	out := make([]*sessionEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
