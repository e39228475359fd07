package serialport

import (
	"errors"
	"sort"
	"sync"

	"github.com/arloliu/go-serialhub/logger"
)

var (
	// ErrPortSurrendered is returned by Register while a line is surrendered to a bridge.
	ErrPortSurrendered = errors.New("serialport: port is surrendered")
	// ErrPortOwned is returned by Register when another owner holds the line.
	ErrPortOwned = errors.New("serialport: port is owned by another worker")
)

type ownerEntry struct {
	owner string
	port  Port
}

// Registry is the process-wide table of line ownership.
//
// Every query and mutation takes the same lock, so Surrender observes and
// changes owned and surrendered state atomically. A key is never in both
// tables at once.
type Registry struct {
	mu          sync.Mutex
	owned       map[string]ownerEntry
	surrendered map[string]struct{}
	logger      logger.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(l logger.Logger) *Registry {
	if l == nil {
		l = logger.GetLogger()
	}

	return &Registry{
		owned:       make(map[string]ownerEntry),
		surrendered: make(map[string]struct{}),
		logger:      l,
	}
}

// Register records owner as the holder of the open line p.
//
// Registering the same port handle again under the same owner is a no-op.
func (r *Registry) Register(id string, owner string, p Port) error {
	key := NormalizeID(id)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.surrendered[key]; ok {
		return ErrPortSurrendered
	}

	if cur, ok := r.owned[key]; ok && (cur.owner != owner || cur.port != p) {
		return ErrPortOwned
	}

	r.owned[key] = ownerEntry{owner: owner, port: p}
	r.logger.Debug("port registered", "port", key, "owner", owner)

	return nil
}

// Unregister removes the entry for id, but only when it still refers to the
// handle p. A worker whose line was surrendered therefore cannot remove the
// bookkeeping of whoever holds the line now.
func (r *Registry) Unregister(id string, p Port) bool {
	key := NormalizeID(id)

	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.owned[key]
	if !ok || cur.port != p {
		return false
	}

	delete(r.owned, key)
	r.logger.Debug("port unregistered", "port", key, "owner", cur.owner)

	return true
}

// Surrender takes the line away from its owning worker. It returns the open
// handle, which the caller now owns and must close, and true. Nothing
// changes and false is returned when the line is not owned.
func (r *Registry) Surrender(id string) (Port, bool) {
	key := NormalizeID(id)

	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.owned[key]
	if !ok {
		return nil, false
	}

	delete(r.owned, key)
	r.surrendered[key] = struct{}{}
	r.logger.Info("port surrendered", "port", key, "owner", cur.owner)

	return cur.port, true
}

// Restore ends a surrender so the owning worker may reopen the line.
// It reports whether the line was surrendered.
func (r *Registry) Restore(id string) bool {
	key := NormalizeID(id)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.surrendered[key]; !ok {
		return false
	}

	delete(r.surrendered, key)
	r.logger.Info("port restored", "port", key)

	return true
}

// IsSurrendered reports whether id is currently surrendered.
func (r *Registry) IsSurrendered(id string) bool {
	key := NormalizeID(id)

	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.surrendered[key]

	return ok
}

// Owner returns the owner recorded for id.
func (r *Registry) Owner(id string) (string, bool) {
	key := NormalizeID(id)

	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.owned[key]

	return cur.owner, ok
}

// Snapshot is a point-in-time copy of the registry.
type Snapshot struct {
	Owned       map[string]string
	Surrendered []string
}

// Snapshot returns a copy of the owned and surrendered tables.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Snapshot{
		Owned:       make(map[string]string, len(r.owned)),
		Surrendered: make([]string, 0, len(r.surrendered)),
	}
	for k, v := range r.owned {
		s.Owned[k] = v.owner
	}
	for k := range r.surrendered {
		s.Surrendered = append(s.Surrendered, k)
	}
	sort.Strings(s.Surrendered)

	return s
}
