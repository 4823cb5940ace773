package core

import "sync"

// Handle is a live outbound delivery path to one connected client instance.
// Implementations must be comparable (pointer types) since the registry keys on them.
type Handle interface {
	ID() string
	// Send queues payload for delivery. It must not block on the network.
	Send(payload []byte) error
	// Close moves the handle out of Connected. Safe to call more than once.
	Close(reason string)
}

// Binding pairs a handle with the user it is registered for.
type Binding struct {
	UserID int64
	Handle Handle
}

// Registry maps connected user ids to their live handles.
// An entry is either fully present with a non-empty handle set or absent.
type Registry struct {
	mu       sync.RWMutex
	byUser   map[int64]map[Handle]struct{}
	owner    map[Handle]int64
	onChange func(handles, users int)
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[int64]map[Handle]struct{}),
		owner:  make(map[Handle]int64),
	}
}

// OnChange installs a callback invoked with the new totals after every mutation.
// It runs under the registry lock and must not call back into the registry.
func (r *Registry) OnChange(fn func(handles, users int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

// Register adds h to the entry for userID. Returns false when h was already
// registered, including when it is bound to a different user.
func (r *Registry) Register(userID int64, h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, bound := r.owner[h]; bound {
		return false
	}

	set := r.byUser[userID]
	if set == nil {
		set = make(map[Handle]struct{})
		r.byUser[userID] = set
	}
	set[h] = struct{}{}
	r.owner[h] = userID
	r.changed()
	return true
}

// Unregister removes h from userID's entry and prunes the entry once empty.
// Absent handles and mismatched user ids are no-ops.
func (r *Registry) Unregister(userID int64, h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner, bound := r.owner[h]
	if !bound || owner != userID {
		return false
	}

	set := r.byUser[userID]
	delete(set, h)
	if len(set) == 0 {
		delete(r.byUser, userID)
	}
	delete(r.owner, h)
	r.changed()
	return true
}

// HandlesFor returns a snapshot of the live handles of the given users.
// Users that are not connected contribute nothing; duplicate ids are collapsed.
func (r *Registry) HandlesFor(userIDs []int64) []Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Binding
	seen := make(map[int64]struct{}, len(userIDs))
	for _, id := range userIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		for h := range r.byUser[id] {
			out = append(out, Binding{UserID: id, Handle: h})
		}
	}
	return out
}

// All returns a snapshot of every registered handle.
func (r *Registry) All() []Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Binding, 0, len(r.owner))
	for h, id := range r.owner {
		out = append(out, Binding{UserID: id, Handle: h})
	}
	return out
}

// Len returns the number of registered handles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.owner)
}

// Users returns the number of users with at least one handle.
func (r *Registry) Users() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

func (r *Registry) changed() {
	if r.onChange != nil {
		r.onChange(len(r.owner), len(r.byUser))
	}
}
