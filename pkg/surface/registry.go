package surface

import (
	"slices"
)

// ID identifies a surface. It is assigned by the host and only used as a lookup key.
type ID uint32

// State is the interaction state of a single surface.
type State struct {
	Counter int
	Text    string
}

// Registry maps surfaces to their State.
//
// Mutations targeting a surface that has not been opened create the default state first, for
// every kind of mutation. Input that arrives before the host reports the surface is therefore
// kept rather than dropped.
//
// Registry is not safe for concurrent use; it belongs to the goroutine running the session loop.
type Registry struct {
	seed   string
	states map[ID]*State
}

// NewRegistry creates an empty registry. Newly opened surfaces start with their text set to seed.
func NewRegistry(seed string) *Registry {
	return &Registry{
		seed:   seed,
		states: make(map[ID]*State),
	}
}

// Open inserts the default state for id if absent and reports whether it did.
// Opening an already open surface leaves its state untouched.
func (r *Registry) Open(id ID) bool {
	if _, ok := r.states[id]; ok {
		return false
	}

	r.states[id] = r.defaultState()
	return true
}

// Get returns a copy of the state of id. ok is false when id is unknown.
func (r *Registry) Get(id ID) (state State, ok bool) {
	s, ok := r.states[id]
	if !ok {
		return State{}, false
	}

	return *s, true
}

// Mutate applies update to the state of id, creating the default state first if id is unknown.
// update works on a scratch copy which replaces the stored state once update returns, so a
// panicking updater leaves the stored state as it was.
func (r *Registry) Mutate(id ID, update func(s *State)) State {
	current, ok := r.states[id]
	if !ok {
		current = r.defaultState()
	}

	next := *current
	update(&next)
	r.states[id] = &next

	return next
}

// Close removes id. Get reports id as absent afterward. Close reports whether id was present.
func (r *Registry) Close(id ID) bool {
	if _, ok := r.states[id]; !ok {
		return false
	}

	delete(r.states, id)
	return true
}

// Len returns the number of surfaces with state.
func (r *Registry) Len() int {
	return len(r.states)
}

// IDs returns the known surfaces in ascending order.
func (r *Registry) IDs() []ID {
	ids := make([]ID, 0, len(r.states))
	for id := range r.states {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	return ids
}

func (r *Registry) defaultState() *State {
	return &State{Text: r.seed}
}
