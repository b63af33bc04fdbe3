package abload

import (
	"context"
	"fmt"
	"sync"
)

// State is the load state of one bundle node.
type State uint8

const (
	StateIdle State = iota
	StateLoading
	StateLoaded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// IsTerminal reports whether the state ends a load attempt.
func (s State) IsTerminal() bool {
	return s == StateLoaded || s == StateFailed
}

func isAllowedTransition(from, to State) bool {
	switch from {
	case StateIdle, StateFailed:
		// Failed is retryable; resolution failures fail without fetching.
		return to == StateLoading || to == StateFailed
	case StateLoading:
		return to == StateLoaded || to == StateFailed
	default:
		return false
	}
}

// node tracks one bundle. All fields are guarded by mu.
// handle is non-nil iff state == StateLoaded.
type node struct {
	name string

	mu        sync.Mutex
	state     State
	handle    Handle
	err       error
	resolving bool
	detached  bool
	callbacks []*Callback

	// declared is the direct dependency list used for progress weighting.
	declared []string

	progress *Progress
	cancel   context.CancelFunc
}

func newNode(name string) *node {
	return &node{name: name}
}

func (n *node) transitionLocked(to State) error {
	if !isAllowedTransition(n.state, to) {
		return fmt.Errorf("bundle %q: disallowed transition %s -> %s", n.name, n.state, to)
	}
	n.state = to
	return nil
}

// busyLocked reports whether a resolution or fetch is already in flight.
func (n *node) busyLocked() bool {
	return n.resolving || n.state == StateLoading
}

func (n *node) addCallbackLocked(cb *Callback) {
	if cb == nil {
		return
	}
	for _, existing := range n.callbacks {
		if existing == cb {
			return
		}
	}
	n.callbacks = append(n.callbacks, cb)
}

func (n *node) takeCallbacksLocked() []*Callback {
	cbs := n.callbacks
	n.callbacks = nil
	return cbs
}

func (n *node) setDeclared(deps []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.declared = append([]string(nil), deps...)
}

func (n *node) snapshot() (State, Handle, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state, n.handle, n.err
}

// detach marks the node as removed from the registry, cancels an in-flight
// fetch and returns the handle to release, if any.
func (n *node) detach() Handle {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.detached = true
	if n.cancel != nil {
		n.cancel()
		n.cancel = nil
	}
	h := n.handle
	n.handle = nil
	if n.state == StateLoaded {
		n.state = StateIdle
	}
	return h
}

func notify(name string, cbs []*Callback, h Handle, err error) {
	for _, cb := range cbs {
		cb.invoke(name, h, err)
	}
}
