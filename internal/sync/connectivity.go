package sync

import "sync"

// ConnectivityObserver is the injected connectivity capability. The engine
// subscribes once at construction; subscribers are notified on every
// transition between online and offline.
type ConnectivityObserver interface {
	// Online returns the current connectivity state.
	Online() bool

	// Subscribe registers a callback invoked on every state transition.
	// The returned function removes the subscription.
	Subscribe(fn func(online bool)) (unsubscribe func())
}

// ManualConnectivity is a ConnectivityObserver driven by explicit SetOnline
// calls. The desktop host feeds it the shell's connectivity events; tests
// fire transitions synthetically.
type ManualConnectivity struct {
	mu     sync.Mutex
	online bool
	subs   map[int]func(bool)
	nextID int
}

// NewManualConnectivity creates a ManualConnectivity in the given state.
func NewManualConnectivity(online bool) *ManualConnectivity {
	return &ManualConnectivity{
		online: online,
		subs:   make(map[int]func(bool)),
	}
}

// Online implements ConnectivityObserver.
func (c *ManualConnectivity) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

// Subscribe implements ConnectivityObserver.
func (c *ManualConnectivity) Subscribe(fn func(online bool)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.subs[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// SetOnline updates the state and notifies subscribers on transitions.
func (c *ManualConnectivity) SetOnline(online bool) {
	c.mu.Lock()
	if c.online == online {
		c.mu.Unlock()
		return
	}
	c.online = online
	subs := make([]func(bool), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	// Notify outside the lock so callbacks can call back into the observer.
	for _, fn := range subs {
		fn(online)
	}
}

// alwaysOnline is the default observer for hosts without a connectivity
// signal.
type alwaysOnline struct{}

func (alwaysOnline) Online() bool                      { return true }
func (alwaysOnline) Subscribe(func(online bool)) func() { return func() {} }
