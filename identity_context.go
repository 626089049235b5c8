package buildtracker

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// IdentityState is what an IdentityContext exposes to its subscribers
type IdentityState struct {
	Identity  Identity `json:"identity"`
	IsLoading bool     `json:"is_loading"`
}

// IdentityContext holds the identity of a long lived interactive scope, such
// as a CLI process or a client session. It is an explicit value: create one
// per scope and Close it when the scope ends.
type IdentityContext struct {
	mu          sync.RWMutex
	resolver    Resolver
	identity    Identity
	resolved    bool
	closed      bool
	generation  uint64
	nextID      int
	subs        map[int]func(IdentityState)
	unsubscribe func()

	minimalEvents bool
	eventTimeout  time.Duration
	logger        Logger
}

// IdentityContextOption configures an IdentityContext
type IdentityContextOption func(*IdentityContext)

// WithIdentityContextLogger sets the logger
func WithIdentityContextLogger(l Logger) IdentityContextOption {
	return func(c *IdentityContext) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMinimalEventResolution makes session events update the identity from
// the event session alone, without a profile lookup.
func WithMinimalEventResolution() IdentityContextOption {
	return func(c *IdentityContext) {
		c.minimalEvents = true
	}
}

// WithEventTimeout bounds the resolution triggered by a session event
func WithEventTimeout(d time.Duration) IdentityContextOption {
	return func(c *IdentityContext) {
		if d > 0 {
			c.eventTimeout = d
		}
	}
}

// NewIdentityContext creates a context. initial is the identity resolved by
// whoever created the scope; nil means none is known yet and the context
// reports IsLoading until the first Refresh or session event completes.
// When notifier is not nil the context subscribes to it until Close.
func NewIdentityContext(resolver Resolver, notifier SessionNotifier, initial *Identity, opts ...IdentityContextOption) *IdentityContext {
	c := &IdentityContext{
		resolver:     resolver,
		identity:     Unauthenticated(),
		subs:         map[int]func(IdentityState){},
		eventTimeout: 10 * time.Second,
		logger:       defLogger{},
	}

	if initial != nil {
		c.identity = *initial
		c.resolved = true
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	if notifier != nil {
		c.unsubscribe = notifier.OnSessionChange(c.handleSessionEvent)
	}

	return c
}

// Snapshot returns the current state
func (c *IdentityContext) Snapshot() IdentityState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stateLocked()
}

// Identity returns the current identity
func (c *IdentityContext) Identity() Identity {
	return c.Snapshot().Identity
}

// IsLoading is true only until the first resolution completes
func (c *IdentityContext) IsLoading() bool {
	return c.Snapshot().IsLoading
}

// Refresh resolves the identity again and notifies subscribers. A cancelled
// context discards the result, so does any change applied while the
// resolution was in flight: the latest change wins.
func (c *IdentityContext) Refresh(ctx context.Context) error {
	generation := c.begin()
	identity := c.resolver.ResolveIdentity(ctx)
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.commit(identity, generation) {
		c.logger.Debug("discarding superseded identity resolution", "generation", generation)
	}
	return nil
}

// Subscribe registers fn for state changes
func (c *IdentityContext) Subscribe(fn func(IdentityState)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return func() {}
	}
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// Close unsubscribes from session notifications and drops all subscribers
func (c *IdentityContext) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.subs = map[int]func(IdentityState){}
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (c *IdentityContext) handleSessionEvent(event SessionEvent) {
	c.logger.Debug("session change", "type", string(event.Type))

	switch {
	case event.Type == SessionSignedOut:
		c.set(Unauthenticated())
	case c.minimalEvents && event.Session != nil:
		c.set(c.minimalIdentity(event.Session))
	default:
		ctx, cancel := context.WithTimeout(context.Background(), c.eventTimeout)
		defer cancel()
		if err := c.Refresh(ctx); err != nil {
			c.logger.Warn("identity refresh after session change failed", "error", err)
		}
	}
}

// minimalIdentity keeps the current display name when the event is about
// the same user, the event carries no profile data.
func (c *IdentityContext) minimalIdentity(session *Session) Identity {
	identity := NewIdentity(session, nil)

	c.mu.RLock()
	current := c.identity
	c.mu.RUnlock()

	if current.IsAuthenticated && current.UserID() == identity.UserID() && current.DisplayName != nil {
		identity.DisplayName = current.DisplayName
	}
	return identity
}

// begin starts a new change and returns its generation
func (c *IdentityContext) begin() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	return c.generation
}

func (c *IdentityContext) set(identity Identity) {
	c.commit(identity, c.begin())
}

// commit applies identity only if no other change started after generation
func (c *IdentityContext) commit(identity Identity, generation uint64) bool {
	c.mu.Lock()
	if c.closed || c.generation != generation {
		c.mu.Unlock()
		return false
	}
	c.identity = identity
	c.resolved = true
	state := c.stateLocked()
	subs := make([]func(IdentityState), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		c.notify(fn, state)
	}
	return true
}

func (c *IdentityContext) notify(fn func(IdentityState), state IdentityState) {
	defer func() {
		if rec := recover(); rec != nil {
			c.logger.Error("identity subscriber panic", "panic", fmt.Sprint(rec))
		}
	}()
	fn(state)
}

func (c *IdentityContext) stateLocked() IdentityState {
	return IdentityState{
		Identity:  c.identity,
		IsLoading: !c.resolved,
	}
}
