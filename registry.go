package pushsub

// IntentPolicy decides when a name leaves the desired subscriptions.
type IntentPolicy uint8

const (
	// IntentPerCall drops the server subscription on every RemoveServerSubscription,
	// even when other handlers for the same name remain registered. Those handlers
	// keep receiving whatever the server still pushes until the next reconnect,
	// after which the name is no longer replayed.
	IntentPerCall IntentPolicy = iota
	// IntentRefCounted keeps the server subscription until the last handler for
	// the name is removed.
	IntentRefCounted
)

// handlerEntry is one registration. seq is unique per registration, so a
// replaced or removed-then-readded handler never matches an older snapshot.
type handlerEntry struct {
	id  HandlerID
	seq uint64
	fn  Handler
}

// registry holds subscription intent and the local handlers per name.
// It is not safe for concurrent use; ServerClient guards it with its mutex.
type registry struct {
	policy IntentPolicy
	// desired maps a name to the exact frame that re-establishes it.
	desired map[SubscriptionName][]byte
	// order keeps desired in insertion order so replays are deterministic.
	order    []SubscriptionName
	handlers map[SubscriptionName][]handlerEntry
	seq      uint64
}

func newRegistry(policy IntentPolicy) *registry {
	return &registry{
		policy:   policy,
		desired:  make(map[SubscriptionName][]byte),
		handlers: make(map[SubscriptionName][]handlerEntry),
	}
}

// subscribe records the intent for name (latest frame wins) and registers fn under id.
// A handler id already registered for name is replaced in place.
func (r *registry) subscribe(name SubscriptionName, frame []byte, id HandlerID, fn Handler) {
	if _, ok := r.desired[name]; !ok {
		r.order = append(r.order, name)
	}
	r.desired[name] = frame

	r.seq++
	entries := r.handlers[name]
	for i := range entries {
		if entries[i].id == id {
			entries[i].seq = r.seq
			entries[i].fn = fn
			return
		}
	}
	r.handlers[name] = append(entries, handlerEntry{id: id, seq: r.seq, fn: fn})
}

// unsubscribe removes id's handler for name and reports whether the server-side
// subscription should be torn down.
func (r *registry) unsubscribe(name SubscriptionName, id HandlerID) bool {
	entries := r.handlers[name]
	for i := range entries {
		if entries[i].id == id {
			entries = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
	if len(entries) == 0 {
		delete(r.handlers, name)
	} else {
		r.handlers[name] = entries
	}

	if r.policy == IntentRefCounted && len(entries) > 0 {
		return false
	}
	r.removeDesired(name)
	return true
}

func (r *registry) removeDesired(name SubscriptionName) {
	if _, ok := r.desired[name]; !ok {
		return
	}
	delete(r.desired, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// replay returns the subscribe frames of every desired subscription in insertion order.
func (r *registry) replay() [][]byte {
	frames := make([][]byte, 0, len(r.order))
	for _, name := range r.order {
		frames = append(frames, r.desired[name])
	}
	return frames
}

// names returns the desired subscription names in insertion order.
func (r *registry) names() []SubscriptionName {
	out := make([]SubscriptionName, len(r.order))
	copy(out, r.order)
	return out
}

// handlersFor returns a snapshot of the handlers for name in registration order.
func (r *registry) handlersFor(name SubscriptionName) []handlerEntry {
	entries := r.handlers[name]
	if len(entries) == 0 {
		return nil
	}
	out := make([]handlerEntry, len(entries))
	copy(out, entries)
	return out
}

// registered reports whether entry is still the live registration for its id.
func (r *registry) registered(name SubscriptionName, entry handlerEntry) bool {
	for _, e := range r.handlers[name] {
		if e.id == entry.id {
			return e.seq == entry.seq
		}
	}
	return false
}

func (r *registry) reset() {
	r.desired = make(map[SubscriptionName][]byte)
	r.order = nil
	r.handlers = make(map[SubscriptionName][]handlerEntry)
}
