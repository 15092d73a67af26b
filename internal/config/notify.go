package config

import "sync"

// ChangeType says what kind of configuration change happened.
type ChangeType int

const (
	// ChangeSet is a single setting written through Set.
	ChangeSet ChangeType = iota

	// ChangeReload is a whole-file reload, typically from the watcher.
	ChangeReload
)

func (c ChangeType) String() string {
	switch c {
	case ChangeSet:
		return "set"
	case ChangeReload:
		return "reload"
	default:
		return "unknown"
	}
}

// Change describes one configuration change delivered to observers.
type Change struct {
	// Path names the changed setting, empty on reloads.
	Path string

	Type ChangeType

	// Old and new effective values. Either may be nil.
	OldValue any
	NewValue any

	// Source says where the change originated, a file path for reloads.
	Source string
}

// Observer receives configuration changes.
type Observer func(change Change)

// Subscription is a handle for cancelling an observer.
type Subscription struct {
	id       uint64
	notifier *notifier
}

// Unsubscribe stops delivery to this observer.
func (s *Subscription) Unsubscribe() {
	if s.notifier != nil {
		s.notifier.unsubscribe(s.id)
	}
}

// notifier fans configuration changes out to observers. Delivery is
// synchronous, with observers invoked outside the lock.
type notifier struct {
	mu sync.RWMutex

	globalObservers map[uint64]Observer
	pathObservers   map[string]map[uint64]Observer
	nextID          uint64
	closed          bool
}

func newNotifier() *notifier {
	return &notifier{
		globalObservers: make(map[uint64]Observer),
		pathObservers:   make(map[string]map[uint64]Observer),
	}
}

func (n *notifier) subscribe(observer Observer) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	n.globalObservers[id] = observer

	return &Subscription{id: id, notifier: n}
}

// subscribePath scopes an observer to one path. Prefix subscriptions
// match too: "shell" sees changes to "shell.timeout".
func (n *notifier) subscribePath(path string, observer Observer) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++

	if n.pathObservers[path] == nil {
		n.pathObservers[path] = make(map[uint64]Observer)
	}
	n.pathObservers[path][id] = observer

	return &Subscription{id: id, notifier: n}
}

// notify delivers change to every matching observer.
func (n *notifier) notify(change Change) {
	n.mu.RLock()
	if n.closed {
		n.mu.RUnlock()
		return
	}

	matched := make([]Observer, 0, len(n.globalObservers))
	for _, obs := range n.globalObservers {
		matched = append(matched, obs)
	}
	for path, byID := range n.pathObservers {
		// A reload has no path and concerns everyone.
		if change.Path == "" || path == change.Path || isParentPath(path, change.Path) {
			for _, obs := range byID {
				matched = append(matched, obs)
			}
		}
	}
	n.mu.RUnlock()

	for _, obs := range matched {
		obs(change)
	}
}

// close stops all future delivery. Idempotent.
func (n *notifier) close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
}

func (n *notifier) unsubscribe(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	delete(n.globalObservers, id)

	for path, byID := range n.pathObservers {
		delete(byID, id)
		if len(byID) == 0 {
			delete(n.pathObservers, path)
		}
	}
}

// isParentPath reports whether child sits under parent, so "shell" is a
// parent of "shell.timeout" but not of "shellx".
func isParentPath(parent, child string) bool {
	if parent == "" || len(parent) >= len(child) {
		return false
	}
	return child[:len(parent)] == parent && child[len(parent)] == '.'
}
