package session

import "sync"

// Change describes one sign-in or sign-out transition. History views
// subscribe so they can refresh when the active backend flips.
type Change struct {
	UserID   string
	SignedIn bool
}

// Notifier broadcasts session transitions to subscribers. Slow
// subscribers are skipped rather than blocking the notifier.
type Notifier struct {
	mu   sync.Mutex
	next int
	subs map[int]chan Change
}

func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[int]chan Change)}
}

// Subscribe registers a listener. The returned cancel function must be
// called when the listener goes away.
func (n *Notifier) Subscribe() (<-chan Change, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.next
	n.next++
	ch := make(chan Change, 8)
	n.subs[id] = ch

	return ch, func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if sub, ok := n.subs[id]; ok {
			delete(n.subs, id)
			close(sub)
		}
	}
}

func (n *Notifier) Notify(change Change) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, sub := range n.subs {
		select {
		case sub <- change:
		default:
		}
	}
}
