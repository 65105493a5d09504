package tracker

import "sync"

// Broadcaster fans progress snapshots out to any number of subscribers.
// Subscribers that fall behind lose intermediate snapshots rather than
// slowing the tracker down; the latest state always gets through.
type Broadcaster struct {
	mu     sync.Mutex
	next   int
	subs   map[int]chan Snapshot
	closed bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan Snapshot)}
}

// Subscribe registers a listener seeded with the current snapshot, so
// late subscribers start from known state instead of blank. current is
// evaluated under the broadcaster lock; once the run has ended the
// seeded value is the terminal snapshot and the channel closes right
// after it. The returned cancel must be called when the listener
// detaches.
func (b *Broadcaster) Subscribe(current func() Snapshot) (<-chan Snapshot, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Snapshot, 16)
	ch <- current()
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.next
	b.next++
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

func (b *Broadcaster) Publish(snapshot Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		select {
		case sub <- snapshot:
		default:
			// Drop the oldest buffered snapshot to make room.
			select {
			case <-sub:
			default:
			}
			select {
			case sub <- snapshot:
			default:
			}
		}
	}
}

func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub)
	}
}
