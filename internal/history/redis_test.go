package history

import (
	"testing"
	"time"
)

func TestLockStripeIsStableAndBounded(t *testing.T) {
	first := lockStripe("guest-abc")
	second := lockStripe("guest-abc")
	if first != second {
		t.Fatalf("stripe for the same owner must be stable, got %d then %d", first, second)
	}
	owners := []string{"guest-abc", "guest-def", "user-1", "", "guest-" + string(make([]byte, 256))}
	for _, owner := range owners {
		if stripe := lockStripe(owner); stripe >= lockStripes {
			t.Fatalf("stripe %d for owner %q out of range", stripe, owner)
		}
	}
}

func TestLockSerializesSameOwner(t *testing.T) {
	store := &RedisSessionStore{}

	unlock := store.lock("guest-abc")

	acquired := make(chan struct{})
	go func() {
		release := store.lock("guest-abc")
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatalf("second acquisition must wait for the first release")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatalf("second acquisition never completed after release")
	}
}
