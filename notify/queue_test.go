package notify

import (
	"testing"
	"time"

	"github.com/olpa/ailets-sub000/idgen"
)

func TestWhitelistIsIdempotent(t *testing.T) {
	q := New()
	gen := idgen.New()
	h := gen.Next()

	q.Whitelist(h, "a")
	q.Whitelist(h, "a")

	sub := q.Subscribe(h, 1, "a")
	if sub == nil {
		t.Fatal("Subscribe returned nil for a whitelisted handle")
	}
}

func TestSubscribeUnknownHandleReturnsNil(t *testing.T) {
	q := New()
	gen := idgen.New()
	h := gen.Next()

	if sub := q.Subscribe(h, 1, "unknown"); sub != nil {
		t.Fatal("Subscribe on an un-whitelisted handle should return nil")
	}
}

// TestSubscriberReceivesExactlyOneNotification mirrors spec.md §8's
// "Empty write does not wake": an empty write never calls Notify at
// all (pipe.Writer.Write short-circuits before reaching the queue), so
// from the queue's point of view a subscriber that is only ever
// Notify'd once, with 3, must see exactly that one value.
func TestSubscriberReceivesExactlyOneNotification(t *testing.T) {
	q := New()
	gen := idgen.New()
	h := gen.Next()
	q.Whitelist(h, "producer")

	sub := q.Subscribe(h, 4, "consumer")
	if sub == nil {
		t.Fatal("Subscribe returned nil")
	}

	q.Notify(h, 3)

	select {
	case v := <-sub.C():
		if v != 3 {
			t.Fatalf("got %d, want 3", v)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the notification")
	}

	select {
	case v := <-sub.C():
		t.Fatalf("received unexpected second notification %d", v)
	case <-time.After(20 * time.Millisecond):
	}
}

// TestUnlistWakesAllWaitersAndSubscribers mirrors spec.md §8's "Unlist
// wakes all": three blocked waiters and one subscriber on the same
// handle, all woken by a single Unlist, with the subscriber receiving
// UnlistSentinel followed by channel closure.
func TestUnlistWakesAllWaitersAndSubscribers(t *testing.T) {
	q := New()
	gen := idgen.New()
	h := gen.Next()
	q.Whitelist(h, "pipe")

	sub := q.Subscribe(h, 1, "watcher")

	done := make(chan int, 3)
	for i := 0; i < 3; i++ {
		go func() {
			lock := q.GetLock()
			q.WaitAsync(h, "waiter", lock)
			done <- 1
		}()
	}

	// Give the waiters a chance to register before Unlist fires, so
	// this exercises the wakeup path rather than the immediate-return
	// not-whitelisted path.
	time.Sleep(20 * time.Millisecond)
	q.Unlist(h)

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("not all waiters woke up after Unlist")
		}
	}

	select {
	case v, ok := <-sub.C():
		if !ok {
			t.Fatal("subscriber channel closed before delivering UnlistSentinel")
		}
		if v != UnlistSentinel {
			t.Fatalf("got %d, want UnlistSentinel (%d)", v, UnlistSentinel)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber never received UnlistSentinel")
	}

	select {
	case _, ok := <-sub.C():
		if ok {
			t.Fatal("expected subscriber channel to be closed after UnlistSentinel")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber channel was never closed")
	}
}

// TestWaitAsyncCheckLockCheckAvoidsMissedWakeup exercises the
// GetLock/WaitAsync contract: a caller holding the lock while checking
// state cannot miss a Notify that happens to race with registering the
// waiter, because Notify itself takes the same lock.
func TestWaitAsyncCheckLockCheckAvoidsMissedWakeup(t *testing.T) {
	q := New()
	gen := idgen.New()
	h := gen.Next()
	q.Whitelist(h, "pipe")

	lock := q.GetLock()
	waitDone := make(chan struct{})
	go func() {
		q.WaitAsync(h, "waiter", lock)
		close(waitDone)
	}()

	// WaitAsync releases the lock itself once the waiter is registered;
	// Notify blocks on the same mutex until that happens, so this can't
	// observe a state where the waiter was never registered.
	q.Notify(h, 1)

	select {
	case <-waitDone:
	case <-time.After(time.Second):
		t.Fatal("WaitAsync never woke up after Notify")
	}
}

func TestNotifyOnUnknownHandleIsNoop(t *testing.T) {
	q := New()
	gen := idgen.New()
	h := gen.Next()
	// Must not panic when nothing is registered for h.
	q.Notify(h, 1)
	q.Unlist(h)
}
