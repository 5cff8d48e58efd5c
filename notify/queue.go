// Package notify implements the per-Handle wake primitive shared by
// every Pipe in the runtime: a whitelist of live handles, reliable
// one-shot waiters, and lossy bounded subscribers.
//
// Go has no borrow checker and no async/await, so the check-lock-check
// race-avoidance idiom from the original design (see GetLock) is kept
// as an explicit API rather than baked into a single atomic operation:
// callers that observed "no data" outside the lock must re-check after
// acquiring it, and only register a waiter while still holding it.
package notify

import (
	"log/slog"
	"sync"

	"github.com/olpa/ailets-sub000/idgen"
)

// UnlistSentinel is the value sent to waiters and subscribers when a
// handle is unlisted (the writer side closing, or EOF).
const UnlistSentinel int64 = -1

type entry struct {
	name        string
	waiters     []chan struct{}
	subscribers []*Subscription
}

// Queue is a thread-safe notification queue, one per Environment (it
// is never a process-level singleton, so independent Environments in
// tests don't interfere).
type Queue struct {
	mu      sync.Mutex
	entries map[idgen.Handle]*entry
	log     *slog.Logger
}

// New returns an empty Queue using the default logger.
func New() *Queue {
	return &Queue{entries: make(map[idgen.Handle]*entry), log: slog.Default()}
}

// SetLogger overrides the logger used for dropped-subscriber warnings.
func (q *Queue) SetLogger(l *slog.Logger) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.log = l
}

// Whitelist registers h with an empty waiter/subscriber set. Idempotent.
func (q *Queue) Whitelist(h idgen.Handle, name string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.entries[h]; !ok {
		q.entries[h] = &entry{name: name}
	}
}

// Unlist sends UnlistSentinel to every subscriber, wakes every waiter,
// and removes the entry. Subsequent WaitAsync calls on h resolve
// immediately; Subscribe calls fail.
func (q *Queue) Unlist(h idgen.Handle) {
	q.mu.Lock()
	e, ok := q.entries[h]
	if !ok {
		q.mu.Unlock()
		return
	}
	delete(q.entries, h)
	waiters := e.waiters
	subs := e.subscribers
	q.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}
	for _, s := range subs {
		s.deliver(UnlistSentinel, q.log)
		close(s.ch)
	}
}

// Notify pushes arg to every subscriber (dropping the oldest queued
// value on overflow, with a logged warning) and wakes every pending
// waiter. Both effects are ordered per-handle in the program order of
// the calls that triggered them.
func (q *Queue) Notify(h idgen.Handle, arg int64) {
	q.mu.Lock()
	e, ok := q.entries[h]
	if !ok {
		q.mu.Unlock()
		return
	}
	waiters := e.waiters
	e.waiters = nil
	subs := append([]*Subscription(nil), e.subscribers...)
	log := q.log
	q.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}
	for _, s := range subs {
		s.deliver(arg, log)
	}
}

// Lock is the guard returned by GetLock, used to implement the
// check-lock-check wait protocol without a data race between the
// caller's re-check and WaitAsync's waiter registration.
type Lock struct {
	q        *Queue
	released bool
}

// GetLock acquires the queue's internal lock so a caller can re-check
// producer state and atomically register a waiter if still empty.
func (q *Queue) GetLock() *Lock {
	q.mu.Lock()
	return &Lock{q: q}
}

// Release drops the lock without waiting. Safe to call multiple times.
func (l *Lock) Release() {
	if !l.released {
		l.released = true
		l.q.mu.Unlock()
	}
}

// WaitAsync registers a one-shot waiter for h while holding lock (which
// it always releases, whether or not it ends up waiting), then blocks
// the calling goroutine until Notify or Unlist fires for h. If h is
// not whitelisted this resolves immediately — that is not an error.
func (q *Queue) WaitAsync(h idgen.Handle, _ string, lock *Lock) {
	e, ok := q.entries[h]
	if !ok {
		lock.Release()
		return
	}
	ch := make(chan struct{})
	e.waiters = append(e.waiters, ch)
	lock.Release()
	<-ch
}

// Subscription is a bounded, lossy receiver of notifications for one
// handle. Call Close to unsubscribe; Go has no destructors, so unlike
// the original's "dropped implicitly" contract, callers must Close
// explicitly (or simply stop reading — Close is still required to
// detach from the entry and avoid leaking a slot).
type Subscription struct {
	ch     chan int64
	handle idgen.Handle
	q      *Queue
}

// C returns the receive side of the subscription's channel.
func (s *Subscription) C() <-chan int64 {
	return s.ch
}

// Close unsubscribes, removing this subscription from its handle's
// entry. The channel is not closed; it simply receives no further
// notifications.
func (s *Subscription) Close() {
	s.q.mu.Lock()
	e, ok := s.q.entries[s.handle]
	if ok {
		for i, sub := range e.subscribers {
			if sub == s {
				e.subscribers = append(e.subscribers[:i], e.subscribers[i+1:]...)
				break
			}
		}
	}
	s.q.mu.Unlock()
}

func (s *Subscription) deliver(arg int64, log *slog.Logger) {
	select {
	case s.ch <- arg:
		return
	default:
	}
	// Drop the oldest queued value to make room, per the lossy-subscriber
	// contract; a slow consumer must never block the producer.
	select {
	case <-s.ch:
		if log != nil {
			log.Warn("notify: subscriber queue full, dropping oldest", "handle", s.handle)
		}
	default:
	}
	select {
	case s.ch <- arg:
	default:
	}
}

// Subscribe returns a bounded receiver for h's notifications, or nil
// if h is not whitelisted.
func (q *Queue) Subscribe(h idgen.Handle, capacity int, _ string) *Subscription {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[h]
	if !ok {
		return nil
	}
	s := &Subscription{ch: make(chan int64, capacity), handle: h, q: q}
	e.subscribers = append(e.subscribers, s)
	return s
}
