package util

import (
	"sync"
	"sync/atomic"
)

type snapshot[T any] struct {
	seq   uint64
	value T
}

// AtomicEvent holds the latest value of a stream of updates. Senders never
// block; a reader that falls behind sees only the newest value and can
// learn from the sequence number how many it skipped.
type AtomicEvent[T any] struct {
	sendMu sync.Mutex
	latest atomic.Pointer[snapshot[T]]
	read   atomic.Uint64
	notify chan struct{}
}

func NewAtomicEvent[T any]() *AtomicEvent[T] {
	ae := &AtomicEvent[T]{notify: make(chan struct{}, 1)}
	ae.latest.Store(&snapshot[T]{})
	return ae
}

// Send publishes event and wakes a waiting reader.
func (ae *AtomicEvent[T]) Send(event T) {
	ae.sendMu.Lock()
	prev := ae.latest.Load()
	ae.latest.Store(&snapshot[T]{seq: prev.seq + 1, value: event})
	ae.sendMu.Unlock()

	select {
	case ae.notify <- struct{}{}:
	default:
	}
}

// Channel returns the notification channel for use in select statements.
func (ae *AtomicEvent[T]) Channel() <-chan struct{} {
	return ae.notify
}

// Take returns the latest event and the number of events that were sent
// since the previous Take but never observed.
func (ae *AtomicEvent[T]) Take() (T, uint64) {
	s := ae.latest.Load()
	last := ae.read.Swap(s.seq)
	var skipped uint64
	if s.seq > last+1 {
		skipped = s.seq - last - 1
	}
	return s.value, skipped
}
