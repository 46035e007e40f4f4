package util

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAtomicEvent(t *testing.T) {
	ae := NewAtomicEvent[[]byte]()
	select {
	case <-ae.Channel():
		t.Fatal("fresh event must not notify")
	default:
	}
	v, skipped := ae.Take()
	assert.Nil(t, v)
	assert.Zero(t, skipped)
}

func TestNotificationCoalescing(t *testing.T) {
	ae := NewAtomicEvent[int]()

	ae.Send(1)
	ae.Send(2)
	ae.Send(3)

	select {
	case <-ae.Channel():
	default:
		t.Fatal("should have received a notification")
	}

	select {
	case <-ae.Channel():
		t.Fatal("three sends must collapse into one notification")
	default:
	}

	v, skipped := ae.Take()
	assert.Equal(t, 3, v)
	assert.Equal(t, uint64(2), skipped)
}

func TestTake_CountsSkipped(t *testing.T) {
	ae := NewAtomicEvent[string]()

	ae.Send("a")
	v, skipped := ae.Take()
	assert.Equal(t, "a", v)
	assert.Zero(t, skipped)

	ae.Send("b")
	ae.Send("c")
	ae.Send("d")
	v, skipped = ae.Take()
	assert.Equal(t, "d", v)
	assert.Equal(t, uint64(2), skipped)

	// Nothing new: the same value again, nothing skipped.
	v, skipped = ae.Take()
	assert.Equal(t, "d", v)
	assert.Zero(t, skipped)
}

func TestConcurrency(t *testing.T) {
	ae := NewAtomicEvent[int]()
	done := make(chan struct{})

	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			ae.Send(i)
		}
	}()

	var (
		readerWg sync.WaitGroup
		seen     uint64
		lastRead = -1
	)
	account := func() {
		val, skipped := ae.Take()
		if val < lastRead {
			t.Errorf("read a stale value: got %d, last was %d", val, lastRead)
		}
		if val != lastRead {
			seen += skipped + 1
		}
		lastRead = val
	}

	readerWg.Add(1)
	go func() {
		defer readerWg.Done()
		for {
			select {
			case <-ae.Channel():
				account()
			case <-done:
				return
			}
		}
	}()
	readerWg.Wait()
	account()

	assert.Equal(t, 999, lastRead)
	assert.Equal(t, uint64(1000), seen, "every send is either observed or counted as skipped")
}
