package ipc

import (
	"context"
	"sync"
)

// Call is a command waiting to be handled by the dispatching goroutine.
type Call struct {
	Handler Handler
	Command Command
	reply   chan *Fault
}

// Queue hands calls from transport goroutines to the single goroutine that
// runs DispatchNext. Endpoints embed it.
type Queue struct {
	calls     chan *Call
	closed    chan struct{}
	closeOnce sync.Once
}

func NewQueue() *Queue {
	return &Queue{
		calls:  make(chan *Call),
		closed: make(chan struct{}),
	}
}

// Submit enqueues cmd and waits for the reply. It gives up with ErrClosed if
// the queue is closed before the call was taken, or with ctx.Err().
func (q *Queue) Submit(ctx context.Context, h Handler, cmd Command) (*Fault, error) {
	call := &Call{Handler: h, Command: cmd, reply: make(chan *Fault, 1)}
	select {
	case q.calls <- call:
	case <-q.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	// Once taken, the call always gets a reply.
	return <-call.reply, nil
}

// DispatchNext runs exactly one queued call on the calling goroutine.
func (q *Queue) DispatchNext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closed:
		return ErrClosed
	case call := <-q.calls:
		fault := &Fault{Kind: FaultFailed, Message: "handler aborted"}
		defer func() { call.reply <- fault }()
		fault = call.Handler.Handle(call.Command)
		return nil
	}
}

// Close makes pending and future Submit and DispatchNext calls return
// ErrClosed. It may be called more than once.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.closed) })
}
