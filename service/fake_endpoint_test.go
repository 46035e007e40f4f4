package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lautenbacher.net/blinkd/ipc"
)

// fakeEndpoint blocks in DispatchNext like a real transport and lets tests
// inject calls and failures.
type fakeEndpoint struct {
	*ipc.Queue

	mu             sync.Mutex
	registerErr    error
	publishErr     error
	transportErrs  int
	dispatchCalls  int
	name           string
	path           string
	handler        ipc.Handler
	closed         bool
	publishedReady chan struct{}
}

func newFakeEndpoint() *fakeEndpoint {
	return &fakeEndpoint{Queue: ipc.NewQueue(), publishedReady: make(chan struct{})}
}

func (f *fakeEndpoint) RegisterName(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.registerErr != nil {
		return f.registerErr
	}
	f.name = name
	return nil
}

func (f *fakeEndpoint) Publish(path string, h ipc.Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.path, f.handler = path, h
	close(f.publishedReady)
	return nil
}

func (f *fakeEndpoint) DispatchNext(ctx context.Context) error {
	f.mu.Lock()
	f.dispatchCalls++
	if f.transportErrs > 0 {
		f.transportErrs--
		f.mu.Unlock()
		return errors.New("transport hiccup")
	}
	f.mu.Unlock()
	return f.Queue.DispatchNext(ctx)
}

func (f *fakeEndpoint) Close() error {
	f.Queue.Close()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeEndpoint) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// call sends cmd through the queue as a transport goroutine would.
func (f *fakeEndpoint) call(t *testing.T, cmd ipc.Command) *ipc.Fault {
	t.Helper()
	<-f.publishedReady
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	fault, err := f.Submit(ctx, h, cmd)
	require.NoError(t, err)
	return fault
}

func factoryFor(ep ipc.Endpoint) EndpointFactory {
	return func() (ipc.Endpoint, error) { return ep, nil }
}
