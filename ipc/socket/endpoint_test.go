package socket

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lautenbacher.net/blinkd/device"
	"lautenbacher.net/blinkd/ipc"
)

const testPath = "/org/zbus/BlinkService"

func socketPath(t *testing.T) string {
	t.Helper()
	// t.TempDir() can exceed the unix socket path limit.
	dir, err := os.MkdirTemp("", "blinkd")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "blinkd.sock")
}

type recordingHandler struct {
	mu    sync.Mutex
	cmds  []ipc.Command
	fault *ipc.Fault
}

func (h *recordingHandler) Handle(cmd ipc.Command) *ipc.Fault {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cmds = append(h.cmds, cmd)
	return h.fault
}

func (h *recordingHandler) commands() []ipc.Command {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]ipc.Command(nil), h.cmds...)
}

// startEndpoint registers, publishes and runs DispatchNext until the test
// ends.
func startEndpoint(t *testing.T, path string, h ipc.Handler) *Endpoint {
	t.Helper()
	ep := New(path)
	require.NoError(t, ep.RegisterName("org.zbus.BlinkService"))
	require.NoError(t, ep.Publish(testPath, h))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ep.DispatchNext(ctx) == nil {
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		ep.Close()
	})
	return ep
}

func dial(t *testing.T, path, object string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c, err := Dial(ctx, path, object)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestEndpoint_Calls(t *testing.T) {
	path := socketPath(t)
	h := &recordingHandler{}
	startEndpoint(t, path, h)
	c := dial(t, path, testPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.SetAll(ctx, device.RGB(1, 2, 3), 0.5))
	require.NoError(t, c.SetPixel(ctx, 4, device.RGB(255, 0, 0), 1))
	require.NoError(t, c.SetBrightness(ctx, 0.25))
	require.NoError(t, c.Clear(ctx))
	require.NoError(t, c.Show(ctx))

	want := []ipc.Command{
		{Op: ipc.OpSetAll, Color: device.RGB(1, 2, 3), Brightness: 0.5},
		{Op: ipc.OpSetPixel, Index: 4, Color: device.RGB(255, 0, 0), Brightness: 1},
		{Op: ipc.OpSetBrightness, Brightness: 0.25},
		{Op: ipc.OpClear},
		{Op: ipc.OpShow},
	}
	assert.Equal(t, want, h.commands())
}

func TestEndpoint_Fault(t *testing.T) {
	path := socketPath(t)
	h := &recordingHandler{fault: &ipc.Fault{Kind: ipc.FaultOutOfRange, Message: "pixel 99"}}
	startEndpoint(t, path, h)
	c := dial(t, path, testPath)

	err := c.SetPixel(context.Background(), 99, device.RGB(1, 1, 1), 1)
	var fault *ipc.Fault
	require.True(t, errors.As(err, &fault))
	assert.Equal(t, ipc.FaultOutOfRange, fault.Kind)
	assert.Equal(t, "pixel 99", fault.Message)
}

func TestEndpoint_UnknownMethodAndPath(t *testing.T) {
	path := socketPath(t)
	h := &recordingHandler{}
	startEndpoint(t, path, h)

	c := dial(t, path, testPath)
	err := c.Call(context.Background(), Request{Method: "Blink"})
	var fault *ipc.Fault
	require.True(t, errors.As(err, &fault))
	assert.Equal(t, ipc.FaultUnknownMethod, fault.Kind)

	other := dial(t, path, "/somewhere/else")
	err = other.Show(context.Background())
	require.True(t, errors.As(err, &fault))
	assert.Equal(t, ipc.FaultUnknownMethod, fault.Kind)

	assert.Empty(t, h.commands(), "the worker is never involved")
}

func TestEndpoint_RegisterConflict(t *testing.T) {
	path := socketPath(t)
	startEndpoint(t, path, &recordingHandler{})

	second := New(path)
	err := second.RegisterName("org.zbus.BlinkService")
	assert.ErrorIs(t, err, ipc.ErrRegistration)
}

func TestEndpoint_RemovesStaleSocket(t *testing.T) {
	path := socketPath(t)
	l, err := net.Listen("unix", path)
	require.NoError(t, err)
	l.(*net.UnixListener).SetUnlinkOnClose(false)
	l.Close()
	_, err = os.Stat(path)
	require.NoError(t, err, "stale socket file must exist")

	ep := New(path)
	require.NoError(t, ep.RegisterName("org.zbus.BlinkService"))
	require.NoError(t, ep.Close())
}

func TestEndpoint_PublishErrors(t *testing.T) {
	ep := New(socketPath(t))
	h := &recordingHandler{}
	assert.ErrorIs(t, ep.Publish("relative", h), ipc.ErrPublish)
	assert.ErrorIs(t, ep.Publish(testPath, nil), ipc.ErrPublish)
	require.NoError(t, ep.Publish(testPath, h))
	assert.ErrorIs(t, ep.Publish(testPath, h), ipc.ErrPublish)
}

func TestEndpoint_CloseUnblocksDispatch(t *testing.T) {
	ep := New(socketPath(t))
	require.NoError(t, ep.RegisterName("org.zbus.BlinkService"))

	done := make(chan error)
	go func() { done <- ep.DispatchNext(context.Background()) }()
	require.NoError(t, ep.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ipc.ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("DispatchNext still blocked after Close")
	}
}
