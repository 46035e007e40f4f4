package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lautenbacher.net/blinkd/device"
	"lautenbacher.net/blinkd/ipc"
	"lautenbacher.net/blinkd/ipc/socket"
)

type recorder struct {
	mu   sync.Mutex
	cmds []ipc.Command
}

func (r *recorder) Handle(cmd ipc.Command) *ipc.Fault {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds = append(r.cmds, cmd)
	if cmd.Op == ipc.OpSetBrightness && cmd.Brightness > 1 {
		return &ipc.Fault{Kind: ipc.FaultInvalidParameter, Message: "brightness 2 not in [0, 1]"}
	}
	return nil
}

func (r *recorder) last() ipc.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cmds[len(r.cmds)-1]
}

func serve(t *testing.T) (string, *recorder) {
	t.Helper()
	dir, err := os.MkdirTemp("", "blinkctl")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	sock := filepath.Join(dir, "blinkd.sock")

	rec := &recorder{}
	ep := socket.New(sock)
	require.NoError(t, ep.RegisterName("org.zbus.BlinkService"))
	require.NoError(t, ep.Publish("/org/zbus/BlinkService", rec))

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
	return sock, rec
}

func run(sock string, args ...string) error {
	cmd := newRootCmd()
	cmd.SetArgs(append([]string{"--socket", sock}, args...))
	return cmd.Execute()
}

func TestCommands(t *testing.T) {
	sock, rec := serve(t)

	tests := []struct {
		args []string
		want ipc.Command
	}{
		{[]string{"set-all", "1", "2", "3", "0.5"}, ipc.Command{Op: ipc.OpSetAll, Color: device.RGB(1, 2, 3), Brightness: 0.5}},
		{[]string{"set-pixel", "7", "255", "0", "0", "1"}, ipc.Command{Op: ipc.OpSetPixel, Index: 7, Color: device.RGB(255, 0, 0), Brightness: 1}},
		{[]string{"brightness", "0.25"}, ipc.Command{Op: ipc.OpSetBrightness, Brightness: 0.25}},
		{[]string{"clear"}, ipc.Command{Op: ipc.OpClear}},
		{[]string{"show"}, ipc.Command{Op: ipc.OpShow}},
	}
	for _, tt := range tests {
		t.Run(tt.args[0], func(t *testing.T) {
			require.NoError(t, run(sock, tt.args...))
			assert.Equal(t, tt.want, rec.last())
		})
	}
}

func TestCommands_Fault(t *testing.T) {
	sock, _ := serve(t)
	err := run(sock, "brightness", "2")
	var fault *ipc.Fault
	require.True(t, errors.As(err, &fault))
	assert.Equal(t, ipc.FaultInvalidParameter, fault.Kind)
}

func TestCommands_BadArguments(t *testing.T) {
	assert.ErrorContains(t, run("/nonexistent", "set-all", "256", "0", "0", "1"), "invalid color component")
	assert.ErrorContains(t, run("/nonexistent", "set-pixel", "x", "0", "0", "0", "1"), "invalid index")
	assert.ErrorContains(t, run("/nonexistent", "set-pixel", "--", "-1", "0", "0", "0", "1"), "invalid index")
	assert.ErrorContains(t, run("/nonexistent", "set-pixel", "4294967296", "0", "0", "0", "1"), "invalid index")
	// Without "--" a negative number is taken for a flag.
	assert.ErrorContains(t, run("/nonexistent", "set-pixel", "-1", "0", "0", "0", "1"), "unknown shorthand flag")
	assert.ErrorContains(t, run("/nonexistent", "brightness", "bright"), "invalid brightness")
	assert.Error(t, run("/nonexistent", "show", "extra"))
}

func TestCommands_NoServer(t *testing.T) {
	err := run(filepath.Join(t.TempDir(), "none.sock"), "show")
	assert.ErrorContains(t, err, "failed to connect")
}
