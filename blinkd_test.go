package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	c "lautenbacher.net/blinkd/config"
	"lautenbacher.net/blinkd/device"
	"lautenbacher.net/blinkd/device/devicetest"
	"lautenbacher.net/blinkd/ipc"
	"lautenbacher.net/blinkd/ipc/socket"
)

const testConfig = `
Service:
  Name: org.zbus.BlinkService
  Path: /org/zbus/BlinkService
  Transport: %s
  SocketPath: %s
  RetryDelay: 10ms
Hardware:
  LEDType: talking
  Display:
    LedsTotal: %d
    InitialBrightness: 0.5
Logging:
  HW:
    Level: DEBUG
`

type testEnv struct {
	app    *App
	sock   string
	cfile  string
	mu     sync.Mutex
	strips []*devicetest.FakeStrip
}

func (e *testEnv) lastStrip() *devicetest.FakeStrip {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.strips[len(e.strips)-1]
}

func (e *testEnv) writeConfig(t *testing.T, transport string, leds int) {
	t.Helper()
	data := fmt.Sprintf(testConfig, transport, e.sock, leds)
	require.NoError(t, os.WriteFile(e.cfile, []byte(data), 0o644))
}

func newTestEnv(t *testing.T, transport string, forceSocket bool) *testEnv {
	t.Helper()
	dir, err := os.MkdirTemp("", "blinkd")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	env := &testEnv{
		sock:  filepath.Join(dir, "blinkd.sock"),
		cfile: filepath.Join(dir, "config.yml"),
	}
	env.writeConfig(t, transport, 8)

	env.app = NewApp(make(chan os.Signal, 1), env.cfile, false, forceSocket)
	env.app.openStrip = func(conf *c.Config) (device.Strip, error) {
		env.mu.Lock()
		defer env.mu.Unlock()
		strip := devicetest.NewFakeStrip(conf.Hardware.Display.LedsTotal)
		env.strips = append(env.strips, strip)
		return strip, nil
	}
	t.Cleanup(env.app.shutdown)
	return env
}

func dialClient(t *testing.T, sock string) *socket.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client, err := socket.Dial(ctx, sock, "/org/zbus/BlinkService")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestApp_InitialiseAndShutdown(t *testing.T) {
	env := newTestEnv(t, "socket", false)
	require.NoError(t, env.app.initialise())

	client := dialClient(t, env.sock)
	ctx := context.Background()
	require.NoError(t, client.SetPixel(ctx, 0, device.RGB(255, 0, 0), 1))
	require.NoError(t, client.Show(ctx))

	strip := env.lastStrip()
	pixels, global := strip.Shown()
	assert.Equal(t, device.RGB(255, 0, 0), pixels[0].Color)
	assert.Equal(t, 0.5, global, "InitialBrightness is applied before the service starts")

	env.app.shutdown()
	_, err := os.Stat(env.sock)
	assert.True(t, os.IsNotExist(err))
	assert.Nil(t, env.app.service)
}

func TestApp_InitialiseLeavesStripToWorker(t *testing.T) {
	env := newTestEnv(t, "socket", false)
	require.NoError(t, env.app.initialise())

	strip := env.lastStrip()
	assert.Equal(t, []string{"SetBrightness"}, strip.Calls(), "only the initial brightness is set before Start")
	assert.Zero(t, strip.LenCalls(), "the app must not use the strip once the worker owns it")
}

func TestApp_ForceSocket(t *testing.T) {
	env := newTestEnv(t, "dbus", true)
	require.NoError(t, env.app.initialise())
	assert.Equal(t, "socket", env.app.conf.Service.Transport)

	client := dialClient(t, env.sock)
	assert.NoError(t, client.Clear(context.Background()))
}

func TestApp_Reload(t *testing.T) {
	env := newTestEnv(t, "socket", false)
	require.NoError(t, env.app.initialise())
	assert.Equal(t, 8, env.lastStrip().Len())

	env.writeConfig(t, "socket", 4)
	require.NoError(t, env.app.reload())
	assert.Equal(t, 4, env.lastStrip().Len())

	client := dialClient(t, env.sock)
	err := client.SetPixel(context.Background(), 5, device.RGB(1, 1, 1), 1)
	var fault *ipc.Fault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, ipc.FaultOutOfRange, fault.Kind)
}

func TestApp_StartFailure(t *testing.T) {
	env := newTestEnv(t, "socket", false)
	l, err := net.Listen("unix", env.sock)
	require.NoError(t, err)
	defer l.Close()

	err = env.app.initialise()
	assert.ErrorIs(t, err, ipc.ErrRegistration)
	env.app.shutdown()
}

func TestApp_InvalidConfig(t *testing.T) {
	env := newTestEnv(t, "carrier-pigeon", false)
	assert.ErrorContains(t, env.app.initialise(), "invalid config file")
}

func TestAdminHandler(t *testing.T) {
	env := newTestEnv(t, "socket", false)
	require.NoError(t, env.app.initialise())
	handler := env.app.adminHandler()

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var st status
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&st))
	assert.Equal(t, "Running", st.State)
	assert.True(t, st.Alive)
	assert.Equal(t, 8, st.LedsTotal)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/status", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "blinkd_service_state")

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/config", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "InitialBrightness")
}

func TestWatcher_SendsSIGHUP(t *testing.T) {
	env := newTestEnv(t, "socket", false)
	require.NoError(t, env.app.initialise())
	require.NotNil(t, env.app.watcher)

	env.writeConfig(t, "socket", 6)
	select {
	case sig := <-env.app.ossignal:
		assert.Equal(t, syscall.SIGHUP, sig)
	case <-time.After(2 * time.Second):
		t.Fatal("no SIGHUP after config change")
	}
}

func TestEndpointFactory_Socket(t *testing.T) {
	conf := c.Default()
	conf.Service.Transport = "socket"
	ep, err := endpointFactory(conf)()
	require.NoError(t, err)
	_, ok := ep.(*socket.Endpoint)
	assert.True(t, ok)
	ep.Close()
}
