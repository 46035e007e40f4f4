package socket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"lautenbacher.net/blinkd/device"
	"lautenbacher.net/blinkd/ipc"
)

const liveCheckTimeout = 200 * time.Millisecond

// Endpoint is an ipc.Endpoint listening on a unix socket. Registering the
// name binds the socket; connection goroutines decode requests and queue
// them for the service worker.
type Endpoint struct {
	*ipc.Queue
	socketPath string

	mu       sync.Mutex
	name     string
	listener net.Listener
	objects  map[string]ipc.Handler
	conns    map[string]net.Conn
	wg       sync.WaitGroup
}

var _ ipc.Endpoint = (*Endpoint)(nil)

func New(socketPath string) *Endpoint {
	return &Endpoint{
		Queue:      ipc.NewQueue(),
		socketPath: socketPath,
		objects:    make(map[string]ipc.Handler),
		conns:      make(map[string]net.Conn),
	}
}

// RegisterName binds the socket. It fails if another server still answers
// on the path; a stale socket file is removed first.
func (e *Endpoint) RegisterName(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.listener != nil {
		return fmt.Errorf("%w: %s: already registered as %s", ipc.ErrRegistration, name, e.name)
	}
	if conn, err := net.DialTimeout("unix", e.socketPath, liveCheckTimeout); err == nil {
		conn.Close()
		return fmt.Errorf("%w: %s: another server is listening on %s", ipc.ErrRegistration, name, e.socketPath)
	}
	if err := os.Remove(e.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s: can't remove stale socket: %w", ipc.ErrRegistration, name, err)
	}
	if err := os.MkdirAll(filepath.Dir(e.socketPath), 0o755); err != nil {
		return fmt.Errorf("%w: %s: %w", ipc.ErrRegistration, name, err)
	}

	l, err := net.Listen("unix", e.socketPath)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ipc.ErrRegistration, name, err)
	}
	e.listener = l
	e.name = name

	e.wg.Add(1)
	go e.acceptLoop(l)
	slog.Info("Socket endpoint listening", "name", name, "socket", e.socketPath)
	return nil
}

// Publish makes h reachable under path.
func (e *Endpoint) Publish(path string, h ipc.Handler) error {
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("%w: invalid object path %q", ipc.ErrPublish, path)
	}
	if h == nil {
		return fmt.Errorf("%w: %s: nil handler", ipc.ErrPublish, path)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.objects[path]; exists {
		return fmt.Errorf("%w: %s: already published", ipc.ErrPublish, path)
	}
	e.objects[path] = h
	return nil
}

// Close stops dispatching, disconnects all clients and removes the socket.
func (e *Endpoint) Close() error {
	e.Queue.Close()

	e.mu.Lock()
	var err error
	if e.listener != nil {
		err = e.listener.Close()
		e.listener = nil
	}
	for _, conn := range e.conns {
		conn.Close()
	}
	e.mu.Unlock()

	e.wg.Wait()
	return err
}

func (e *Endpoint) acceptLoop(l net.Listener) {
	defer e.wg.Done()
	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Error("Failed to accept connection", "error", err)
			continue
		}

		id := uuid.NewString()
		e.mu.Lock()
		if e.listener == nil {
			e.mu.Unlock()
			conn.Close()
			return
		}
		e.conns[id] = conn
		e.wg.Add(1)
		e.mu.Unlock()

		go e.serve(id, conn)
	}
}

func (e *Endpoint) serve(id string, conn net.Conn) {
	defer e.wg.Done()
	defer func() {
		e.mu.Lock()
		delete(e.conns, id)
		e.mu.Unlock()
		conn.Close()
	}()

	logger := slog.With("conn", id)
	logger.Debug("Client connected")
	for {
		data, err := readFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				logger.Warn("Dropping client", "error", err)
			}
			return
		}

		resp := e.handle(data)
		out, err := encodeResponse(resp)
		if err == nil {
			err = writeFrame(conn, out)
		}
		if err != nil {
			logger.Warn("Failed to send response", "error", err)
			return
		}
	}
}

// handle runs on a connection goroutine and only blocks in Submit.
func (e *Endpoint) handle(data []byte) *Response {
	req, err := decodeRequest(data)
	if err != nil {
		return &Response{Kind: string(ipc.FaultFailed), Message: err.Error()}
	}
	resp := &Response{ID: req.ID}

	e.mu.Lock()
	h, ok := e.objects[req.Path]
	e.mu.Unlock()
	if !ok {
		resp.Kind, resp.Message = string(ipc.FaultUnknownMethod), fmt.Sprintf("no object at path %q", req.Path)
		return resp
	}

	op, err := ipc.ParseOp(req.Method)
	if err != nil {
		resp.Kind, resp.Message = string(ipc.FaultUnknownMethod), err.Error()
		return resp
	}
	cmd := ipc.Command{
		Op:         op,
		Index:      req.Index,
		Color:      device.RGB(req.R, req.G, req.B),
		Brightness: req.Brightness,
	}

	fault, err := e.Submit(context.Background(), h, cmd)
	if err != nil {
		resp.Kind, resp.Message = KindUnavailable, err.Error()
		return resp
	}
	if fault != nil {
		resp.Kind, resp.Message = string(fault.Kind), fault.Message
	}
	return resp
}
