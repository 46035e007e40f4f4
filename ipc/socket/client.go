package socket

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"lautenbacher.net/blinkd/device"
	"lautenbacher.net/blinkd/ipc"
)

// Client calls methods of one object on a socket endpoint. Calls are
// serialized; a Client may be shared between goroutines.
type Client struct {
	mu     sync.Mutex
	conn   net.Conn
	path   string
	nextID uint64
}

// Dial connects to the endpoint listening on socketPath and addresses the
// object at objectPath.
func Dial(ctx context.Context, socketPath, objectPath string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", socketPath, err)
	}
	return &Client{conn: conn, path: objectPath}, nil
}

// Call sends req with a fresh ID and waits for the answer. A fault reply is
// returned as *ipc.Fault.
func (c *Client) Call(ctx context.Context, req Request) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetDeadline(deadline)
		defer c.conn.SetDeadline(time.Time{})
	}

	c.nextID++
	req.ID = c.nextID
	req.Path = c.path

	data, err := encodeRequest(&req)
	if err != nil {
		return err
	}
	if err := writeFrame(c.conn, data); err != nil {
		return err
	}
	data, err = readFrame(c.conn)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	resp, err := decodeResponse(data)
	if err != nil {
		return err
	}
	if resp.ID != req.ID {
		return fmt.Errorf("response id %d does not match request id %d", resp.ID, req.ID)
	}
	if resp.Kind != "" {
		return &ipc.Fault{Kind: ipc.FaultKind(resp.Kind), Message: resp.Message}
	}
	return nil
}

func (c *Client) SetAll(ctx context.Context, color device.Color, brightness float64) error {
	return c.Call(ctx, Request{Method: ipc.OpSetAll.String(), R: color.Red, G: color.Green, B: color.Blue, Brightness: brightness})
}

func (c *Client) SetPixel(ctx context.Context, index uint32, color device.Color, brightness float64) error {
	return c.Call(ctx, Request{Method: ipc.OpSetPixel.String(), Index: index, R: color.Red, G: color.Green, B: color.Blue, Brightness: brightness})
}

func (c *Client) SetBrightness(ctx context.Context, brightness float64) error {
	return c.Call(ctx, Request{Method: ipc.OpSetBrightness.String(), Brightness: brightness})
}

func (c *Client) Clear(ctx context.Context) error {
	return c.Call(ctx, Request{Method: ipc.OpClear.String()})
}

func (c *Client) Show(ctx context.Context) error {
	return c.Call(ctx, Request{Method: ipc.OpShow.String()})
}

func (c *Client) Close() error {
	return c.conn.Close()
}
