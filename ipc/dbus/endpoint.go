// Package dbus publishes the blink service on a D-Bus bus.
package dbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"lautenbacher.net/blinkd/device"
	"lautenbacher.net/blinkd/ipc"
)

// Endpoint is an ipc.Endpoint on one private bus connection. Method calls
// arrive on godbus goroutines and wait in the queue until the service
// worker runs them in DispatchNext.
type Endpoint struct {
	*ipc.Queue
	conn  *dbus.Conn
	iface string
	name  string
}

var _ ipc.Endpoint = (*Endpoint)(nil)

// Connect opens a private connection. bus is "session", "system" or a bus
// address such as "unix:path=/run/dbus/system_bus_socket".
func Connect(bus, iface string) (*Endpoint, error) {
	var (
		conn *dbus.Conn
		err  error
	)
	switch bus {
	case "session", "":
		conn, err = dbus.ConnectSessionBus()
	case "system":
		conn, err = dbus.ConnectSystemBus()
	default:
		conn, err = dbus.Connect(bus)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s bus: %w", bus, err)
	}
	return New(conn, iface), nil
}

// New wraps an already authenticated connection.
func New(conn *dbus.Conn, iface string) *Endpoint {
	return &Endpoint{
		Queue: ipc.NewQueue(),
		conn:  conn,
		iface: iface,
	}
}

// RegisterName requests name as primary owner. Queueing behind another
// owner counts as failure.
func (e *Endpoint) RegisterName(name string) error {
	reply, err := e.conn.RequestName(name, dbus.NameFlagReplaceExisting|dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ipc.ErrRegistration, name, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("%w: %s: not primary owner (reply %d)", ipc.ErrRegistration, name, reply)
	}
	e.name = name
	slog.Info("D-Bus name acquired", "name", name)
	return nil
}

// Publish exports h under path together with introspection data.
func (e *Endpoint) Publish(path string, h ipc.Handler) error {
	objPath := dbus.ObjectPath(path)
	if !objPath.IsValid() {
		return fmt.Errorf("%w: invalid object path %q", ipc.ErrPublish, path)
	}

	obj := &blinkObject{iface: e.iface, submit: func(cmd ipc.Command) (*ipc.Fault, error) {
		return e.Submit(context.Background(), h, cmd)
	}}
	if err := e.conn.Export(obj, objPath, e.iface); err != nil {
		return fmt.Errorf("%w: %s: %w", ipc.ErrPublish, path, err)
	}

	node := &introspect.Node{
		Name: path,
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{Name: e.iface, Methods: introspect.Methods(obj)},
		},
	}
	if err := e.conn.Export(introspect.NewIntrospectable(node), objPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("%w: %s introspection: %w", ipc.ErrPublish, path, err)
	}
	slog.Info("D-Bus object exported", "path", path, "interface", e.iface)
	return nil
}

// Close stops dispatching, gives up the name and closes the connection.
func (e *Endpoint) Close() error {
	e.Queue.Close()
	var errs []error
	if e.name != "" {
		if _, err := e.conn.ReleaseName(e.name); err != nil {
			errs = append(errs, fmt.Errorf("failed to release name %s: %w", e.name, err))
		}
		e.name = ""
	}
	if err := e.conn.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// blinkObject is the exported method set. godbus maps the arguments to the
// signatures yyyd, uyyyd, d and the empty signature.
type blinkObject struct {
	iface  string
	submit func(cmd ipc.Command) (*ipc.Fault, error)
}

func (o *blinkObject) SetAll(r, g, b byte, brightness float64) *dbus.Error {
	return o.call(ipc.Command{Op: ipc.OpSetAll, Color: device.RGB(r, g, b), Brightness: brightness})
}

func (o *blinkObject) SetPixel(index uint32, r, g, b byte, brightness float64) *dbus.Error {
	return o.call(ipc.Command{Op: ipc.OpSetPixel, Index: index, Color: device.RGB(r, g, b), Brightness: brightness})
}

func (o *blinkObject) SetBrightness(brightness float64) *dbus.Error {
	return o.call(ipc.Command{Op: ipc.OpSetBrightness, Brightness: brightness})
}

func (o *blinkObject) Clear() *dbus.Error {
	return o.call(ipc.Command{Op: ipc.OpClear})
}

func (o *blinkObject) Show() *dbus.Error {
	return o.call(ipc.Command{Op: ipc.OpShow})
}

func (o *blinkObject) call(cmd ipc.Command) *dbus.Error {
	fault, err := o.submit(cmd)
	if err != nil {
		return dbus.NewError(o.iface+".Error.Unavailable", []interface{}{err.Error()})
	}
	return faultError(o.iface, fault)
}

func faultError(iface string, fault *ipc.Fault) *dbus.Error {
	if fault == nil {
		return nil
	}
	return dbus.NewError(iface+".Error."+string(fault.Kind), []interface{}{fault.Message})
}
