// Package ipc defines the contract between the blink service and the
// transport that carries calls from other processes.
package ipc

import (
	"context"
	"errors"
	"fmt"

	"lautenbacher.net/blinkd/device"
)

var (
	ErrRegistration  = errors.New("name registration failed")
	ErrPublish       = errors.New("object publication failed")
	ErrClosed        = errors.New("endpoint closed")
	ErrUnknownMethod = errors.New("unknown method")
)

type Op int

const (
	OpSetAll Op = iota
	OpSetPixel
	OpSetBrightness
	OpClear
	OpShow
)

var opNames = [...]string{
	OpSetAll:        "SetAll",
	OpSetPixel:      "SetPixel",
	OpSetBrightness: "SetBrightness",
	OpClear:         "Clear",
	OpShow:          "Show",
}

// String returns the method name used on the wire.
func (o Op) String() string {
	if o < 0 || int(o) >= len(opNames) {
		return fmt.Sprintf("Op(%d)", int(o))
	}
	return opNames[o]
}

// ParseOp maps a wire method name back to its Op.
func ParseOp(name string) (Op, error) {
	for op, n := range opNames {
		if n == name {
			return Op(op), nil
		}
	}
	return 0, fmt.Errorf("%w %q", ErrUnknownMethod, name)
}

// Command is one decoded call. Fields that the operation does not use are
// zero.
type Command struct {
	Op         Op
	Index      uint32
	Color      device.Color
	Brightness float64
}

type FaultKind string

const (
	FaultInvalidParameter FaultKind = "InvalidParameter"
	FaultOutOfRange       FaultKind = "OutOfRange"
	FaultDeviceIO         FaultKind = "DeviceIOError"
	FaultUnknownMethod    FaultKind = "UnknownMethod"
	FaultFailed           FaultKind = "Failed"
)

// Fault is the error reply sent back to a caller.
type Fault struct {
	Kind    FaultKind
	Message string
}

func (f *Fault) Error() string {
	return string(f.Kind) + ": " + f.Message
}

// Handler executes commands. A nil Fault means success.
type Handler interface {
	Handle(cmd Command) *Fault
}

type HandlerFunc func(cmd Command) *Fault

func (f HandlerFunc) Handle(cmd Command) *Fault {
	return f(cmd)
}

// Endpoint is a transport connection that can own a name, publish a handler
// under an object path and deliver calls one at a time.
//
// DispatchNext blocks until one call was handled, ctx is done (returns
// ctx.Err()) or the endpoint was closed (returns ErrClosed). The handler runs
// on the goroutine calling DispatchNext.
type Endpoint interface {
	RegisterName(name string) error
	Publish(path string, h Handler) error
	DispatchNext(ctx context.Context) error
	Close() error
}
