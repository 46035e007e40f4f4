package service

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"lautenbacher.net/blinkd/controller"
	"lautenbacher.net/blinkd/device"
	"lautenbacher.net/blinkd/ipc"
)

// DispatchHook observes every handled call. It runs on the worker goroutine
// and must not block.
type DispatchHook func(cmd ipc.Command, fault *ipc.Fault, elapsed time.Duration)

// Dispatcher translates commands into controller calls and controller
// errors into faults.
type Dispatcher struct {
	ctrl *controller.Controller
	hook DispatchHook
}

var _ ipc.Handler = (*Dispatcher)(nil)

func NewDispatcher(ctrl *controller.Controller, hook DispatchHook) *Dispatcher {
	return &Dispatcher{ctrl: ctrl, hook: hook}
}

// Handle executes cmd. A panic in the strip is turned into a Failed fault.
func (d *Dispatcher) Handle(cmd ipc.Command) (fault *ipc.Fault) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Recovered panic while handling call", "method", cmd.Op, "panic", r)
			fault = &ipc.Fault{Kind: ipc.FaultFailed, Message: fmt.Sprintf("panic: %v", r)}
		}
		elapsed := time.Since(start)

		result := "ok"
		if fault != nil {
			result = string(fault.Kind)
			slog.Warn("Call failed", "method", cmd.Op, "kind", fault.Kind, "message", fault.Message)
		} else {
			slog.Debug("Call handled", "method", cmd.Op, "index", cmd.Index, "color", cmd.Color,
				"brightness", cmd.Brightness, "elapsed", elapsed)
		}
		callsTotal.WithLabelValues(cmd.Op.String(), result).Inc()
		callDuration.WithLabelValues(cmd.Op.String()).Observe(elapsed.Seconds())

		if d.hook != nil {
			d.hook(cmd, fault, elapsed)
		}
	}()

	if err := d.execute(cmd); err != nil {
		return toFault(err)
	}
	return nil
}

func (d *Dispatcher) execute(cmd ipc.Command) error {
	switch cmd.Op {
	case ipc.OpSetAll:
		return d.ctrl.SetAll(cmd.Color, cmd.Brightness)
	case ipc.OpSetPixel:
		return d.ctrl.SetPixel(cmd.Index, cmd.Color, cmd.Brightness)
	case ipc.OpSetBrightness:
		return d.ctrl.SetBrightness(cmd.Brightness)
	case ipc.OpClear:
		d.ctrl.Clear()
		return nil
	case ipc.OpShow:
		return d.ctrl.Show()
	default:
		return fmt.Errorf("%w %s", ipc.ErrUnknownMethod, cmd.Op)
	}
}

func toFault(err error) *ipc.Fault {
	kind := ipc.FaultFailed
	switch {
	case errors.Is(err, controller.ErrInvalidParameter):
		kind = ipc.FaultInvalidParameter
	case errors.Is(err, controller.ErrOutOfRange):
		kind = ipc.FaultOutOfRange
	case errors.Is(err, device.ErrDeviceIO):
		kind = ipc.FaultDeviceIO
	case errors.Is(err, ipc.ErrUnknownMethod):
		kind = ipc.FaultUnknownMethod
	}
	return &ipc.Fault{Kind: kind, Message: err.Error()}
}
