// Package devicetest provides a recording device.Strip for tests.
package devicetest

import (
	"fmt"
	"sync"

	"lautenbacher.net/blinkd/device"
)

// FakeStrip records what was shown and can be told to fail. All methods are
// safe to call from the test goroutine while a service worker drives it.
type FakeStrip struct {
	mu        sync.Mutex
	buf       *device.Buffer
	calls     []string
	shows     int
	shown     []device.Pixel
	shownGlob float64
	showErr   error
	panicOn   string
	lenCalls  int
}

var _ device.Strip = (*FakeStrip)(nil)

func NewFakeStrip(leds int) *FakeStrip {
	return &FakeStrip{buf: device.NewBuffer(leds), shownGlob: 1}
}

func (f *FakeStrip) record(call string) {
	f.calls = append(f.calls, call)
	if f.panicOn == call {
		panic(fmt.Sprintf("fake strip told to panic in %s", call))
	}
}

// Len is counted by LenCalls but not listed in Calls.
func (f *FakeStrip) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lenCalls++
	return f.buf.Len()
}

func (f *FakeStrip) LenCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lenCalls
}

func (f *FakeStrip) SetAll(color device.Color, brightness float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SetAll")
	f.buf.SetAll(color, brightness)
}

func (f *FakeStrip) SetPixel(index int, color device.Color, brightness float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SetPixel")
	f.buf.SetPixel(index, color, brightness)
}

func (f *FakeStrip) SetBrightness(brightness float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SetBrightness")
	f.buf.SetBrightness(brightness)
}

func (f *FakeStrip) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Clear")
	f.buf.Clear()
}

// Show snapshots the pending state unless a failure was injected, in which
// case the snapshot is left untouched and the error wraps device.ErrDeviceIO.
func (f *FakeStrip) Show() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Show")
	if f.showErr != nil {
		return fmt.Errorf("%w: %w", device.ErrDeviceIO, f.showErr)
	}
	f.shows++
	f.shown = f.buf.Pixels()
	f.shownGlob = f.buf.Brightness()
	return nil
}

// FailShows makes every following Show fail with err until called with nil.
func (f *FakeStrip) FailShows(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.showErr = err
}

// PanicOn makes the named method panic, e.g. "Show".
func (f *FakeStrip) PanicOn(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.panicOn = method
}

// ShowCount is the number of successful Show calls.
func (f *FakeStrip) ShowCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shows
}

// Shown returns the pixels and global brightness of the last successful Show.
func (f *FakeStrip) Shown() ([]device.Pixel, float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ret := make([]device.Pixel, len(f.shown))
	copy(ret, f.shown)
	return ret, f.shownGlob
}

// Pending returns the state that the next Show would transmit.
func (f *FakeStrip) Pending() ([]device.Pixel, float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buf.Pixels(), f.buf.Brightness()
}

// Calls returns the names of all strip methods called so far, Len excluded.
func (f *FakeStrip) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ret := make([]string, len(f.calls))
	copy(ret, f.calls)
	return ret
}
