// Package tui shows a simulated LED strip in the terminal, next to the most
// recent calls and the log output.
package tui

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/gammazero/deque"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	c "lautenbacher.net/blinkd/config"
	"lautenbacher.net/blinkd/device"
	"lautenbacher.net/blinkd/ipc"
	"lautenbacher.net/blinkd/logging"
	"lautenbacher.net/blinkd/util"
)

const maxCalls = 12

// frame is what the worker hands over to the UI on every Show.
type frame struct {
	leds       []device.Color
	brightness float64
	number     int
}

type callEntry struct {
	at      time.Time
	cmd     ipc.Command
	fault   *ipc.Fault
	elapsed time.Duration
}

// Strip is a device.Strip that draws into a tview application instead of
// hardware. The pixel methods are called by the service worker; drawing
// happens on the tview goroutine.
type Strip struct {
	*device.Buffer
	spans    []device.Span
	name     string
	ossignal chan<- os.Signal
	rendered []device.Color
	shows    int
	dropped  uint64 // refresher only

	frames       *util.AtomicEvent[frame]
	callsChanged *util.AtomicEvent[int]
	callsMu      sync.Mutex
	calls        deque.Deque[callEntry]

	tviewapp     *tview.Application
	intro        *tview.TextView
	ledDisplay   *tview.TextView
	callView     *tview.TextView
	logView      *tview.TextView
	logFlushOnce sync.Once
	readyChan    chan struct{}
	stopChan     chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
}

var _ device.Strip = (*Strip)(nil)

func NewStrip(conf *c.Config, ossignal chan<- os.Signal) (*Strip, error) {
	spans, err := device.Spans(conf.Hardware.Display)
	if err != nil {
		return nil, err
	}
	return &Strip{
		Buffer:       device.NewBuffer(conf.Hardware.Display.LedsTotal),
		spans:        spans,
		name:         conf.Service.Name,
		ossignal:     ossignal,
		frames:       util.NewAtomicEvent[frame](),
		callsChanged: util.NewAtomicEvent[int](),
		readyChan:    make(chan struct{}),
		stopChan:     make(chan struct{}),
	}, nil
}

// Ready is closed after the first draw, when log output goes to the log
// pane.
func (s *Strip) Ready() <-chan struct{} {
	return s.readyChan
}

// Show renders the pending state and passes it to the UI. Only the latest
// frame is drawn if the UI falls behind.
func (s *Strip) Show() error {
	s.rendered = s.Render(s.rendered)
	s.shows++
	leds := make([]device.Color, len(s.rendered))
	copy(leds, s.rendered)
	s.frames.Send(frame{leds: leds, brightness: s.Brightness(), number: s.shows})
	return nil
}

// RecordCall is a service.DispatchHook feeding the call pane.
func (s *Strip) RecordCall(cmd ipc.Command, fault *ipc.Fault, elapsed time.Duration) {
	s.callsMu.Lock()
	s.calls.PushBack(callEntry{at: time.Now(), cmd: cmd, fault: fault, elapsed: elapsed})
	for s.calls.Len() > maxCalls {
		s.calls.PopFront()
	}
	n := s.calls.Len()
	s.callsMu.Unlock()
	s.callsChanged.Send(n)
}

func (s *Strip) recentCalls() []callEntry {
	s.callsMu.Lock()
	defer s.callsMu.Unlock()
	ret := make([]callEntry, s.calls.Len())
	for i := range ret {
		ret[i] = s.calls.At(i)
	}
	return ret
}

// Start builds the UI and runs it until Stop.
func (s *Strip) Start() {
	s.tviewapp = tview.NewApplication()

	s.intro = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	s.intro.SetText(s.getIntroText(frame{brightness: s.Brightness()}))
	s.intro.SetBorder(true).SetTitle(" BLINKD Simulation ").SetTitleColor(tcell.ColorLightBlue)
	s.intro.SetBackgroundColor(tcell.NewRGBColor(20, 20, 20))

	s.ledDisplay = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	s.ledDisplay.SetBorder(true)
	s.ledDisplay.SetBackgroundColor(tcell.NewRGBColor(30, 30, 30))
	s.ledDisplay.SetText(renderFrame(make([]device.Color, s.Len()), s.spans))

	s.callView = tview.NewTextView().
		SetDynamicColors(true)
	s.callView.SetBorder(true).SetTitle(" Calls ").SetTitleColor(tcell.ColorLightBlue)
	s.callView.SetBackgroundColor(tcell.NewRGBColor(30, 30, 30))

	s.logView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetChangedFunc(func() {
			s.logView.ScrollToEnd()
			s.tviewapp.Draw()
		})
	s.logView.SetBorder(true).SetTitle(" Logs ").SetTitleColor(tcell.ColorLightBlue)
	s.logView.SetBackgroundColor(tcell.NewRGBColor(40, 40, 40))

	bottom := tview.NewFlex().
		AddItem(s.callView, 0, 1, false).
		AddItem(s.logView, 0, 2, true)
	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(s.intro, 5, 0, false).
		AddItem(s.ledDisplay, 4, 0, false).
		AddItem(bottom, 0, 1, true)

	// Flush logs after first draw
	s.tviewapp.SetAfterDrawFunc(func(screen tcell.Screen) {
		s.logFlushOnce.Do(func() {
			if err := logging.SetOutput(tview.ANSIWriter(s.logView)); err != nil {
				slog.Error("Failed to redirect logs to the TUI", "error", err)
			}
			close(s.readyChan)
		})
	})

	s.tviewapp.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyCtrlC:
			s.ossignal <- os.Interrupt
			return nil
		case tcell.KeyRune:
			switch event.Rune() {
			case 'q', 'Q':
				s.ossignal <- os.Interrupt
				return nil
			case 'r', 'R':
				s.ossignal <- syscall.SIGHUP
				return nil
			}
		case tcell.KeyUp:
			row, col := s.logView.GetScrollOffset()
			s.logView.ScrollTo(row-1, col)
			return nil
		case tcell.KeyDown:
			row, col := s.logView.GetScrollOffset()
			s.logView.ScrollTo(row+1, col)
			return nil
		}
		return event
	})

	s.wg.Add(1)
	go s.refresher()

	go func() {
		if err := s.tviewapp.SetRoot(layout, true).Run(); err != nil {
			slog.Error("Error running TUI", "error", err)
			s.ossignal <- os.Interrupt
		}
	}()
}

// Stop ends the UI. Logging goes back to buffering so nothing is written
// into a dead pane.
func (s *Strip) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		if s.tviewapp == nil {
			return
		}
		s.tviewapp.Stop()
		s.wg.Wait()
		logging.BufferOutput()
	})
}

// Close implements io.Closer.
func (s *Strip) Close() error {
	s.Stop()
	return nil
}

func (s *Strip) refresher() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopChan:
			return
		case <-s.frames.Channel():
			f, skipped := s.frames.Take()
			s.dropped += skipped
			text, intro := renderFrame(f.leds, s.spans), s.getIntroText(f)
			s.tviewapp.QueueUpdateDraw(func() {
				s.ledDisplay.SetText(text)
				s.intro.SetText(intro)
			})
		case <-s.callsChanged.Channel():
			text := renderCalls(s.recentCalls())
			s.tviewapp.QueueUpdateDraw(func() {
				s.callView.SetText(text)
			})
		}
	}
}

func (s *Strip) getIntroText(f frame) string {
	line1 := fmt.Sprintf("Service [#ffff00]%s[white] | %d LEDs", s.name, s.Len())
	line2 := fmt.Sprintf("Frame [#ffff00]%-6d[white] (%d not drawn) | Brightness [#ffff00]%.2f[white]", f.number, s.dropped, f.brightness)
	line3 := "Hit [#ff0000]q[-] to exit, [#ff0000]r[-] to reload, [#ff0000]Up/Down[-] to scroll logs"
	return fmt.Sprintf("%s\n%s\n%s", line1, line2, line3)
}
