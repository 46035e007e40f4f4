package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	c "lautenbacher.net/blinkd/config"
	"lautenbacher.net/blinkd/device"
	"lautenbacher.net/blinkd/ipc"
	"lautenbacher.net/blinkd/ipc/dbus"
	"lautenbacher.net/blinkd/ipc/socket"
	"lautenbacher.net/blinkd/logging"
	"lautenbacher.net/blinkd/service"
	"lautenbacher.net/blinkd/tui"
)

const tuiReadyTimeout = 5 * time.Second

type App struct {
	ossignal    chan os.Signal
	cfile       string
	useTUI      bool
	forceSocket bool

	conf       *c.Config
	strip      device.Strip
	tuiStrip   *tui.Strip
	service    *service.Service
	admin      *http.Server
	watcher    *fsnotify.Watcher
	stopsignal chan struct{}
	shutdownWg sync.WaitGroup

	openStrip func(conf *c.Config) (device.Strip, error)
	connect   func(conf *c.Config) service.EndpointFactory
}

func NewApp(ossignal chan os.Signal, cfile string, useTUI, forceSocket bool) *App {
	app := &App{
		ossignal:    ossignal,
		cfile:       cfile,
		useTUI:      useTUI,
		forceSocket: forceSocket,
		connect:     endpointFactory,
	}
	app.openStrip = app.defaultOpenStrip
	return app
}

func main() {
	cfile := flag.String("config", c.CONFILE, "Config file to use")
	useTUI := flag.Bool("tui", false, "Simulate the strip in a terminal UI")
	forceSocket := flag.Bool("socket", false, "Serve on the unix socket regardless of the configured transport")
	flag.Parse()

	ossignal := make(chan os.Signal, 1)
	signal.Notify(ossignal, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	app := NewApp(ossignal, *cfile, *useTUI, *forceSocket)
	if err := app.initialise(); err != nil {
		app.shutdown()
		fail(err)
	}
	app.run()
}

func fail(err error) {
	slog.Error("Startup failed", "error", err)
	logging.Close()
	fmt.Fprintln(os.Stderr, "blinkd:", err)
	os.Exit(1)
}

// run blocks until an interrupt. SIGHUP restarts everything with a freshly
// read config.
func (a *App) run() {
	for sig := range a.ossignal {
		if sig == syscall.SIGHUP {
			slog.Info("Reloading config and restarting", "config", a.cfile)
			if err := a.reload(); err != nil {
				fail(err)
			}
			continue
		}
		slog.Info("Shutting down", "signal", sig)
		a.shutdown()
		logging.Close()
		return
	}
}

func (a *App) reload() error {
	a.shutdown()
	logging.Close()
	if err := a.initialise(); err != nil {
		a.shutdown()
		return err
	}
	return nil
}

func (a *App) initialise() error {
	conf, err := c.ReadConfig(a.cfile)
	if err != nil {
		return err
	}
	if a.forceSocket {
		conf.Service.Transport = "socket"
	}
	a.conf = conf

	logConf := conf.Logging.HW
	if a.useTUI {
		logConf = conf.Logging.TUI
	}
	if err := logging.Init(a.useTUI, logConf.Options()); err != nil {
		return fmt.Errorf("failed to initialise logging: %w", err)
	}

	strip, err := a.openStrip(conf)
	if err != nil {
		return fmt.Errorf("failed to open strip: %w", err)
	}
	a.strip = strip
	strip.SetBrightness(conf.Hardware.Display.InitialBrightness)

	opts := service.Options{
		Name:       conf.Service.Name,
		Path:       conf.Service.Path,
		RetryDelay: conf.Service.RetryDelay,
	}
	if a.tuiStrip != nil {
		opts.Hook = a.tuiStrip.RecordCall
	}
	a.service = service.New(opts, a.connect(conf))
	if err := a.service.Start(strip); err != nil {
		return err
	}

	a.stopsignal = make(chan struct{})
	if conf.Admin.Enabled {
		a.startAdmin(conf.Admin.Listen)
	}
	if err := a.startWatcher(); err != nil {
		slog.Warn("Config file watcher not available", "error", err)
	}
	slog.Info("blinkd running", "name", conf.Service.Name, "transport", conf.Service.Transport,
		"leds", conf.Hardware.Display.LedsTotal, "type", conf.Hardware.LEDType)
	return nil
}

// shutdown undoes initialise in reverse order. It is safe on a partially
// initialised App.
func (a *App) shutdown() {
	if a.stopsignal != nil {
		close(a.stopsignal)
		a.stopsignal = nil
	}
	if a.watcher != nil {
		if err := a.watcher.Close(); err != nil {
			slog.Warn("Failed to close config watcher", "error", err)
		}
		a.watcher = nil
	}
	if a.admin != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := a.admin.Shutdown(ctx); err != nil {
			slog.Warn("Failed to shut down admin server", "error", err)
		}
		cancel()
		a.admin = nil
	}
	a.shutdownWg.Wait()

	if a.service != nil {
		if err := a.service.Stop(); err != nil && !errors.Is(err, service.ErrNotRunning) {
			slog.Error("Failed to stop service", "error", err)
		}
		a.service = nil
	}
	if closer, ok := a.strip.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			slog.Error("Failed to close strip", "error", err)
		}
	}
	a.strip = nil
	a.tuiStrip = nil
}

func (a *App) defaultOpenStrip(conf *c.Config) (device.Strip, error) {
	if !a.useTUI {
		return device.Open(conf.Hardware)
	}
	strip, err := tui.NewStrip(conf, a.ossignal)
	if err != nil {
		return nil, err
	}
	strip.Start()
	select {
	case <-strip.Ready():
	case <-time.After(tuiReadyTimeout):
		strip.Stop()
		return nil, errors.New("terminal UI did not come up")
	}
	a.tuiStrip = strip
	return strip, nil
}

func endpointFactory(conf *c.Config) service.EndpointFactory {
	sc := conf.Service
	if sc.Transport == "socket" {
		return func() (ipc.Endpoint, error) {
			return socket.New(sc.SocketPath), nil
		}
	}
	return func() (ipc.Endpoint, error) {
		ep, err := dbus.Connect(sc.Bus, sc.Interface)
		if err != nil {
			return nil, err
		}
		return ep, nil
	}
}

type status struct {
	Name       string  `json:"name"`
	Path       string  `json:"path"`
	Transport  string  `json:"transport"`
	State      string  `json:"state"`
	Alive      bool    `json:"alive"`
	LedType    string  `json:"ledType"`
	LedsTotal  int     `json:"ledsTotal"`
	Brightness float64 `json:"initialBrightness"`
}

func (a *App) adminHandler() http.Handler {
	conf, svc := a.conf, a.service
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", service.MetricsHandler())
	c.NewConfigAPI(a.cfile).Register(mux)
	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(status{
			Name:       conf.Service.Name,
			Path:       conf.Service.Path,
			Transport:  conf.Service.Transport,
			State:      svc.State().String(),
			Alive:      svc.Alive(),
			LedType:    conf.Hardware.LEDType,
			LedsTotal:  conf.Hardware.Display.LedsTotal,
			Brightness: conf.Hardware.Display.InitialBrightness,
		})
	})
	return mux
}

func (a *App) startAdmin(listen string) {
	a.admin = &http.Server{
		Addr:              listen,
		Handler:           a.adminHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv := a.admin
	a.shutdownWg.Add(1)
	go func() {
		defer a.shutdownWg.Done()
		slog.Info("Admin server listening", "address", listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Admin server failed", "error", err)
		}
	}()
}

// startWatcher turns writes to the config file into SIGHUP. The directory is
// watched since editors often replace the file instead of writing it.
func (a *App) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	cfile, err := filepath.Abs(a.cfile)
	if err != nil {
		watcher.Close()
		return err
	}
	if err := watcher.Add(filepath.Dir(cfile)); err != nil {
		watcher.Close()
		return err
	}
	a.watcher = watcher

	stop := a.stopsignal
	a.shutdownWg.Add(1)
	go func() {
		defer a.shutdownWg.Done()
		for {
			select {
			case <-stop:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != cfile || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
					continue
				}
				slog.Info("Config file changed", "event", event.Op.String())
				select {
				case a.ossignal <- syscall.SIGHUP:
				default:
					// a signal is already pending
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("Config watcher error", "error", err)
			}
		}
	}()
	return nil
}
