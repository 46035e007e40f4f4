package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"

	"lautenbacher.net/blinkd/logging"
)

const CONFILE = "config.yml"

var (
	transports   = []string{"dbus", "socket"}
	ledTypes     = []string{"apa102", "ws2801", "adalight", "talking"}
	gpioLibs     = []string{"periph.io", "rpio"}
	spiLedTypes  = []string{"apa102", "ws2801"}
	logFormats   = []string{"text", "json"}
	busShortcuts = []string{"session", "system"}
)

type Config struct {
	Service  ServiceConfig  `yaml:"Service"`
	Hardware HardwareConfig `yaml:"Hardware"`
	Admin    AdminConfig    `yaml:"Admin"`
	Logging  LoggingConfig  `yaml:"Logging"`
}

// ServiceConfig describes how the device is published to other processes.
type ServiceConfig struct {
	Name       string        `yaml:"Name"`
	Path       string        `yaml:"Path"`
	Interface  string        `yaml:"Interface"`
	Transport  string        `yaml:"Transport"`
	Bus        string        `yaml:"Bus"`
	SocketPath string        `yaml:"SocketPath"`
	RetryDelay time.Duration `yaml:"RetryDelay"`
}

type HardwareConfig struct {
	LEDType      string        `yaml:"LEDType"`
	GPIOLibrary  string        `yaml:"GPIOLibrary"`
	SPIDevice    string        `yaml:"SPIDevice"`
	SPIFrequency int           `yaml:"SPIFrequency"`
	SerialPort   string        `yaml:"SerialPort"`
	BaudRate     int           `yaml:"BaudRate"`
	Display      DisplayConfig `yaml:"Display"`
}

type DisplayConfig struct {
	LedsTotal         int                `yaml:"LedsTotal"`
	ColorCorrection   []float64          `yaml:"ColorCorrection,flow"`
	APA102_Brightness int                `yaml:"APA102_Brightness"`
	InitialBrightness float64            `yaml:"InitialBrightness"`
	LedSegments       []LedSegmentConfig `yaml:"LedSegments"`
}

type LedSegmentConfig struct {
	FirstLed int  `yaml:"FirstLed"`
	LastLed  int  `yaml:"LastLed"`
	Reverse  bool `yaml:"Reverse"`
}

type AdminConfig struct {
	Enabled bool   `yaml:"Enabled"`
	Listen  string `yaml:"Listen"`
}

type LoggingConfig struct {
	TUI LogConfig `yaml:"TUI"`
	HW  LogConfig `yaml:"HW"`
}

type LogConfig struct {
	Level  string `yaml:"Level"`
	Format string `yaml:"Format"`
	File   string `yaml:"File"`
}

// Options converts the section into logging options.
func (s LogConfig) Options() logging.Options {
	return logging.Options{Level: s.Level, Format: s.Format, File: s.File}
}

// Default returns a configuration that publishes a simulated 60 LED strip
// on the D-Bus session bus under the names used by the original blink
// service.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:       "org.zbus.BlinkService",
			Path:       "/org/zbus/BlinkService",
			Interface:  "org.zbus.BlinkService1",
			Transport:  "dbus",
			Bus:        "session",
			SocketPath: "/run/blinkd/blinkd.sock",
			RetryDelay: 100 * time.Millisecond,
		},
		Hardware: HardwareConfig{
			LEDType:      "talking",
			GPIOLibrary:  "periph.io",
			SPIDevice:    "/dev/spidev0.0",
			SPIFrequency: 1000000,
			BaudRate:     115200,
			Display: DisplayConfig{
				LedsTotal:         60,
				ColorCorrection:   []float64{1, 1, 1},
				APA102_Brightness: 31,
				InitialBrightness: 1,
			},
		},
		Admin: AdminConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8090",
		},
		Logging: LoggingConfig{
			TUI: LogConfig{Level: "INFO", Format: "text"},
			HW:  LogConfig{Level: "INFO", Format: "text"},
		},
	}
}

// ReadConfig decodes the YAML file cfile on top of Default() and validates
// the result.
func ReadConfig(cfile string) (*Config, error) {
	f, err := os.Open(cfile)
	if err != nil {
		return nil, fmt.Errorf("can't open config file %s: %w", cfile, err)
	}
	defer f.Close()

	conf := Default()
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(conf); err != nil {
		return nil, fmt.Errorf("can't decode config file %s: %w", cfile, err)
	}

	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", cfile, err)
	}
	return conf, nil
}

// Validate checks every section and joins all problems into one error.
func (c *Config) Validate() error {
	var errs []error
	errs = append(errs, c.Service.validate()...)
	errs = append(errs, c.Hardware.validate()...)
	errs = append(errs, c.Logging.validate()...)
	if c.Admin.Enabled && c.Admin.Listen == "" {
		errs = append(errs, errors.New("Admin.Listen must be set when Admin.Enabled is true"))
	}
	return errors.Join(errs...)
}

func (s ServiceConfig) validate() []error {
	var errs []error
	if s.Name == "" {
		errs = append(errs, errors.New("Service.Name must not be empty"))
	}
	if !strings.HasPrefix(s.Path, "/") {
		errs = append(errs, fmt.Errorf("Service.Path %q must start with '/'", s.Path))
	}
	if !slices.Contains(transports, s.Transport) {
		errs = append(errs, fmt.Errorf("Service.Transport %q must be one of %v", s.Transport, transports))
	}
	switch s.Transport {
	case "dbus":
		if s.Interface == "" {
			errs = append(errs, errors.New("Service.Interface must not be empty for the dbus transport"))
		}
		if s.Bus == "" || (!slices.Contains(busShortcuts, s.Bus) && !strings.Contains(s.Bus, ":")) {
			errs = append(errs, fmt.Errorf("Service.Bus %q must be one of %v or a bus address", s.Bus, busShortcuts))
		}
	case "socket":
		if s.SocketPath == "" {
			errs = append(errs, errors.New("Service.SocketPath must not be empty for the socket transport"))
		}
	}
	if s.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("Service.RetryDelay (%v) must be non-negative", s.RetryDelay))
	}
	return errs
}

func (h HardwareConfig) validate() []error {
	var errs []error
	if !slices.Contains(ledTypes, strings.ToLower(h.LEDType)) {
		errs = append(errs, fmt.Errorf("Hardware.LEDType %q must be one of %v", h.LEDType, ledTypes))
	}
	if slices.Contains(spiLedTypes, strings.ToLower(h.LEDType)) {
		if !slices.Contains(gpioLibs, h.GPIOLibrary) {
			errs = append(errs, fmt.Errorf("Hardware.GPIOLibrary %q must be one of %v", h.GPIOLibrary, gpioLibs))
		}
		if h.SPIFrequency <= 0 {
			errs = append(errs, fmt.Errorf("Hardware.SPIFrequency (%d) must be positive", h.SPIFrequency))
		}
	}
	if strings.ToLower(h.LEDType) == "adalight" {
		if h.SerialPort == "" {
			errs = append(errs, errors.New("Hardware.SerialPort must be set for adalight strips"))
		}
		if h.BaudRate <= 0 {
			errs = append(errs, fmt.Errorf("Hardware.BaudRate (%d) must be positive", h.BaudRate))
		}
		if h.Display.LedsTotal > 0x10000 {
			errs = append(errs, fmt.Errorf("Hardware.Display.LedsTotal (%d) exceeds the adalight limit of 65536", h.Display.LedsTotal))
		}
	}
	errs = append(errs, h.Display.validate()...)
	return errs
}

func (d DisplayConfig) validate() []error {
	var errs []error
	if d.LedsTotal <= 0 {
		errs = append(errs, fmt.Errorf("Hardware.Display.LedsTotal (%d) must be positive", d.LedsTotal))
	}
	errs = append(errs, validateRuntime(d.ColorCorrection, d.InitialBrightness, d.APA102_Brightness)...)

	if d.LedsTotal <= 0 {
		return errs
	}
	used := make([]bool, d.LedsTotal)
	for i, seg := range d.LedSegments {
		first, last := min(seg.FirstLed, seg.LastLed), max(seg.FirstLed, seg.LastLed)
		if first < 0 || last > d.LedsTotal-1 {
			errs = append(errs, fmt.Errorf("Hardware.Display.LedSegments[%d] range %d-%d must be between 0 and %d", i, first, last, d.LedsTotal-1))
			continue
		}
		for idx := first; idx <= last; idx++ {
			if used[idx] {
				errs = append(errs, fmt.Errorf("Hardware.Display.LedSegments[%d] overlaps another segment at index %d", i, idx))
				break
			}
			used[idx] = true
		}
	}
	return errs
}

// validateRuntime covers the fields that may also be changed through the
// web API.
func validateRuntime(colorCorrection []float64, initialBrightness float64, apa102Brightness int) []error {
	var errs []error
	if len(colorCorrection) != 3 {
		errs = append(errs, fmt.Errorf("ColorCorrection must have exactly 3 elements, got %d", len(colorCorrection)))
	} else {
		for i, v := range colorCorrection {
			if math.IsNaN(v) || v < 0 || v > 1 {
				errs = append(errs, fmt.Errorf("ColorCorrection[%d] (%v) must be between 0 and 1", i, v))
			}
		}
	}
	if math.IsNaN(initialBrightness) || initialBrightness < 0 || initialBrightness > 1 {
		errs = append(errs, fmt.Errorf("InitialBrightness (%v) must be between 0 and 1", initialBrightness))
	}
	if apa102Brightness < 0 || apa102Brightness > 31 {
		errs = append(errs, fmt.Errorf("APA102_Brightness (%d) must be between 0 and 31", apa102Brightness))
	}
	return errs
}

func (l LoggingConfig) validate() []error {
	var errs []error
	for name, lc := range map[string]LogConfig{"TUI": l.TUI, "HW": l.HW} {
		if _, err := logging.ParseLevel(lc.Level); err != nil {
			errs = append(errs, fmt.Errorf("Logging.%s.Level: %w", name, err))
		}
		if lc.Format != "" && !slices.Contains(logFormats, strings.ToLower(lc.Format)) {
			errs = append(errs, fmt.Errorf("Logging.%s.Format %q must be one of %v", name, lc.Format, logFormats))
		}
	}
	return errs
}
