package config

import "errors"

// RuntimeConfig defines the subset of the configuration that can be
// safely modified at runtime through the web UI. Transport, bus names and
// hardware wiring are excluded.
type RuntimeConfig struct {
	ColorCorrection   []float64 `yaml:"ColorCorrection" json:"ColorCorrection"`
	InitialBrightness float64   `yaml:"InitialBrightness" json:"InitialBrightness"`
	APA102_Brightness int       `yaml:"APA102_Brightness" json:"APA102_Brightness"`
}

// Runtime extracts the runtime-editable settings.
func (c *Config) Runtime() RuntimeConfig {
	cc := make([]float64, len(c.Hardware.Display.ColorCorrection))
	copy(cc, c.Hardware.Display.ColorCorrection)
	return RuntimeConfig{
		ColorCorrection:   cc,
		InitialBrightness: c.Hardware.Display.InitialBrightness,
		APA102_Brightness: c.Hardware.Display.APA102_Brightness,
	}
}

// ApplyRuntime merges rc into the display section.
func (c *Config) ApplyRuntime(rc RuntimeConfig) {
	c.Hardware.Display.ColorCorrection = rc.ColorCorrection
	c.Hardware.Display.InitialBrightness = rc.InitialBrightness
	c.Hardware.Display.APA102_Brightness = rc.APA102_Brightness
}

func (rc RuntimeConfig) Validate() error {
	return errors.Join(validateRuntime(rc.ColorCorrection, rc.InitialBrightness, rc.APA102_Brightness)...)
}
