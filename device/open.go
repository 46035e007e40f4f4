package device

import (
	"fmt"
	"strings"

	c "lautenbacher.net/blinkd/config"
)

// Open creates the strip selected by hw.LEDType. Strips backed by hardware
// also implement io.Closer; the caller closes them after the service stopped.
func Open(hw c.HardwareConfig) (Strip, error) {
	var (
		strip Strip
		err   error
	)
	switch strings.ToLower(hw.LEDType) {
	case "apa102", "ws2801":
		strip, err = OpenSPI(hw)
	case "adalight":
		strip, err = OpenAdalight(hw)
	case "talking":
		strip = NewTalkingStrip(hw.Display.LedsTotal)
	default:
		return nil, fmt.Errorf("unknown LED type %q", hw.LEDType)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s strip: %w", hw.LEDType, err)
	}
	return strip, nil
}
