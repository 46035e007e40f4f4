package device

import (
	"log/slog"
)

// TalkingStrip keeps its pixels in memory and logs every call. It stands in
// for real hardware when there is none.
type TalkingStrip struct {
	*Buffer
	logger *slog.Logger
	shows  int
}

func NewTalkingStrip(leds int) *TalkingStrip {
	return &TalkingStrip{
		Buffer: NewBuffer(leds),
		logger: slog.Default().With("strip", "talking"),
	}
}

func (s *TalkingStrip) SetAll(color Color, brightness float64) {
	s.logger.Info("Setting all LEDs", "color", color, "brightness", brightness)
	s.Buffer.SetAll(color, brightness)
}

func (s *TalkingStrip) SetPixel(index int, color Color, brightness float64) {
	s.logger.Info("Setting LED", "index", index, "color", color, "brightness", brightness)
	s.Buffer.SetPixel(index, color, brightness)
}

func (s *TalkingStrip) SetBrightness(brightness float64) {
	s.logger.Info("Setting global brightness", "brightness", brightness)
	s.Buffer.SetBrightness(brightness)
}

func (s *TalkingStrip) Clear() {
	s.logger.Info("Clearing all LEDs")
	s.Buffer.Clear()
}

func (s *TalkingStrip) Show() error {
	s.shows++
	lit := 0
	for _, px := range s.Pixels() {
		if !px.Color.IsEmpty() && px.Brightness > 0 {
			lit++
		}
	}
	s.logger.Info("Showing LEDs", "frame", s.shows, "lit", lit, "total", s.Len(), "brightness", s.Brightness())
	return nil
}

// Shows is the number of completed Show calls.
func (s *TalkingStrip) Shows() int {
	return s.shows
}
