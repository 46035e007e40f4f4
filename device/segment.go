package device

import (
	"fmt"
	"sort"

	c "lautenbacher.net/blinkd/config"
)

// segment maps a range of logical pixel indices onto the physical chain.
// Invisible segments are the gaps between configured ones; they exist in
// the buffer but are not transmitted.
type segment struct {
	firstLed int
	lastLed  int
	visible  bool
	reverse  bool
	leds     []Color
}

// parseSegments builds the ordered segment list for a display. Without any
// configured segment the whole strip is one visible, forward segment.
func parseSegments(displayConfig c.DisplayConfig) ([]*segment, error) {
	ledsTotal := displayConfig.LedsTotal
	if len(displayConfig.LedSegments) == 0 {
		return []*segment{newSegment(0, ledsTotal-1, false, true, ledsTotal)}, nil
	}

	var segments []*segment
	all := make([]bool, ledsTotal)
	for _, cfg := range displayConfig.LedSegments {
		seg := newSegment(cfg.FirstLed, cfg.LastLed, cfg.Reverse, true, ledsTotal)
		for i := seg.firstLed; i <= seg.lastLed; i++ {
			if all[i] {
				return nil, fmt.Errorf("overlapping display segments at index %d", i)
			}
			all[i] = true
		}
		segments = append(segments, seg)
	}

	start := -1
	for index, used := range all {
		if start == -1 && !used {
			start = index
		} else if start != -1 && used {
			segments = append(segments, newSegment(start, index-1, false, false, ledsTotal))
			start = -1
		}
	}
	if start != -1 {
		segments = append(segments, newSegment(start, ledsTotal-1, false, false, ledsTotal))
	}

	sort.Slice(segments, func(i, j int) bool { return segments[i].firstLed < segments[j].firstLed })
	return segments, nil
}

func newSegment(firstled, lastled int, reverse bool, visible bool, ledsTotal int) *segment {
	if firstled > lastled {
		firstled, lastled = lastled, firstled
	}
	inst := segment{
		firstLed: clamp(firstled, ledsTotal),
		lastLed:  clamp(lastled, ledsTotal),
		visible:  visible,
		reverse:  reverse,
	}
	inst.leds = make([]Color, inst.lastLed-inst.firstLed+1)
	return &inst
}

// setLeds copies the segment's part of frame, reversed if configured.
func (s *segment) setLeds(frame []Color) {
	if !s.visible {
		return
	}
	copy(s.leds, frame[s.firstLed:s.lastLed+1])
	if s.reverse {
		for i, j := 0, len(s.leds)-1; i < j; i, j = i+1, j-1 {
			s.leds[i], s.leds[j] = s.leds[j], s.leds[i]
		}
	}
}

// getLeds returns the LEDs for the segment if visible, otherwise nil.
func (s *segment) getLeds() []Color {
	if s.visible {
		return s.leds
	}
	return nil
}

// physicalOrder appends the visible LEDs of all segments in chain order.
func physicalOrder(segments []*segment, frame []Color, dst []Color) []Color {
	dst = dst[:0]
	for _, seg := range segments {
		seg.setLeds(frame)
		dst = append(dst, seg.getLeds()...)
	}
	return dst
}

func clamp(led int, ledsTotal int) int {
	return max(0, min(led, ledsTotal-1))
}

// Span describes one segment of a display for renderers outside this
// package.
type Span struct {
	FirstLed int
	LastLed  int
	Visible  bool
	Reverse  bool
}

// Spans returns the display layout ordered by FirstLed, gaps included.
func Spans(displayConfig c.DisplayConfig) ([]Span, error) {
	segments, err := parseSegments(displayConfig)
	if err != nil {
		return nil, err
	}
	ret := make([]Span, len(segments))
	for i, seg := range segments {
		ret[i] = Span{FirstLed: seg.firstLed, LastLed: seg.lastLed, Visible: seg.visible, Reverse: seg.reverse}
	}
	return ret, nil
}
