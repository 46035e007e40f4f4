package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rivo/tview"

	"lautenbacher.net/blinkd/device"
)

var bars = [...]string{"▁", "▂", "▃", "▄", "▅", "▆", "▇", "█"}

// renderFrame draws leds as two text rows in logical order. Gaps between
// segments are shown as dots.
func renderFrame(leds []device.Color, spans []device.Span) string {
	var top, bot strings.Builder
	top.WriteString(" ")
	bot.WriteString(" ")
	for _, span := range spans {
		if !span.Visible {
			length := span.LastLed - span.FirstLed + 1
			top.WriteString(strings.Repeat(" ", length))
			bot.WriteString(strings.Repeat("·", length))
			continue
		}
		for _, v := range leds[span.FirstLed : span.LastLed+1] {
			t, b := ledChars(v)
			top.WriteString(t)
			bot.WriteString(b)
		}
	}
	return top.String() + "\n" + bot.String()
}

// ledChars returns the top and bottom cell for one LED. The bar height is
// the brightest channel in 16 steps.
func ledChars(v device.Color) (string, string) {
	if v.IsEmpty() {
		return " ", " "
	}
	value := max(v.Red, v.Green, v.Blue)
	level := (int(value)*16 + 255) / 256
	colorStr := scaledColor(v)

	topChar, bottomChar := " ", "█"
	if level <= len(bars) {
		bottomChar = bars[level-1]
	} else {
		topChar = bars[level-len(bars)-1]
	}
	return colorStr + topChar + "[-]", colorStr + bottomChar + "[-]"
}

func scaledColor(led device.Color) string {
	maxColor := float64(max(led.Red, led.Green, led.Blue))
	if maxColor == 0 {
		return "[#000000]"
	}
	factor := 255 / maxColor
	red := math.Min(float64(led.Red)*factor, 255)
	green := math.Min(float64(led.Green)*factor, 255)
	blue := math.Min(float64(led.Blue)*factor, 255)

	const epsilon = 1e-9

	return fmt.Sprintf("[#%02x%02x%02x]", byte(math.Round(red+epsilon)), byte(math.Round(green+epsilon)), byte(math.Round(blue+epsilon)))
}

// renderCalls lists the newest call first.
func renderCalls(calls []callEntry) string {
	var buf strings.Builder
	for i := len(calls) - 1; i >= 0; i-- {
		call := calls[i]
		fmt.Fprintf(&buf, "%s %-13s", call.at.Format("15:04:05.000"), call.cmd.Op)
		if call.fault != nil {
			fmt.Fprintf(&buf, " [#ff0000]%s[-]", tview.Escape(string(call.fault.Kind)))
		} else {
			fmt.Fprintf(&buf, " [#00ff00]ok[-] %v", call.elapsed.Round(time.Microsecond))
		}
		buf.WriteString("\n")
	}
	return buf.String()
}
