package device

// Pixel is the pending state of one LED before the global brightness is
// applied.
type Pixel struct {
	Color      Color
	Brightness float64
}

// Buffer is the in-memory pixel state shared by all strip implementations.
// It is not safe for concurrent use.
type Buffer struct {
	pixels     []Pixel
	brightness float64
}

// NewBuffer creates a buffer of n dark pixels with a global brightness of 1.
func NewBuffer(n int) *Buffer {
	return &Buffer{
		pixels:     make([]Pixel, n),
		brightness: 1,
	}
}

func (b *Buffer) Len() int {
	return len(b.pixels)
}

func (b *Buffer) SetAll(color Color, brightness float64) {
	for i := range b.pixels {
		b.pixels[i] = Pixel{Color: color, Brightness: brightness}
	}
}

func (b *Buffer) SetPixel(index int, color Color, brightness float64) {
	if index < 0 || index >= len(b.pixels) {
		return
	}
	b.pixels[index] = Pixel{Color: color, Brightness: brightness}
}

func (b *Buffer) SetBrightness(brightness float64) {
	b.brightness = brightness
}

func (b *Buffer) Brightness() float64 {
	return b.brightness
}

// Clear resets every pixel to off. The global brightness is kept.
func (b *Buffer) Clear() {
	clear(b.pixels)
}

// Pixel returns the pending state at index.
func (b *Buffer) Pixel(index int) Pixel {
	return b.pixels[index]
}

// Pixels returns a copy of the pending state.
func (b *Buffer) Pixels() []Pixel {
	ret := make([]Pixel, len(b.pixels))
	copy(ret, b.pixels)
	return ret
}

// Render writes the final colours (pixel colour x pixel brightness x global
// brightness) into dst, growing it if needed, and returns it.
func (b *Buffer) Render(dst []Color) []Color {
	if cap(dst) < len(b.pixels) {
		dst = make([]Color, len(b.pixels))
	}
	dst = dst[:len(b.pixels)]
	for i, px := range b.pixels {
		dst[i] = px.Color.Scale(px.Brightness * b.brightness)
	}
	return dst
}
