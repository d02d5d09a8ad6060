package panel

import (
	"image/color"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/ledavg/pkg/hw"
)

var (
	segmentOn  = color.RGBA{R: 255, G: 40, B: 20, A: 255}
	segmentOff = color.RGBA{R: 50, G: 14, B: 10, A: 255}
	background = color.RGBA{R: 20, G: 20, B: 20, A: 255}
)

// LEDWidget draws a 4-digit 7-segment display from raw segment patterns.
type LEDWidget struct {
	widget.BaseWidget

	mu       sync.RWMutex
	patterns [hw.NumDigits]uint8
}

// NewLEDWidget creates a blank display.
func NewLEDWidget() *LEDWidget {
	w := &LEDWidget{}
	w.ExtendBaseWidget(w)
	return w
}

// SetPatterns updates the lit segments. Call it on the Fyne thread.
func (w *LEDWidget) SetPatterns(p [hw.NumDigits]uint8) {
	w.mu.Lock()
	changed := w.patterns != p
	w.patterns = p
	w.mu.Unlock()

	if changed {
		w.Refresh()
	}
}

// Patterns returns the patterns being shown.
func (w *LEDWidget) Patterns() [hw.NumDigits]uint8 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.patterns
}

// CreateRenderer creates the widget renderer.
func (w *LEDWidget) CreateRenderer() fyne.WidgetRenderer {
	r := &ledRenderer{
		led:  w,
		grid: canvas.NewRectangle(background),
	}
	r.objects = append(r.objects, r.grid)
	for d := range r.segments {
		for s := range r.segments[d] {
			rect := canvas.NewRectangle(segmentOff)
			rect.CornerRadius = 2
			r.segments[d][s] = rect
			r.objects = append(r.objects, rect)
		}
	}
	return r
}

// ledRenderer renders the LED widget.
type ledRenderer struct {
	led      *LEDWidget
	grid     *canvas.Rectangle
	segments [hw.NumDigits][7]*canvas.Rectangle // a..g
	objects  []fyne.CanvasObject
}

func (r *ledRenderer) MinSize() fyne.Size {
	return fyne.NewSize(240, 100)
}

// Layout places the segments of each digit cell:
//
//	 aaa
//	f   b
//	 ggg
//	e   c
//	 ddd
func (r *ledRenderer) Layout(size fyne.Size) {
	r.grid.Resize(size)
	r.grid.Move(fyne.NewPos(0, 0))

	cellW := size.Width / hw.NumDigits
	pad := cellW * 0.15
	thick := cellW * 0.1
	w := cellW - 2*pad
	h := size.Height - 2*pad
	half := h / 2

	for d := range r.segments {
		x := float32(d)*cellW + pad
		y := pad
		horiz := fyne.NewSize(w-2*thick, thick)
		vert := fyne.NewSize(thick, half-thick)

		place := func(seg int, pos fyne.Position, sz fyne.Size) {
			r.segments[d][seg].Move(pos)
			r.segments[d][seg].Resize(sz)
		}
		place(0, fyne.NewPos(x+thick, y), horiz)               // a
		place(1, fyne.NewPos(x+w-thick, y+thick/2), vert)      // b
		place(2, fyne.NewPos(x+w-thick, y+half+thick/2), vert) // c
		place(3, fyne.NewPos(x+thick, y+h-thick), horiz)       // d
		place(4, fyne.NewPos(x, y+half+thick/2), vert)         // e
		place(5, fyne.NewPos(x, y+thick/2), vert)              // f
		place(6, fyne.NewPos(x+thick, y+half-thick/2), horiz)  // g
	}
}

// Refresh recolors the segments from the current patterns.
func (r *ledRenderer) Refresh() {
	patterns := r.led.Patterns()
	for d, p := range patterns {
		for s, rect := range r.segments[d] {
			c := segmentOff
			if p&(1<<(6-s)) != 0 {
				c = segmentOn
			}
			if rect.FillColor != color.Color(c) {
				rect.FillColor = c
				rect.Refresh()
			}
		}
	}
}

func (r *ledRenderer) Objects() []fyne.CanvasObject {
	return r.objects
}

func (r *ledRenderer) Destroy() {}
