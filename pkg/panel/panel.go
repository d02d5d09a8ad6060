// Package panel is a Fyne front panel for the simulated board: the LED
// display, the two selector buttons and a level slider per input channel.
package panel

import (
	"context"
	"fmt"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/ledavg/pkg/display"
	"github.com/itohio/ledavg/pkg/hw"
	"github.com/itohio/ledavg/pkg/mailbox"
)

// DefaultHold is how long a tapped button stays pressed. It must span at
// least two button polls for the press to be seen.
const DefaultHold = 100 * time.Millisecond

// RefreshInterval throttles panel updates to ~30 FPS.
const RefreshInterval = 33 * time.Millisecond

var channels = [hw.NumChannels]hw.Channel{hw.ChannelA, hw.ChannelB}

// Panel mirrors the simulated board on screen.
type Panel struct {
	board *hw.Sim
	boxes [hw.NumChannels]*mailbox.Mailbox
	hold  time.Duration

	led     *LEDWidget
	reading *widget.Label
	values  [hw.NumChannels]*widget.Label
	sliders [hw.NumChannels]*widget.Slider
	buttons [hw.NumButtons]*widget.Button
	gear    *widget.Button
	content fyne.CanvasObject

	// OnSettings is called by the settings button.
	OnSettings func()
}

// New builds the panel widgets. boxes are shown as the live averages next
// to the sliders.
func New(board *hw.Sim, boxes [hw.NumChannels]*mailbox.Mailbox) *Panel {
	p := &Panel{
		board:   board,
		boxes:   boxes,
		hold:    DefaultHold,
		led:     NewLEDWidget(),
		reading: widget.NewLabel(""),
	}

	rows := make([]fyne.CanvasObject, 0, hw.NumChannels)
	for i, ch := range channels {
		p.values[i] = widget.NewLabel(AverageText(ch, 0, false))

		s := widget.NewSlider(0, hw.MaxValue)
		s.Step = 1
		s.SetValue(float64(board.Input(ch)))
		s.OnChanged = func(v float64) {
			board.SetInput(ch, uint16(v))
		}
		p.sliders[i] = s

		rows = append(rows, container.NewBorder(nil, nil, widget.NewLabel("Input "+ch.String()), p.values[i], s))
	}

	for i := range p.buttons {
		p.buttons[i] = widget.NewButton(display.ButtonName(i), func() {
			p.Press(i)
		})
	}

	p.gear = widget.NewButtonWithIcon("", theme.SettingsIcon(), func() {
		if p.OnSettings != nil {
			p.OnSettings()
		}
	})

	p.content = container.NewBorder(
		container.NewBorder(nil, nil, p.gear, p.reading, container.NewHBox(p.buttons[0], p.buttons[1])),
		container.NewVBox(rows...),
		nil,
		nil,
		p.led,
	)
	return p
}

// Content returns the root canvas object.
func (p *Panel) Content() fyne.CanvasObject {
	return p.content
}

// Press pulls a button low and releases it after the hold time.
func (p *Panel) Press(button int) {
	p.board.Press(button)
	time.AfterFunc(p.hold, func() { p.board.Release(button) })
}

// AverageText formats the live average of a channel.
func AverageText(ch hw.Channel, v uint16, ok bool) string {
	if !ok {
		return fmt.Sprintf("%s: ----", ch)
	}
	return fmt.Sprintf("%s: %4d", ch, v)
}

// ReadingText returns the number the display shows, with '-' for positions
// that do not hold a digit pattern.
func ReadingText(patterns [hw.NumDigits]uint8) string {
	var b [hw.NumDigits]byte
	for i, pattern := range patterns {
		d, ok := display.Decode(pattern)
		if !ok {
			b[i] = '-'
			continue
		}
		b[i] = '0' + d
	}
	return string(b[:])
}

// Update copies the board state into the widgets. Call it on the Fyne
// thread.
func (p *Panel) Update() {
	shown := p.board.Shown()
	p.led.SetPatterns(shown)
	p.reading.SetText(ReadingText(shown))
	for i, ch := range channels {
		v, ok := p.boxes[i].Peek()
		p.values[i].SetText(AverageText(ch, v, ok))
	}
}

// Run refreshes the panel until ctx is done.
func (p *Panel) Run(ctx context.Context) error {
	ticker := time.NewTicker(RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			fyne.Do(p.Update)
		}
	}
}
