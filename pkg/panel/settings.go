package panel

import (
	"fmt"
	"strconv"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/ledavg/pkg/config"
	"github.com/itohio/ledavg/pkg/hw"
	"github.com/itohio/ledavg/pkg/telemetry"
)

// Settings edits the configuration file. Simulation noise applies at once,
// everything else on the next start.
type Settings struct {
	cfg   *config.Config
	path  string
	board *hw.Sim
	onErr func(error)

	noise   *widget.Entry
	latency *widget.Entry
	simForm *widget.Form

	port      *widget.Select
	portNames map[string]string // display name -> port name
	broker    *widget.Entry
	topic     *widget.Entry
	interval  *widget.Entry
	telemForm *widget.Form

	samplePeriod *widget.Entry
	muxPeriod    *widget.Entry
	pollInterval *widget.Entry
	timingForm   *widget.Form

	tabs *container.AppTabs
}

// NewSettings builds the settings tabs. onErr receives save and validation
// failures; nil ignores them.
func NewSettings(cfg *config.Config, path string, board *hw.Sim, onErr func(error)) *Settings {
	if onErr == nil {
		onErr = func(error) {}
	}
	s := &Settings{
		cfg:   cfg,
		path:  path,
		board: board,
		onErr: onErr,
	}
	s.tabs = container.NewAppTabs(
		s.simulationTab(),
		s.telemetryTab(),
		s.timingTab(),
	)
	return s
}

// Content returns the tabs.
func (s *Settings) Content() fyne.CanvasObject {
	return s.tabs
}

// Show opens the settings in a dialog over w.
func (s *Settings) Show(w fyne.Window) {
	d := dialog.NewCustom("Settings", "Close", s.tabs, w)
	d.Resize(fyne.NewSize(480, 360))
	d.Show()
}

func (s *Settings) simulationTab() *container.TabItem {
	s.noise = widget.NewEntry()
	s.noise.SetText(strconv.Itoa(int(s.cfg.Simulation.Noise)))

	s.latency = widget.NewEntry()
	s.latency.SetText(s.cfg.Simulation.ConversionLatency.String())

	s.simForm = &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Noise (counts)", Widget: s.noise},
			{Text: "Conversion latency", Widget: s.latency},
		},
		OnSubmit: func() {
			next := *s.cfg
			if n, err := strconv.ParseUint(s.noise.Text, 10, 16); err == nil {
				next.Simulation.Noise = uint16(n)
			}
			if d, err := time.ParseDuration(s.latency.Text); err == nil && d >= 0 {
				next.Simulation.ConversionLatency = d
			}
			if s.commit(&next) && s.board != nil {
				s.board.SetNoise(s.cfg.Simulation.Noise)
			}
		},
	}

	return container.NewTabItem("Simulation", s.simForm)
}

func (s *Settings) telemetryTab() *container.TabItem {
	options, names := portOptions(s.cfg.Telemetry.Serial.Port)
	s.portNames = names
	s.port = widget.NewSelect(options, nil)
	for display, name := range names {
		if name == s.cfg.Telemetry.Serial.Port && name != "" {
			s.port.SetSelected(display)
		}
	}

	s.broker = widget.NewEntry()
	s.broker.SetText(s.cfg.Telemetry.MQTT.Broker)
	s.broker.SetPlaceHolder("tcp://localhost:1883")

	s.topic = widget.NewEntry()
	s.topic.SetText(s.cfg.Telemetry.MQTT.Topic)

	s.interval = widget.NewEntry()
	s.interval.SetText(s.cfg.Telemetry.Interval.String())

	s.telemForm = &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Serial Port", Widget: s.port},
			{Text: "MQTT Broker", Widget: s.broker},
			{Text: "MQTT Topic", Widget: s.topic},
			{Text: "Interval (0 = off)", Widget: s.interval},
		},
		OnSubmit: func() {
			next := *s.cfg
			if s.port.Selected != "" {
				port := s.portNames[s.port.Selected]
				if port == "" {
					port = s.port.Selected
				}
				next.Telemetry.Serial.Port = port
			}
			next.Telemetry.MQTT.Broker = s.broker.Text
			if s.topic.Text != "" {
				next.Telemetry.MQTT.Topic = s.topic.Text
			}
			if d, err := time.ParseDuration(s.interval.Text); err == nil {
				next.Telemetry.Interval = d
			}
			s.commit(&next)
		},
	}

	return container.NewTabItem("Telemetry", s.telemForm)
}

func (s *Settings) timingTab() *container.TabItem {
	s.samplePeriod = widget.NewEntry()
	s.samplePeriod.SetText(s.cfg.Timing.SamplePeriod.String())

	s.muxPeriod = widget.NewEntry()
	s.muxPeriod.SetText(s.cfg.Timing.MuxPeriod.String())

	s.pollInterval = widget.NewEntry()
	s.pollInterval.SetText(s.cfg.Timing.PollInterval.String())

	s.timingForm = &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Sample period", Widget: s.samplePeriod},
			{Text: "Mux period", Widget: s.muxPeriod},
			{Text: "Button poll", Widget: s.pollInterval},
		},
		OnSubmit: func() {
			next := *s.cfg
			if d, err := time.ParseDuration(s.samplePeriod.Text); err == nil {
				next.Timing.SamplePeriod = d
			}
			if d, err := time.ParseDuration(s.muxPeriod.Text); err == nil {
				next.Timing.MuxPeriod = d
			}
			if d, err := time.ParseDuration(s.pollInterval.Text); err == nil {
				next.Timing.PollInterval = d
			}
			s.commit(&next)
		},
	}

	return container.NewTabItem("Timing", s.timingForm)
}

// commit validates next, saves it and makes it current.
func (s *Settings) commit(next *config.Config) bool {
	if err := next.Validate(); err != nil {
		s.onErr(err)
		return false
	}
	if err := next.Save(s.path); err != nil {
		s.onErr(fmt.Errorf("failed to save config: %w", err))
		return false
	}
	*s.cfg = *next
	return true
}

// portOptions lists the serial ports by display name, keeping current even
// when it is not plugged in.
func portOptions(current string) ([]string, map[string]string) {
	var options []string
	names := make(map[string]string)

	ports, err := telemetry.Ports()
	if err == nil {
		for _, port := range ports {
			display := port.Name
			if port.Description != "" && port.Description != port.Name {
				display = fmt.Sprintf("%s (%s)", port.Name, port.Description)
			}
			options = append(options, display)
			names[display] = port.Name
		}
	}

	if current == "" {
		return options, names
	}
	for _, name := range names {
		if name == current {
			return options, names
		}
	}
	options = append(options, current)
	names[current] = current
	return options, names
}
