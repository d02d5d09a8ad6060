package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"fyne.io/fyne/v2"
	fyneapp "fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/dialog"
	"github.com/itohio/ledavg/pkg/app"
	"github.com/itohio/ledavg/pkg/config"
	"github.com/itohio/ledavg/pkg/hw"
	"github.com/itohio/ledavg/pkg/logging"
	"github.com/itohio/ledavg/pkg/metrics"
	"github.com/itohio/ledavg/pkg/panel"
	"github.com/itohio/ledavg/pkg/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	var (
		configFlag  = flag.String("config", "config.yaml", "Configuration file path")
		backendFlag = flag.String("backend", "", "Hardware backend override (sim, periph or bridge)")
		guiFlag     = flag.Bool("gui", false, "Show the front panel (sim backend only)")
		metricsFlag = flag.String("metrics", "", "Prometheus listen address override (e.g. :9100)")
		levelFlag   = flag.String("log-level", "", "Log level override")
		portsFlag   = flag.Bool("ports", false, "List serial ports and exit")
	)
	flag.Parse()

	if *portsFlag {
		ports, err := telemetry.Ports()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		for _, p := range ports {
			fmt.Println(p.Name)
		}
		return
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *backendFlag != "" {
		cfg.Hardware.Backend = *backendFlag
	}
	if *metricsFlag != "" {
		cfg.Metrics.Listen = *metricsFlag
	}
	if *levelFlag != "" {
		cfg.Logging.Level = *levelFlag
	}

	log, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, *configFlag, log, *guiFlag); err != nil {
		log.Error("ledavg failed", zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, path string, log *zap.Logger, gui bool) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	board, err := hw.New(cfg, log)
	if err != nil {
		return fmt.Errorf("hardware init: %w", err)
	}
	defer board.Close()

	m := metrics.New()
	pipeline, err := app.New(cfg, board, log, m)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pipeline.Run(ctx) })
	if cfg.Metrics.Listen != "" {
		g.Go(func() error { return m.Serve(ctx, cfg.Metrics.Listen, log) })
	}

	if gui {
		sim, ok := board.(*hw.Sim)
		if !ok {
			stop()
			g.Wait()
			return errors.New("the front panel needs the sim backend")
		}
		runPanel(ctx, stop, g, sim, pipeline, path, log)
	}

	return g.Wait()
}

// runPanel shows the front panel on the main goroutine until the window is
// closed or ctx is done.
func runPanel(ctx context.Context, stop context.CancelFunc, g *errgroup.Group, sim *hw.Sim, pipeline *app.Context, path string, log *zap.Logger) {
	application := fyneapp.NewWithID("com.itohio.ledavg")
	window := application.NewWindow("ledavg")
	window.Resize(fyne.NewSize(480, 260))
	window.CenterOnScreen()

	p := panel.New(sim, pipeline.Mailboxes)
	settings := panel.NewSettings(pipeline.Config, path, sim, func(err error) {
		log.Warn("settings not saved", zap.Error(err))
		dialog.ShowError(err, window)
	})
	p.OnSettings = func() { settings.Show(window) }
	window.SetContent(p.Content())
	window.SetOnClosed(stop)

	g.Go(func() error {
		err := p.Run(ctx)
		fyne.Do(application.Quit)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	window.ShowAndRun()
	stop()
}
