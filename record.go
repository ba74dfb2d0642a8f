package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"node.town/wisp/capture"
	"node.town/wisp/config"
	"node.town/wisp/recorder"
	"node.town/wisp/session"
	"node.town/wisp/transcribe"
	"node.town/wisp/ui"
	"node.town/wisp/visualizer"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record from the microphone with a live visualizer",
	RunE:  runRecord,
}

func newSession(settings *config.Settings, device capture.Device, logger *log.Logger) *session.Session {
	constraints := capture.DefaultConstraints()
	constraints.SampleRate = settings.SampleRate

	dialer := &transcribe.Dialer{
		URL:          settings.ServerURL,
		PingInterval: settings.PingInterval,
		Logger:       logger.WithPrefix("conn"),
	}

	return session.New(session.Options{
		Device:      device,
		Dial:        session.Dial(dialer),
		Constraints: constraints,
		Timeslice:   settings.Timeslice,
		Encoder: func(rate int) (recorder.Encoder, error) {
			return recorder.NewEncoder(settings.Format, rate)
		},
		Logger: logger.WithPrefix("session"),
	})
}

func runRecord(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	logger, closer, err := createFileLogger(settings.LogFile, settings.Level())
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	mic := capture.NewMicDevice(settings.Device, logger.WithPrefix("mic"))
	defer mic.Close()

	sess := newSession(settings, mic, logger)
	defer sess.Close()

	connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := sess.Connect(connectCtx); err != nil {
		logger.Warn("transcription service not reachable yet", "error", err)
	}
	connectCancel()

	caps := visualizer.ProbeCapabilities(settings.ReducedMotion)
	vis := visualizer.New(visualizer.Options{
		Device: mic,
		Bands:  visualizer.NewBandConfig(caps),
		OnError: func(err error) {
			logger.Error("visualizer error", "error", err)
		},
		Logger: logger.WithPrefix("vis"),
	})
	defer vis.Close()

	loop := visualizer.NewLoop(settings.RefreshInterval())
	loop.Start()
	defer loop.Stop()

	logger.Info(
		"recorder ready",
		"server", settings.ServerURL,
		"format", settings.Format,
		"bands", visualizer.NewBandConfig(caps).Bands,
		"cpus", caps.Concurrency,
	)

	opts := ui.Options{
		Controller:    sess,
		Visualizer:    vis,
		Loop:          loop,
		Theme:         ui.Theme(settings.Theme),
		ResultTimeout: settings.ResultTimeout,
		Logger:        logger.WithPrefix("ui"),
	}
	if refiner := newRefiner(ctx, settings, logger); refiner != nil {
		defer refiner.Close()
		opts.Refiner = refiner
	}

	model := ui.New(ctx, opts)

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithReportFocus(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("error running program: %w", err)
	}
	return nil
}
