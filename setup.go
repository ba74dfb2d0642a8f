package main

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"node.town/wisp/capture"
	"node.town/wisp/config"
	"node.town/wisp/refine"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Write a config file interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetup()
	},
}

func runSetup() error {
	log.Info("Starting wisp setup...")

	settings, err := loadSettings()
	if err != nil {
		log.Warn("ignoring invalid configuration", "error", err)
		settings = &config.Settings{
			ServerURL: viper.GetString("server_url"),
			Format:    "opus",
			Theme:     "auto",
			Mode:      refine.DefaultMode,
		}
	}

	serverURL := settings.ServerURL
	format := settings.Format
	theme := settings.Theme
	device := settings.Device
	reducedMotion := settings.ReducedMotion
	mode := settings.Mode

	modeOptions := make([]huh.Option[string], 0, len(refine.ModeNames()))
	for _, m := range refine.Modes() {
		modeOptions = append(modeOptions, huh.NewOption(m.Title, m.Name))
	}

	deviceOptions := []huh.Option[string]{huh.NewOption("System default", "")}
	mic := capture.NewMicDevice("", log.Default())
	if devices, err := mic.Devices(); err != nil {
		log.Warn("could not list capture devices", "error", err)
	} else {
		for _, d := range devices {
			deviceOptions = append(deviceOptions, huh.NewOption(d.Name, d.Name))
		}
	}
	mic.Close()

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Transcription service URL").
				Value(&serverURL).
				Validate(config.ValidateServerURL),
			huh.NewSelect[string]().
				Title("Chunk encoding").
				Options(
					huh.NewOption("Ogg/Opus", "opus"),
					huh.NewOption("Raw PCM", "pcm"),
				).
				Value(&format),
			huh.NewSelect[string]().
				Title("Capture device").
				Options(deviceOptions...).
				Value(&device),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Theme").
				Options(
					huh.NewOption("Follow the terminal", "auto"),
					huh.NewOption("Light", "light"),
					huh.NewOption("Dark", "dark"),
				).
				Value(&theme),
			huh.NewConfirm().
				Title("Reduce motion?").
				Description("Draws a static circle instead of the breathing one.").
				Value(&reducedMotion),
			huh.NewSelect[string]().
				Title("Writing mode").
				Description("Used when refine_providers is set.").
				Options(modeOptions...).
				Value(&mode),
		),
	)

	if err := form.Run(); err != nil {
		return fmt.Errorf("error during setup: %w", err)
	}

	values := map[string]string{
		"server_url":     serverURL,
		"format":         format,
		"device":         device,
		"theme":          theme,
		"reduced_motion": strconv.FormatBool(reducedMotion),
		"mode":           mode,
	}
	for key, value := range values {
		if err := config.Set(viper.GetViper(), key, value); err != nil {
			return err
		}
	}

	path := viper.ConfigFileUsed()
	if path == "" {
		path, err = config.DefaultPath()
		if err != nil {
			return err
		}
	}

	if err := config.Write(viper.GetViper(), path); err != nil {
		return err
	}

	log.Info("Setup completed successfully!", "path", path)
	return nil
}
