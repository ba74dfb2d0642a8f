package main

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"node.town/wisp/capture"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List capture devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings()
		if err != nil {
			return err
		}

		logger := createLogger(os.Stderr, settings.Level())
		mic := capture.NewMicDevice(settings.Device, logger.WithPrefix("mic"))
		defer mic.Close()

		devices, err := mic.Devices()
		if err != nil {
			return err
		}
		if len(devices) == 0 {
			log.Warn("no capture devices found")
			return nil
		}

		printDevices(os.Stdout, devices)
		return nil
	},
}

func printDevices(w io.Writer, devices []capture.DeviceInfo) {
	table := newTable(w, []string{"Name", "Default", "ID"})
	for _, d := range devices {
		def := ""
		if d.Default {
			def = "*"
		}
		table.Append([]string{d.Name, def, d.ID})
	}
	table.Render()
}
