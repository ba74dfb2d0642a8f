package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"node.town/wisp/config"
)

func init() {
	cobra.OnInitialize(initConfig)

	transcribeCmd.Flags().Bool("realtime", false, "Pace the file at its own sample rate")
	transcribeCmd.Flags().Bool("copy", false, "Copy the transcript to the clipboard")
	transcribeCmd.Flags().Bool("raw", false, "Skip refinement and print the transcript as heard")

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(transcribeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(modesCmd)

	rootCmd.PersistentFlags().String("config", "", "Config file (default ./config.yaml or the user config dir)")
	rootCmd.PersistentFlags().String("server-url", "", "Transcription service websocket URL")
	rootCmd.PersistentFlags().String("format", "", "Chunk encoding: opus or pcm")
	rootCmd.PersistentFlags().String("device", "", "Capture device name")
	rootCmd.PersistentFlags().String("theme", "", "Visualizer theme: light, dark or auto")
	rootCmd.PersistentFlags().Bool("reduced-motion", false, "Draw a static idle indicator")
	rootCmd.PersistentFlags().String("log-file", "", "Log file for the interactive recorder")
	rootCmd.PersistentFlags().String("log-level", "", "Log level")
	rootCmd.PersistentFlags().String("mode", "", "Writing mode for refined transcripts (see wisp modes)")
	rootCmd.PersistentFlags().StringSlice("refine-providers", nil, "Refinement providers to try in order")

	for _, name := range []string{
		"server-url", "format", "device", "theme",
		"reduced-motion", "log-file", "log-level",
		"mode", "refine-providers",
	} {
		viper.BindPFlag(
			strings.ReplaceAll(name, "-", "_"),
			rootCmd.PersistentFlags().Lookup(name),
		)
	}
}

func initConfig() {
	config.Configure(viper.GetViper())

	if path, _ := rootCmd.PersistentFlags().GetString("config"); path != "" {
		viper.SetConfigFile(path)
	}

	err := viper.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if err != nil && !errors.As(err, &notFound) {
		fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
	}
}

var rootCmd = &cobra.Command{
	Use:   "wisp",
	Short: "wisp turns speech into text",
	Long: `wisp records your microphone, streams it to a transcription service
over a websocket, and shows the transcript when you stop talking.`,
	SilenceUsage: true,
}

func loadSettings() (*config.Settings, error) {
	settings, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return settings, nil
}

func createLogger(w io.Writer, level log.Level) *log.Logger {
	logger := log.NewWithOptions(w, log.Options{
		ReportCaller:    true,
		ReportTimestamp: true,
		Level:           level,
	})
	logger.SetCallerFormatter(
		func(file string, line int, funcName string) string {
			path, err := filepath.Rel(".", file)
			if err != nil {
				path = file
			}
			return fmt.Sprintf("%s:%d", path, line)
		},
	)

	styles := log.DefaultStyles()
	styles.Levels[log.InfoLevel] = styles.Levels[log.InfoLevel].
		MaxWidth(6).
		MarginRight(1).
		Bold(false)
	styles.Levels[log.ErrorLevel] = styles.Levels[log.ErrorLevel].
		MaxWidth(6).
		MarginRight(1).
		Bold(false)
	styles.Message = styles.Message.Bold(true).Width(24)
	styles.Key = styles.Key.MarginLeft(1).
		Bold(false).
		Foreground(lipgloss.Color("#ff8800"))

	logger.SetStyles(styles)
	return logger
}

// createFileLogger sends logs to path so the terminal stays free for the UI.
func createFileLogger(path string, level log.Level) (*log.Logger, io.Closer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	logger := log.NewWithOptions(f, log.Options{
		ReportCaller:    true,
		ReportTimestamp: true,
		Level:           level,
	})
	return logger, f, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
