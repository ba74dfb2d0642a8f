package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"node.town/wisp/transcribe"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check that the transcription service is up",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings()
		if err != nil {
			return err
		}

		client, err := transcribe.NewStatusClient(settings.ServerURL)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		return printStatus(ctx, os.Stdout, client)
	},
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetBorder(false)
	table.SetCenterSeparator("|")
	table.SetColumnSeparator("|")
	table.SetRowSeparator("-")
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	return table
}

func printStatus(ctx context.Context, w io.Writer, client *transcribe.StatusClient) error {
	health, err := client.Health(ctx)
	if err != nil {
		return fmt.Errorf("failed to reach %s: %w", client.BaseURL, err)
	}

	engine, err := client.Engine(ctx)
	if err != nil {
		return fmt.Errorf("failed to read engine status: %w", err)
	}

	table := newTable(w, []string{"Endpoint", "Service", "Status", "Engine", "Available"})
	table.Append([]string{
		client.BaseURL,
		health.Service,
		health.Status,
		engine.Transcription.Engine,
		fmt.Sprintf("%t", engine.Transcription.Available),
	})
	table.Render()
	return nil
}
