package main

import (
	"context"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"node.town/wisp/config"
	"node.town/wisp/refine"
)

var modesCmd = &cobra.Command{
	Use:   "modes",
	Short: "List the writing modes used to refine transcripts",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings()
		if err != nil {
			return err
		}
		printModes(cmd.OutOrStdout(), settings.Mode)
		return nil
	},
}

func printModes(w io.Writer, current string) {
	table := newTable(w, []string{"Mode", "Title", "Current"})
	for _, m := range refine.Modes() {
		mark := ""
		if m.Name == current {
			mark = "*"
		}
		table.Append([]string{m.Name, m.Title, mark})
	}
	table.Render()
}

// newRefiner builds the provider chain from settings. It returns nil when
// refinement is switched off or no provider could be set up.
func newRefiner(ctx context.Context, settings *config.Settings, logger *log.Logger) *refine.Refiner {
	if len(settings.RefineProviders) == 0 {
		return nil
	}

	var providers []refine.Provider
	for _, name := range settings.RefineProviders {
		cfg := refine.ProviderConfig{APIKey: settings.APIKey(name)}
		if name == "ollama" {
			cfg.BaseURL = settings.OllamaURL
			cfg.Model = settings.OllamaModel
		}
		p, err := refine.NewProvider(ctx, name, cfg)
		if err != nil {
			logger.Warn("refinement provider unavailable", "provider", name, "error", err)
			continue
		}
		providers = append(providers, p)
	}
	if len(providers) == 0 {
		logger.Warn("refinement disabled, no usable provider")
		return nil
	}

	r, err := refine.New(refine.Options{
		Providers: providers,
		Mode:      settings.Mode,
		Timeout:   settings.RefineTimeout,
		Logger:    logger.WithPrefix("refine"),
	})
	if err != nil {
		logger.Warn("refinement disabled", "error", err)
		return nil
	}
	logger.Info("refinement enabled",
		"providers", strings.Join(r.Providers(), ","),
		"mode", r.Mode().Name)
	return r
}
