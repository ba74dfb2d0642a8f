package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"

	"node.town/wisp/refine"
)

const (
	EnvPrefix = "WISP"
	FileName  = "config"
	FileType  = "yaml"
)

// Settings is the decoded configuration handed to every component.
type Settings struct {
	ServerURL     string        `mapstructure:"server_url"`
	Format        string        `mapstructure:"format"`
	Timeslice     time.Duration `mapstructure:"timeslice"`
	SampleRate    int           `mapstructure:"sample_rate"`
	Device        string        `mapstructure:"device"`
	PingInterval  time.Duration `mapstructure:"ping_interval"`
	Theme         string        `mapstructure:"theme"`
	ReducedMotion bool          `mapstructure:"reduced_motion"`
	RefreshRate   int           `mapstructure:"refresh_rate"`
	ResultTimeout time.Duration `mapstructure:"result_timeout"`
	LogFile       string        `mapstructure:"log_file"`
	LogLevel      string        `mapstructure:"log_level"`

	Mode            string        `mapstructure:"mode"`
	RefineProviders []string      `mapstructure:"refine_providers"`
	RefineTimeout   time.Duration `mapstructure:"refine_timeout"`
	CohereAPIKey    string        `mapstructure:"cohere_api_key"`
	GeminiAPIKey    string        `mapstructure:"gemini_api_key"`
	GroqAPIKey      string        `mapstructure:"groq_api_key"`
	OpenAIAPIKey    string        `mapstructure:"openai_api_key"`
	OllamaURL       string        `mapstructure:"ollama_url"`
	OllamaModel     string        `mapstructure:"ollama_model"`
}

var defaults = map[string]any{
	"server_url":     "ws://localhost:8000/ws/transcribe",
	"format":         "opus",
	"timeslice":      100 * time.Millisecond,
	"sample_rate":    16000,
	"device":         "",
	"ping_interval":  30 * time.Second,
	"theme":          "auto",
	"reduced_motion": false,
	"refresh_rate":   60,
	"result_timeout": 5 * time.Second,
	"log_file":       "wisp.log",
	"log_level":      "info",

	"mode":             "default",
	"refine_providers": []string{},
	"refine_timeout":   30 * time.Second,
	"cohere_api_key":   "",
	"gemini_api_key":   "",
	"groq_api_key":     "",
	"openai_api_key":   "",
	"ollama_url":       "",
	"ollama_model":     "",
}

// RefineProviderNames are the values refine_providers accepts.
var RefineProviderNames = refine.ProviderNames()

// Keys lists every setting name, in a stable order.
func Keys() []string {
	return []string{
		"server_url", "format", "timeslice", "sample_rate", "device",
		"ping_interval", "theme", "reduced_motion", "refresh_rate",
		"result_timeout", "log_file", "log_level",
		"mode", "refine_providers", "refine_timeout",
		"cohere_api_key", "gemini_api_key", "groq_api_key", "openai_api_key",
		"ollama_url", "ollama_model",
	}
}

// Configure points v at the config file locations and the WISP_ env
// namespace, and installs defaults.
func Configure(v *viper.Viper) {
	v.SetConfigName(FileName)
	v.SetConfigType(FileType)
	v.AddConfigPath(".")
	if dir, err := Dir(); err == nil {
		v.AddConfigPath(dir)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// Dir is the per-user configuration directory.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "wisp"), nil
}

func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName+"."+FileType), nil
}

func Load(v *viper.Viper) (*Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// ValidateServerURL accepts ws:// and wss:// urls only.
func ValidateServerURL(u string) error {
	if !strings.HasPrefix(u, "ws://") && !strings.HasPrefix(u, "wss://") {
		return fmt.Errorf("server_url must be a ws:// or wss:// url, got %q", u)
	}
	return nil
}

func (s *Settings) Validate() error {
	if err := ValidateServerURL(s.ServerURL); err != nil {
		return err
	}
	switch s.Format {
	case "opus", "pcm":
	default:
		return fmt.Errorf("format must be opus or pcm, got %q", s.Format)
	}
	if s.Format == "opus" {
		switch s.SampleRate {
		case 8000, 12000, 16000, 24000, 48000:
		default:
			return fmt.Errorf("opus cannot encode at %d Hz", s.SampleRate)
		}
	}
	if s.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", s.SampleRate)
	}
	if s.Timeslice < 10*time.Millisecond {
		return fmt.Errorf("timeslice %v is too short", s.Timeslice)
	}
	switch s.Theme {
	case "light", "dark", "auto":
	default:
		return fmt.Errorf("theme must be light, dark or auto, got %q", s.Theme)
	}
	if s.RefreshRate <= 0 || s.RefreshRate > 240 {
		return fmt.Errorf("refresh_rate must be between 1 and 240, got %d", s.RefreshRate)
	}
	if _, err := log.ParseLevel(s.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	if _, err := refine.LookupMode(s.Mode); err != nil {
		return err
	}
	for _, p := range s.RefineProviders {
		if !slices.Contains(RefineProviderNames, p) {
			return fmt.Errorf("unknown refine provider %q, want one of %s",
				p, strings.Join(RefineProviderNames, ", "))
		}
	}
	if len(s.RefineProviders) > 0 && s.RefineTimeout <= 0 {
		return fmt.Errorf("refine_timeout must be positive, got %v", s.RefineTimeout)
	}
	return nil
}

// APIKey returns the key configured for a refinement provider.
func (s *Settings) APIKey(provider string) string {
	switch provider {
	case "cohere":
		return s.CohereAPIKey
	case "gemini":
		return s.GeminiAPIKey
	case "groq":
		return s.GroqAPIKey
	case "openai":
		return s.OpenAIAPIKey
	}
	return ""
}

func (s *Settings) RefreshInterval() time.Duration {
	return time.Second / time.Duration(s.RefreshRate)
}

func (s *Settings) Level() log.Level {
	level, err := log.ParseLevel(s.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return level
}

// Set stores one setting on v.
func Set(v *viper.Viper, key, value string) error {
	if _, ok := defaults[key]; !ok {
		return fmt.Errorf("unknown config key: %s", key)
	}
	v.Set(key, value)
	return nil
}

// Write saves every setting currently visible through v to path.
func Write(v *viper.Viper, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	out := viper.New()
	out.SetConfigType(FileType)
	for _, k := range Keys() {
		val := v.Get(k)
		if d, ok := val.(time.Duration); ok {
			val = d.String()
		}
		out.Set(k, val)
	}
	if err := out.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
