package refine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/api/option"
)

const maxTokens = 500

var ErrMissingAPIKey = errors.New("missing API key")

// ProviderConfig overrides a provider's defaults. Empty fields keep them.
type ProviderConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type chatEndpoint struct {
	baseURL     string
	model       string
	temperature float32
	keyless     bool
}

// Cohere and Groq both expose OpenAI-compatible chat endpoints, as does a
// local Ollama.
var chatProviders = map[string]chatEndpoint{
	"openai": {model: openai.GPT4oMini, temperature: 0.1},
	"groq":   {baseURL: "https://api.groq.com/openai/v1", model: "llama-3.3-70b-versatile", temperature: 0.1},
	"cohere": {baseURL: "https://api.cohere.ai/compatibility/v1", model: "command-r7b-12-2024", temperature: 0.1},
	"ollama": {baseURL: "http://localhost:11434/v1", model: "llama3.2", temperature: 0.3, keyless: true},
}

// ProviderNames lists every provider NewProvider understands.
func ProviderNames() []string {
	return []string{"cohere", "gemini", "groq", "openai", "ollama"}
}

func NewProvider(ctx context.Context, name string, cfg ProviderConfig) (Provider, error) {
	if name == "gemini" {
		return NewGeminiProvider(ctx, cfg)
	}

	ep, ok := chatProviders[name]
	if !ok {
		return nil, fmt.Errorf("unknown refinement provider %q", name)
	}
	if cfg.APIKey == "" && !ep.keyless {
		return nil, fmt.Errorf("%s: %w", name, ErrMissingAPIKey)
	}
	if cfg.BaseURL != "" {
		ep.baseURL = cfg.BaseURL
	}
	if cfg.Model != "" {
		ep.model = cfg.Model
	}
	return newChatProvider(name, cfg.APIKey, ep), nil
}

// ChatProvider talks to any OpenAI-compatible chat completion endpoint.
type ChatProvider struct {
	name        string
	client      *openai.Client
	model       string
	temperature float32
}

func newChatProvider(name, apiKey string, ep chatEndpoint) *ChatProvider {
	if apiKey == "" {
		apiKey = name
	}
	config := openai.DefaultConfig(apiKey)
	if ep.baseURL != "" {
		config.BaseURL = strings.TrimRight(ep.baseURL, "/")
	}
	return &ChatProvider{
		name:        name,
		client:      openai.NewClientWithConfig(config),
		model:       ep.model,
		temperature: ep.temperature,
	}
}

func (p *ChatProvider) Name() string { return p.name }

func (p *ChatProvider) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: p.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

type GeminiProvider struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewGeminiProvider(ctx context.Context, cfg ProviderConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: %w", ErrMissingAPIKey)
	}
	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.BaseURL))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	name := cfg.Model
	if name == "" {
		name = "gemini-1.5-flash"
	}
	model := client.GenerativeModel(name)
	model.GenerationConfig.SetMaxOutputTokens(maxTokens)
	model.GenerationConfig.SetTemperature(0.1)

	return &GeminiProvider{client: client, model: model}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := p.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	return responseText(resp), nil
}

func (p *GeminiProvider) Close() error {
	return p.client.Close()
}

func responseText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}

// Close releases any provider that holds a client connection.
func (r *Refiner) Close() error {
	var errs []error
	for _, p := range r.providers {
		if c, ok := p.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

// Providers returns the names of the configured providers in fallback
// order.
func (r *Refiner) Providers() []string {
	names := make([]string, len(r.providers))
	for i, p := range r.providers {
		names[i] = p.Name()
	}
	return names
}
