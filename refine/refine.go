// Package refine rewrites raw transcripts with a language model according
// to a writing mode.
package refine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

const DefaultTimeout = 30 * time.Second

var ErrNoProviders = errors.New("no refinement providers configured")

// Provider completes a single prompt.
type Provider interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

type Result struct {
	Text     string
	Mode     string
	Provider string
	// Refined is false when Text is the raw transcript.
	Refined bool
}

type Options struct {
	Providers []Provider
	Mode      string
	Timeout   time.Duration
	Logger    *log.Logger
}

// Refiner tries each provider in order until one answers.
type Refiner struct {
	providers []Provider
	timeout   time.Duration
	logger    *log.Logger

	mu   sync.Mutex
	mode Mode
}

func New(opts Options) (*Refiner, error) {
	if opts.Mode == "" {
		opts.Mode = DefaultMode
	}
	mode, err := LookupMode(opts.Mode)
	if err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Refiner{
		providers: opts.Providers,
		timeout:   opts.Timeout,
		logger:    opts.Logger,
		mode:      mode,
	}, nil
}

func (r *Refiner) Mode() Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

func (r *Refiner) SetMode(name string) error {
	mode, err := LookupMode(name)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.mode = mode
	r.mu.Unlock()
	r.logger.Info("writing mode set", "mode", mode.Name, "title", mode.Title)
	return nil
}

// Refine rewrites raw in the current mode. When every provider fails the
// raw text comes back together with the joined errors, so callers always
// have something to show.
func (r *Refiner) Refine(ctx context.Context, raw string) (Result, error) {
	mode := r.Mode()
	res := Result{Text: raw, Mode: mode.Name}

	if strings.TrimSpace(raw) == "" {
		return Result{Mode: mode.Name}, nil
	}
	if len(r.providers) == 0 {
		return res, ErrNoProviders
	}

	prompt := mode.Render(raw)
	var errs []error
	for _, p := range r.providers {
		text, err := r.complete(ctx, p, prompt)
		if err == nil {
			text = strings.TrimSpace(text)
			if text == "" {
				err = errors.New("empty completion")
			}
		}
		if err != nil {
			r.logger.Warn("refinement failed", "provider", p.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		r.logger.Info("text refined", "provider", p.Name(), "mode", mode.Name, "length", len(text))
		res.Text = text
		res.Provider = p.Name()
		res.Refined = true
		return res, nil
	}
	return res, errors.Join(errs...)
}

func (r *Refiner) complete(ctx context.Context, p Provider, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return p.Complete(ctx, prompt)
}
