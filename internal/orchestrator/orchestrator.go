package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/valpere/codeconvert/internal/translator"
	"github.com/valpere/codeconvert/pkg/logger"
)

var ErrNoProviders = errors.New("no translation providers configured")

type OrchestratorConfig struct {
	// Timeout bounds opening one stream; a stream that has opened may run
	// for as long as the caller's context allows.
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
}

type Result struct {
	Stream   translator.Stream
	Provider string
	Attempts int
}

type Orchestrator struct {
	providers []translator.Provider
	config    OrchestratorConfig
}

func New(providers []translator.Provider, config OrchestratorConfig) *Orchestrator {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	return &Orchestrator{
		providers: providers,
		config:    config,
	}
}

func (o *Orchestrator) Providers() []translator.Provider {
	return o.providers
}

// Open tries each provider in order and returns the first stream that opens.
func (o *Orchestrator) Open(ctx context.Context, body translator.TranslateBody) (*Result, error) {
	if len(o.providers) == 0 {
		return nil, ErrNoProviders
	}

	var errs []error
	attempts := 0

	for _, p := range o.providers {
		for attempt := 1; attempt <= o.config.MaxAttempts; attempt++ {
			if attempts > 0 && o.config.RetryDelay > 0 {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(o.config.RetryDelay):
				}
			}
			attempts++

			stream, err := o.openOne(ctx, p, body)
			if err == nil {
				logger.Debugf("opened stream on %s after %d attempt(s)", p.Name(), attempts)
				return &Result{Stream: stream, Provider: p.Name(), Attempts: attempts}, nil
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			logger.Warnf("%s: attempt %d/%d failed: %v", p.Name(), attempt, o.config.MaxAttempts, err)
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}

	return nil, errors.Join(errs...)
}

func (o *Orchestrator) openOne(ctx context.Context, p translator.Provider, body translator.TranslateBody) (translator.Stream, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	var timer *time.Timer
	if o.config.Timeout > 0 {
		timer = time.AfterFunc(o.config.Timeout, cancel)
	}

	stream, err := p.Open(streamCtx, body)

	if timer != nil && !timer.Stop() {
		if stream != nil {
			stream.Close()
		}
		cancel()
		return nil, fmt.Errorf("timed out after %s opening stream", o.config.Timeout)
	}
	if err != nil {
		cancel()
		return nil, err
	}

	return &cancelStream{Stream: stream, cancel: cancel}, nil
}

type cancelStream struct {
	translator.Stream
	cancel context.CancelFunc
}

func (s *cancelStream) Close() error {
	err := s.Stream.Close()
	s.cancel()
	return err
}
