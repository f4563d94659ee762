// Package session holds the state of one interactive translation: the
// selected languages, the source text, the streamed output and the phase of
// the current request.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/valpere/codeconvert/internal/clipboard"
	"github.com/valpere/codeconvert/internal/language"
	"github.com/valpere/codeconvert/internal/translator"
	"github.com/valpere/codeconvert/internal/validator"
	"github.com/valpere/codeconvert/pkg/logger"
)

// DefaultOutputLanguage is the target selected when a session starts.
const DefaultOutputLanguage = "Python"

// ErrBusy is returned for any action attempted while a translation is in flight.
var ErrBusy = errors.New("a translation is already in progress")

type Phase int

const (
	Idle Phase = iota
	Validating
	Streaming
	Completed
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Validating:
		return "validating"
	case Streaming:
		return "streaming"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

type State struct {
	Phase          Phase
	InputLanguage  string
	OutputLanguage string
	Input          string
	Output         string
	// Copied is set on completion when the clipboard write succeeded.
	Copied bool
}

// Loading reports whether a request is in flight.
func (s State) Loading() bool {
	return s.Phase == Validating || s.Phase == Streaming
}

// HasTranslated reports whether the output is a finished translation of the
// current input and languages.
func (s State) HasTranslated() bool {
	return s.Phase == Completed
}

// Translator streams one translation, calling sink for every chunk.
// *client.Client implements it.
type Translator interface {
	Translate(ctx context.Context, body translator.TranslateBody, sink func(chunk string)) (string, error)
}

// Notifier shows a blocking message to the user.
type Notifier interface {
	Notify(err error)
}

type NotifierFunc func(err error)

func (f NotifierFunc) Notify(err error) { f(err) }

// Observer is told about every state change, including each appended chunk.
// It is called without the session lock held and may call State.
type Observer interface {
	StateChanged(s State)
}

type ObserverFunc func(s State)

func (f ObserverFunc) StateChanged(s State) { f(s) }

type Config struct {
	Clipboard clipboard.Writer
	Notifier  Notifier
	Observer  Observer
	Validator *validator.Validator
}

type Session struct {
	translator Translator
	clipboard  clipboard.Writer
	notifier   Notifier
	observer   Observer
	validator  *validator.Validator

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
}

// New creates an idle session translating from natural language to Python.
// Nil fields in cfg get no-op defaults and the default validator.
func New(t Translator, cfg Config) *Session {
	s := &Session{
		translator: t,
		clipboard:  cfg.Clipboard,
		notifier:   cfg.Notifier,
		observer:   cfg.Observer,
		validator:  cfg.Validator,
		state: State{
			Phase:          Idle,
			InputLanguage:  language.NaturalLanguage,
			OutputLanguage: DefaultOutputLanguage,
		},
	}
	if s.clipboard == nil {
		s.clipboard = clipboard.Discard{}
	}
	if s.notifier == nil {
		s.notifier = NotifierFunc(func(error) {})
	}
	if s.observer == nil {
		s.observer = ObserverFunc(func(State) {})
	}
	if s.validator == nil {
		s.validator = validator.New(0)
	}
	return s
}

// State returns a snapshot of the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetInput replaces the source text. A completed translation becomes stale
// and the session returns to Idle; the output is left as it is.
func (s *Session) SetInput(text string) error {
	return s.edit(func(st *State) { st.Input = text })
}

// SetInputLanguage behaves like SetInput for the source language.
func (s *Session) SetInputLanguage(label string) error {
	return s.edit(func(st *State) { st.InputLanguage = label })
}

func (s *Session) edit(apply func(st *State)) error {
	s.mu.Lock()
	if s.state.Loading() {
		s.mu.Unlock()
		return ErrBusy
	}
	apply(&s.state)
	if s.state.Phase == Completed {
		s.state.Phase = Idle
		s.state.Copied = false
	}
	snap := s.state
	s.mu.Unlock()

	s.observer.StateChanged(snap)
	return nil
}

// SetOutputLanguage changes the target and clears the output. When the
// previous translation had completed and label is a recognized language, the
// same source is translated again into the new target and the call blocks
// until that translation ends.
func (s *Session) SetOutputLanguage(ctx context.Context, label string) error {
	s.mu.Lock()
	if s.state.Loading() {
		s.mu.Unlock()
		return ErrBusy
	}
	retranslate := s.state.Phase == Completed && language.IsRecognized(label)
	s.state.OutputLanguage = label
	s.state.Output = ""
	if s.state.Phase == Completed {
		s.state.Phase = Idle
		s.state.Copied = false
	}
	snap := s.state
	s.mu.Unlock()

	s.observer.StateChanged(snap)

	if !retranslate {
		return nil
	}
	logger.Debugf("output language changed to %q, translating again", label)
	return s.Generate(ctx)
}

// Generate validates the current request and streams its translation. It
// blocks until the stream ends, fails or is cancelled.
//
// Validation and transport failures are passed to the Notifier and also
// returned. Cancellation returns the context error without a notification
// and keeps any output received so far.
func (s *Session) Generate(ctx context.Context) error {
	s.mu.Lock()
	if s.state.Loading() {
		s.mu.Unlock()
		return ErrBusy
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.state.Phase = Validating
	s.state.Copied = false
	s.cancel = cancel
	body := translator.TranslateBody{
		InputLanguage:  s.state.InputLanguage,
		OutputLanguage: s.state.OutputLanguage,
		InputCode:      s.state.Input,
	}
	snap := s.state
	s.mu.Unlock()
	s.observer.StateChanged(snap)

	if err := s.validator.Validate(body); err != nil {
		s.transition(func(st *State) {
			st.Phase = Idle
			s.cancel = nil
		})
		s.notifier.Notify(err)
		return err
	}
	if err := ctx.Err(); err != nil {
		s.transition(func(st *State) {
			st.Phase = Idle
			s.cancel = nil
		})
		return err
	}

	s.transition(func(st *State) {
		st.Phase = Streaming
		st.Output = ""
	})

	text, err := s.translator.Translate(ctx, body, func(chunk string) {
		if chunk == "" {
			return
		}
		s.transition(func(st *State) { st.Output += chunk })
	})

	switch {
	case err == nil:
		cerr := s.clipboard.WriteAll(text)
		if cerr != nil {
			logger.Warnf("failed to copy translation to clipboard: %v", cerr)
		}
		s.transition(func(st *State) {
			st.Phase = Completed
			st.Copied = cerr == nil
			s.cancel = nil
		})
		return nil

	case ctx.Err() != nil:
		s.transition(func(st *State) {
			st.Phase = Idle
			s.cancel = nil
		})
		return err

	default:
		s.transition(func(st *State) {
			st.Phase = Failed
			st.Output = ""
			s.cancel = nil
		})
		logger.Debugf("translation failed: %v", err)
		s.notifier.Notify(err)
		return err
	}
}

// Cancel aborts the translation in flight, if any.
func (s *Session) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (s *Session) transition(apply func(st *State)) {
	s.mu.Lock()
	apply(&s.state)
	snap := s.state
	s.mu.Unlock()

	s.observer.StateChanged(snap)
}
