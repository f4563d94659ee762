package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/valpere/codeconvert/internal/client"
	"github.com/valpere/codeconvert/internal/clipboard"
	"github.com/valpere/codeconvert/internal/translator"
	"github.com/valpere/codeconvert/internal/validator"
)

// fakeTranslator replays chunks and records every request it receives.
type fakeTranslator struct {
	chunks []string
	err    error
	// step, when set, is received from before every chunk is delivered.
	step chan struct{}

	calls    atomic.Int32
	mu       sync.Mutex
	requests []translator.TranslateBody
}

func (f *fakeTranslator) Translate(ctx context.Context, body translator.TranslateBody, sink func(string)) (string, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.requests = append(f.requests, body)
	f.mu.Unlock()

	if f.err != nil {
		return "", f.err
	}

	var sb strings.Builder
	for _, c := range f.chunks {
		if f.step != nil {
			select {
			case <-f.step:
			case <-ctx.Done():
				return sb.String(), ctx.Err()
			}
		}
		sink(c)
		sb.WriteString(c)
	}
	return sb.String(), nil
}

func (f *fakeTranslator) lastRequest() translator.TranslateBody {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

type notes struct {
	mu   sync.Mutex
	errs []error
}

func (n *notes) Notify(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errs = append(n.errs, err)
}

func (n *notes) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.errs)
}

type states struct {
	mu  sync.Mutex
	all []State
}

func (o *states) StateChanged(s State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.all = append(o.all, s)
}

func (o *states) outputs() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []string
	for _, s := range o.all {
		if s.Phase == Streaming && s.Output != "" && (len(out) == 0 || out[len(out)-1] != s.Output) {
			out = append(out, s.Output)
		}
	}
	return out
}

func newTestSession(t *fakeTranslator) (*Session, *clipboard.Memory, *notes, *states) {
	clip := &clipboard.Memory{}
	n := &notes{}
	o := &states{}
	s := New(t, Config{Clipboard: clip, Notifier: n, Observer: o})
	return s, clip, n, o
}

func TestNew_Defaults(t *testing.T) {
	s := New(&fakeTranslator{}, Config{})
	st := s.State()

	if st.Phase != Idle {
		t.Errorf("expected idle, got %s", st.Phase)
	}
	if st.InputLanguage != "Natural Language" || st.OutputLanguage != "Python" {
		t.Errorf("unexpected default languages %q -> %q", st.InputLanguage, st.OutputLanguage)
	}
	if st.Input != "" || st.Output != "" {
		t.Error("expected empty texts")
	}
}

func TestGenerate_Success(t *testing.T) {
	ft := &fakeTranslator{chunks: []string{"def f", "oo():\n", "    pass"}}
	s, clip, n, o := newTestSession(ft)
	s.SetInputLanguage("JavaScript")
	s.SetInput("function foo() {}")

	if err := s.Generate(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	st := s.State()
	if st.Phase != Completed || !st.HasTranslated() || st.Loading() {
		t.Errorf("expected completed, got %s", st.Phase)
	}
	if st.Output != "def foo():\n    pass" {
		t.Errorf("unexpected output %q", st.Output)
	}

	want := []string{"def f", "def foo():\n", "def foo():\n    pass"}
	got := o.outputs()
	if len(got) != len(want) {
		t.Fatalf("expected %d progressive outputs, got %q", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("output %d: expected %q, got %q", i, want[i], got[i])
		}
	}

	writes := clip.Writes()
	if len(writes) != 1 || writes[0] != "def foo():\n    pass" {
		t.Errorf("expected one clipboard write of the full output, got %q", writes)
	}
	if n.count() != 0 {
		t.Errorf("expected no notifications, got %d", n.count())
	}

	req := ft.lastRequest()
	if req.InputLanguage != "JavaScript" || req.OutputLanguage != "Python" || req.InputCode != "function foo() {}" {
		t.Errorf("unexpected request %+v", req)
	}
}

func TestGenerate_ValidationBlocksRequest(t *testing.T) {
	tests := []struct {
		name   string
		from   string
		to     string
		input  string
		reason validator.Reason
	}{
		{"same language", "Go", "Go", "package main", validator.SameLanguage},
		{"empty input", "Go", "Rust", "", validator.EmptyInput},
		{"too long", "Go", "Rust", strings.Repeat("a", 16001), validator.InputTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ft := &fakeTranslator{chunks: []string{"x"}}
			s, clip, n, _ := newTestSession(ft)
			s.SetInputLanguage(tt.from)
			s.SetOutputLanguage(context.Background(), tt.to)
			s.SetInput(tt.input)

			err := s.Generate(context.Background())

			var verr *validator.Error
			if !errors.As(err, &verr) || verr.Reason != tt.reason {
				t.Fatalf("expected %s, got %v", tt.reason, err)
			}
			if ft.calls.Load() != 0 {
				t.Error("expected no network call")
			}
			if n.count() != 1 {
				t.Errorf("expected one notification, got %d", n.count())
			}
			if st := s.State(); st.Phase != Idle || st.Loading() {
				t.Errorf("expected idle and not loading, got %s", st.Phase)
			}
			if len(clip.Writes()) != 0 {
				t.Error("expected no clipboard write")
			}
		})
	}
}

func TestGenerate_LengthBoundary(t *testing.T) {
	ft := &fakeTranslator{chunks: []string{"ok"}}
	s, _, _, _ := newTestSession(ft)
	s.SetInputLanguage("Go")
	s.SetInput(strings.Repeat("a", 16000))

	if err := s.Generate(context.Background()); err != nil {
		t.Fatalf("16000 units should be accepted: %v", err)
	}
	if ft.calls.Load() != 1 {
		t.Errorf("expected one request, got %d", ft.calls.Load())
	}
}

func TestGenerate_ValidationKeepsPreviousOutput(t *testing.T) {
	ft := &fakeTranslator{chunks: []string{"print(1)"}}
	s, _, _, _ := newTestSession(ft)
	s.SetInputLanguage("Go")
	s.SetInput("fmt.Println(1)")
	s.Generate(context.Background())

	s.SetInput("")
	s.Generate(context.Background())

	if got := s.State().Output; got != "print(1)" {
		t.Errorf("expected previous output to remain, got %q", got)
	}
}

func TestGenerate_TransportFailure(t *testing.T) {
	ft := &fakeTranslator{err: &client.TransportError{StatusCode: http.StatusBadGateway}}
	s, clip, n, _ := newTestSession(ft)
	s.SetInputLanguage("Go")
	s.SetInput("package main")

	err := s.Generate(context.Background())

	var terr *client.TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("expected transport error, got %v", err)
	}
	st := s.State()
	if st.Phase != Failed || st.Loading() {
		t.Errorf("expected failed and not loading, got %s", st.Phase)
	}
	if st.Output != "" {
		t.Errorf("expected empty output, got %q", st.Output)
	}
	if n.count() != 1 {
		t.Errorf("expected one notification, got %d", n.count())
	}
	if len(clip.Writes()) != 0 {
		t.Error("expected no clipboard write")
	}
}

func TestGenerate_EmptyResponse(t *testing.T) {
	ft := &fakeTranslator{err: client.ErrEmptyResponse}
	s, _, n, _ := newTestSession(ft)
	s.SetInputLanguage("Go")
	s.SetInput("package main")

	if err := s.Generate(context.Background()); !errors.Is(err, client.ErrEmptyResponse) {
		t.Fatalf("expected empty response error, got %v", err)
	}
	if s.State().Phase != Failed {
		t.Errorf("expected failed, got %s", s.State().Phase)
	}
	if n.count() != 1 {
		t.Errorf("expected one notification, got %d", n.count())
	}
}

func TestGenerate_FailedThenRetry(t *testing.T) {
	ft := &fakeTranslator{err: client.ErrEmptyResponse}
	s, _, _, _ := newTestSession(ft)
	s.SetInputLanguage("Go")
	s.SetInput("package main")
	s.Generate(context.Background())

	ft.err = nil
	ft.chunks = []string{"pass"}
	if err := s.Generate(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st := s.State(); st.Phase != Completed || st.Output != "pass" {
		t.Errorf("unexpected state %+v", st)
	}
}

func TestSetOutputLanguage_RetranslatesAfterCompletion(t *testing.T) {
	ft := &fakeTranslator{chunks: []string{"out"}}
	s, clip, _, _ := newTestSession(ft)
	s.SetInputLanguage("JavaScript")
	s.SetInput("let x = 1")
	s.Generate(context.Background())

	if err := s.SetOutputLanguage(context.Background(), "Rust"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ft.calls.Load() != 2 {
		t.Fatalf("expected exactly one new request, got %d total", ft.calls.Load())
	}
	req := ft.lastRequest()
	if req.InputCode != "let x = 1" || req.InputLanguage != "JavaScript" || req.OutputLanguage != "Rust" {
		t.Errorf("unexpected request %+v", req)
	}
	if len(clip.Writes()) != 2 {
		t.Errorf("expected a clipboard write per completion, got %d", len(clip.Writes()))
	}
}

func TestSetOutputLanguage_NoRetranslateBeforeCompletion(t *testing.T) {
	ft := &fakeTranslator{chunks: []string{"out"}}
	s, _, _, _ := newTestSession(ft)
	s.SetInputLanguage("JavaScript")
	s.SetInput("let x = 1")

	s.SetOutputLanguage(context.Background(), "Rust")

	if ft.calls.Load() != 0 {
		t.Errorf("expected no request, got %d", ft.calls.Load())
	}
}

func TestSetOutputLanguage_UnrecognizedLabel(t *testing.T) {
	ft := &fakeTranslator{chunks: []string{"out"}}
	s, _, _, _ := newTestSession(ft)
	s.SetInputLanguage("JavaScript")
	s.SetInput("let x = 1")
	s.Generate(context.Background())

	s.SetOutputLanguage(context.Background(), "Klingon")

	if ft.calls.Load() != 1 {
		t.Errorf("expected no new request, got %d total", ft.calls.Load())
	}
	st := s.State()
	if st.Output != "" || st.Phase != Idle {
		t.Errorf("expected cleared output and idle, got %+v", st)
	}
}

func TestSetInput_ClearsCompletionWithoutRequest(t *testing.T) {
	ft := &fakeTranslator{chunks: []string{"out"}}
	s, _, _, _ := newTestSession(ft)
	s.SetInputLanguage("JavaScript")
	s.SetInput("let x = 1")
	s.Generate(context.Background())

	s.SetInput("let x = 2")

	st := s.State()
	if st.HasTranslated() {
		t.Error("expected completion to be cleared")
	}
	if st.Output != "out" {
		t.Errorf("expected output untouched, got %q", st.Output)
	}
	if ft.calls.Load() != 1 {
		t.Errorf("expected no new request, got %d total", ft.calls.Load())
	}

	s.SetOutputLanguage(context.Background(), "Rust")
	if ft.calls.Load() != 1 {
		t.Error("target change after an edit should not translate")
	}
}

func TestSetInputLanguage_ClearsCompletionWithoutRequest(t *testing.T) {
	ft := &fakeTranslator{chunks: []string{"out"}}
	s, _, _, _ := newTestSession(ft)
	s.SetInputLanguage("JavaScript")
	s.SetInput("let x = 1")
	s.Generate(context.Background())

	s.SetInputLanguage("TypeScript")

	if s.State().HasTranslated() {
		t.Error("expected completion to be cleared")
	}
	if ft.calls.Load() != 1 {
		t.Errorf("expected no new request, got %d total", ft.calls.Load())
	}
}

func TestSession_BusyWhileStreaming(t *testing.T) {
	ft := &fakeTranslator{chunks: []string{"a", "b"}, step: make(chan struct{})}
	s, _, _, _ := newTestSession(ft)
	s.SetInputLanguage("Go")
	s.SetInput("package main")

	done := make(chan error, 1)
	go func() { done <- s.Generate(context.Background()) }()

	ft.step <- struct{}{}
	waitPhase(t, s, Streaming)

	if err := s.Generate(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("Generate: expected ErrBusy, got %v", err)
	}
	if err := s.SetInput("x"); !errors.Is(err, ErrBusy) {
		t.Errorf("SetInput: expected ErrBusy, got %v", err)
	}
	if err := s.SetInputLanguage("C"); !errors.Is(err, ErrBusy) {
		t.Errorf("SetInputLanguage: expected ErrBusy, got %v", err)
	}
	if err := s.SetOutputLanguage(context.Background(), "Rust"); !errors.Is(err, ErrBusy) {
		t.Errorf("SetOutputLanguage: expected ErrBusy, got %v", err)
	}

	ft.step <- struct{}{}
	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ft.calls.Load() != 1 {
		t.Errorf("expected one request, got %d", ft.calls.Load())
	}
	if got := s.State().Input; got != "package main" {
		t.Errorf("input changed while busy: %q", got)
	}
}

func TestSession_Cancel(t *testing.T) {
	ft := &fakeTranslator{chunks: []string{"partial", "rest"}, step: make(chan struct{})}
	s, clip, n, _ := newTestSession(ft)
	s.SetInputLanguage("Go")
	s.SetInput("package main")

	done := make(chan error, 1)
	go func() { done <- s.Generate(context.Background()) }()

	ft.step <- struct{}{}
	waitOutput(t, s, "partial")
	s.Cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	st := s.State()
	if st.Phase != Idle || st.Output != "partial" {
		t.Errorf("expected idle with partial output, got %+v", st)
	}
	if n.count() != 0 {
		t.Error("cancellation should not notify")
	}
	if len(clip.Writes()) != 0 {
		t.Error("cancellation should not write the clipboard")
	}
}

func TestSession_CancelWhileValidating(t *testing.T) {
	ft := &fakeTranslator{chunks: []string{"fn main() {}"}}
	clip := &clipboard.Memory{}
	var s *Session
	s = New(ft, Config{
		Clipboard: clip,
		Observer: ObserverFunc(func(st State) {
			if st.Phase == Validating {
				s.Cancel()
			}
		}),
	})
	s.SetInputLanguage("Go")
	s.SetInput("func main() {}")

	if err := s.Generate(context.Background()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if ft.calls.Load() != 0 {
		t.Errorf("expected no request after cancel, got %d", ft.calls.Load())
	}
	if st := s.State(); st.Phase != Idle || st.Output != "" {
		t.Errorf("expected idle with no output, got %+v", st)
	}
	if len(clip.Writes()) != 0 {
		t.Error("cancellation should not write the clipboard")
	}
}

type failingClipboard struct{}

func (failingClipboard) WriteAll(string) error { return clipboard.ErrUnsupported }

func TestGenerate_ReportsClipboardOutcome(t *testing.T) {
	ft := &fakeTranslator{chunks: []string{"print(1)"}}

	s := New(ft, Config{Clipboard: failingClipboard{}})
	s.SetInputLanguage("Go")
	s.SetInput("fmt.Println(1)")
	if err := s.Generate(context.Background()); err != nil {
		t.Fatalf("clipboard failure should not fail the translation: %v", err)
	}
	if st := s.State(); st.Phase != Completed || st.Copied {
		t.Errorf("expected completed and not copied, got %+v", st)
	}

	s = New(ft, Config{Clipboard: &clipboard.Memory{}})
	s.SetInputLanguage("Go")
	s.SetInput("fmt.Println(1)")
	if err := s.Generate(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.State().Copied {
		t.Error("expected copied after a successful clipboard write")
	}
	s.SetInput("fmt.Println(2)")
	if s.State().Copied {
		t.Error("editing the input should clear the copied flag")
	}
}

func TestSession_CancelWhenIdle(t *testing.T) {
	s := New(&fakeTranslator{}, Config{})
	s.Cancel()
	if s.State().Phase != Idle {
		t.Error("expected idle")
	}
}

func TestSession_WithClient(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != client.TranslatePath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		for _, c := range []string{"fn main() ", "{}"} {
			w.Write([]byte(c))
			flusher.Flush()
		}
	}))
	defer server.Close()

	clip := &clipboard.Memory{}
	s := New(client.New(server.URL, time.Second), Config{Clipboard: clip})
	s.SetInputLanguage("Go")
	s.SetOutputLanguage(context.Background(), "Rust")
	s.SetInput("func main() {}")

	if err := s.Generate(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := s.State().Output; got != "fn main() {}" {
		t.Errorf("unexpected output %q", got)
	}
	if w := clip.Writes(); len(w) != 1 || w[0] != "fn main() {}" {
		t.Errorf("unexpected clipboard writes %q", w)
	}
	if hits.Load() != 1 {
		t.Errorf("expected one request, got %d", hits.Load())
	}
}

func TestSession_WithClientNonOK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusInternalServerError)
	}))
	defer server.Close()

	s := New(client.New(server.URL, time.Second), Config{})
	s.SetInputLanguage("Go")
	s.SetInput("package main")

	err := s.Generate(context.Background())

	var terr *client.TransportError
	if !errors.As(err, &terr) || terr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500 transport error, got %v", err)
	}
	if st := s.State(); st.Loading() || st.Output != "" {
		t.Errorf("unexpected state %+v", st)
	}
}

func waitPhase(t *testing.T, s *Session, want Phase) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.State().Phase == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for phase %s, have %s", want, s.State().Phase)
}

func waitOutput(t *testing.T, s *Session, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.State().Output == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for output %q, have %q", want, s.State().Output)
}
