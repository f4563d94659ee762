package cmd

import (
	"bytes"
	"testing"

	"github.com/valpere/codeconvert/internal/config"
	"github.com/valpere/codeconvert/internal/session"
	"github.com/valpere/codeconvert/internal/translator"
)

func TestStreamPrinter_PrintsOnlyNewText(t *testing.T) {
	var buf bytes.Buffer
	p := &streamPrinter{w: &buf}

	p.StateChanged(session.State{Phase: session.Validating})
	p.StateChanged(session.State{Phase: session.Streaming, Output: "def f"})
	p.StateChanged(session.State{Phase: session.Streaming, Output: "def foo():"})
	p.StateChanged(session.State{Phase: session.Completed, Output: "def foo():"})
	p.finish()

	if got := buf.String(); got != "def foo():\n" {
		t.Errorf("unexpected output %q", got)
	}
}

func TestStreamPrinter_RestartsOnNewTranslation(t *testing.T) {
	var buf bytes.Buffer
	p := &streamPrinter{w: &buf}

	p.StateChanged(session.State{Phase: session.Streaming, Output: "one\n"})
	p.StateChanged(session.State{Phase: session.Idle, Output: ""})
	p.StateChanged(session.State{Phase: session.Streaming, Output: "two"})

	if got := buf.String(); got != "one\ntwo" {
		t.Errorf("unexpected output %q", got)
	}
}

func TestBuildProviders(t *testing.T) {
	providers, err := buildProviders([]translator.ProviderConfig{
		{Name: "a", Kind: config.KindOpenAI, APIKey: "k"},
		{Name: "b", Kind: config.KindOpenRouter, APIKey: "k"},
		{Name: "c", Kind: config.KindOllama},
		{Name: "d", Kind: "unknown"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(providers) != 3 {
		t.Fatalf("expected 3 providers, got %d", len(providers))
	}
	for i, want := range []string{"a", "b", "c"} {
		if providers[i].Name() != want {
			t.Errorf("provider %d: expected %s, got %s", i, want, providers[i].Name())
		}
	}
}

func TestBuildProviders_None(t *testing.T) {
	if _, err := buildProviders(nil); err == nil {
		t.Error("expected error with no providers")
	}
}

func TestSnippet(t *testing.T) {
	if got := snippet("func main() {\n\tfmt.Println(1)\n}"); got != "func main() { fmt.Println(1) }" {
		t.Errorf("unexpected snippet %q", got)
	}
	long := snippet("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	if len([]rune(long)) != 40 {
		t.Errorf("expected 40 runes, got %d", len([]rune(long)))
	}
}
