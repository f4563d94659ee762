// Package clipboard makes finished translations available on the system
// clipboard.
package clipboard

import (
	"errors"
	"sync"

	"github.com/atotto/clipboard"
)

// ErrUnsupported is returned by System when no clipboard utility is present
// (for example a headless Linux box without xclip, xsel or wl-copy).
var ErrUnsupported = errors.New("system clipboard is not available")

type Writer interface {
	WriteAll(text string) error
}

// System writes to the native clipboard.
type System struct{}

func (System) WriteAll(text string) error {
	if clipboard.Unsupported {
		return ErrUnsupported
	}
	return clipboard.WriteAll(text)
}

// Available reports whether the native clipboard can be used.
func (System) Available() bool {
	return !clipboard.Unsupported
}

// Memory keeps every write; safe for concurrent use.
type Memory struct {
	mu     sync.Mutex
	writes []string
}

func (m *Memory) WriteAll(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, text)
	return nil
}

// Writes returns a copy of all texts written so far, oldest first.
func (m *Memory) Writes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.writes))
	copy(out, m.writes)
	return out
}

// Discard drops every write.
type Discard struct{}

func (Discard) WriteAll(string) error { return nil }
