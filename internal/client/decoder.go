package client

import (
	"strings"
	"unicode/utf8"
)

// chunkDecoder turns arbitrary byte chunks into valid UTF-8 strings. A rune
// split across two reads is held back until its remaining bytes arrive.
type chunkDecoder struct {
	pending []byte
}

func (d *chunkDecoder) Decode(p []byte) string {
	buf := append(d.pending, p...)

	cut := len(buf)
	for i := len(buf) - 1; i >= 0 && i >= len(buf)-(utf8.UTFMax-1); i-- {
		if utf8.RuneStart(buf[i]) {
			if !utf8.FullRune(buf[i:]) {
				cut = i
			}
			break
		}
	}

	d.pending = append([]byte(nil), buf[cut:]...)
	return strings.ToValidUTF8(string(buf[:cut]), string(utf8.RuneError))
}

// Flush returns whatever is still held back; an incomplete sequence at end
// of stream becomes U+FFFD.
func (d *chunkDecoder) Flush() string {
	if len(d.pending) == 0 {
		return ""
	}
	s := strings.ToValidUTF8(string(d.pending), string(utf8.RuneError))
	d.pending = nil
	return s
}
