// Package postprocess removes reasoning blocks that some models emit before
// the actual translation.
//
// ThinkingFilter works on a stream: tags may be split across any number of
// chunks, and text outside the blocks is passed through byte for byte.
package postprocess

import "strings"

type tagPair struct {
	open, close string
}

var thinkingTags = []tagPair{
	{"<think>", "</think>"},
	{"<thinking>", "</thinking>"},
	{"<reasoning>", "</reasoning>"},
	{"<reflection>", "</reflection>"},
}

// ThinkingFilter drops <think>…</think> style blocks and the whitespace that
// follows them. The zero value is ready to use; it is not safe for concurrent
// use.
type ThinkingFilter struct {
	pending   string
	closeTag  string // set while inside a block
	trimSpace bool
}

// Push consumes the next chunk and returns the text that can be emitted now.
// Text that might be the start of a tag is held back until it is decided.
func (f *ThinkingFilter) Push(chunk string) string {
	buf := f.pending + chunk
	f.pending = ""

	var out strings.Builder
	for buf != "" {
		if f.closeTag != "" {
			i := strings.Index(buf, f.closeTag)
			if i < 0 {
				f.pending = partialSuffix(buf, []string{f.closeTag})
				return out.String()
			}
			buf = buf[i+len(f.closeTag):]
			f.closeTag = ""
			f.trimSpace = true
			continue
		}

		if f.trimSpace {
			buf = strings.TrimLeft(buf, " \t\r\n")
			if buf == "" {
				break
			}
			f.trimSpace = false
		}

		i, pair := firstOpenTag(buf)
		if i < 0 {
			f.pending = partialSuffix(buf, openTags())
			out.WriteString(buf[:len(buf)-len(f.pending)])
			break
		}
		out.WriteString(buf[:i])
		buf = buf[i+len(pair.open):]
		f.closeTag = pair.close
	}
	return out.String()
}

// Flush returns held-back text at the end of the stream. An unterminated
// block is dropped.
func (f *ThinkingFilter) Flush() string {
	rest := f.pending
	f.pending = ""
	if f.closeTag != "" {
		return ""
	}
	if f.trimSpace {
		rest = strings.TrimLeft(rest, " \t\r\n")
	}
	return rest
}

// Clean removes thinking blocks from a complete text.
func Clean(text string) string {
	var f ThinkingFilter
	return f.Push(text) + f.Flush()
}

func firstOpenTag(s string) (int, tagPair) {
	best := -1
	var found tagPair
	for _, p := range thinkingTags {
		if i := strings.Index(s, p.open); i >= 0 && (best < 0 || i < best) {
			best, found = i, p
		}
	}
	return best, found
}

func openTags() []string {
	tags := make([]string, len(thinkingTags))
	for i, p := range thinkingTags {
		tags[i] = p.open
	}
	return tags
}

// partialSuffix returns the longest suffix of s that is a proper prefix of
// one of tags.
func partialSuffix(s string, tags []string) string {
	longest := ""
	for _, tag := range tags {
		max := len(tag) - 1
		if max > len(s) {
			max = len(s)
		}
		for n := max; n > len(longest); n-- {
			if strings.HasSuffix(s, tag[:n]) {
				longest = s[len(s)-n:]
				break
			}
		}
	}
	return longest
}
