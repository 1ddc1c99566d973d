// Package thinktag removes configurable reasoning-tag regions
// (e.g. "<think>...</think>") from response text. The stream filter keeps
// just enough state to handle tags split across arbitrary chunk
// boundaries without ever retracting bytes it has already emitted.
package thinktag

import (
	"bytes"
)

// Filter is a per-stream state machine that suppresses everything between
// a start tag and an end tag. It is not safe for concurrent use; create
// one Filter per in-flight stream.
type Filter struct {
	startTag []byte
	endTag   []byte

	// suppressing is true between a matched start tag and the next end tag.
	suppressing bool

	// pending holds the tail of the input that could still turn out to be
	// the beginning of the tag we are currently scanning for.
	pending []byte

	passthrough bool
}

// NewFilter returns a Filter for the given tag pair. An empty start or end
// tag disables filtering entirely: the filter degrades to a pass-through
// rather than failing the stream.
func NewFilter(startTag, endTag string) *Filter {
	if startTag == "" || endTag == "" {
		return &Filter{passthrough: true}
	}
	return &Filter{
		startTag: []byte(startTag),
		endTag:   []byte(endTag),
	}
}

// NewPassthrough returns a Filter that emits its input unchanged.
func NewPassthrough() *Filter {
	return &Filter{passthrough: true}
}

// Suppressing reports whether the filter is currently inside a tag region.
func (f *Filter) Suppressing() bool { return f.suppressing }

// ProcessChunk consumes one fragment of the stream and returns the bytes
// that are safe to emit. Bytes that might still complete into a tag on a
// later fragment are held back internally until resolved or flushed.
func (f *Filter) ProcessChunk(chunk []byte) []byte {
	if f.passthrough {
		return chunk
	}

	buf := chunk
	if len(f.pending) > 0 {
		buf = append(f.pending, chunk...)
		f.pending = nil
	}

	var out []byte
	for {
		tag := f.startTag
		if f.suppressing {
			tag = f.endTag
		}

		idx := bytes.Index(buf, tag)
		if idx >= 0 {
			if !f.suppressing {
				out = append(out, buf[:idx]...)
			}
			buf = buf[idx+len(tag):]
			f.suppressing = !f.suppressing
			continue
		}

		// No full match. Hold back the longest suffix that is still a
		// viable prefix of the tag; everything before it is decided.
		hold := prefixSuffixLen(buf, tag)
		if !f.suppressing {
			out = append(out, buf[:len(buf)-hold]...)
		}
		if hold > 0 {
			f.pending = append(f.pending[:0], buf[len(buf)-hold:]...)
		}
		return out
	}
}

// Flush terminates the stream. Held-back text is emitted verbatim when the
// filter is scanning (it never completed into a tag) and dropped when the
// filter is suppressing: an unterminated tag region consumes the rest of
// the response.
func (f *Filter) Flush() []byte {
	rest := f.pending
	f.pending = nil
	if f.suppressing {
		return nil
	}
	return rest
}

// prefixSuffixLen returns the length of the longest suffix of s that is a
// proper prefix of tag.
func prefixSuffixLen(s, tag []byte) int {
	max := len(tag) - 1
	if max > len(s) {
		max = len(s)
	}
	for n := max; n > 0; n-- {
		if bytes.HasSuffix(s, tag[:n]) {
			return n
		}
	}
	return 0
}

// FilterBytes runs the stream state machine over a complete body in one
// call. Streaming and non-streaming responses share filtering semantics
// regardless of how the transport chunked the body.
func FilterBytes(body []byte, startTag, endTag string) []byte {
	f := NewFilter(startTag, endTag)
	out := f.ProcessChunk(body)
	return append(out, f.Flush()...)
}

// FilterString is FilterBytes for string bodies.
func FilterString(body, startTag, endTag string) string {
	return string(FilterBytes([]byte(body), startTag, endTag))
}
