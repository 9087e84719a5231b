/*************************************************************************
 * bcproxy — a BatMUD BC-mode translating proxy
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package codec

import "github.com/x1a0/bcproxy/internal/bctag"

// FrameKind discriminates the three things Next can produce.
type FrameKind int

const (
	FrameNeedMore FrameKind = iota
	FrameText
	FrameTag
)

// Frame is one unit emitted by the Decoder.
type Frame struct {
	Kind FrameKind
	Text []byte
	Tag  *Tree
}

// WarnFunc receives a diagnostic whenever the Decoder recovers from a
// protocol violation (mismatched close, malformed digits, oversize
// tag, depth overflow). Callers that don't care may pass nil.
type WarnFunc func(format string, args ...interface{})

type mode int

const (
	modeText mode = iota
	modeEsc
	modeIac
	modeIacOption
	modeIacSub
	modeIacSubIac
)

const (
	lf      = 0x0A
	cr      = 0x0D
	escByte = bctag.Esc
	iacByte = bctag.IAC
)

const defaultMaxDepth = 32

// Decoder is a resumable byte-level state machine. Feed appends bytes
// to its internal buffer; Next pulls the next frame, returning
// FrameNeedMore when the buffer doesn't yet hold a complete one. The
// caller must not hold onto a NeedMore result across Feed calls beyond
// calling Next again — all state needed to resume lives on the
// Decoder itself.
type Decoder struct {
	buf          []byte
	pos          int
	pendingStart int
	mode         mode

	stack      []*Tree
	stackSizes []int

	iacCmd byte

	maxDepth    int
	maxTagBytes int
	warn        WarnFunc
	violations  int
}

// Option configures a Decoder at construction time.
type Option func(*Decoder)

// WithMaxDepth caps the open-tag stack depth. Exceeding it is a
// protocol violation: the whole stack is discarded and decoding
// resumes at top level. Zero or negative means the default of 32.
func WithMaxDepth(n int) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.maxDepth = n
		}
	}
}

// WithMaxTagBytes caps the accumulated text size of a single open tag.
// Zero (the default) means unbounded.
func WithMaxTagBytes(n int) Option {
	return func(d *Decoder) { d.maxTagBytes = n }
}

// WithWarnFunc installs a callback invoked on every recovered protocol
// violation.
func WithWarnFunc(w WarnFunc) Option {
	return func(d *Decoder) { d.warn = w }
}

// New builds a Decoder ready to Feed.
func New(opts ...Option) *Decoder {
	d := &Decoder{maxDepth: defaultMaxDepth}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Feed appends more input bytes. It never blocks and never parses;
// parsing happens lazily in Next.
func (d *Decoder) Feed(p []byte) {
	if len(p) == 0 {
		return
	}
	d.buf = append(d.buf, p...)
}

// Violations returns the cumulative count of recovered protocol
// violations seen so far (mismatched/spurious/malformed closes,
// oversize tags, depth overflow). Callers implementing a "garbage
// streak" connection-drop policy should snapshot this before and
// after each Next call.
func (d *Decoder) Violations() int {
	return d.violations
}

// FlushRemaining returns and clears any buffered top-level text that
// hasn't yet been emitted as a Frame, for use when the underlying
// connection is closing. Any bytes belonging to open, unclosed tags
// are discarded along with the tags themselves — per the cancellation
// policy, partial tag state does not survive a disconnect.
func (d *Decoder) FlushRemaining() []byte {
	var out []byte
	if len(d.stack) == 0 && d.pos > d.pendingStart {
		out = clone(d.buf[d.pendingStart:d.pos])
	}
	d.buf = nil
	d.pos = 0
	d.pendingStart = 0
	d.stack = nil
	d.stackSizes = nil
	d.mode = modeText
	return out
}

func (d *Decoder) warnf(format string, args ...interface{}) {
	d.violations++
	if d.warn != nil {
		d.warn(format, args...)
	}
}

// compact drops the consumed prefix [0,n) from the buffer, shifting
// positions down in place so the backing array never grows past the
// largest single in-flight tag tree.
func (d *Decoder) compact(n int) {
	if n <= 0 {
		return
	}
	copy(d.buf, d.buf[n:])
	d.buf = d.buf[:len(d.buf)-n]
	d.pos -= n
	d.pendingStart -= n
}

func clone(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (d *Decoder) emitText(text []byte, end int) Frame {
	d.compact(end)
	d.pendingStart = d.pos
	return Frame{Kind: FrameText, Text: text}
}

func (d *Decoder) emitTag(t *Tree, end int) Frame {
	d.compact(end)
	d.pendingStart = d.pos
	return Frame{Kind: FrameTag, Tag: t}
}

// emitLine flushes [start,end) as a top-level line, stripping a CR
// immediately preceding the terminating LF.
func (d *Decoder) emitLine(start, end int) Frame {
	raw := d.buf[start:end]
	if len(raw) >= 2 && raw[len(raw)-2] == cr {
		text := make([]byte, 0, len(raw)-1)
		text = append(text, raw[:len(raw)-2]...)
		text = append(text, lf)
		return d.emitText(text, end)
	}
	return d.emitText(clone(raw), end)
}

// flushIntoStackText appends [start,end) to the top open tag's
// children as (or merged into) a trailing Text content, enforcing
// MaxTagBytes. On overflow it resets the entire open-tag stack, per
// the oversize-input error policy: the whole stack is discarded and
// decoding resumes with subsequent bytes treated as top-level text.
func (d *Decoder) flushIntoStackText(start, end int) {
	if end <= start || len(d.stack) == 0 {
		return
	}
	text := clone(d.buf[start:end])
	top := len(d.stack) - 1
	d.stackSizes[top] += len(text)
	if d.maxTagBytes > 0 && d.stackSizes[top] > d.maxTagBytes {
		d.warnf("tag %s exceeds max-tag-bytes, discarding %d open tag(s)", d.stack[top].Code, len(d.stack))
		d.stack = nil
		d.stackSizes = nil
		return
	}
	tree := d.stack[top]
	if n := len(tree.Children); n > 0 && tree.Children[n-1].Kind == ContentText {
		tree.Children[n-1].Text = append(tree.Children[n-1].Text, text...)
	} else {
		tree.Children = append(tree.Children, Content{Kind: ContentText, Text: text})
	}
}

// Next pulls the next frame out of the buffered input. It returns as
// many frames as the currently buffered bytes allow; once exhausted it
// returns FrameNeedMore and the Decoder's state remains valid for a
// subsequent Feed.
func (d *Decoder) Next() Frame {
	for {
		switch d.mode {
		case modeText:
			if f, ok := d.stepText(); ok {
				return f
			}
		case modeEsc:
			if f, ok := d.stepEsc(); ok {
				return f
			}
		case modeIac:
			if f, ok := d.stepIac(); ok {
				return f
			}
		case modeIacOption:
			if f, ok := d.stepIacOption(); ok {
				return f
			}
		case modeIacSub:
			if f, ok := d.stepIacSub(); ok {
				return f
			}
		case modeIacSubIac:
			if f, ok := d.stepIacSubIac(); ok {
				return f
			}
		}
	}
}

// stepText advances the Text-state scan by (conceptually) one byte.
// ok is true only when the loop should return control to Next's
// caller: either a real Frame was produced, or the buffer ran dry.
func (d *Decoder) stepText() (Frame, bool) {
	if d.pos >= len(d.buf) {
		return Frame{Kind: FrameNeedMore}, true
	}
	b := d.buf[d.pos]
	switch b {
	case lf:
		if len(d.stack) == 0 {
			end := d.pos + 1
			d.pos = end
			return d.emitLine(d.pendingStart, end), true
		}
		d.pos++
		return Frame{}, false
	case escByte, iacByte:
		if d.pos > d.pendingStart {
			if len(d.stack) == 0 {
				text := clone(d.buf[d.pendingStart:d.pos])
				return d.emitText(text, d.pos), true
			}
			d.flushIntoStackText(d.pendingStart, d.pos)
		}
		d.pendingStart = d.pos
		d.pos++
		if b == escByte {
			d.mode = modeEsc
		} else {
			d.mode = modeIac
		}
		return Frame{}, false
	default:
		d.pos++
		return Frame{}, false
	}
}

func (d *Decoder) stepEsc() (Frame, bool) {
	if d.pos >= len(d.buf) {
		return Frame{Kind: FrameNeedMore}, true
	}
	b := d.buf[d.pos]
	switch b {
	case '<':
		return d.stepEscOpen()
	case '>':
		return d.stepEscClose()
	case '|':
		return d.stepEscArgSep()
	default:
		// Pass-through ANSI escape: put ESC back as literal text and
		// resume Text-state without consuming b. pendingStart already
		// points at the ESC byte.
		d.mode = modeText
		return Frame{}, false
	}
}

func (d *Decoder) stepEscOpen() (Frame, bool) {
	if d.pos+2 >= len(d.buf) {
		return Frame{Kind: FrameNeedMore}, true
	}
	d1, d2 := d.buf[d.pos+1], d.buf[d.pos+2]
	d.pos += 3
	code, ok := bctag.NewCode(d1, d2)
	if !ok {
		d.warnf("malformed open-tag digits %q, dropping", []byte{d1, d2})
		d.pendingStart = d.pos
		d.mode = modeText
		return Frame{}, false
	}
	if len(d.stack) >= d.maxDepth {
		d.warnf("tag nesting exceeds max depth %d, resetting stack", d.maxDepth)
		d.stack = nil
		d.stackSizes = nil
		d.pendingStart = d.pos
		d.mode = modeText
		return Frame{}, false
	}
	d.stack = append(d.stack, &Tree{Code: code})
	d.stackSizes = append(d.stackSizes, 0)
	d.pendingStart = d.pos
	d.mode = modeText
	return Frame{}, false
}

func (d *Decoder) stepEscClose() (Frame, bool) {
	if d.pos+2 >= len(d.buf) {
		return Frame{Kind: FrameNeedMore}, true
	}
	d1, d2 := d.buf[d.pos+1], d.buf[d.pos+2]
	d.pos += 3
	code, ok := bctag.NewCode(d1, d2)
	d.pendingStart = d.pos
	d.mode = modeText
	if !ok {
		d.warnf("malformed close-tag digits %q, dropping", []byte{d1, d2})
		return Frame{}, false
	}
	if len(d.stack) == 0 {
		d.warnf("spurious closing tag %s with no open tag, ignoring", code)
		return Frame{}, false
	}
	top := len(d.stack) - 1
	t := d.stack[top]
	d.stack = d.stack[:top]
	d.stackSizes = d.stackSizes[:top]
	if t.Code != code {
		// Mismatched closing tag: discard the whole open tag in
		// progress, not just the offending close.
		d.warnf("mismatched closing tag %s for open tag %s, discarding", code, t.Code)
		return Frame{}, false
	}
	if len(d.stack) == 0 {
		return d.emitTag(t, d.pos), true
	}
	parent := d.stack[len(d.stack)-1]
	parent.Children = append(parent.Children, Content{Kind: ContentTag, Tag: t})
	return Frame{}, false
}

func (d *Decoder) stepEscArgSep() (Frame, bool) {
	d.pos++
	if len(d.stack) == 0 {
		// No open tag: "\x1b|" is pass-through literal text. Leave
		// pendingStart at the ESC byte so both bytes join the next
		// emitted text run.
		d.mode = modeText
		return Frame{}, false
	}
	top := d.stack[len(d.stack)-1]
	if !top.HasArgument {
		if n := len(top.Children); n > 0 && top.Children[n-1].Kind == ContentText {
			top.Argument = top.Children[n-1].Text
			top.Children = top.Children[:n-1]
		} else {
			top.Argument = []byte{}
		}
		top.HasArgument = true
	}
	d.pendingStart = d.pos
	d.mode = modeText
	return Frame{}, false
}

func (d *Decoder) stepIac() (Frame, bool) {
	if d.pos >= len(d.buf) {
		return Frame{Kind: FrameNeedMore}, true
	}
	b := d.buf[d.pos]
	switch b {
	case iacByte:
		d.pos++
		d.mode = modeText
		return d.emitText([]byte{iacByte}, d.pos), true
	case bctag.WILL, bctag.WONT, bctag.DO, bctag.DONT:
		d.iacCmd = b
		d.pos++
		d.mode = modeIacOption
		return Frame{}, false
	case bctag.SB:
		d.pos++
		d.mode = modeIacSub
		return Frame{}, false
	default:
		// Single-byte telnet command (GA, NOP, ...): emit IAC+cmd
		// verbatim. Bypasses tag accumulation entirely, even if the
		// decoder is currently inside an open tag.
		d.pos++
		d.mode = modeText
		return d.emitText([]byte{iacByte, b}, d.pos), true
	}
}

func (d *Decoder) stepIacOption() (Frame, bool) {
	if d.pos >= len(d.buf) {
		return Frame{Kind: FrameNeedMore}, true
	}
	x := d.buf[d.pos]
	d.pos++
	d.mode = modeText
	return d.emitText([]byte{iacByte, d.iacCmd, x}, d.pos), true
}

func (d *Decoder) stepIacSub() (Frame, bool) {
	if d.pos >= len(d.buf) {
		return Frame{Kind: FrameNeedMore}, true
	}
	b := d.buf[d.pos]
	d.pos++
	if b == iacByte {
		d.mode = modeIacSubIac
	}
	return Frame{}, false
}

func (d *Decoder) stepIacSubIac() (Frame, bool) {
	if d.pos >= len(d.buf) {
		return Frame{Kind: FrameNeedMore}, true
	}
	b := d.buf[d.pos]
	d.pos++
	switch b {
	case bctag.SE:
		start, end := d.pendingStart, d.pos
		text := clone(d.buf[start:end])
		d.mode = modeText
		return d.emitText(text, end), true
	default:
		// Anything else, including a further IAC, stays inside the
		// subnegotiation body.
		d.mode = modeIacSub
		return Frame{}, false
	}
}
