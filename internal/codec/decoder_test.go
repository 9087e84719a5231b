/*************************************************************************
 * bcproxy — a BatMUD BC-mode translating proxy
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package codec

import (
	"bytes"
	"testing"

	"github.com/x1a0/bcproxy/internal/bctag"
)

// drain runs Next until NeedMore, collecting every real frame.
func drain(d *Decoder) []Frame {
	var out []Frame
	for {
		f := d.Next()
		if f.Kind == FrameNeedMore {
			return out
		}
		out = append(out, f)
	}
}

func TestByteConservationNoMarkup(t *testing.T) {
	in := []byte("just some plain text with no markup at all\nsecond line\n")
	d := New()
	d.Feed(in)
	frames := drain(d)
	var out []byte
	for _, f := range frames {
		if f.Kind != FrameText {
			t.Fatalf("unexpected frame kind %v", f.Kind)
		}
		out = append(out, f.Text...)
	}
	if !bytes.Equal(out, in) {
		t.Fatalf("output = %q, want %q", out, in)
	}
}

func TestNestedColorTag(t *testing.T) {
	in := []byte("\x1b<20FFFFFF\x1b|\x1b<210000FF\x1b|Test output, white on blue\x1b>21\x1b>20")
	d := New()
	d.Feed(in)
	f := d.Next()
	if f.Kind != FrameTag {
		t.Fatalf("Kind = %v, want FrameTag", f.Kind)
	}
	outer := f.Tag
	if outer.Code != bctag.CodeFgColor || string(outer.Argument) != "FFFFFF" {
		t.Fatalf("outer = %+v", outer)
	}
	if len(outer.Children) != 1 || outer.Children[0].Kind != ContentTag {
		t.Fatalf("outer.Children = %+v", outer.Children)
	}
	inner := outer.Children[0].Tag
	if inner.Code != bctag.CodeBgColor || string(inner.Argument) != "0000FF" {
		t.Fatalf("inner = %+v", inner)
	}
	if len(inner.Children) != 1 || inner.Children[0].Kind != ContentText {
		t.Fatalf("inner.Children = %+v", inner.Children)
	}
	if string(inner.Children[0].Text) != "Test output, white on blue" {
		t.Fatalf("inner text = %q", inner.Children[0].Text)
	}
	if next := d.Next(); next.Kind != FrameNeedMore {
		t.Fatalf("trailing frame kind = %v, want FrameNeedMore", next.Kind)
	}
}

func TestChannelLine(t *testing.T) {
	in := []byte("\x1b<10chan_sales\x1b|Test output\n\x1b>10")
	d := New()
	d.Feed(in)
	f := d.Next()
	if f.Kind != FrameTag {
		t.Fatalf("Kind = %v, want FrameTag", f.Kind)
	}
	if f.Tag.Code != bctag.CodeMessage || string(f.Tag.Argument) != "chan_sales" {
		t.Fatalf("tag = %+v", f.Tag)
	}
	if string(f.Tag.Text()) != "Test output\n" {
		t.Fatalf("body = %q", f.Tag.Text())
	}
}

func TestPromptTag(t *testing.T) {
	in := []byte("\x1b<10spec_prompt\x1b|HP:100>\x1b>10")
	d := New()
	d.Feed(in)
	f := d.Next()
	if f.Kind != FrameTag {
		t.Fatalf("Kind = %v, want FrameTag", f.Kind)
	}
	if string(f.Tag.Argument) != "spec_prompt" {
		t.Fatalf("argument = %q", f.Tag.Argument)
	}
	if string(f.Tag.Text()) != "HP:100>" {
		t.Fatalf("body = %q", f.Tag.Text())
	}
}

func TestIACPassthroughAmidText(t *testing.T) {
	in := []byte("hello\xff\xfb\x01world\n")
	d := New()
	d.Feed(in)
	frames := drain(d)
	var out []byte
	for _, f := range frames {
		out = append(out, f.Text...)
	}
	if !bytes.Equal(out, in) {
		t.Fatalf("output = %q, want %q", out, in)
	}
}

func TestIACDoubleEscaping(t *testing.T) {
	in := []byte{'a', 0xff, 0xff, 'b', '\n'}
	d := New()
	d.Feed(in)
	frames := drain(d)
	var out []byte
	for _, f := range frames {
		out = append(out, f.Text...)
	}
	want := []byte{'a', 0xff, 'b', '\n'}
	if !bytes.Equal(out, want) {
		t.Fatalf("output = %v, want %v", out, want)
	}
}

func TestIACSubnegotiation(t *testing.T) {
	sub := []byte{0xff, 0xfa, 0x18, 0x00, 0xff, 0xf0}
	in := append(append([]byte("pre"), sub...), []byte("post\n")...)
	d := New()
	d.Feed(in)
	frames := drain(d)
	var out []byte
	for _, f := range frames {
		out = append(out, f.Text...)
	}
	if !bytes.Equal(out, in) {
		t.Fatalf("output = %v, want %v", out, in)
	}
}

func TestIncrementalEquivalenceByteAtATime(t *testing.T) {
	in := []byte("\x1b<20FFFFFF\x1b|\x1b<210000FF\x1b|Test output, white on blue\x1b>21\x1b>20")
	whole := New()
	whole.Feed(in)
	wantFrame := whole.Next()

	got := New()
	var lastFrame Frame
	for i := 0; i < len(in); i++ {
		got.Feed(in[i : i+1])
		for {
			f := got.Next()
			if f.Kind == FrameNeedMore {
				break
			}
			lastFrame = f
		}
	}
	if lastFrame.Kind != FrameTag || wantFrame.Kind != FrameTag {
		t.Fatalf("kinds = %v, %v", lastFrame.Kind, wantFrame.Kind)
	}
	if !treesEqual(lastFrame.Tag, wantFrame.Tag) {
		t.Fatalf("incremental decode diverged from single-shot decode")
	}
}

func TestIncrementalEquivalenceArbitrarySplit(t *testing.T) {
	in := []byte("plain \x1b<00\x1b>00 text \xff\xf9 tail\n")
	splits := [][]int{
		{},
		{1},
		{5, 6, 20},
		{3, 3, 3, len(in) - 1},
	}
	whole := New()
	whole.Feed(in)
	want := drain(whole)

	for _, cuts := range splits {
		d := New()
		prev := 0
		var got []Frame
		feedAndDrain := func(chunk []byte) {
			d.Feed(chunk)
			got = append(got, drain(d)...)
		}
		for _, c := range cuts {
			if c < prev || c > len(in) {
				continue
			}
			feedAndDrain(in[prev:c])
			prev = c
		}
		feedAndDrain(in[prev:])
		if len(got) != len(want) {
			t.Fatalf("split %v: got %d frames, want %d", cuts, len(got), len(want))
		}
		for i := range got {
			if got[i].Kind != want[i].Kind {
				t.Fatalf("split %v: frame %d kind mismatch", cuts, i)
			}
			if got[i].Kind == FrameText && !bytes.Equal(got[i].Text, want[i].Text) {
				t.Fatalf("split %v: frame %d text %q, want %q", cuts, i, got[i].Text, want[i].Text)
			}
		}
	}
}

func treesEqual(a, b *Tree) bool {
	if a.Code != b.Code || a.HasArgument != b.HasArgument {
		return false
	}
	if !bytes.Equal(a.Argument, b.Argument) {
		return false
	}
	if len(a.Children) != len(b.Children) {
		return false
	}
	for i := range a.Children {
		ca, cb := a.Children[i], b.Children[i]
		if ca.Kind != cb.Kind {
			return false
		}
		if ca.Kind == ContentText && !bytes.Equal(ca.Text, cb.Text) {
			return false
		}
		if ca.Kind == ContentTag && !treesEqual(ca.Tag, cb.Tag) {
			return false
		}
	}
	return true
}

func TestMismatchedCloseDiscardsWholeTag(t *testing.T) {
	// Open code 20, write some text, then close with a wrong code (21):
	// the whole open tag (including its text) must be discarded, not
	// just the offending close.
	in := []byte("\x1b<20oops\x1b>21after\n")
	d := New()
	var warned []string
	d = New(WithWarnFunc(func(format string, args ...interface{}) {
		warned = append(warned, format)
	}))
	d.Feed(in)
	f := d.Next()
	if f.Kind != FrameText {
		t.Fatalf("Kind = %v, want FrameText", f.Kind)
	}
	if string(f.Text) != "after\n" {
		t.Fatalf("text = %q, want %q", f.Text, "after\n")
	}
	if d.Violations() == 0 {
		t.Fatal("expected a recorded violation")
	}
}

func TestSpuriousCloseIgnored(t *testing.T) {
	in := []byte("\x1b>20hello\n")
	d := New()
	d.Feed(in)
	f := d.Next()
	if f.Kind != FrameText || string(f.Text) != "hello\n" {
		t.Fatalf("frame = %+v", f)
	}
	if d.Violations() != 1 {
		t.Fatalf("violations = %d, want 1", d.Violations())
	}
}

func TestMalformedDigitsDropped(t *testing.T) {
	in := []byte("\x1b<a0hello\n")
	d := New()
	d.Feed(in)
	f := d.Next()
	if f.Kind != FrameText || string(f.Text) != "hello\n" {
		t.Fatalf("frame = %+v", f)
	}
	if d.Violations() != 1 {
		t.Fatalf("violations = %d, want 1", d.Violations())
	}
}

func TestMaxDepthResetsStack(t *testing.T) {
	d := New(WithMaxDepth(2))
	d.Feed([]byte("\x1b<00\x1b<00\x1b<00ok\n"))
	f := d.Next()
	if f.Kind != FrameText || string(f.Text) != "ok\n" {
		t.Fatalf("frame = %+v", f)
	}
	if d.Violations() != 1 {
		t.Fatalf("violations = %d, want 1", d.Violations())
	}
}

func TestMaxTagBytesResetsStack(t *testing.T) {
	d := New(WithMaxTagBytes(4))
	d.Feed([]byte("\x1b<00abcdefgh\x1b>00tail\n"))
	f := d.Next()
	if f.Kind != FrameText {
		t.Fatalf("Kind = %v, want FrameText", f.Kind)
	}
	if d.Violations() == 0 {
		t.Fatal("expected a recorded violation")
	}
}

func TestAnsiPassthroughInsideText(t *testing.T) {
	// Pass-through ANSI escapes are never BC markup, but each ESC still
	// forces a flush of whatever top-level text preceded it, so the
	// byte-conserved result may arrive as more than one Text frame.
	in := []byte("before\x1b[31mred\x1b[0mafter\n")
	d := New()
	d.Feed(in)
	frames := drain(d)
	var out []byte
	for _, f := range frames {
		if f.Kind != FrameText {
			t.Fatalf("unexpected frame kind %v", f.Kind)
		}
		out = append(out, f.Text...)
	}
	if !bytes.Equal(out, in) {
		t.Fatalf("output = %q, want %q", out, in)
	}
}

func TestArgSepWithoutOpenTagIsLiteral(t *testing.T) {
	in := []byte("a\x1b|b\n")
	d := New()
	d.Feed(in)
	frames := drain(d)
	var out []byte
	for _, f := range frames {
		if f.Kind != FrameText {
			t.Fatalf("unexpected frame kind %v", f.Kind)
		}
		out = append(out, f.Text...)
	}
	if !bytes.Equal(out, in) {
		t.Fatalf("output = %q, want %q", out, in)
	}
}

func TestFlushRemainingDropsOpenTags(t *testing.T) {
	d := New()
	d.Feed([]byte("trailing text no newline"))
	d.Next() // NeedMore, nothing emitted yet
	rem := d.FlushRemaining()
	if string(rem) != "trailing text no newline" {
		t.Fatalf("remaining = %q", rem)
	}

	d2 := New()
	d2.Feed([]byte("\x1b<20partial"))
	d2.Next()
	rem2 := d2.FlushRemaining()
	if rem2 != nil {
		t.Fatalf("remaining = %q, want nil (open tag discarded)", rem2)
	}
}
