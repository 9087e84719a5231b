/*************************************************************************
 * bcproxy — a BatMUD BC-mode translating proxy
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package render implements the Transformer: a pure function from a
// completed codec.Tree to the bytes written to the telnet client.
package render

import (
	"bytes"
	"strconv"

	"github.com/x1a0/bcproxy/internal/bctag"
	"github.com/x1a0/bcproxy/internal/codec"
	"github.com/x1a0/bcproxy/internal/mapper"
	"github.com/x1a0/bcproxy/internal/xcolor"
)

// Prefix is the fixed two-byte marker prepended to channelized and
// info-block output lines: 0xCF 0x80, the UTF-8 encoding of the Greek
// small letter pi. Chosen because ordinary BatMUD server text will not
// produce it by accident; not configurable (see the design notes in
// SPEC_FULL for why this is fixed rather than a config knob).
var Prefix = bctag.PrefixByte[:]

const (
	sgrReset    = "\x1b[0m"
	clearScreen = "\x1b[2J"
	telnetGA    = "\xff\xf9"
)

// Renderer turns decoded tag trees into client-bound bytes. It never
// fails: unknown codes fall back to a generic info-block rendering,
// and malformed mapper payloads render as plain framed text instead of
// erroring out.
type Renderer struct {
	warn xcolor.WarnFunc
}

// New builds a Renderer. warn, if non-nil, receives diagnostics from
// ColorMap on malformed color arguments; pass nil to disable.
func New(warn xcolor.WarnFunc) *Renderer {
	return &Renderer{warn: warn}
}

// Result is what Transform produces: the rendered bytes, plus an
// optional decoded AreaRoom when the tag was a BatMapper custom-info
// payload carrying room data (for PersistenceSink wiring in
// internal/proxy).
type Result struct {
	Bytes []byte
	Room  *mapper.AreaRoom
}

// Transform recursively renders t and its children, dispatching on
// t.Code per the known tag code table. Cost is linear in the tree's
// total byte size.
func (r *Renderer) Transform(t *codec.Tree) Result {
	switch t.Code {
	case bctag.CodeReset, bctag.CodeStyleReset:
		return Result{Bytes: []byte(sgrReset)}

	case bctag.CodeLoginOK:
		return Result{Bytes: []byte("[login] OK\n")}

	case bctag.CodeLoginFail:
		return r.wrapLine("[login] ", t.Text())

	case bctag.CodeMessage:
		return r.renderMessage(t)

	case bctag.CodeClearScreen:
		return Result{Bytes: []byte(clearScreen)}

	case bctag.CodeFgColor:
		return Result{Bytes: r.wrapSGR(38, t)}

	case bctag.CodeBgColor:
		return Result{Bytes: r.wrapSGR(48, t)}

	case bctag.CodeBold:
		return Result{Bytes: r.wrapSimpleSGR(1, t)}
	case bctag.CodeItalic:
		return Result{Bytes: r.wrapSimpleSGR(3, t)}
	case bctag.CodeUnderline:
		return Result{Bytes: r.wrapSimpleSGR(4, t)}
	case bctag.CodeBlink:
		return Result{Bytes: r.wrapSimpleSGR(5, t)}

	case bctag.CodeHyperlink:
		return Result{Bytes: r.wrapBracketLink(t)}
	case bctag.CodeCommandLink:
		return Result{Bytes: r.wrapCommandLink(t)}

	case bctag.CodeActionBegin, bctag.CodeActionMid, bctag.CodeActionEnd,
		bctag.CodePlayer0, bctag.CodePlayer1, bctag.CodePlayer2, bctag.CodePlayer3, bctag.CodePlayer4,
		bctag.CodeParty0, bctag.CodeParty1, bctag.CodeParty2, bctag.CodeParty3, bctag.CodeParty4,
		bctag.CodeTarget:
		return Result{Bytes: r.renderPrefixedLines(t.Code.String(), r.renderChildren(t))}

	case bctag.CodeCustomInfo:
		return r.renderCustomInfo(t)

	default:
		return Result{Bytes: r.renderPrefixedLines(t.Code.String(), r.renderChildren(t))}
	}
}

// renderChildren concatenates the rendered form of every child,
// recursing into nested tags.
func (r *Renderer) renderChildren(t *codec.Tree) []byte {
	var out []byte
	for _, c := range t.Children {
		switch c.Kind {
		case codec.ContentText:
			out = append(out, c.Text...)
		case codec.ContentTag:
			out = append(out, r.Transform(c.Tag).Bytes...)
		}
	}
	return out
}

func (r *Renderer) wrapLine(prefix string, body []byte) Result {
	out := append([]byte(prefix), body...)
	out = append(out, '\n')
	return Result{Bytes: out}
}

func (r *Renderer) wrapSGR(base int, t *codec.Tree) []byte {
	idx := xcolor.ColorMap(t.Argument, r.warn)
	var out []byte
	out = append(out, '\x1b', '[')
	out = append(out, []byte(strconv.Itoa(base))...)
	out = append(out, ';', '5', ';')
	out = append(out, []byte(strconv.Itoa(idx))...)
	out = append(out, 'm')
	out = append(out, r.renderChildren(t)...)
	out = append(out, []byte(sgrReset)...)
	return out
}

func (r *Renderer) wrapSimpleSGR(n int, t *codec.Tree) []byte {
	var out []byte
	out = append(out, '\x1b', '[')
	out = append(out, []byte(strconv.Itoa(n))...)
	out = append(out, 'm')
	out = append(out, r.renderChildren(t)...)
	out = append(out, []byte(sgrReset)...)
	return out
}

func (r *Renderer) wrapBracketLink(t *codec.Tree) []byte {
	body := r.renderChildren(t)
	var out []byte
	out = append(out, '[')
	out = append(out, body...)
	out = append(out, ']', '(')
	out = append(out, t.Argument...)
	out = append(out, ')')
	return out
}

func (r *Renderer) wrapCommandLink(t *codec.Tree) []byte {
	body := r.renderChildren(t)
	if bytes.Equal(body, t.Argument) {
		return r.wrapSimpleSGR(4, t)
	}
	return r.wrapBracketLink(t)
}

// renderMessage implements the code-10 dispatch table: prompt lines
// get the telnet GA terminator, battle/spell/skill channels pass
// through unwrapped, everything else gets a prefixed per-line framing.
func (r *Renderer) renderMessage(t *codec.Tree) Result {
	body := r.renderChildren(t)
	switch string(t.Argument) {
	case bctag.ArgPrompt:
		out := append(append([]byte{}, body...), telnetGA...)
		return Result{Bytes: out}
	case bctag.ArgBattle, bctag.ArgSpell, bctag.ArgSkill:
		return Result{Bytes: body}
	default:
		return Result{Bytes: r.renderPrefixedLines(string(t.Argument), body)}
	}
}

// renderPrefixedLines applies "PREFIX discriminator: line\n" framing
// to each newline-delimited line of body. A trailing line with no
// terminating newline passes through without the prefix.
func (r *Renderer) renderPrefixedLines(discriminator string, body []byte) []byte {
	var out []byte
	rest := body
	for len(rest) > 0 {
		nl := bytes.IndexByte(rest, '\n')
		if nl < 0 {
			out = append(out, rest...)
			break
		}
		line := rest[:nl]
		out = append(out, Prefix...)
		out = append(out, discriminator...)
		out = append(out, ':', ' ')
		out = append(out, line...)
		out = append(out, '\n')
		rest = rest[nl+1:]
	}
	return out
}

// renderCustomInfo implements code 99: a BatMapper payload is parsed
// and reframed as one summary line plus one prefixed line per line of
// its long description; anything else falls back to a generic
// multi-line info block keyed by the code digits.
func (r *Renderer) renderCustomInfo(t *codec.Tree) Result {
	body := t.Text()
	p, err := mapper.Parse(body)
	if err != nil {
		return Result{Bytes: r.renderPrefixedLines(t.Code.String(), body)}
	}
	if p.Kind == mapper.KindRealmMap {
		return Result{Bytes: r.renderPrefixedLines(t.Code.String(), []byte(bctag.MapperRealm+"\n"))}
	}
	room := p.Room
	summary := bytes.Join([][]byte{
		[]byte(room.Area), []byte(room.ID), []byte(room.From),
		indoorToken(room.Indoor), []byte(room.Short), []byte(room.Exits),
	}, []byte(";;"))
	var out []byte
	out = append(out, r.renderPrefixedLines(t.Code.String(), append(summary, '\n'))...)
	out = append(out, r.renderPrefixedLines(t.Code.String(), []byte(room.Long+"\n"))...)
	return Result{Bytes: out, Room: &room}
}

func indoorToken(indoor bool) []byte {
	if indoor {
		return []byte{'1'}
	}
	return []byte{'0'}
}
