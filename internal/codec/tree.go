/*************************************************************************
 * bcproxy — a BatMUD BC-mode translating proxy
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package codec implements the resumable BC-markup decoder: a
// byte-level state machine that consumes a stream of interleaved plain
// text, nested BC tags, pass-through ANSI escapes, and Telnet IAC
// control sequences, and emits complete frames.
package codec

import "github.com/x1a0/bcproxy/internal/bctag"

// ContentKind discriminates the two shapes a Content can hold.
type ContentKind int

const (
	ContentText ContentKind = iota
	ContentTag
)

// Content is one child of a Tree: either a literal text span or a
// nested, fully-closed Tree.
type Content struct {
	Kind ContentKind
	Text []byte
	Tag  *Tree
}

// Tree is a decoded BC tag: its code, an optional argument (the bytes
// preceding the first "\x1b|" seen directly inside it), and its
// ordered children. A Tree is only ever handed to callers once its
// outermost closing tag has been consumed, at which point it is
// immutable.
type Tree struct {
	Code        bctag.Code
	Argument    []byte
	HasArgument bool
	Children    []Content
}

// Text concatenates the literal text of t's direct Text children,
// ignoring nested tags. Most render dispatch needs exactly this: the
// body of a tag that is not expected to carry further markup.
func (t *Tree) Text() []byte {
	var out []byte
	for _, c := range t.Children {
		if c.Kind == ContentText {
			out = append(out, c.Text...)
		}
	}
	return out
}
