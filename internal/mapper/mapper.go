/*************************************************************************
 * bcproxy — a BatMUD BC-mode translating proxy
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package mapper decodes the BatMapper ";;"-delimited custom-info
// payload into structured fields for optional persistence.
package mapper

import (
	"bytes"
	"errors"

	"github.com/x1a0/bcproxy/internal/bctag"
)

// ErrNotMapper is returned when the payload's first token isn't the
// BAT_MAPPER sentinel.
var ErrNotMapper = errors.New("mapper: not a BAT_MAPPER payload")

// ErrInvalidMapper is returned when the payload begins with the
// sentinel but carries a trailing field count other than 1 or 7.
var ErrInvalidMapper = errors.New("mapper: invalid field count")

// Kind distinguishes the two shapes a MapperPayload can take.
type Kind int

const (
	KindRealmMap Kind = iota
	KindAreaRoom
)

// AreaRoom is the 7-field decoded room record.
type AreaRoom struct {
	Area   string
	ID     string
	From   string
	Indoor bool
	Short  string
	Long   string
	Exits  string
}

// Payload is the decoded form of a BatMapper custom-info body: either
// a RealmMap sentinel or a populated AreaRoom.
type Payload struct {
	Kind Kind
	Room AreaRoom
}

var delim = []byte(";;")

// Parse decodes the raw bytes of a code-99 tag body. A body whose first
// token is not "BAT_MAPPER" yields ErrNotMapper. The grammar always
// terminates with a trailing delimiter, which produces one empty
// token at the end of a naive split; that artifact is dropped before
// counting fields.
func Parse(body []byte) (Payload, error) {
	toks := bytes.Split(body, delim)
	if len(toks) > 0 && len(toks[len(toks)-1]) == 0 {
		toks = toks[:len(toks)-1]
	}
	if len(toks) == 0 || string(toks[0]) != bctag.MapperSentinel {
		return Payload{}, ErrNotMapper
	}
	rest := toks[1:]

	switch len(rest) {
	case 1:
		return Payload{Kind: KindRealmMap}, nil
	case 7:
		return Payload{
			Kind: KindAreaRoom,
			Room: AreaRoom{
				Area:   string(rest[0]),
				ID:     string(rest[1]),
				From:   string(rest[2]),
				Indoor: len(rest[3]) > 0 && rest[3][0] == '1',
				Short:  string(rest[4]),
				Long:   string(rest[5]),
				Exits:  string(rest[6]),
			},
		}, nil
	default:
		return Payload{}, ErrInvalidMapper
	}
}
