/*************************************************************************
 * bcproxy — a BatMUD BC-mode translating proxy
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package bctag holds the closed table of BC (batclient) markup tag
// codes and the telnet control bytes the decoder must recognize
// alongside them.
package bctag

// Code is a BC tag code: the two ASCII decimal digits that appear
// after "\x1b<" or "\x1b>" in the wire format, collapsed to an int in
// [0,99].
type Code int

// NewCode builds a Code from two raw digit bytes. ok is false if
// either byte is not an ASCII digit.
func NewCode(d1, d2 byte) (c Code, ok bool) {
	if d1 < '0' || d1 > '9' || d2 < '0' || d2 > '9' {
		return 0, false
	}
	return Code(int(d1-'0')*10 + int(d2-'0')), true
}

// Digits renders the code back to its two ASCII digit bytes.
func (c Code) Digits() [2]byte {
	return [2]byte{byte('0' + (c/10)%10), byte('0' + c%10)}
}

func (c Code) String() string {
	d := c.Digits()
	return string(d[:])
}

// Known BC tag codes, per the closed table in the protocol design.
const (
	CodeReset       Code = 0  // reset styles
	CodeLoginOK     Code = 5  // login success
	CodeLoginFail   Code = 6  // login failure
	CodeMessage     Code = 10 // channelized message, argument names the channel
	CodeClearScreen Code = 11 // clear screen
	CodeFgColor     Code = 20 // foreground color, 6 hex digit RGB argument
	CodeBgColor     Code = 21 // background color, 6 hex digit RGB argument
	CodeBold        Code = 22
	CodeItalic      Code = 23
	CodeUnderline   Code = 24
	CodeBlink       Code = 25
	CodeStyleReset  Code = 29
	CodeHyperlink   Code = 30 // argument is a URL
	CodeCommandLink Code = 31 // argument is an in-game command
	CodeActionBegin Code = 40
	CodeActionMid   Code = 41
	CodeActionEnd   Code = 42
	CodePlayer0     Code = 50
	CodePlayer1     Code = 51
	CodePlayer2     Code = 52
	CodePlayer3     Code = 53
	CodePlayer4     Code = 54
	CodeParty0      Code = 60
	CodeParty1      Code = 61
	CodeParty2      Code = 62
	CodeParty3      Code = 63
	CodeParty4      Code = 64
	CodeTarget      Code = 70
	CodeCustomInfo  Code = 99 // custom info / BatMapper payload carrier
)

// Message channel argument sentinels for CodeMessage.
const (
	ArgPrompt = "spec_prompt"
	ArgBattle = "spec_battle"
	ArgSpell  = "spec_spell"
	ArgSkill  = "spec_skill"
)

// MapperSentinel is the first token of a BatMapper custom-info payload.
const MapperSentinel = "BAT_MAPPER"

// MapperRealm is the sole trailing token of a realm-map sentinel payload.
const MapperRealm = "REALM_MAP"

// Telnet control bytes relevant to the decoder (RFC 854).
const (
	IAC  byte = 0xFF
	SB   byte = 0xFA
	SE   byte = 0xF0
	WILL byte = 0xFB
	WONT byte = 0xFC
	DO   byte = 0xFD
	DONT byte = 0xFE
	GA   byte = 0xF9
	NOP  byte = 0xF1
)

// Esc is the byte that introduces both BC markup and pass-through ANSI
// escape sequences.
const Esc byte = 0x1B

// PrefixByte is the fixed 2-byte marker prepended to channelized and
// info-block output lines. 0xCF 0x80 is the UTF-8 encoding of the
// Greek small letter pi, chosen because ordinary BatMUD server text
// will not produce it by accident.
var PrefixByte = [2]byte{0xCF, 0x80}
