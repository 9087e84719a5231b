/*************************************************************************
 * bcproxy — a BatMUD BC-mode translating proxy
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package xcolor maps the 6-hex-digit RGB arguments carried by BC
// foreground/background color tags onto the xterm-256 palette.
package xcolor

// WarnFunc receives a diagnostic when ColorMap falls back to index 0
// because of malformed input. Callers that don't care may pass nil.
type WarnFunc func(format string, args ...interface{})

// base16 holds the packed 24-bit RGB value of the 16 CGA-style base
// colors at their xterm palette index.
var base16 = [16]uint32{
	0x000000, 0x800000, 0x008000, 0x808000,
	0x000080, 0x800080, 0x008080, 0xc0c0c0,
	0x808080, 0xff0000, 0x00ff00, 0xffff00,
	0x0000ff, 0xff00ff, 0x00ffff, 0xffffff,
}

// greySteps holds the 24 greyscale levels used by xterm indices 232-255.
var greySteps = [24]uint8{
	8, 18, 28, 38, 48, 58, 68, 78, 88, 98, 108, 118,
	128, 138, 148, 158, 168, 178, 188, 198, 208, 218, 228, 238,
}

func hexNibble(b byte) byte {
	switch {
	case b >= '0' && b <= '9':
		return b - '0'
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10
	}
	return 0
}

// quantize maps an 8-bit channel value onto the 0-5 xterm color cube
// index.
func quantize(x uint8) int {
	return (int(x) * 5) / 255
}

// ColorMap converts a 1-6 byte hex RGB argument to the nearest
// xterm-256 palette index in [0,255]. Input shorter than 6 bytes is
// conceptually right-padded with '0'; input longer than 6 bytes is a
// failure that logs a warning (if warn is non-nil) and returns 0.
// Non-hex bytes are treated as the nibble 0.
func ColorMap(argument []byte, warn WarnFunc) int {
	if len(argument) > 6 {
		if warn != nil {
			warn("oversized color argument %q, using default", argument)
		}
		return 0
	}

	var nibbles [6]byte
	for i := 0; i < len(argument); i++ {
		nibbles[i] = hexNibble(argument[i])
	}

	r := nibbles[0]<<4 | nibbles[1]
	g := nibbles[2]<<4 | nibbles[3]
	b := nibbles[4]<<4 | nibbles[5]
	packed := uint32(r)<<16 | uint32(g)<<8 | uint32(b)

	for i, v := range base16 {
		if v == packed {
			return i
		}
	}

	if r == g && g == b {
		for i, v := range greySteps {
			if v == r {
				return 232 + i
			}
		}
	}

	return 16 + 36*quantize(r) + 6*quantize(g) + quantize(b)
}
