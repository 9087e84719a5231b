//go:build linux
// +build linux

/*************************************************************************
 * bcproxy — a BatMUD BC-mode translating proxy
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package caps checks whether the running process holds
// CAP_NET_BIND_SERVICE, the one Linux capability bcproxy's startup
// warning cares about (binding the configured listen address to a
// privileged port without running as root).
package caps

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

const linuxCapV3 = 0x20080522

// NetBindService is the bit position of CAP_NET_BIND_SERVICE in the
// Linux capability sets.
const NetBindService = 10

type capHeader struct {
	version uint32
	pid     int
}

type capData struct {
	effective   uint32
	permitted   uint32
	inheritable uint32
}

// HasNetBindService reports whether the process can bind privileged
// (<1024) ports.
func HasNetBindService() bool {
	if os.Getuid() == 0 || os.Geteuid() == 0 {
		return true
	}
	hdr := capHeader{version: linuxCapV3}
	var data [2]capData
	_, _, errno := unix.RawSyscall(unix.SYS_CAPGET, uintptr(unsafe.Pointer(&hdr)), uintptr(unsafe.Pointer(&data)), 0)
	if errno != 0 {
		return false
	}
	effective := uint64(data[0].effective) | (uint64(data[1].effective) << 32)
	return effective&(1<<NetBindService) != 0
}
