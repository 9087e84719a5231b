/*************************************************************************
 * bcproxy — a BatMUD BC-mode translating proxy
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package buildinfo holds the version stamp printed by -version.
package buildinfo

import (
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/host"
)

const (
	MajorVersion = 0
	MinorVersion = 1
	PointVersion = 0
)

// BuildDate is overwritten at release-tag time; left at the zero
// value otherwise.
var BuildDate time.Time

// PrintVersion writes a human-readable version block to wtr.
func PrintVersion(wtr io.Writer) {
	fmt.Fprintf(wtr, "bcproxy %s\n", GetVersion())
	if !BuildDate.IsZero() {
		fmt.Fprintf(wtr, "BuildDate:\t%s\n", BuildDate.Format(`2006-01-02 15:04:05`))
	}
}

// GetVersion returns the dotted version string.
func GetVersion() string {
	return fmt.Sprintf("%d.%d.%d", MajorVersion, MinorVersion, PointVersion)
}

// PrintOSInfo writes a one-line platform summary, used by -version
// to make bug reports easier to triage.
func PrintOSInfo(wtr io.Writer) {
	platform, _, ver, err := host.PlatformInformation()
	if err != nil {
		fmt.Fprintf(wtr, "OS:\t\tERROR %v\n", err)
		return
	}
	fmt.Fprintf(wtr, "OS:\t\t%s/%s (%s %s)\n", runtime.GOOS, runtime.GOARCH, platform, ver)
}
