//go:build linux

package doctor

import (
	"fmt"
	"syscall"

	"github.com/dustin/go-humanize"
)

const (
	minFreeBytes = 100 << 20
	lowFreeBytes = 500 << 20
)

func checkDiskSpace(e *env) Result {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(e.dir, &stat); err != nil {
		return Result{
			Name:   "Disk space",
			Status: StatusWarn,
			Detail: "unable to check",
		}
	}

	free := stat.Bavail * uint64(stat.Bsize)
	switch {
	case free < minFreeBytes:
		return Result{
			Name:   "Disk space",
			Status: StatusFail,
			Detail: fmt.Sprintf("%s free", humanize.IBytes(free)),
			Fix:    "Free up space for the audit log in " + e.dir,
		}
	case free < lowFreeBytes:
		return Result{
			Name:   "Disk space",
			Status: StatusWarn,
			Detail: fmt.Sprintf("%s free (low)", humanize.IBytes(free)),
			Fix:    "Consider freeing disk space",
		}
	}
	return Result{
		Name:   "Disk space",
		Status: StatusPass,
		Detail: fmt.Sprintf("%s free", humanize.IBytes(free)),
	}
}
