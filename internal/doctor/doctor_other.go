//go:build !linux

package doctor

func checkDiskSpace(e *env) Result {
	// TODO: use GetDiskFreeSpaceEx on Windows and statfs on the BSDs.
	return Result{
		Name:   "Disk space",
		Status: StatusPass,
		Detail: "check skipped on this platform",
	}
}
