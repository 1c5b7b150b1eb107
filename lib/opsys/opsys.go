package opsys

import (
	"runtime"

	"mortar/lib/errco"
)

// OsSupported returns nil if the OS is supported
func OsSupported() *errco.MrtLog {
	// check if OS is windows/linux/macos
	ros := runtime.GOOS

	if ros != "linux" && ros != "windows" && ros != "darwin" {
		return errco.NewLog(errco.TYPE_ERR, errco.LVL_1, errco.ERROR_OS_NOT_SUPPORTED, "OS is not supported: %s", ros)
	}

	return nil
}

// FileId returns the file system id of a file (inode on posix, file index on windows).
// The id changes when a file is copied.
func FileId(filePath string) (uint64, error) {
	return fileId(filePath)
}
