//go:build !linux && !darwin && !windows

package opsys

import (
	"fmt"
	"runtime"
)

func fileId(filePath string) (uint64, error) {
	return 0, fmt.Errorf("file id not available on %s", runtime.GOOS)
}
