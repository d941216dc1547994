package compute

import (
	"os"
	"os/exec"
	"runtime"
)

// cudaAvailable reports whether an NVIDIA GPU is reachable. It looks for
// the kernel driver interface first and falls back to nvidia-smi on PATH.
func cudaAvailable() bool {
	defer func() { _ = recover() }()

	if runtime.GOOS != "linux" && runtime.GOOS != "windows" {
		return false
	}
	if _, err := os.Stat("/proc/driver/nvidia/version"); err == nil {
		return true
	}
	if _, err := os.Stat("/dev/nvidia0"); err == nil {
		return true
	}
	if _, err := exec.LookPath("nvidia-smi"); err == nil {
		return true
	}
	return false
}

// mpsAvailable reports whether Apple Metal Performance Shaders are usable.
func mpsAvailable() bool {
	return runtime.GOOS == "darwin" && runtime.GOARCH == "arm64"
}
