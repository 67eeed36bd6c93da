// Package platform identifies which terminal-launching environment ccr runs in.
package platform

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// Platform names one supported terminal-launching environment.
type Platform string

const (
	// Linux is a native Linux desktop with an X11/Wayland terminal emulator.
	Linux Platform = "linux"
	// MacOS is a macOS host scripted through osascript.
	MacOS Platform = "macos"
	// WSL is a Linux userland under Windows Subsystem for Linux.
	WSL Platform = "wsl"
)

// Detect resolves the current platform. An unsupported operating system is a
// configuration error that aborts the run before any item is processed.
func Detect() (Platform, error) {
	return detect(runtime.GOOS, readProcVersion)
}

func detect(goos string, procVersion func() string) (Platform, error) {
	switch goos {
	case "darwin":
		return MacOS, nil
	case "linux":
		if procVersion != nil && strings.Contains(strings.ToLower(procVersion()), "microsoft") {
			return WSL, nil
		}
		return Linux, nil
	default:
		return "", fmt.Errorf("unsupported platform %q", goos)
	}
}

func readProcVersion() string {
	data, err := os.ReadFile("/proc/version")
	if err != nil {
		return ""
	}
	return string(data)
}
