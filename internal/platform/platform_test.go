package platform

import (
	"strings"
	"testing"
)

func TestDetectDarwin(t *testing.T) {
	t.Parallel()

	detected, err := detect("darwin", func() string { return "" })
	if err != nil {
		t.Fatalf("detect darwin: %v", err)
	}
	if detected != MacOS {
		t.Fatalf("platform = %q, want %q", detected, MacOS)
	}
}

func TestDetectNativeLinux(t *testing.T) {
	t.Parallel()

	detected, err := detect("linux", func() string {
		return "Linux version 6.8.0-generic (buildd@lcy02) (gcc 13.2.0)"
	})
	if err != nil {
		t.Fatalf("detect linux: %v", err)
	}
	if detected != Linux {
		t.Fatalf("platform = %q, want %q", detected, Linux)
	}
}

func TestDetectWSLFromProcVersion(t *testing.T) {
	t.Parallel()

	detected, err := detect("linux", func() string {
		return "Linux version 5.15.167.4-microsoft-standard-WSL2"
	})
	if err != nil {
		t.Fatalf("detect wsl: %v", err)
	}
	if detected != WSL {
		t.Fatalf("platform = %q, want %q", detected, WSL)
	}
}

func TestDetectUnsupportedOS(t *testing.T) {
	t.Parallel()

	_, err := detect("plan9", func() string { return "" })
	if err == nil {
		t.Fatal("expected unsupported platform error")
	}
	if !strings.Contains(err.Error(), "unsupported platform") {
		t.Fatalf("error = %v, want unsupported platform message", err)
	}
}
