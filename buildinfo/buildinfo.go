// Package buildinfo holds the adapter's name and version. DisplayName is the
// mDNS instance name; the version is printed by -version, reported by
// /api/v1/status and advertised in the mDNS TXT record. Release builds stamp
// it with ldflags:
//
//	go build -ldflags "-X github.com/nedpals/davi-nfc-adapter/buildinfo.Version=1.0.0 \
//	  -X github.com/nedpals/davi-nfc-adapter/buildinfo.Commit=$(git rev-parse --short HEAD)"
package buildinfo

import (
	"fmt"
	"runtime"
)

// Application metadata - can be overridden at build time via ldflags
var (
	// Name is the technical application name
	Name = "davi-nfc-adapter"

	// DisplayName is the human-readable name shown in logs and over mDNS
	DisplayName = "Davi NFC Adapter"

	// Description is a short description of the application
	Description = "PN532 NDEF adapter for MIFARE Classic and Type 2 tags"

	// Version is the semantic version (set via ldflags for releases)
	Version = "dev"

	// Commit is the git commit hash (set via ldflags)
	Commit = ""

	// BuildTime is the build timestamp (set via ldflags)
	BuildTime = ""
)

// FullVersion returns the version string with optional commit info.
// Examples:
//   - "dev" (development build)
//   - "1.0.0" (release build)
//   - "1.0.0 (abc1234)" (release build with commit)
func FullVersion() string {
	if Commit != "" {
		return fmt.Sprintf("%s (%s)", Version, Commit)
	}
	return Version
}

// BuildInfo returns a multi-line string with full build information.
func BuildInfo() string {
	info := fmt.Sprintf("%s %s\n", Name, FullVersion())
	info += fmt.Sprintf("  %s\n", Description)
	info += fmt.Sprintf("  Go: %s\n", runtime.Version())
	info += fmt.Sprintf("  OS/Arch: %s/%s", runtime.GOOS, runtime.GOARCH)
	if BuildTime != "" {
		info += fmt.Sprintf("\n  Built: %s", BuildTime)
	}
	return info
}
