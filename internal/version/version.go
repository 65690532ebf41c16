package version

import (
	"fmt"
	"runtime"
)

var (
	// Version is the current version of room-upgrader
	// This will be set at build time using -ldflags
	Version = "dev"

	// CommitHash is the git commit hash
	CommitHash = "unknown"

	// BuildDate is the build date
	BuildDate = "unknown"
)

// GetVersionString returns the full version string
func GetVersionString() string {
	return fmt.Sprintf("room-upgrader version: %s (commit: %s, built: %s, %s/%s)",
		Version, CommitHash, BuildDate, runtime.GOOS, runtime.GOARCH)
}

// GetShortVersion returns just the version number
func GetShortVersion() string {
	return Version
}

// UserAgent is sent with every homeserver request.
func UserAgent() string {
	return "room-upgrader/" + Version
}
