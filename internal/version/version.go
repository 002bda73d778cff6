// Package version holds the simulator build version.
package version

// Version is overridden at build time:
//
//	go build -ldflags "-X github.com/AaronLay10/FoleySim/internal/version.Version=x.y.z"
var Version = "0.3.0"

// Commit is the source revision, set the same way as Version.
var Commit = "dev"

// String returns "version (commit)".
func String() string {
	return Version + " (" + Commit + ")"
}
