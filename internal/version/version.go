// ABOUTME: Build and product identification for audioout
// ABOUTME: Version is overridable at link time with -ldflags "-X"
package version

// Version is the release version; "dev" for source builds
var Version = "0.1.0"

// CommitSHA is set at link time
var CommitSHA = ""

const (
	Product      = "audioout"
	Manufacturer = "Resonate"
)

// String returns the version with a short commit suffix when known
func String() string {
	if len(CommitSHA) >= 7 {
		return Version + " (" + CommitSHA[:7] + ")"
	}
	return Version
}

// UserAgent identifies audioout to remote sinks
func UserAgent() string {
	return Product + "/" + Version
}
