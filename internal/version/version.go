// Package version exposes build metadata stamped in with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/54b3r/groundrag/internal/version.Version=v0.3.0 \
//	  -X github.com/54b3r/groundrag/internal/version.Commit=$(git rev-parse --short HEAD) \
//	  -X github.com/54b3r/groundrag/internal/version.BuildDate=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

// Unstamped builds report "dev" and "unknown".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// String is the one-line form shown by `groundrag version`.
func String() string {
	return Version + " (commit " + Commit + ", built " + BuildDate + ")"
}
