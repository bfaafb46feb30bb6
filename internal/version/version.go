// Package version holds build information set through -ldflags, e.g.
//
//	-X github.com/anri-helpdesk/helpdesk/internal/version.Version=1.4.0
package version

import (
	"fmt"
	"runtime"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Product is the name reported to outside services.
const Product = "anri-helpdesk"

// Info is the build description served by /healthz.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

func GetInfo() Info {
	return Info{Version: Version, GitCommit: GitCommit, BuildDate: BuildDate, GoVersion: runtime.Version()}
}

func Short() string {
	return Version
}

func Full() string {
	return fmt.Sprintf("%s %s (commit %s, built %s, %s)", Product, Version, GitCommit, BuildDate, runtime.Version())
}

// UserAgent names a client component, e.g. "anri-helpdesk-webhook/1.4.0".
func UserAgent(component string) string {
	return fmt.Sprintf("%s-%s/%s", Product, component, Version)
}
