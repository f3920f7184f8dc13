package version

import (
	"fmt"

	"github.com/aatumaykin/nexarchive/internal/constants"
)

var (
	Version   = constants.DefaultVersion
	BuildTime = constants.DefaultBuildTime
	GitCommit = constants.DefaultGitCommit
	GoVersion = constants.DefaultGoVersion
)

func SetInfo(v, bt, gc, gv string) {
	if v != "" {
		Version = v
	}
	if bt != "" {
		BuildTime = bt
	}
	if gc != "" {
		GitCommit = gc
	}
	if gv != "" {
		GoVersion = gv
	}
}

// String is the one-line build description printed by `nexarchive version`.
func String() string {
	return fmt.Sprintf("nexarchive %s (commit %s, built %s, %s)", Version, GitCommit, BuildTime, GoVersion)
}
