package stategraph

import "runtime/debug"

var (
	// Version is the current stategraph version.
	Version = buildVersion("github.com/go-kratos/stategraph")
)

// buildVersion retrieves the version of the specified module path from build info.
// The main module reports its own version when stategraph is built as a binary.
func buildVersion(path string) string {
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	if buildInfo.Main.Path == path {
		return buildInfo.Main.Version
	}
	for _, d := range buildInfo.Deps {
		if d.Path == path {
			if d.Replace != nil {
				return d.Replace.Version
			}
			return d.Version
		}
	}
	return ""
}
