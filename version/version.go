// Package version exposes the build-time identity of the chopper
// binaries.
package version

import "runtime/debug"

var (
	// These are set via -ldflags during release builds.
	GitRepo   string
	GitBranch string
	GitCommit string
	BuildTime string
)

// Info describes one built binary.
type Info struct {
	GitRepo   string `json:"gitRepo,omitempty" yaml:"git_repo,omitempty"`
	GitBranch string `json:"gitBranch,omitempty" yaml:"git_branch,omitempty"`
	GitCommit string `json:"gitCommit,omitempty" yaml:"git_commit,omitempty"`
	BuildTime string `json:"buildTime,omitempty" yaml:"build_time,omitempty"`
	GoVersion string `json:"goVersion,omitempty" yaml:"go_version,omitempty"`
	Module    string `json:"module,omitempty" yaml:"module,omitempty"`
}

// Get returns the version information, filling in whatever the runtime
// build info can provide.
func Get() Info {
	ret := Info{
		GitRepo:   GitRepo,
		GitBranch: GitBranch,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
	}
	if buildInfo, ok := debug.ReadBuildInfo(); ok {
		ret.GoVersion = buildInfo.GoVersion
		ret.Module = buildInfo.Main.Path
		if ret.GitCommit == "" {
			for _, setting := range buildInfo.Settings {
				if setting.Key == "vcs.revision" {
					ret.GitCommit = setting.Value
				}
			}
		}
	}
	return ret
}

// Equal checks if two version infos represent the same build.
func (v Info) Equal(other Info) bool {
	return v.GitRepo == other.GitRepo &&
		v.GitBranch == other.GitBranch &&
		v.GitCommit == other.GitCommit &&
		v.BuildTime == other.BuildTime &&
		v.GoVersion == other.GoVersion &&
		v.Module == other.Module
}
