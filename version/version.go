package version

import (
	"fmt"
	"runtime/debug"
	"strings"
	"time"
)

// ModulePath is the import path the engine is published under.
const ModulePath = "github.com/kbukum/reactive"

// Set at build time using -ldflags. They take precedence over build info.
var (
	Version   = ""
	GitCommit = ""
	BuildTime = ""
)

// devel is reported when no version can be resolved, matching what the Go
// toolchain prints for main modules built from a checkout.
const devel = "(devel)"

// readBuildInfo is replaced in tests.
var readBuildInfo = debug.ReadBuildInfo

// Info describes the engine build.
type Info struct {
	Engine    string    `json:"engine"`
	Host      string    `json:"host,omitempty"`
	GitCommit string    `json:"git_commit,omitempty"`
	GoVersion string    `json:"go_version"`
	BuildDate time.Time `json:"build_date"`
	IsDirty   bool      `json:"is_dirty"`
	Replaced  bool      `json:"replaced"`
}

// Get resolves the engine version from ldflags, then from the build info
// of the running binary.
func Get() *Info {
	info := &Info{Engine: Version, GitCommit: GitCommit}
	if BuildTime != "" {
		if t, err := time.Parse(time.RFC3339, BuildTime); err == nil {
			info.BuildDate = t
		}
	}

	bi, ok := readBuildInfo()
	if !ok {
		if info.Engine == "" {
			info.Engine = devel
		}
		return info
	}
	info.GoVersion = bi.GoVersion

	if bi.Main.Path == ModulePath {
		if info.Engine == "" {
			info.Engine = bi.Main.Version
		}
		readVCS(info, bi.Settings)
	} else {
		info.Host = bi.Main.Path
		for _, dep := range bi.Deps {
			if dep.Path != ModulePath {
				continue
			}
			if info.Engine == "" {
				info.Engine = dep.Version
			}
			if dep.Replace != nil {
				info.Replaced = true
				if dep.Replace.Version != "" {
					info.Engine = dep.Replace.Version
				}
			}
			break
		}
	}

	if info.Engine == "" {
		info.Engine = devel
	}
	return info
}

func readVCS(info *Info, settings []debug.BuildSetting) {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if info.GitCommit == "" {
				info.GitCommit = s.Value
			}
		case "vcs.modified":
			info.IsDirty = s.Value == "true"
		case "vcs.time":
			if info.BuildDate.IsZero() {
				if t, err := time.Parse(time.RFC3339, s.Value); err == nil {
					info.BuildDate = t
				}
			}
		}
	}
	if len(info.GitCommit) > 7 {
		info.GitCommit = info.GitCommit[:7]
	}
}

// Short returns the engine version with the commit when known.
func (i *Info) Short() string {
	v := i.Engine
	if i.GitCommit != "" {
		v = fmt.Sprintf("%s-%s", v, i.GitCommit)
	}
	if i.IsDirty {
		v += "-dirty"
	}
	return v
}

// String returns a detailed single-line description.
func (i *Info) String() string {
	parts := []string{"engine " + i.Short()}
	if i.Replaced {
		parts = append(parts, "replaced")
	}
	if i.GoVersion != "" {
		parts = append(parts, i.GoVersion)
	}
	if !i.BuildDate.IsZero() {
		parts = append(parts, "built "+i.BuildDate.UTC().Format("2006-01-02T15:04:05Z"))
	}
	return strings.Join(parts, ", ")
}
