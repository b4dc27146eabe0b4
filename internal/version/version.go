// Package version reports the build version of the binaries.
package version

import (
	"fmt"
	"runtime/debug"
	"sync"
)

// Version can be overridden with -ldflags "-X .../version.Version=v1.2.3".
var Version = "dev"

// Info is what the build knows about itself.
type Info struct {
	Version  string
	Revision string
	Time     string
	Modified bool
}

var (
	once sync.Once
	info Info
)

// Get returns the build info, reading VCS settings from the binary once.
func Get() Info {
	once.Do(func() {
		info.Version = Version
		bi, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				info.Revision = s.Value
			case "vcs.time":
				info.Time = s.Value
			case "vcs.modified":
				info.Modified = s.Value == "true"
			}
		}
	})
	return info
}

// GetInfo formats the version with a short revision, e.g. "dev (1a2b3c4*)".
func GetInfo() string {
	return Get().String()
}

func (i Info) String() string {
	if i.Revision == "" {
		return i.Version
	}
	rev := i.Revision
	if len(rev) > 7 {
		rev = rev[:7]
	}
	if i.Modified {
		rev += "*"
	}
	return fmt.Sprintf("%s (%s)", i.Version, rev)
}
