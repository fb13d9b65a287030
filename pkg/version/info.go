// Package version reports build metadata for the offline queue binaries.
//
// Values come from -ldflags when set:
//
//	go build -ldflags="-X github.com/nimburion/offlinequeue/pkg/version.AppVersion=v1.2.3"
//
// and otherwise from the module and VCS stamps the Go toolchain embeds.
package version

import (
	"fmt"
	"runtime/debug"
	"strings"
	"time"
)

const (
	Unknown            = "unknown"
	DevelopmentVersion = "dev"
)

// Overridden at link time.
var (
	AppVersion string
	GitCommit  string
	BuildTime  string
)

// readBuildInfo is swapped in tests.
var readBuildInfo = debug.ReadBuildInfo

// Info describes the running binary.
type Info struct {
	Service   string `json:"service"`
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	Modified  bool   `json:"modified,omitempty"`
}

// Current resolves build metadata for serviceName.
func Current(serviceName string) Info {
	info := Info{
		Service:   firstNonEmpty(serviceName),
		Version:   firstNonEmpty(AppVersion),
		Commit:    firstNonEmpty(GitCommit),
		BuildTime: firstNonEmpty(BuildTime),
	}

	if bi, ok := readBuildInfo(); ok {
		if info.Version == "" && bi.Main.Version != "(devel)" {
			info.Version = firstNonEmpty(bi.Main.Version)
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				info.Commit = firstNonEmpty(info.Commit, shortRevision(s.Value))
			case "vcs.time":
				info.BuildTime = firstNonEmpty(info.BuildTime, s.Value)
			case "vcs.modified":
				info.Modified = s.Value == "true"
			}
		}
	}

	info.Service = firstNonEmpty(info.Service, Unknown)
	info.Version = firstNonEmpty(info.Version, DevelopmentVersion)
	info.Commit = firstNonEmpty(info.Commit, Unknown)
	info.BuildTime = firstNonEmpty(info.BuildTime, Unknown)
	return info
}

// ParseBuildTime parses BuildTime as RFC3339.
func (i Info) ParseBuildTime() (time.Time, bool) {
	if i.BuildTime == Unknown {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339, i.BuildTime)
	return ts, err == nil
}

// UserAgent is sent on replayed requests, e.g. "offlinequeue/1.4.0".
func (i Info) UserAgent() string {
	return i.Service + "/" + strings.TrimPrefix(i.Version, "v")
}

// LogFields returns the key/value pairs attached to every log entry.
func (i Info) LogFields() []any {
	return []any{"service", i.Service, "version", i.Version, "commit", i.Commit}
}

func (i Info) String() string {
	dirty := ""
	if i.Modified {
		dirty = "+dirty"
	}
	return fmt.Sprintf("%s %s%s (%s, built %s)", i.Service, i.Version, dirty, i.Commit, i.BuildTime)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func shortRevision(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}
