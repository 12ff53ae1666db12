// Copyright 2026 The iptools Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for the iptools binary.
//
// The variables are injected with -ldflags, for example:
//
//	go build -ldflags "-X github.com/iptools-project/iptools/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// When they are not injected, the VCS stamp the Go toolchain embeds in
// module builds is used instead.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set via -ldflags at build time.
var (
	// GitCommit is the short git SHA of the build.
	GitCommit = "unknown"

	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"

	// Version is the release version.
	Version = "0.1.0-dev"
)

// Info returns the --version line: "0.1.0-dev (abc1234, 2026-...)".
func Info() string {
	commit, built, dirty := buildStamp(debug.ReadBuildInfo)
	suffix := ""
	if dirty {
		suffix = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", Version, commit, suffix, built)
}

// Full is Info plus the Go toolchain and platform.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

func buildStamp(read func() (*debug.BuildInfo, bool)) (commit, built string, dirty bool) {
	commit, built = GitCommit, BuildTime
	if commit != "unknown" {
		return commit, built, false
	}
	info, ok := read()
	if !ok {
		return commit, built, false
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			commit = setting.Value
			if len(commit) > 7 {
				commit = commit[:7]
			}
		case "vcs.time":
			if built == "unknown" {
				built = setting.Value
			}
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	return commit, built, dirty
}
