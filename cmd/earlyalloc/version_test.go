package main

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCurrentBuildInfo(t *testing.T) {
	embedded := &debug.BuildInfo{
		GoVersion: "go1.25.3",
		Main:      debug.Module{Path: "github.com/joshuapare/earlyalloc", Version: "v0.3.1"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "4f2a9c1"},
			{Key: "vcs.time", Value: "2026-10-01T12:00:00Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	}

	tests := []struct {
		name string
		read func() (*debug.BuildInfo, bool)
		want buildInfo
	}{
		{
			name: "no build info",
			read: func() (*debug.BuildInfo, bool) { return nil, false },
			want: buildInfo{Version: "dev", Commit: "none", Date: "unknown", GoVersion: "unknown"},
		},
		{
			name: "module and vcs data",
			read: func() (*debug.BuildInfo, bool) { return embedded, true },
			want: buildInfo{
				Version:   "v0.3.1",
				Commit:    "4f2a9c1",
				Date:      "2026-10-01T12:00:00Z",
				GoVersion: "go1.25.3",
				Modified:  true,
			},
		},
		{
			name: "devel build",
			read: func() (*debug.BuildInfo, bool) {
				return &debug.BuildInfo{GoVersion: "go1.25.3", Main: debug.Module{Version: "(devel)"}}, true
			},
			want: buildInfo{Version: "dev", Commit: "none", Date: "unknown", GoVersion: "go1.25.3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, currentBuildInfo(tt.read))
		})
	}
}

func TestCurrentBuildInfo_LinkerValuesWin(t *testing.T) {
	prevVersion, prevCommit := version, commit
	t.Cleanup(func() { version, commit = prevVersion, prevCommit })
	version, commit = "v1.0.0", "abc123"

	got := currentBuildInfo(func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{
			Main:     debug.Module{Version: "v0.9.0"},
			Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "ffffff"}},
		}, true
	})
	assert.Equal(t, "v1.0.0", got.Version)
	assert.Equal(t, "abc123", got.Commit)
}

func TestVersionCommand_JSON(t *testing.T) {
	resetFlags()
	jsonOut = true

	output, err := captureOutput(t, runVersion)
	assert.NoError(t, err)
	assertJSON(t, output)
	assertContains(t, output, []string{`"version"`, `"go_version"`})
}
