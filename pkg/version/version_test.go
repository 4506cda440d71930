package version

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	info := Get()

	assert.Equal(t, Version, info.Version)
	assert.Equal(t, GitCommit, info.GitCommit)
	assert.Equal(t, BuildTime, info.BuildTime)
	assert.True(t, strings.HasPrefix(info.GoVersion, "go") || strings.HasPrefix(info.GoVersion, "devel"))
}

func TestInfoString(t *testing.T) {
	info := Info{Version: "0.3.0", GitCommit: "f00dbabe", BuildTime: "2026-10-18", GoVersion: "go1.25.1"}
	assert.Equal(t, "siren 0.3.0 (commit f00dbabe, built 2026-10-18, go1.25.1)", info.String())
}

func TestInfoJSON(t *testing.T) {
	info := Info{Version: "0.3.0", GitCommit: "f00dbabe", BuildTime: "2026-10-18", GoVersion: "go1.25.1"}

	out, err := info.JSON()
	require.NoError(t, err)

	var parsed Info
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	assert.Equal(t, info, parsed)
	assert.Contains(t, out, "\n  \"gitCommit\": \"f00dbabe\"")
}
