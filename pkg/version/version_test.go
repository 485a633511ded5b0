package version

import (
	"encoding/json"
	"regexp"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersion_FollowsSemverOrDev(t *testing.T) {
	// Given: the package defaults or ldflags-injected values

	// Then: the version is "dev" or semver
	if Version == "dev" {
		return
	}
	semver := regexp.MustCompile(`^v?\d+\.\d+\.\d+(-[a-zA-Z0-9.]+)?$`)
	require.True(t, semver.MatchString(Version), "got %q", Version)
}

func TestString_ContainsBuildInfo(t *testing.T) {
	// When: rendering the long form
	str := String()

	// Then: every build field is present
	assert.Contains(t, str, "docsearch")
	assert.Contains(t, str, Version)
	assert.Contains(t, str, "commit: "+Commit)
	assert.Contains(t, str, runtime.GOOS+"/"+runtime.GOARCH)
}

func TestShort_ReturnsVersion(t *testing.T) {
	assert.Equal(t, Version, Short())
}

func TestGetInfo_MarshalsToJSON(t *testing.T) {
	// Given: structured info
	info := GetInfo()

	// When: encoding as JSON
	data, err := json.Marshal(info)
	require.NoError(t, err)

	// Then: field names are snake_case and values match the package vars
	var decoded map[string]string
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, Name, decoded["name"])
	assert.Equal(t, Version, decoded["version"])
	assert.Equal(t, GoVersion, decoded["go_version"])
	assert.Equal(t, runtime.GOARCH, decoded["arch"])
}
