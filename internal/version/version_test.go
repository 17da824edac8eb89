package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func withBuildInfo(t *testing.T, version, commit, built string) {
	t.Helper()
	origVersion, origCommit, origBuilt := Version, Commit, BuildTime
	t.Cleanup(func() {
		Version, Commit, BuildTime = origVersion, origCommit, origBuilt
	})
	Version, Commit, BuildTime = version, commit, built
}

func TestString(t *testing.T) {
	withBuildInfo(t, "1.4.0", "abc1234", "2026-01-02T03:04:05Z")

	assert.Equal(t, "1.4.0 (abc1234) built 2026-01-02T03:04:05Z", String())
}

func TestUserAgent(t *testing.T) {
	withBuildInfo(t, "dev", "unknown", "unknown")

	assert.Equal(t, "notifystream/dev (unknown)", UserAgent())
}
