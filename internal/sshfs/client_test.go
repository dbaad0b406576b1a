package sshfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShellQuoteEscapesSingleQuotes(t *testing.T) {
	got := shellQuote("it's a file.txt")
	assert.Equal(t, `'it'\''s a file.txt'`, got)
}

func TestExpandHomeExpandsTilde(t *testing.T) {
	home := expandHome("~/project")
	assert.NotEqual(t, "~/project", home, "expected ~ to be expanded")
}

func TestExpandHomeLeavesAbsolutePathAlone(t *testing.T) {
	assert.Equal(t, "/etc/passwd", expandHome("/etc/passwd"))
}

func TestHostConfigHostNameFallsBackToArgument(t *testing.T) {
	cfg := hostConfig{}
	assert.Equal(t, "example.com", cfg.hostName("example.com"))
}

func TestParseTargetRecognizesSSHScheme(t *testing.T) {
	target, ok := ParseTarget("ssh://deploy@box.example.com:2222/srv/app")
	require.True(t, ok, "expected ssh:// to parse as a Target")
	assert.Equal(t, "box.example.com", target.Host)
	assert.Equal(t, "deploy", target.User)
	assert.Equal(t, 2222, target.Port)
	assert.Equal(t, "/srv/app", target.Path)
}

func TestParseTargetRejectsLocalPath(t *testing.T) {
	_, ok := ParseTarget("/home/user/project")
	assert.False(t, ok, "expected a local path not to parse as an ssh Target")
}
