package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShort(t *testing.T) {
	assert.Equal(t, "1.2.0", Info{Version: "1.2.0"}.Short())
	assert.Equal(t, "1.2.0 (0123abcd)", Info{Version: "1.2.0", VCSRevision: "0123abcdef99"}.Short())
	assert.Equal(t, "dev (abc+)", Info{Version: "dev", VCSRevision: "abc", VCSModified: true}.Short())
}

func TestWarning(t *testing.T) {
	assert.NotEmpty(t, Info{Version: "dev"}.Warning())
	assert.NotEmpty(t, Info{Version: "1.0", VCSRevision: "abc", VCSModified: true}.Warning())
	assert.Empty(t, Info{Version: "1.0", VCSRevision: "abc"}.Warning())
}

func TestString(t *testing.T) {
	s := Info{Version: "1.0", BuildTime: "2024-01-01", GoVersion: "go1.24.0"}.String()
	assert.Equal(t, "salesviz 1.0, built 2024-01-01, go1.24.0", s)
}
