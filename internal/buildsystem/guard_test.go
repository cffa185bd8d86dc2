package buildsystem

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScanGuard(t *testing.T) {
	var g ScanGuard
	assert.True(t, g.Acquire())
	assert.True(t, g.Scanning())
	assert.False(t, g.Acquire())
	assert.False(t, g.Acquire())

	assert.True(t, g.Release(true), "two blocked requests collapse into one rerun")
	assert.False(t, g.Scanning())
	assert.True(t, g.LastSuccess())

	assert.True(t, g.Acquire())
	assert.False(t, g.Release(false))
	assert.False(t, g.LastSuccess())
}
