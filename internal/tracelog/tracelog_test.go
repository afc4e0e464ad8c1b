package tracelog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetLevel_ClampsToValidRange(t *testing.T) {
	defer SetLevel(int(LevelWarn))

	SetLevel(-3)
	assert.Equal(t, LevelSilent, current)

	SetLevel(99)
	assert.Equal(t, LevelTrace, current)

	SetLevel(int(LevelInfo))
	assert.Equal(t, LevelInfo, current)
}

func TestEnabled_GatesByCurrentLevel(t *testing.T) {
	defer SetLevel(int(LevelWarn))

	SetLevel(int(LevelInfo))
	assert.True(t, enabled(LevelError))
	assert.True(t, enabled(LevelWarn))
	assert.True(t, enabled(LevelInfo))
	assert.False(t, enabled(LevelDebug))
	assert.False(t, enabled(LevelTrace))
}
