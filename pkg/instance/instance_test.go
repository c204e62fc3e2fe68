package instance

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetIDPrefersConfiguredValue(t *testing.T) {
	t.Setenv(EnvInstanceID, " sync-worker-7 ")
	assert.Equal(t, "sync-worker-7", GetID())
}

func TestGetIDFallsBackToHost(t *testing.T) {
	t.Setenv(EnvInstanceID, "")
	id := GetID()
	assert.NotEmpty(t, id)
	assert.True(t, strings.Contains(id, "-"), id)
}
