package common

import (
	"testing"

	"github.com/bmizerany/assert"
)

func TestStringSet(t *testing.T) {
	groups := NewStringSet("Proxy", "Lobby", "Proxy")
	assert.Equal(t, 2, len(groups))
	groups.Add("Global")
	assert.T(t, groups.Contains("Lobby"))
	groups.Remove("Lobby")
	assert.T(t, !groups.Contains("Lobby"))
	assert.Equal(t, []string{"Global", "Proxy"}, groups.ToList())
	assert.Equal(t, []string{}, StringSet{}.ToList())
}
