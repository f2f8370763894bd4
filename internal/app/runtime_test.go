package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRefreshTestMode(t *testing.T) {
	t.Cleanup(func() { RefreshTestMode() })
	cases := map[string]bool{
		"1":     true,
		"true":  true,
		" TRUE": true,
		"0":     false,
		"false": false,
		"yes":   false,
		"":      false,
	}
	for value, want := range cases {
		t.Setenv(TestModeEnv, value)
		assert.Equal(t, want, RefreshTestMode(), value)
		assert.Equal(t, want, InTestMode(), value)
	}
}
