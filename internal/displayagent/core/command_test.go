package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		payload string
		want    Command
	}{
		{"external", CommandExternal},
		{"internal", CommandInternal},
		{"foo", CommandUnrecognized},
		{"", CommandUnrecognized},
		{"External", CommandUnrecognized},
		{" external", CommandUnrecognized},
		{"internal\n", CommandUnrecognized},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseCommand([]byte(tt.payload)), "payload %q", tt.payload)
	}
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "external", CommandExternal.String())
	assert.Equal(t, "internal", CommandInternal.String())
	assert.Equal(t, "unrecognized", CommandUnrecognized.String())
}
