package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPropertiesCodecDecodeNestsDottedKeys(t *testing.T) {
	in := []byte(`# display agent
mqtt.serverUri=tcp://broker:1883
mqtt.username = agent
presence.interval: 30s
display.onCommand=xset dpms force on
`)

	got := map[string]any{}
	require.NoError(t, propertiesCodec{}.Decode(in, got))

	assert.Equal(t, map[string]any{
		"mqtt": map[string]any{
			"serverUri": "tcp://broker:1883",
			"username":  "agent",
		},
		"presence": map[string]any{"interval": "30s"},
		"display":  map[string]any{"onCommand": "xset dpms force on"},
	}, got)
}

func TestPropertiesCodecRejectsConflictingKeys(t *testing.T) {
	err := propertiesCodec{}.Decode([]byte("mqtt=x\nmqtt.broker=tcp://b:1883\n"), map[string]any{})
	assert.Error(t, err)
}

func TestPropertiesCodecEncodeFlattens(t *testing.T) {
	out, err := propertiesCodec{}.Encode(map[string]any{
		"mqtt":     map[string]any{"broker": "tcp://b:1883", "connect-attempts": 3},
		"loglevel": "info",
	})
	require.NoError(t, err)

	decoded := map[string]any{}
	require.NoError(t, propertiesCodec{}.Decode(out, decoded))
	assert.Equal(t, "3", decoded["mqtt"].(map[string]any)["connect-attempts"])
	assert.Equal(t, "info", decoded["loglevel"])
}

func TestCodecRegistryKnowsPropertiesFormats(t *testing.T) {
	reg, err := newCodecRegistry()
	require.NoError(t, err)

	for _, format := range append(propertiesFormats, "yaml", "json") {
		_, err := reg.Decoder(format)
		assert.NoError(t, err, format)
	}
}
