package options

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompleteSetsClientID(t *testing.T) {
	o := NewCtlOptions()
	require.NoError(t, o.Complete())
	assert.True(t, strings.HasPrefix(o.MqttOptions.ClientID, "cpeer-display-ctl-"))

	o.MqttOptions.ClientID = "mine"
	require.NoError(t, o.Complete())
	assert.Equal(t, "mine", o.MqttOptions.ClientID)
}

func TestValidate(t *testing.T) {
	o := NewCtlOptions()
	o.MqttOptions.Username = "ops"
	o.MqttOptions.Password = "secret"
	require.NoError(t, o.Complete())
	assert.NoError(t, o.Validate())

	o.Timeout = 0
	assert.ErrorContains(t, o.Validate(), "timeout")
}
