package options

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMqttOptionsValidate(t *testing.T) {
	o := NewMqttOptions()
	o.ClientID = "cpeer-display-pc"
	o.Username = "agent"
	o.Password = "secret"
	assert.Empty(t, o.Validate())

	o.Broker = "http://localhost"
	o.ConnectAttempts = 0
	assert.Len(t, o.Validate(), 2)
}

func TestPresenceOptionsComplete(t *testing.T) {
	o := NewPresenceOptions()
	o.Hostname = "office-pc"
	require.NoError(t, o.Complete("displays"))

	assert.Equal(t, "displays/office-pc/available", o.AvailableTopic)
	assert.Equal(t, "displays/office-pc/command", o.CommandTopic)
	assert.Empty(t, o.Validate())
}

func TestPresenceOptionsKeepsExplicitTopics(t *testing.T) {
	o := NewPresenceOptions()
	o.Hostname = "pc"
	o.AvailableTopic = "home/pc/status"
	o.CommandTopic = "home/pc/set"
	require.NoError(t, o.Complete("displays"))

	assert.Equal(t, "home/pc/status", o.AvailableTopic)
	assert.Equal(t, "home/pc/set", o.CommandTopic)
}

func TestPresenceOptionsValidate(t *testing.T) {
	o := NewPresenceOptions()
	o.Hostname = "pc"
	o.AvailableTopic = "displays/+/available"
	o.CommandTopic = "displays/pc/command"
	o.PayloadOffline = ""
	o.WaitTimeMilliseconds = 0

	assert.Len(t, o.Validate(), 3)
}

func TestDisplayOptionsValidate(t *testing.T) {
	o := NewDisplayOptions()
	assert.Empty(t, o.Validate())

	o.Executor = ExecutorCommand
	assert.Len(t, o.Validate(), 1)

	o.ExternalCommand = "xrandr --output HDMI-1 --auto"
	o.InternalCommand = "xrandr --output eDP-1 --auto"
	assert.Empty(t, o.Validate())

	o.Executor = "beamer"
	assert.Len(t, o.Validate(), 1)
}

func TestHttpOptionsValidate(t *testing.T) {
	o := NewHttpOptions()
	assert.Empty(t, o.Validate())

	o.Addr = ""
	assert.Empty(t, o.Validate())

	o.Addr = "127.0.0.1:notaport"
	assert.Len(t, o.Validate(), 1)
}
