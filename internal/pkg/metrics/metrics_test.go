package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSetState(t *testing.T) {
	states := []string{"disconnected", "connecting", "connected"}

	SetState(ConnectionState, states, "connecting")
	assert.Equal(t, 1.0, testutil.ToFloat64(ConnectionState.WithLabelValues("connecting")))
	assert.Equal(t, 0.0, testutil.ToFloat64(ConnectionState.WithLabelValues("connected")))

	SetState(ConnectionState, states, "connected")
	assert.Equal(t, 0.0, testutil.ToFloat64(ConnectionState.WithLabelValues("connecting")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ConnectionState.WithLabelValues("connected")))
}

func TestRegistryGathers(t *testing.T) {
	CommandsTotal.WithLabelValues("external").Inc()

	families, err := Registry.Gather()
	assert.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["cpeer_display_agent_commands_total"])
}
