package displayagent

import (
	"fmt"
	"time"

	"cloupeer.io/displayagent/internal/displayagent/display"
	"cloupeer.io/displayagent/pkg/mqtt"
	"cloupeer.io/displayagent/pkg/options"
)

// Config is the completed and validated configuration of the agent.
type Config struct {
	MqttOptions     *options.MqttOptions
	PresenceOptions *options.PresenceOptions
	DisplayOptions  *options.DisplayOptions
	HttpOptions     *options.HttpOptions
}

// Settings derives the runtime parameters of the agent.
func (cfg *Config) Settings() Settings {
	return Settings{
		Hostname:        cfg.PresenceOptions.Hostname,
		AvailableTopic:  cfg.PresenceOptions.AvailableTopic,
		PayloadOnline:   cfg.PresenceOptions.PayloadOnline,
		PayloadOffline:  cfg.PresenceOptions.PayloadOffline,
		CommandTopic:    cfg.PresenceOptions.CommandTopic,
		Interval:        time.Duration(cfg.PresenceOptions.WaitTimeMilliseconds) * time.Millisecond,
		MaxAttempts:     cfg.MqttOptions.ConnectAttempts,
		Backoff:         cfg.MqttOptions.ConnectBackoff,
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

func (cfg *Config) NewAgent() (*Agent, error) {
	executor, err := display.New(cfg.DisplayOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to create display executor: %w", err)
	}

	mqttClient, err := cfg.newMqttClient()
	if err != nil {
		return nil, fmt.Errorf("failed to init mqtt client: %w", err)
	}

	return NewAgent(cfg.Settings(), mqttClient, executor), nil
}

func (cfg *Config) newMqttClient() (mqtt.Client, error) {
	mqttConfig := cfg.MqttOptions.ToClientConfig()
	if mqttConfig.ClientID == "" {
		mqttConfig.ClientID = fmt.Sprintf("cpeer-display-%s", cfg.PresenceOptions.Hostname)
	}

	// The broker announces offline for us if the process dies without a clean stop.
	mqttConfig.WillTopic = cfg.PresenceOptions.AvailableTopic
	mqttConfig.WillPayload = []byte(cfg.PresenceOptions.PayloadOffline)
	mqttConfig.WillQoS = AvailabilityQoS
	mqttConfig.WillRetain = AvailabilityRetained

	return mqtt.NewClient(mqttConfig)
}
