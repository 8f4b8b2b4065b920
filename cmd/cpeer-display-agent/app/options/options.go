package options

import (
	"fmt"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"cloupeer.io/displayagent/internal/displayagent"
	"cloupeer.io/displayagent/pkg/app"
	"cloupeer.io/displayagent/pkg/log"
	"cloupeer.io/displayagent/pkg/options"
)

// LegacyKeys maps the property keys of earlier agent releases onto the current ones.
var LegacyKeys = map[string]string{
	"mqtt.serverUri":                              "mqtt.broker",
	"mqtt.clientId":                               "mqtt.client-id",
	"mqtt.agent.hostname":                         "presence.hostname",
	"mqtt.agent.available.topic":                  "presence.available-topic",
	"mqtt.agent.available.payload.online":         "presence.payload-online",
	"mqtt.agent.available.payload.offline":        "presence.payload-offline",
	"mqtt.agent.command.topic":                    "presence.command-topic",
	"mqtt.agent.available.wait_time_milliseconds": "presence.wait-time-ms",
}

type AgentOptions struct {
	MqttOptions     *options.MqttOptions     `json:"mqtt" mapstructure:"mqtt"`
	PresenceOptions *options.PresenceOptions `json:"presence" mapstructure:"presence"`
	DisplayOptions  *options.DisplayOptions  `json:"display" mapstructure:"display"`
	HttpOptions     *options.HttpOptions     `json:"http" mapstructure:"http"`
	Log             *log.Options             `json:"log" mapstructure:"log"`
}

var _ app.NamedFlagSetOptions = (*AgentOptions)(nil)

func NewAgentOptions() *AgentOptions {
	o := &AgentOptions{
		MqttOptions:     options.NewMqttOptions(),
		PresenceOptions: options.NewPresenceOptions(),
		DisplayOptions:  options.NewDisplayOptions(),
		HttpOptions:     options.NewHttpOptions(),
		Log:             log.NewOptions(),
	}

	return o
}

func (o *AgentOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.MqttOptions.AddFlags(fss.FlagSet("mqtt"))
	o.PresenceOptions.AddFlags(fss.FlagSet("presence"))
	o.DisplayOptions.AddFlags(fss.FlagSet("display"))
	o.HttpOptions.AddFlags(fss.FlagSet("http"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

// Complete derives the hostname, the topics and the client id.
func (o *AgentOptions) Complete() error {
	if err := o.PresenceOptions.Complete(o.MqttOptions.TopicRoot); err != nil {
		return err
	}
	if o.MqttOptions.ClientID == "" {
		o.MqttOptions.ClientID = fmt.Sprintf("cpeer-display-%s", o.PresenceOptions.Hostname)
	}
	return nil
}

func (o *AgentOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.MqttOptions.Validate()...)
	errs = append(errs, o.PresenceOptions.Validate()...)
	errs = append(errs, o.DisplayOptions.Validate()...)
	errs = append(errs, o.HttpOptions.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}

func (o *AgentOptions) Config() (*displayagent.Config, error) {
	return &displayagent.Config{
		MqttOptions:     o.MqttOptions,
		PresenceOptions: o.PresenceOptions,
		DisplayOptions:  o.DisplayOptions,
		HttpOptions:     o.HttpOptions,
	}, nil
}
