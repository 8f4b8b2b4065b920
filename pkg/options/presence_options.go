package options

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	mqtttopic "cloupeer.io/displayagent/pkg/mqtt/topic"
)

var _ IOptions = (*PresenceOptions)(nil)

// PresenceOptions describes how the agent announces itself and where it listens for commands.
type PresenceOptions struct {
	// Hostname labels this agent. Defaults to the OS hostname.
	Hostname string `json:"hostname" mapstructure:"hostname"`

	AvailableTopic string `json:"available-topic" mapstructure:"available-topic"`
	PayloadOnline  string `json:"payload-online" mapstructure:"payload-online"`
	PayloadOffline string `json:"payload-offline" mapstructure:"payload-offline"`
	CommandTopic   string `json:"command-topic" mapstructure:"command-topic"`

	// WaitTimeMilliseconds is the pause between two heartbeats.
	WaitTimeMilliseconds int64 `json:"wait-time-ms" mapstructure:"wait-time-ms"`
}

// NewPresenceOptions creates a PresenceOptions with default values.
func NewPresenceOptions() *PresenceOptions {
	return &PresenceOptions{
		PayloadOnline:        "online",
		PayloadOffline:       "offline",
		WaitTimeMilliseconds: 5000,
	}
}

// Complete fills the hostname and any topic left empty.
func (o *PresenceOptions) Complete(topicRoot string) error {
	if o.Hostname == "" {
		host, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("presence: hostname not set and not discoverable: %w", err)
		}
		o.Hostname = strings.ToLower(host)
	}

	builder := mqtttopic.NewBuilder(topicRoot)
	if o.AvailableTopic == "" {
		o.AvailableTopic = builder.Available(o.Hostname)
	}
	if o.CommandTopic == "" {
		o.CommandTopic = builder.Command(o.Hostname)
	}
	return nil
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *PresenceOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	required := map[string]string{
		"hostname":        o.Hostname,
		"available-topic": o.AvailableTopic,
		"payload-online":  o.PayloadOnline,
		"payload-offline": o.PayloadOffline,
		"command-topic":   o.CommandTopic,
	}
	for name, v := range required {
		if v == "" {
			errors = append(errors, fmt.Errorf("presence: %s must not be empty", name))
		}
	}
	if strings.ContainsAny(o.AvailableTopic, "+#") {
		errors = append(errors, fmt.Errorf("presence: available-topic %q must not contain wildcards", o.AvailableTopic))
	}
	if o.WaitTimeMilliseconds <= 0 {
		errors = append(errors, fmt.Errorf("presence: wait-time-ms must be a positive integer"))
	}

	return errors
}

// AddFlags adds flags for PresenceOptions to the specified FlagSet.
func (o *PresenceOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Hostname, "presence.hostname", o.Hostname, "Host label of this agent (defaults to the OS hostname).")
	fs.StringVar(&o.AvailableTopic, "presence.available-topic", o.AvailableTopic, "Topic for online/offline announcements.")
	fs.StringVar(&o.PayloadOnline, "presence.payload-online", o.PayloadOnline, "Payload announced while the agent is alive.")
	fs.StringVar(&o.PayloadOffline, "presence.payload-offline", o.PayloadOffline, "Payload announced when the agent stops.")
	fs.StringVar(&o.CommandTopic, "presence.command-topic", o.CommandTopic, "Topic on which display commands are received.")
	fs.Int64Var(&o.WaitTimeMilliseconds, "presence.wait-time-ms", o.WaitTimeMilliseconds, "Milliseconds between two heartbeats.")
}
