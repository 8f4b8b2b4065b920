package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"cloupeer.io/displayagent/pkg/mqtt"
)

var _ IOptions = (*MqttOptions)(nil)

// MqttOptions contains configuration for the MQTT session and its retry policy.
type MqttOptions struct {
	Broker   string `json:"broker" mapstructure:"broker"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	ClientID string `json:"client-id" mapstructure:"client-id"`

	// Client behavior
	KeepAlive      time.Duration `json:"keep-alive" mapstructure:"keep-alive"`
	ConnectTimeout time.Duration `json:"connect-timeout" mapstructure:"connect-timeout"`
	CleanStart     bool          `json:"clean-start" mapstructure:"clean-start"`

	// InsecureSkipVerify controls whether a client verifies the server's certificate chain and host name.
	// In this mode, TLS is susceptible to man-in-the-middle attacks. This should be used only for testing.
	InsecureSkipVerify bool `json:"insecure-skip-verify" mapstructure:"insecure-skip-verify"`

	// ConnectAttempts is the number of connect+subscribe attempts before the agent gives up.
	ConnectAttempts int `json:"connect-attempts" mapstructure:"connect-attempts"`

	// ConnectBackoff is the fixed delay between two failed attempts.
	ConnectBackoff time.Duration `json:"connect-backoff" mapstructure:"connect-backoff"`

	// TopicRoot is the namespace used to derive topics that are not set explicitly:
	// {TopicRoot}/{hostname}/available and {TopicRoot}/{hostname}/command.
	TopicRoot string `json:"topic-root" mapstructure:"topic-root"`

	// Debug routes the paho client trace into the debug log.
	Debug bool `json:"debug" mapstructure:"debug"`
}

// NewMqttOptions creates a new MqttOptions with default values.
func NewMqttOptions() *MqttOptions {
	return &MqttOptions{
		Broker:          "tcp://localhost:1883",
		KeepAlive:       60 * time.Second,
		ConnectTimeout:  5 * time.Second,
		CleanStart:      true,
		ConnectAttempts: 3,
		ConnectBackoff:  5 * time.Second,
		TopicRoot:       "displays",
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *MqttOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	cfg := o.ToClientConfig()
	if err := cfg.Validate(); err != nil {
		errors = append(errors, fmt.Errorf("mqtt: %w", err))
	}
	if o.Username == "" || o.Password == "" {
		errors = append(errors, fmt.Errorf("mqtt: username and password are required"))
	}
	if o.KeepAlive < time.Second || o.KeepAlive > 65535*time.Second {
		errors = append(errors, fmt.Errorf("mqtt: keep-alive must be between 1s and 65535s"))
	}
	if o.ConnectTimeout <= 0 {
		errors = append(errors, fmt.Errorf("mqtt: connect-timeout must be positive"))
	}
	if o.ConnectAttempts < 1 {
		errors = append(errors, fmt.Errorf("mqtt: connect-attempts must be at least 1"))
	}
	if o.ConnectBackoff < 0 {
		errors = append(errors, fmt.Errorf("mqtt: connect-backoff must not be negative"))
	}

	return errors
}

// AddFlags adds flags for MqttOptions to the specified FlagSet.
func (o *MqttOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Broker, "mqtt.broker", o.Broker, "The URL of the MQTT broker (tcp://, mqtt://, ssl://, tls://, mqtts://).")
	fs.StringVar(&o.Username, "mqtt.username", o.Username, "The username for MQTT authentication.")
	fs.StringVar(&o.Password, "mqtt.password", o.Password, "The password for MQTT authentication.")
	fs.StringVar(&o.ClientID, "mqtt.client-id", o.ClientID, "Explicit Client ID (defaults to cpeer-display-<hostname>).")

	fs.DurationVar(&o.KeepAlive, "mqtt.keep-alive", o.KeepAlive, "MQTT Keep Alive interval.")
	fs.DurationVar(&o.ConnectTimeout, "mqtt.connect-timeout", o.ConnectTimeout, "Timeout for establishing MQTT connection.")
	fs.BoolVar(&o.CleanStart, "mqtt.clean-start", o.CleanStart, "Start a clean MQTT session on every connect.")
	fs.BoolVar(&o.InsecureSkipVerify, "mqtt.insecure-skip-verify", o.InsecureSkipVerify, "If true, skips the TLS certificate verification.")
	fs.IntVar(&o.ConnectAttempts, "mqtt.connect-attempts", o.ConnectAttempts, "Number of connection attempts before giving up.")
	fs.DurationVar(&o.ConnectBackoff, "mqtt.connect-backoff", o.ConnectBackoff, "Delay between two failed connection attempts.")
	fs.BoolVar(&o.Debug, "mqtt.debug", o.Debug, "Log the MQTT client's internal trace at debug level.")

	// Topics
	fs.StringVar(&o.TopicRoot, "mqtt.topic-root", o.TopicRoot, "Topic prefix used to derive the availability and command topics.")
}

func (o *MqttOptions) ToClientConfig() *mqtt.ClientConfig {
	return &mqtt.ClientConfig{
		BrokerURL:          o.Broker,
		Username:           o.Username,
		Password:           o.Password,
		ClientID:           o.ClientID,
		KeepAlive:          uint16(o.KeepAlive.Seconds()),
		ConnectTimeout:     o.ConnectTimeout,
		CleanStart:         o.CleanStart,
		InsecureSkipVerify: o.InsecureSkipVerify,
		Debug:              o.Debug,
	}
}
