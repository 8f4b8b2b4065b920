package options

import (
	"fmt"
	"os"
	"time"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"cloupeer.io/displayagent/pkg/log"
	"cloupeer.io/displayagent/pkg/options"
)

type CtlOptions struct {
	MqttOptions *options.MqttOptions
	LogOptions  *log.Options

	// Timeout bounds a single command round trip to the broker.
	Timeout time.Duration
}

func NewCtlOptions() *CtlOptions {
	o := &CtlOptions{
		MqttOptions: options.NewMqttOptions(),
		LogOptions:  log.NewOptions(),
		Timeout:     10 * time.Second,
	}
	o.LogOptions.OutputPaths = []string{"stderr"}
	return o
}

func (o *CtlOptions) Flags() (fss cliflag.NamedFlagSets) {
	o.MqttOptions.AddFlags(fss.FlagSet("mqtt"))
	fss.FlagSet("ctl").DurationVar(&o.Timeout, "timeout", o.Timeout, "Time allowed to reach the broker and deliver a command.")
	o.LogOptions.AddFlags(fss.FlagSet("log"))
	return fss
}

// Complete gives the controller a client id that cannot collide with an agent.
func (o *CtlOptions) Complete() error {
	if o.MqttOptions.ClientID == "" {
		host, _ := os.Hostname()
		o.MqttOptions.ClientID = fmt.Sprintf("cpeer-display-ctl-%s-%d", host, os.Getpid())
	}
	return nil
}

func (o *CtlOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.MqttOptions.Validate()...)
	errs = append(errs, o.LogOptions.Validate()...)
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive"))
	}
	return utilerrors.NewAggregate(errs)
}
