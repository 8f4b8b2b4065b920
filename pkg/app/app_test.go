package app

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cliflag "k8s.io/component-base/cli/flag"
)

type mqttOptions struct {
	Broker   string        `mapstructure:"broker"`
	Password string        `mapstructure:"password"`
	Attempts int           `mapstructure:"connect-attempts"`
	Backoff  time.Duration `mapstructure:"connect-backoff"`
}

type testOptions struct {
	Mqtt *mqttOptions `mapstructure:"mqtt"`

	completed   bool
	validateErr error
}

func newTestOptions() *testOptions {
	return &testOptions{Mqtt: &mqttOptions{Broker: "tcp://localhost:1883", Attempts: 3, Backoff: 5 * time.Second}}
}

func (o *testOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	fs := fss.FlagSet("mqtt")
	fs.StringVar(&o.Mqtt.Broker, "mqtt.broker", o.Mqtt.Broker, "broker")
	fs.StringVar(&o.Mqtt.Password, "mqtt.password", o.Mqtt.Password, "password")
	fs.IntVar(&o.Mqtt.Attempts, "mqtt.connect-attempts", o.Mqtt.Attempts, "attempts")
	fs.DurationVar(&o.Mqtt.Backoff, "mqtt.connect-backoff", o.Mqtt.Backoff, "backoff")
	return fss
}

func (o *testOptions) Complete() error { o.completed = true; return nil }
func (o *testOptions) Validate() error { return o.validateErr }

func execute(t *testing.T, opts *testOptions, args []string, extra ...Option) (string, bool, error) {
	t.Helper()
	ran := false
	all := append([]Option{
		WithOptions(opts),
		WithDefaultValidArgs(),
		WithEnvPrefix("APPTEST"),
		WithRunFunc(func() error { ran = true; return nil }),
	}, extra...)
	a := NewApp("apptest", "test app", all...)

	var out bytes.Buffer
	a.Command().SetOut(&out)
	a.Command().SetErr(&out)
	a.Command().SetArgs(args)
	err := a.Run()
	return out.String(), ran, err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	opts := newTestOptions()
	_, ran, err := execute(t, opts, nil)

	require.NoError(t, err)
	assert.True(t, ran)
	assert.True(t, opts.completed)
	assert.Equal(t, "tcp://localhost:1883", opts.Mqtt.Broker)
	assert.Equal(t, 3, opts.Mqtt.Attempts)
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	path := writeFile(t, "agent.yaml", "mqtt:\n  broker: tcp://file:1883\n  connect-attempts: 7\n  connect-backoff: 2s\n")
	opts := newTestOptions()

	_, _, err := execute(t, opts, []string{"-c", path, "--mqtt.broker", "tcp://flag:1883"})

	require.NoError(t, err)
	assert.Equal(t, "tcp://flag:1883", opts.Mqtt.Broker)
	assert.Equal(t, 7, opts.Mqtt.Attempts)
	assert.Equal(t, 2*time.Second, opts.Mqtt.Backoff)
}

func TestEnvOverridesConfigFile(t *testing.T) {
	path := writeFile(t, "agent.yaml", "mqtt:\n  connect-attempts: 7\n")
	t.Setenv("APPTEST_MQTT_CONNECT_ATTEMPTS", "9")
	opts := newTestOptions()

	_, _, err := execute(t, opts, []string{"--config", path})

	require.NoError(t, err)
	assert.Equal(t, 9, opts.Mqtt.Attempts)
}

func TestLegacyPropertiesKeys(t *testing.T) {
	path := writeFile(t, "agent.properties", "mqtt.serverUri=tcp://legacy:1883\nmqtt.password=secret\n")
	opts := newTestOptions()

	_, _, err := execute(t, opts, []string{"--config", path},
		WithConfigKeyAliases(map[string]string{"mqtt.serverUri": "mqtt.broker"}))

	require.NoError(t, err)
	assert.Equal(t, "tcp://legacy:1883", opts.Mqtt.Broker)
	assert.Equal(t, "secret", opts.Mqtt.Password)
}

func TestCurrentKeyWinsOverAlias(t *testing.T) {
	path := writeFile(t, "agent.properties", "mqtt.serverUri=tcp://legacy:1883\nmqtt.broker=tcp://current:1883\n")
	opts := newTestOptions()

	_, _, err := execute(t, opts, []string{"--config", path},
		WithConfigKeyAliases(map[string]string{"mqtt.serverUri": "mqtt.broker"}))

	require.NoError(t, err)
	assert.Equal(t, "tcp://current:1883", opts.Mqtt.Broker)
}

func TestMissingConfigFile(t *testing.T) {
	_, ran, err := execute(t, newTestOptions(), []string{"--config", filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)
	assert.False(t, ran)
}

func TestValidateErrorStopsRun(t *testing.T) {
	opts := newTestOptions()
	opts.validateErr = errors.New("mqtt.broker is required")

	out, ran, err := execute(t, opts, nil)

	assert.Error(t, err)
	assert.False(t, ran)
	assert.Contains(t, out, "mqtt.broker is required")
}

func TestPrintConfigMasksSecrets(t *testing.T) {
	out, ran, err := execute(t, newTestOptions(), []string{"--print-config", "--mqtt.password", "hunter2"})

	require.NoError(t, err)
	assert.False(t, ran)
	assert.Contains(t, out, "mqtt.broker")
	assert.Contains(t, out, "tcp://localhost:1883")
	assert.Contains(t, out, masked)
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "print-config")
}

func TestRejectsPositionalArgs(t *testing.T) {
	_, ran, err := execute(t, newTestOptions(), []string{"extra"})
	assert.Error(t, err)
	assert.False(t, ran)
}

func TestEnvPrefixFor(t *testing.T) {
	assert.Equal(t, "CPEER_DISPLAY_AGENT", envPrefixFor("cpeer-display-agent"))
}
