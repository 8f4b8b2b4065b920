package app

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func envPrefixFor(name string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(name))
}

// loadConfig merges the config file, the environment and the command line
// into the options. Precedence, highest first: explicit flags, environment,
// config file, flag defaults.
func (a *App) loadConfig(fs *pflag.FlagSet) (*viper.Viper, error) {
	codecs, err := newCodecRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to register config codecs: %w", err)
	}
	v := viper.NewWithOptions(viper.WithCodecRegistry(codecs))
	v.SetEnvPrefix(a.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if a.configFile != "" {
		v.SetConfigFile(a.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", a.configFile, err)
		}
	}

	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if skipFlag(f) || bindErr != nil {
			return
		}
		bindErr = v.BindPFlag(f.Name, f)
	})
	if bindErr != nil {
		return nil, bindErr
	}

	for legacy, key := range a.aliases {
		if v.IsSet(legacy) && !v.IsSet(key) {
			v.Set(key, v.Get(legacy))
		}
	}

	if a.options != nil {
		if err := v.Unmarshal(a.options); err != nil {
			return nil, fmt.Errorf("failed to decode configuration: %w", err)
		}
	}

	return v, nil
}
