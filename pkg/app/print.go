package app

import (
	"fmt"
	"io"
	"strings"

	"github.com/gosuri/uitable"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const masked = "******"

func printConfig(w io.Writer, v *viper.Viper, fs *pflag.FlagSet) error {
	table := uitable.New()
	table.Separator = "  "
	table.MaxColWidth = 80
	table.AddRow("KEY", "VALUE")

	fs.VisitAll(func(f *pflag.Flag) {
		if skipFlag(f) {
			return
		}
		value := fmt.Sprint(v.Get(f.Name))
		if isSecret(f.Name) && value != "" {
			value = masked
		}
		table.AddRow(f.Name, value)
	})

	_, err := fmt.Fprintln(w, table)
	return err
}

func isSecret(key string) bool {
	key = strings.ToLower(key)
	return strings.Contains(key, "password") || strings.Contains(key, "secret") || strings.Contains(key, "token")
}
