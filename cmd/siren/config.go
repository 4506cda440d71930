package main

import (
	"io"
	"os"
	"sort"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/antoinenguyen27/siren/pkg/presenter"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration siren would run with, after merging defaults,
config.yaml, SIREN_* environment variables and flags. The LLM API key itself is
never printed; only the name of the variable it is read from.`,
	Run: func(cmd *cobra.Command, args []string) {
		if used := viper.ConfigFileUsed(); used != "" {
			presenter.Info("Config file: " + used)
		} else {
			presenter.Info("Config file: none (defaults and environment only)")
		}
		if err := writeSettings(os.Stdout, viper.AllSettings()); err != nil {
			presenter.Error(err, "Failed to print configuration")
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}

// writeSettings renders settings as YAML with sections in a stable order.
func writeSettings(w io.Writer, settings map[string]any) error {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	doc := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range keys {
		var value yaml.Node
		if err := value.Encode(settings[k]); err != nil {
			return errors.Wrapf(err, "failed to encode %s", k)
		}
		doc.Content = append(doc.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: k}, &value)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return errors.Wrap(err, "failed to encode configuration")
	}
	return enc.Close()
}
