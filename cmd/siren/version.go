package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/antoinenguyen27/siren/pkg/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version information",
	Long:  `Print the version information of siren in JSON format, or as one line with --short.`,
	// version needs no configuration
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		info := version.Get()
		if short, _ := cmd.Flags().GetBool("short"); short {
			fmt.Println(info.String())
			return
		}
		json, err := info.JSON()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error formatting version info: %s\n", err)
			os.Exit(1)
		}
		fmt.Println(json)
	},
}

func init() {
	versionCmd.Flags().Bool("short", false, "Print a single line")
}
