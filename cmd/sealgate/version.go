package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/sealgate"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of sealgate",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "sealgate version %s\n", strings.TrimSpace(sealgate.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
